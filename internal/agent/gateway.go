// Package agent talks to the HTTP servers that play the game. A move call never
// fails its caller: any problem is turned into a fallback move.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/snake-arena/internal/core"
)

const (
	maxResponseBytes = 64 << 10
	maxShoutLength   = 256

	// maxLifecycleCalls bounds concurrent start/end calls per fan-out.
	maxLifecycleCalls = 16
)

// Lifecycle names one of the three agent calls.
type Lifecycle string

const (
	CallStart Lifecycle = "start"
	CallMove  Lifecycle = "move"
	CallEnd   Lifecycle = "end"
)

// Target is one agent call to make.
type Target struct {
	AgentID  string
	Endpoint string
	Request  *Request
	Last     core.Move
	HasLast  bool
}

// MoveResult is the resolved move for one agent and one turn.
type MoveResult struct {
	AgentID         string
	Move            core.Move
	Latency         time.Duration
	LatencyMeasured bool
	TimedOut        bool
	Shout           string
}

// Gateway issues agent calls over HTTP.
type Gateway struct {
	client   *http.Client
	logger   *log.Logger
	fallback FallbackPolicy
}

// NewGateway creates a gateway. A nil client uses a fresh http.Client and a
// nil logger uses the default logger.
func NewGateway(client *http.Client, logger *log.Logger) *Gateway {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		client:   client,
		logger:   logger,
		fallback: ContinueLastMove,
	}
}

// SetFallback replaces the fallback policy. A nil policy restores the default.
func (g *Gateway) SetFallback(p FallbackPolicy) {
	if p == nil {
		p = ContinueLastMove
	}
	g.fallback = p
}

// RequestMove asks one agent for its move. It always returns a result.
func (g *Gateway) RequestMove(ctx context.Context, t Target, timeout time.Duration) MoveResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	status, body, err := g.post(ctx, t, CallMove)
	if err != nil {
		g.logger.Warn("agent unreachable, using fallback", "agent", t.AgentID, "timeout", timeout, "err", err)
		return g.failed(t, err, true)
	}
	elapsed := time.Since(start)

	res := MoveResult{
		AgentID:         t.AgentID,
		Latency:         elapsed,
		LatencyMeasured: true,
	}

	if status < 200 || status > 299 {
		err := fmt.Errorf("agent: unexpected status %d", status)
		g.logger.Warn("bad move response, using fallback", "agent", t.AgentID, "status", status)
		res.Move = g.fallback(g.failure(t, err, false))
		return res
	}

	var mr MoveResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		g.logger.Warn("failed to parse move response, using fallback", "agent", t.AgentID, "err", err)
		res.Move = g.fallback(g.failure(t, err, false))
		return res
	}

	res.Shout = truncate(mr.Shout, maxShoutLength)
	mv, ok := core.ParseMove(mr.Move)
	if !ok {
		err := fmt.Errorf("agent: invalid move %q", mr.Move)
		g.logger.Warn("invalid move, using fallback", "agent", t.AgentID, "move", mr.Move)
		mv = g.fallback(g.failure(t, err, false))
	}
	res.Move = mv
	return res
}

// RequestMoves calls every target concurrently and waits for all of them.
// Results are returned in target order.
func (g *Gateway) RequestMoves(ctx context.Context, targets []Target, timeout time.Duration) []MoveResult {
	results := make([]MoveResult, len(targets))

	// Every move call must be in flight at once; each one bounds itself with timeout.
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = g.RequestMove(ctx, t, timeout)
		}()
	}
	wg.Wait()

	return results
}

// NotifyStart tells an agent a match is starting. Failures are logged only.
func (g *Gateway) NotifyStart(ctx context.Context, t Target, timeout time.Duration) {
	g.notify(ctx, t, CallStart, timeout)
}

// NotifyEnd tells an agent its match is over. Failures are logged only.
func (g *Gateway) NotifyEnd(ctx context.Context, t Target, timeout time.Duration) {
	g.notify(ctx, t, CallEnd, timeout)
}

// NotifyAll sends a start or end call to every target, at most
// maxLifecycleCalls at a time, and returns once all of them have settled.
func (g *Gateway) NotifyAll(ctx context.Context, call Lifecycle, targets []Target, timeout time.Duration) {
	var eg errgroup.Group
	eg.SetLimit(maxLifecycleCalls)
	for _, t := range targets {
		eg.Go(func() error {
			g.notify(ctx, t, call, timeout)
			return nil
		})
	}
	_ = eg.Wait()
}

func (g *Gateway) notify(ctx context.Context, t Target, call Lifecycle, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, _, err := g.post(ctx, t, call)
	switch {
	case err != nil:
		g.logger.Warn("agent call failed", "call", call, "agent", t.AgentID, "err", err)
	case status < 200 || status > 299:
		g.logger.Warn("agent call rejected", "call", call, "agent", t.AgentID, "status", status)
	default:
		g.logger.Debug("agent call ok", "call", call, "agent", t.AgentID)
	}
}

// post sends the request document and reads the whole response within ctx.
// A returned error means no timely response was received.
func (g *Gateway) post(ctx context.Context, t Target, call Lifecycle) (int, []byte, error) {
	payload, err := json.Marshal(t.Request)
	if err != nil {
		return 0, nil, fmt.Errorf("agent: cannot encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(t.Endpoint, call), bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("agent: cannot build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, errors.Join(ctxErr, err)
		}
		// The response arrived in time but its body was cut short.
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, body, nil
}

func (g *Gateway) failure(t Target, err error, timedOut bool) Failure {
	return Failure{
		AgentID:  t.AgentID,
		Last:     t.Last,
		HasLast:  t.HasLast,
		TimedOut: timedOut,
		Err:      err,
		Request:  t.Request,
	}
}

func (g *Gateway) failed(t Target, err error, timedOut bool) MoveResult {
	return MoveResult{
		AgentID:  t.AgentID,
		Move:     g.fallback(g.failure(t, err, timedOut)),
		TimedOut: timedOut,
	}
}

func endpointURL(endpoint string, call Lifecycle) string {
	return strings.TrimRight(endpoint, "/") + "/" + string(call)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
