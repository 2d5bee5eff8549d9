// Package loadgen drives a running arena server with match submissions and
// measures how it keeps up.
package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/snake-arena/internal/spectator"
)

// DefaultMaxInFlight bounds concurrent submissions across all patterns.
const DefaultMaxInFlight = 256

// Pattern emits submissions until ctx is done. submit blocks while the
// generator is at its in-flight limit.
type Pattern interface {
	Run(ctx context.Context, submit func())
	String() string
}

// Steady submits at a constant rate.
type Steady struct {
	PerSecond float64
}

// ParseSteady reads a rate such as "10/s" or "0.5/s".
func ParseSteady(s string) (Steady, error) {
	s = strings.TrimSpace(s)
	num, ok := strings.CutSuffix(s, "/s")
	if !ok {
		return Steady{}, fmt.Errorf("steady rate %q must end with /s, e.g. 10/s", s)
	}
	rate, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Steady{}, fmt.Errorf("invalid steady rate %q: %w", s, err)
	}
	if rate <= 0 {
		return Steady{}, fmt.Errorf("steady rate %q must be positive", s)
	}
	return Steady{PerSecond: rate}, nil
}

func (p Steady) String() string {
	return strconv.FormatFloat(p.PerSecond, 'f', -1, 64) + "/s"
}

// Run implements Pattern.
func (p Steady) Run(ctx context.Context, submit func()) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / p.PerSecond))
	defer ticker.Stop()

	submit()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			submit()
		}
	}
}

// Batch submits Size matches at once every Interval.
type Batch struct {
	Size     int
	Interval time.Duration
}

// ParseBatch reads "count,interval" such as "100,30s".
func ParseBatch(s string) (Batch, error) {
	count, interval, ok := strings.Cut(s, ",")
	if !ok || strings.Contains(interval, ",") {
		return Batch{}, fmt.Errorf("batch %q must be count,interval, e.g. 100,30s", s)
	}
	size, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return Batch{}, fmt.Errorf("invalid batch size %q: %w", count, err)
	}
	if size <= 0 {
		return Batch{}, fmt.Errorf("batch size %d must be positive", size)
	}
	every, err := time.ParseDuration(strings.TrimSpace(interval))
	if err != nil {
		return Batch{}, fmt.Errorf("invalid batch interval %q: %w", interval, err)
	}
	if every <= 0 {
		return Batch{}, fmt.Errorf("batch interval %s must be positive", every)
	}
	return Batch{Size: size, Interval: every}, nil
}

func (p Batch) String() string {
	return strconv.Itoa(p.Size) + " every " + p.Interval.String()
}

// Run implements Pattern.
func (p Batch) Run(ctx context.Context, submit func()) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		for i := 0; i < p.Size && ctx.Err() == nil; i++ {
			submit()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Config configures a Generator.
type Config struct {
	BaseURL     string
	Request     spectator.SubmitRequest
	MaxInFlight int           // 0 means DefaultMaxInFlight
	Timeout     time.Duration // per request, 0 means 30s
}

// Generator submits matches to POST /api/games.
type Generator struct {
	cfg    Config
	client *http.Client
	stats  *Stats
	logger *log.Logger
}

// NewGenerator creates a generator. A nil client uses a client with the
// configured timeout.
func NewGenerator(cfg Config, client *http.Client, logger *log.Logger) *Generator {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = log.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Generator{cfg: cfg, client: client, stats: NewStats(), logger: logger}
}

// Stats returns the live counters.
func (g *Generator) Stats() *Stats {
	return g.stats
}

// Run drives every pattern until ctx is done, calling report every interval,
// and returns the final snapshot once in-flight submissions have finished.
func (g *Generator) Run(ctx context.Context, patterns []Pattern, every time.Duration, report func(Snapshot)) Snapshot {
	var inflight errgroup.Group
	inflight.SetLimit(g.cfg.MaxInFlight)
	submit := func() {
		inflight.Go(func() error {
			g.submitOne()
			return nil
		})
	}

	var wg sync.WaitGroup
	for _, p := range patterns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(ctx, submit)
		}()
	}

	if report != nil && every > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					report(g.stats.Snapshot())
				}
			}
		}()
	}

	wg.Wait()
	_ = inflight.Wait()
	return g.stats.Snapshot()
}

// errRejected marks a submission the server answered with an error status.
var errRejected = errors.New("loadgen: submission rejected")

func (g *Generator) submitOne() {
	start := time.Now()
	id, err := g.post()
	latency := time.Since(start)

	switch {
	case err == nil:
		g.stats.RecordAccepted(latency)
		g.logger.Debug("match submitted", "match", id, "latency", latency.Round(time.Millisecond))
	case errors.Is(err, errRejected):
		g.stats.RecordRejected()
		g.logger.Warn("match rejected", "err", err)
	default:
		g.stats.RecordFailed()
		g.logger.Warn("submission failed", "err", err)
	}
}

func (g *Generator) post() (string, error) {
	body, err := json.Marshal(g.cfg.Request)
	if err != nil {
		return "", fmt.Errorf("loadgen: encode request: %w", err)
	}

	// Submissions are not tied to the run context so the last ones can finish.
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/api/games", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("loadgen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("loadgen: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e spectator.ErrorData
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(raw))
		}
		return "", fmt.Errorf("%w: %s: %s", errRejected, resp.Status, e.Message)
	}

	var out spectator.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("loadgen: decode response: %w", err)
	}
	if _, err := uuid.Parse(out.ID); err != nil {
		return "", fmt.Errorf("loadgen: match id %q: %w", out.ID, err)
	}
	return out.ID, nil
}
