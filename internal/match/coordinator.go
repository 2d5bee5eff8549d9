package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/snake-arena/internal/broadcast"
)

var (
	// ErrBusy is returned when the coordinator is at its concurrency limit.
	ErrBusy = errors.New("match: too many running matches")
	// ErrShutdown is returned by Start after Shutdown.
	ErrShutdown = errors.New("match: coordinator is shut down")
	// ErrUnknownMatch is returned for an ID the coordinator never started.
	ErrUnknownMatch = errors.New("match: unknown match")
	// ErrDuplicateMatch is returned when a match ID is already in use.
	ErrDuplicateMatch = errors.New("match: duplicate match id")
)

// DefaultRetention is how long a finished match stays available to Wait,
// Phase and LastError.
const DefaultRetention = 10 * time.Minute

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	MaxConcurrent int           // 0 means unlimited
	Retention     time.Duration // 0 means DefaultRetention
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{MaxConcurrent: 64, Retention: DefaultRetention}
}

// handle tracks one match started by the coordinator.
type handle struct {
	runner *Runner
	cancel context.CancelFunc
	done   chan struct{}

	// Set before done is closed.
	result *Result
	err    error
}

// Coordinator runs many matches concurrently, one goroutine each.
type Coordinator struct {
	config  CoordinatorConfig
	store   TurnStore
	gateway AgentGateway
	hub     *broadcast.Hub
	logger  *log.Logger

	mu       sync.RWMutex
	matches  map[string]*handle
	active   int
	shutdown bool
	wg       sync.WaitGroup

	onComplete func(matchID string, res *Result, err error)
}

// NewCoordinator creates a coordinator sharing one store, gateway and hub
// across all of its matches.
func NewCoordinator(cfg CoordinatorConfig, store TurnStore, gateway AgentGateway, hub *broadcast.Hub, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &Coordinator{
		config:  cfg,
		store:   store,
		gateway: gateway,
		hub:     hub,
		logger:  logger,
		matches: make(map[string]*handle),
	}
}

// SetOnComplete registers a callback invoked after each match ends.
func (c *Coordinator) SetOnComplete(fn func(matchID string, res *Result, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// Start launches a match in the background and returns its ID. An ID already
// held by a running match or by a stored one is rejected with ErrDuplicateMatch.
func (c *Coordinator) Start(spec Spec) (string, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	} else if err := c.checkStored(spec.ID); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return "", ErrShutdown
	}
	if c.config.MaxConcurrent > 0 && c.active >= c.config.MaxConcurrent {
		return "", ErrBusy
	}
	if _, exists := c.matches[spec.ID]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateMatch, spec.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{
		runner: NewRunner(c.store, c.gateway, c.hub, c.logger),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.matches[spec.ID] = h
	c.active++
	c.wg.Add(1)

	go c.run(ctx, spec, h)

	return spec.ID, nil
}

func (c *Coordinator) checkStored(matchID string) error {
	_, err := c.store.MatchByID(context.Background(), matchID)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateMatch, matchID)
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return fmt.Errorf("match: lookup %s: %w", matchID, err)
	}
}

func (c *Coordinator) run(ctx context.Context, spec Spec, h *handle) {
	defer c.wg.Done()
	defer h.cancel()

	res, err := h.runner.Run(ctx, spec)
	if err != nil && !errors.Is(err, ErrStopped) {
		c.logger.Error("match run failed", "match", spec.ID, "err", err)
	}

	c.mu.Lock()
	h.result, h.err = res, err
	c.active--
	onComplete := c.onComplete
	c.mu.Unlock()
	close(h.done)

	time.AfterFunc(c.config.Retention, func() { c.forget(spec.ID, h) })

	if onComplete != nil {
		onComplete(spec.ID, res, err)
	}
}

// forget drops a finished match's handle. The stored match is unaffected.
func (c *Coordinator) forget(matchID string, h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.matches[matchID] == h {
		delete(c.matches, matchID)
	}
}

// Tracked returns the number of match handles held, running or retained.
func (c *Coordinator) Tracked() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matches)
}

// Stop asks a match to end after its current turn.
func (c *Coordinator) Stop(matchID string) error {
	c.mu.RLock()
	h, ok := c.matches[matchID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	h.cancel()
	return nil
}

// Wait blocks until the match ends or ctx is done.
func (c *Coordinator) Wait(ctx context.Context, matchID string) (*Result, error) {
	c.mu.RLock()
	h, ok := c.matches[matchID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}

	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Phase returns the current phase of a match.
func (c *Coordinator) Phase(matchID string) (Phase, bool) {
	c.mu.RLock()
	h, ok := c.matches[matchID]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	return h.runner.Phase(), true
}

// LastError returns the error a finished match ended with, if any.
func (c *Coordinator) LastError(matchID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.matches[matchID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// ActiveCount returns the number of matches still running.
func (c *Coordinator) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Shutdown stops accepting matches, cancels the running ones and waits for
// them to wind down or for ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.shutdown = true
	for _, h := range c.matches {
		h.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
