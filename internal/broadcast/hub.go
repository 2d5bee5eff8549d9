// Package broadcast fans turn notifications out to live viewers of a match.
// Notices carry only the turn number; viewers read the frames themselves from
// the turn store, so a dropped notice costs a re-read, never a lost frame.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// DefaultCapacity is the per-subscriber buffer, enough for a few hundred
// turns of stalled reading.
const DefaultCapacity = 256

// Kind identifies a notice.
type Kind string

const (
	KindTurn Kind = "turn"
	KindEnd  Kind = "end"
)

// Notice announces a committed turn or the end of a match.
type Notice struct {
	MatchID string
	Kind    Kind
	Turn    int
	Status  string // Final match status, set on end notices
}

var (
	// ErrLagged matches every LagError.
	ErrLagged = errors.New("broadcast: subscriber lagged")
	// ErrClosed is returned by Recv after the subscription is closed.
	ErrClosed = errors.New("broadcast: subscription closed")
)

// LagError reports that notices were dropped because the subscriber's buffer
// was full. The buffered backlog is discarded along with it; the consumer
// must resync from the turn store or disconnect.
type LagError struct {
	MatchID string
	Missed  uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("broadcast: subscriber of match %s lagged, %d notices dropped", e.MatchID, e.Missed)
}

// Is makes errors.Is(err, ErrLagged) work.
func (e *LagError) Is(target error) bool {
	return target == ErrLagged
}

// Hub owns one channel per match that is running or being watched.
type Hub struct {
	capacity int
	logger   *log.Logger

	mu       sync.Mutex
	channels map[string]*channel
}

// NewHub creates a hub. Capacity below 1 selects DefaultCapacity.
func NewHub(capacity int, logger *log.Logger) *Hub {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		capacity: capacity,
		logger:   logger,
		channels: make(map[string]*channel),
	}
}

type channel struct {
	matchID string

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	running bool
}

// Open marks a match as running, creating its channel if needed.
func (h *Hub) Open(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := h.getOrCreate(matchID)
	ch.mu.Lock()
	ch.running = true
	ch.mu.Unlock()
}

// Subscribe attaches a new viewer to a match.
func (h *Hub) Subscribe(matchID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := h.getOrCreate(matchID)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.nextID++
	sub := &Subscription{
		id:      ch.nextID,
		hub:     h,
		ch:      ch,
		notices: make(chan Notice, h.capacity),
		done:    make(chan struct{}),
	}
	ch.subs[sub.id] = sub
	return sub
}

// Publish delivers a notice to every subscriber of its match. It never
// blocks: a subscriber with a full buffer is flagged as lagged instead.
// Publishing to a match nobody is watching is a no-op.
func (h *Hub) Publish(n Notice) {
	h.mu.Lock()
	ch := h.channels[n.MatchID]
	h.mu.Unlock()
	if ch == nil {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for _, sub := range ch.subs {
		select {
		case sub.notices <- n:
		default:
			sub.missed.Add(1)
			if !sub.lagged.Swap(true) {
				h.logger.Debug("subscriber lagging", "match", n.MatchID, "subscriber", sub.id)
			}
		}
	}
}

// Release marks a match as no longer running. Its channel is dropped now if
// nobody is watching, otherwise when the last subscription closes.
func (h *Hub) Release(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := h.channels[matchID]
	if ch == nil {
		return
	}
	ch.mu.Lock()
	ch.running = false
	idle := len(ch.subs) == 0
	ch.mu.Unlock()

	if idle {
		delete(h.channels, matchID)
		h.logger.Debug("broadcast channel removed", "match", matchID)
	}
}

// Channels returns the number of live match channels.
func (h *Hub) Channels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Subscribers returns how many viewers are attached to a match.
func (h *Hub) Subscribers(matchID string) int {
	h.mu.Lock()
	ch := h.channels[matchID]
	h.mu.Unlock()
	if ch == nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// getOrCreate must be called with h.mu held.
func (h *Hub) getOrCreate(matchID string) *channel {
	ch, ok := h.channels[matchID]
	if !ok {
		ch = &channel{matchID: matchID, subs: make(map[uint64]*Subscription)}
		h.channels[matchID] = ch
		h.logger.Debug("broadcast channel created", "match", matchID)
	}
	return ch
}

func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := sub.ch
	ch.mu.Lock()
	delete(ch.subs, sub.id)
	idle := len(ch.subs) == 0 && !ch.running
	ch.mu.Unlock()

	if idle && h.channels[ch.matchID] == ch {
		delete(h.channels, ch.matchID)
		h.logger.Debug("broadcast channel removed", "match", ch.matchID)
	}
}

// Subscription is one viewer's feed of notices.
type Subscription struct {
	id      uint64
	hub     *Hub
	ch      *channel
	notices chan Notice
	lagged  atomic.Bool
	missed  atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// MatchID returns the match the subscription follows.
func (s *Subscription) MatchID() string {
	return s.ch.matchID
}

// Recv waits for the next notice. After the buffer overflowed it returns a
// *LagError once and discards the stale backlog.
func (s *Subscription) Recv(ctx context.Context) (Notice, error) {
	if s.lagged.Load() {
		return Notice{}, s.takeLag()
	}

	select {
	case n := <-s.notices:
		return n, nil
	case <-s.done:
		return Notice{}, ErrClosed
	case <-ctx.Done():
		return Notice{}, ctx.Err()
	}
}

func (s *Subscription) takeLag() error {
	for {
		select {
		case <-s.notices:
		default:
			s.lagged.Store(false)
			return &LagError{MatchID: s.ch.matchID, Missed: s.missed.Swap(0)}
		}
	}
}

// Close detaches the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.hub.detach(s)
	})
}
