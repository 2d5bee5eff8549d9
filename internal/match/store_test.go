package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vovakirdan/snake-arena/internal/agent"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory TurnStore for runner tests.
type memStore struct {
	mu         sync.Mutex
	matches    map[string]*Info
	turns      map[string][]TurnRecord
	agentTurns map[string][]agent.MoveResult // keyed by turn ref ID
	placements map[string][]Placement

	failAppendAt int // Fail AppendTurn at this turn when >= 0
}

func newMemStore() *memStore {
	return &memStore{
		matches:      make(map[string]*Info),
		turns:        make(map[string][]TurnRecord),
		agentTurns:   make(map[string][]agent.MoveResult),
		placements:   make(map[string][]Placement),
		failAppendAt: -1,
	}
}

var _ TurnStore = (*memStore)(nil)

func (s *memStore) SaveMatch(_ context.Context, info Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[info.ID]; exists {
		return fmt.Errorf("unique constraint failed: matches.id %s", info.ID)
	}
	info.CreatedAt = time.Now()
	s.matches[info.ID] = &info
	return nil
}

func (s *memStore) UpdateMatchStatus(_ context.Context, matchID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	return nil
}

func (s *memStore) AppendTurn(_ context.Context, matchID string, turn int, frame []byte) (TurnRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppendAt >= 0 && turn == s.failAppendAt {
		return TurnRef{}, errInjected
	}
	if len(s.turns[matchID]) != turn {
		return TurnRef{}, fmt.Errorf("%w: got %d", ErrTurnOutOfOrder, turn)
	}
	ref := TurnRef{ID: fmt.Sprintf("%s/%d", matchID, turn), MatchID: matchID, Turn: turn}
	s.turns[matchID] = append(s.turns[matchID], TurnRecord{
		ID: ref.ID, MatchID: matchID, Turn: turn, Frame: append([]byte(nil), frame...), CreatedAt: time.Now(),
	})
	return ref, nil
}

func (s *memStore) AppendAgentTurn(_ context.Context, ref TurnRef, res agent.MoveResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentTurns[ref.ID] = append(s.agentTurns[ref.ID], res)
	return nil
}

func (s *memStore) TurnsFrom(_ context.Context, matchID string, from int) ([]TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TurnRecord
	for _, t := range s.turns[matchID] {
		if t.Turn >= from {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) SavePlacements(_ context.Context, matchID string, placements []Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placements[matchID] = placements
	return nil
}

func (s *memStore) MatchByID(_ context.Context, matchID string) (*Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	info := *m
	return &info, nil
}

func (s *memStore) status(matchID string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.matches[matchID]; ok {
		return m.Status
	}
	return ""
}
