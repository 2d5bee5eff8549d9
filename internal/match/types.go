// Package match runs matches: it asks agents for moves, advances the board,
// persists every turn and notifies live viewers.
package match

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vovakirdan/snake-arena/internal/agent"
	"github.com/vovakirdan/snake-arena/internal/rules"
)

const (
	// DefaultMaxTurns caps a match that never produces a winner.
	DefaultMaxTurns = 500
	// DefaultMoveTimeout is the per-agent budget for one move call.
	DefaultMoveTimeout = 500 * time.Millisecond
)

// Status is the persisted lifecycle state of a match.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusAborted  Status = "aborted"
)

// Done reports whether no more turns will be written.
func (s Status) Done() bool {
	return s == StatusFinished || s == StatusAborted
}

// Phase is the in-process state of a Runner.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseRunning      Phase = "running"
	PhaseFinalizing   Phase = "finalizing"
	PhaseFinished     Phase = "finished"
	PhaseAborted      Phase = "aborted"
)

// AgentSpec registers one agent for a match.
type AgentSpec struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Spec describes a match to run.
type Spec struct {
	ID          string // Generated when empty
	Width       int
	Height      int
	Ruleset     string
	Settings    rules.Settings
	Agents      []AgentSpec
	MoveTimeout time.Duration
	MaxTurns    int
	TurnDelay   time.Duration // Pause between turns for live viewing
	Seed        int64
	Source      string
}

// Info is the persisted description of a match.
type Info struct {
	ID          string
	Ruleset     string
	Width       int
	Height      int
	Status      Status
	Seed        int64
	MaxTurns    int
	MoveTimeout time.Duration
	Agents      []AgentSpec
	CreatedAt   time.Time
}

// TurnRef identifies a persisted turn.
type TurnRef struct {
	ID      string
	MatchID string
	Turn    int
}

// TurnRecord is a persisted frame with its metadata.
type TurnRecord struct {
	ID        string
	MatchID   string
	Turn      int
	Frame     json.RawMessage
	CreatedAt time.Time
}

// Placement is an agent's final rank.
type Placement struct {
	AgentID        string
	Name           string
	Rank           int
	Alive          bool
	Length         int
	Health         int
	Cause          string
	EliminatedTurn int
	EliminatedBy   string
}

// Result summarizes a completed run.
type Result struct {
	MatchID    string
	Status     Status
	FinalTurn  int
	Placements []Placement
	Elapsed    time.Duration
}

// Winner returns the first-placed agent, if any.
func (r *Result) Winner() (Placement, bool) {
	if r == nil || len(r.Placements) == 0 {
		return Placement{}, false
	}
	return r.Placements[0], true
}

// TurnStore is the durable, append-only storage a match writes to.
// Turns for a match must be appended in order starting at 0.
type TurnStore interface {
	SaveMatch(ctx context.Context, info Info) error
	UpdateMatchStatus(ctx context.Context, matchID string, status Status) error
	AppendTurn(ctx context.Context, matchID string, turn int, frame []byte) (TurnRef, error)
	AppendAgentTurn(ctx context.Context, ref TurnRef, res agent.MoveResult) error
	TurnsFrom(ctx context.Context, matchID string, from int) ([]TurnRecord, error)
	SavePlacements(ctx context.Context, matchID string, placements []Placement) error
	MatchByID(ctx context.Context, matchID string) (*Info, error)
}
