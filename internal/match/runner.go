package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/vovakirdan/snake-arena/internal/agent"
	"github.com/vovakirdan/snake-arena/internal/broadcast"
	"github.com/vovakirdan/snake-arena/internal/core"
	"github.com/vovakirdan/snake-arena/internal/frame"
	"github.com/vovakirdan/snake-arena/internal/rules"
)

// AgentGateway is the part of agent.Gateway a runner needs.
type AgentGateway interface {
	RequestMoves(ctx context.Context, targets []agent.Target, timeout time.Duration) []agent.MoveResult
	NotifyAll(ctx context.Context, call agent.Lifecycle, targets []agent.Target, timeout time.Duration)
}

var _ AgentGateway = (*agent.Gateway)(nil)

// Runner drives a single match from setup to placements. A Runner is used
// for one Run only.
type Runner struct {
	store   TurnStore
	gateway AgentGateway
	hub     *broadcast.Hub
	logger  *log.Logger

	mu      sync.RWMutex
	phase   Phase
	matchID string
}

// NewRunner creates a runner. The hub may be nil when nobody watches live.
func NewRunner(store TurnStore, gateway AgentGateway, hub *broadcast.Hub, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		store:   store,
		gateway: gateway,
		hub:     hub,
		logger:  logger,
		phase:   PhaseInitializing,
	}
}

// Phase returns the runner's current phase.
func (r *Runner) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// MatchID returns the ID of the match being run, once known.
func (r *Runner) MatchID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matchID
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// match is the state of one run, owned by the Run goroutine.
type match struct {
	spec   Spec
	engine *rules.Engine
	state  *core.State
	game   agent.Game
	urls   map[string]string
	start  time.Time

	agentWait time.Duration
	dbWrite   time.Duration
}

// Run plays the match to completion. It returns a *PreconditionError when the
// match cannot start, a *PersistenceError when the store fails, and an error
// matching ErrStopped when ctx is cancelled. Cancellation is only observed
// between turns.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	start := time.Now()
	r.setPhase(PhaseInitializing)

	m, err := r.prepare(spec)
	if err != nil {
		r.setPhase(PhaseAborted)
		return nil, err
	}
	m.start = start

	r.mu.Lock()
	r.matchID = m.spec.ID
	r.mu.Unlock()

	logger := r.logger.With("match", m.spec.ID)
	// Work inside a turn is never interrupted by ctx.
	work := context.WithoutCancel(ctx)

	// Nothing is ours until the match row exists; the ID may belong to another match.
	if err := r.store.SaveMatch(work, m.info()); err != nil {
		r.setPhase(PhaseAborted)
		logger.Error("cannot save match", "err", err)
		return nil, &PersistenceError{MatchID: m.spec.ID, Op: "save match", Err: err}
	}
	if r.hub != nil {
		r.hub.Open(m.spec.ID)
	}
	if err := r.persist(work, m, nil); err != nil {
		return nil, r.abort(work, m, err)
	}

	go r.gateway.NotifyAll(work, agent.CallStart, m.targets(false), m.spec.MoveTimeout)

	logger.Info("match started",
		"ruleset", m.engine.Ruleset(),
		"board", fmt.Sprintf("%dx%d", m.spec.Width, m.spec.Height),
		"agents", len(m.spec.Agents),
		"seed", m.spec.Seed,
	)
	r.setPhase(PhaseRunning)

	for !rules.IsOver(m.state) && m.state.Turn < m.spec.MaxTurns {
		if err := ctx.Err(); err != nil {
			go r.gateway.NotifyAll(work, agent.CallEnd, m.targets(true), m.spec.MoveTimeout)
			return nil, r.abort(work, m, fmt.Errorf("%w: %w", ErrStopped, context.Cause(ctx)))
		}

		if err := r.playTurn(work, m, logger); err != nil {
			return nil, r.abort(work, m, err)
		}

		if m.spec.TurnDelay > 0 {
			select {
			case <-time.After(m.spec.TurnDelay):
			case <-ctx.Done():
			}
		}
	}

	return r.finalize(work, m, logger)
}

// Validate checks that a match can start from spec. It returns a
// *PreconditionError describing the first problem found.
func Validate(spec Spec) error {
	if len(spec.Agents) == 0 {
		return precondition("no agents registered", rules.ErrNoAgents)
	}
	if len(spec.Agents) > rules.MaxAgents {
		return precondition(fmt.Sprintf("%d agents registered", len(spec.Agents)), rules.ErrTooManyAgents)
	}
	if spec.Width < rules.MinBoardSize || spec.Height < rules.MinBoardSize {
		return precondition(fmt.Sprintf("board %dx%d", spec.Width, spec.Height), rules.ErrBoardTooSmall)
	}
	if spec.MoveTimeout < 0 {
		return precondition("negative move timeout", nil)
	}
	if spec.MaxTurns < 0 {
		return precondition("negative turn cap", nil)
	}
	if _, err := rules.ParseRuleset(spec.Ruleset); err != nil {
		return precondition("ruleset", err)
	}

	seen := make(map[string]bool, len(spec.Agents))
	for i, a := range spec.Agents {
		if a.URL == "" {
			return precondition(fmt.Sprintf("agent %d has no url", i), nil)
		}
		if a.ID == "" {
			continue
		}
		if seen[a.ID] {
			return precondition("duplicate agent id "+a.ID, nil)
		}
		seen[a.ID] = true
	}
	return nil
}

// prepare validates the spec and builds the turn-0 board.
func (r *Runner) prepare(spec Spec) (*match, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}

	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.MoveTimeout == 0 {
		spec.MoveTimeout = DefaultMoveTimeout
	}
	if spec.MaxTurns == 0 {
		spec.MaxTurns = DefaultMaxTurns
	}
	if spec.Settings == (rules.Settings{}) {
		spec.Settings = rules.DefaultSettings()
	}
	if spec.Seed == 0 {
		spec.Seed = time.Now().UnixNano()
	}

	engine, err := rules.NewEngine(spec.Ruleset, spec.Settings)
	if err != nil {
		return nil, precondition("ruleset", err)
	}

	agents := make([]AgentSpec, len(spec.Agents))
	entrants := make([]rules.Entrant, len(spec.Agents))
	urls := make(map[string]string, len(spec.Agents))
	for i, a := range spec.Agents {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		urls[a.ID] = a.URL
		agents[i] = a
		entrants[i] = rules.Entrant{ID: a.ID, Name: a.Name}
	}
	spec.Agents = agents

	state, err := rules.NewGame(spec.Width, spec.Height, entrants, spec.Seed)
	if err != nil {
		return nil, precondition("initial board", err)
	}

	m := &match{
		spec:   spec,
		engine: engine,
		state:  state,
		urls:   urls,
	}
	m.game = agent.Game{
		ID: spec.ID,
		Ruleset: agent.Ruleset{
			Name:    string(engine.Ruleset()),
			Version: "v1.0.0",
			Settings: agent.RulesetSettings{
				FoodSpawnChance:     spec.Settings.FoodSpawnChance,
				MinimumFood:         spec.Settings.MinimumFood,
				HazardDamagePerTurn: spec.Settings.HazardDamage,
				Royale:              agent.RoyaleSettings{ShrinkEveryNTurns: spec.Settings.ShrinkEveryTurns},
			},
		},
		Map:     "standard",
		Timeout: int(spec.MoveTimeout / time.Millisecond),
		Source:  spec.Source,
	}
	return m, nil
}

func (m *match) info() Info {
	return Info{
		ID:          m.spec.ID,
		Ruleset:     string(m.engine.Ruleset()),
		Width:       m.spec.Width,
		Height:      m.spec.Height,
		Status:      StatusRunning,
		Seed:        m.spec.Seed,
		MaxTurns:    m.spec.MaxTurns,
		MoveTimeout: m.spec.MoveTimeout,
		Agents:      m.spec.Agents,
	}
}

// targets builds one call per agent, each with the board from that agent's
// point of view. Unless all is set, only living agents are included.
func (m *match) targets(all bool) []agent.Target {
	targets := make([]agent.Target, 0, len(m.state.Agents))
	for i := range m.state.Agents {
		a := &m.state.Agents[i]
		if !all && !a.Alive {
			continue
		}
		targets = append(targets, agent.Target{
			AgentID:  a.ID,
			Endpoint: m.urls[a.ID],
			Request:  agent.BuildRequest(m.state, m.game, a.ID, frame.Color),
			Last:     a.LastMove,
			HasLast:  a.HasMove,
		})
	}
	return targets
}

// playTurn gathers moves, advances the board and commits the new turn.
func (r *Runner) playTurn(ctx context.Context, m *match, logger *log.Logger) error {
	turnStart := time.Now()
	prev := m.state

	results := r.gateway.RequestMoves(ctx, m.targets(false), m.spec.MoveTimeout)
	agentWait := time.Since(turnStart)

	moves := make(map[string]core.Move, len(results))
	for _, res := range results {
		moves[res.AgentID] = res.Move
	}
	next := m.engine.Advance(prev, moves)

	for _, res := range results {
		a := next.Agent(res.AgentID)
		if a == nil {
			continue
		}
		a.LatencyMS = 0
		if res.LatencyMeasured {
			a.LatencyMS = int(res.Latency / time.Millisecond)
		}
		a.Shout = res.Shout
	}

	for _, a := range eliminatedSince(prev, next) {
		logger.Info("agent eliminated",
			"agent", a.ID,
			"cause", a.Elimination.Cause,
			"by", a.Elimination.By,
			"turn", a.Elimination.Turn,
		)
	}

	m.state = next
	dbStart := time.Now()
	if err := r.persist(ctx, m, results); err != nil {
		return err
	}
	dbWrite := time.Since(dbStart)

	m.agentWait += agentWait
	m.dbWrite += dbWrite
	logger.Debug("turn committed",
		"turn", next.Turn,
		"living", next.LivingCount(),
		"agent_wait", agentWait,
		"db_write_latency", dbWrite,
		"processing_overhead", time.Since(turnStart)-agentWait-dbWrite,
	)
	return nil
}

// eliminatedSince returns the agents alive in prev but not in next, in
// registration order.
func eliminatedSince(prev, next *core.State) []*core.Agent {
	var out []*core.Agent
	for i := range next.Agents {
		if prev.Agents[i].Alive && !next.Agents[i].Alive {
			out = append(out, &next.Agents[i])
		}
	}
	return out
}

// persist writes the current board as a frame, records each agent's move
// and notifies viewers.
func (r *Runner) persist(ctx context.Context, m *match, results []agent.MoveResult) error {
	turn := m.state.Turn
	data, err := frame.FromState(m.state).Encode()
	if err != nil {
		return &PersistenceError{MatchID: m.spec.ID, Op: "encode frame", Turn: turn, Err: err}
	}

	ref, err := r.store.AppendTurn(ctx, m.spec.ID, turn, data)
	if err != nil {
		return &PersistenceError{MatchID: m.spec.ID, Op: "append turn", Turn: turn, Err: err}
	}
	for _, res := range results {
		if err := r.store.AppendAgentTurn(ctx, ref, res); err != nil {
			return &PersistenceError{MatchID: m.spec.ID, Op: "append agent turn", Turn: turn, Err: err}
		}
	}

	if r.hub != nil {
		r.hub.Publish(broadcast.Notice{MatchID: m.spec.ID, Kind: broadcast.KindTurn, Turn: turn})
	}
	return nil
}

// finalize notifies agents, ranks them and closes the match.
func (r *Runner) finalize(ctx context.Context, m *match, logger *log.Logger) (*Result, error) {
	r.setPhase(PhaseFinalizing)

	go r.gateway.NotifyAll(ctx, agent.CallEnd, m.targets(true), m.spec.MoveTimeout)

	placements := Rank(m.state)
	if err := r.store.SavePlacements(ctx, m.spec.ID, placements); err != nil {
		return nil, r.abort(ctx, m, &PersistenceError{MatchID: m.spec.ID, Op: "save placements", Turn: m.state.Turn, Err: err})
	}
	if err := r.store.UpdateMatchStatus(ctx, m.spec.ID, StatusFinished); err != nil {
		return nil, r.abort(ctx, m, &PersistenceError{MatchID: m.spec.ID, Op: "finish match", Turn: m.state.Turn, Err: err})
	}

	r.closeChannel(m, StatusFinished)
	r.setPhase(PhaseFinished)

	res := &Result{
		MatchID:    m.spec.ID,
		Status:     StatusFinished,
		FinalTurn:  m.state.Turn,
		Placements: placements,
		Elapsed:    time.Since(m.start),
	}

	winner := ""
	if w, ok := res.Winner(); ok {
		winner = w.Name
	}
	logger.Info("match finished",
		"turns", res.FinalTurn,
		"winner", winner,
		"elapsed", res.Elapsed.Round(time.Millisecond),
		"agent_wait", m.agentWait.Round(time.Millisecond),
		"db_write_latency", m.dbWrite.Round(time.Millisecond),
	)
	return res, nil
}

// abort records the match as aborted on a best-effort basis and returns cause.
func (r *Runner) abort(ctx context.Context, m *match, cause error) error {
	r.setPhase(PhaseAborted)

	if err := r.store.UpdateMatchStatus(ctx, m.spec.ID, StatusAborted); err != nil {
		r.logger.Warn("cannot mark match aborted", "match", m.spec.ID, "err", err)
	}
	r.closeChannel(m, StatusAborted)

	level := log.ErrorLevel
	if errors.Is(cause, ErrStopped) {
		level = log.WarnLevel
	}
	r.logger.Log(level, "match aborted", "match", m.spec.ID, "turn", m.state.Turn, "err", cause)
	return cause
}

func (r *Runner) closeChannel(m *match, status Status) {
	if r.hub == nil {
		return
	}
	r.hub.Publish(broadcast.Notice{
		MatchID: m.spec.ID,
		Kind:    broadcast.KindEnd,
		Turn:    m.state.Turn,
		Status:  string(status),
	})
	r.hub.Release(m.spec.ID)
}
