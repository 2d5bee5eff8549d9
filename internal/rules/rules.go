// Package rules advances a board by one turn. The engine is a pure function of
// the previous state and the submitted moves: every random choice a variant
// makes comes from a generator seeded by the state's seed and turn number.
package rules

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/vovakirdan/snake-arena/internal/core"
)

// Ruleset names one of the supported game variants.
type Ruleset string

const (
	Standard    Ruleset = "standard"
	Royale      Ruleset = "royale"
	Constrictor Ruleset = "constrictor"
	Snail       Ruleset = "snail"
)

// Rulesets lists the supported variants in display order.
var Rulesets = []Ruleset{Standard, Royale, Constrictor, Snail}

// ErrUnknownRuleset is returned for a variant name the engine does not implement.
var ErrUnknownRuleset = errors.New("rules: unknown ruleset")

// ParseRuleset resolves a variant name. The empty string selects Standard.
func ParseRuleset(name string) (Ruleset, error) {
	if name == "" {
		return Standard, nil
	}
	for _, r := range Rulesets {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRuleset, name)
}

// DisplayName returns the human-readable variant name used by viewers.
func (r Ruleset) DisplayName() string {
	switch r {
	case Royale:
		return "Royale"
	case Constrictor:
		return "Constrictor"
	case Snail:
		return "Snail Mode"
	default:
		return "Standard"
	}
}

// Settings tunes the variants.
type Settings struct {
	MinimumFood      int `yaml:"minimum_food"`
	FoodSpawnChance  int `yaml:"food_spawn_chance"` // Percent per turn
	HazardDamage     int `yaml:"hazard_damage"`
	ShrinkEveryTurns int `yaml:"shrink_every_turns"`
	SnailMaxTrail    int `yaml:"snail_max_trail"`
}

// DefaultSettings returns the standard tuning.
func DefaultSettings() Settings {
	return Settings{
		MinimumFood:      1,
		FoodSpawnChance:  15,
		HazardDamage:     14,
		ShrinkEveryTurns: 25,
		SnailMaxTrail:    7,
	}
}

// Engine applies one variant's rules.
type Engine struct {
	ruleset  Ruleset
	settings Settings
}

// NewEngine creates an engine for the named variant.
func NewEngine(name string, settings Settings) (*Engine, error) {
	r, err := ParseRuleset(name)
	if err != nil {
		return nil, err
	}
	return &Engine{ruleset: r, settings: settings}, nil
}

// Ruleset returns the variant the engine applies.
func (e *Engine) Ruleset() Ruleset {
	return e.ruleset
}

// Settings returns the engine's tuning.
func (e *Engine) Settings() Settings {
	return e.settings
}

// IsOver reports whether at most one agent is still alive.
func IsOver(s *core.State) bool {
	return s.LivingCount() <= 1
}

// Advance returns the board after one turn. The input state is not modified.
// Living agents with no entry in moves repeat their last move, or go Up.
func (e *Engine) Advance(s *core.State, moves map[string]core.Move) *core.State {
	next := s.Clone()
	next.Turn = s.Turn + 1
	rng := turnRand(next.Seed, next.Turn)

	vacated := moveAgents(next, moves)
	e.applyHealth(next)
	feed(next, s.Food)
	if e.ruleset == Constrictor {
		constrict(next)
	}

	eliminate(next, evaluate(next))

	switch e.ruleset {
	case Standard:
		e.spawnFood(next, rng)
	case Royale:
		e.spawnFood(next, rng)
		e.shrink(next, rng)
	case Snail:
		e.spawnFood(next, rng)
		e.trail(next, vacated)
	}

	return next
}

// moveAgents pushes a new head for every living agent and pops its tail.
// It returns the vacated tail cell of each moved agent, keyed by ID.
func moveAgents(s *core.State, moves map[string]core.Move) map[string]core.Point {
	vacated := make(map[string]core.Point, len(s.Agents))
	for i := range s.Agents {
		a := &s.Agents[i]
		if !a.Alive || len(a.Body) == 0 {
			continue
		}

		mv, ok := moves[a.ID]
		if !ok {
			mv = core.MoveUp
			if a.HasMove {
				mv = a.LastMove
			}
		}

		tail := a.Body[len(a.Body)-1]
		body := make([]core.Point, len(a.Body))
		body[0] = a.Head().Add(mv.Vector())
		copy(body[1:], a.Body[:len(a.Body)-1])
		a.Body = body
		a.LastMove = mv
		a.HasMove = true
		vacated[a.ID] = tail
	}
	return vacated
}

// applyHealth drains one point from every living agent plus hazard damage
// for heads resting on a hazard.
func (e *Engine) applyHealth(s *core.State) {
	for i := range s.Agents {
		a := &s.Agents[i]
		if !a.Alive {
			continue
		}
		a.Health--
		if e.ruleset != Standard && e.ruleset != Constrictor && s.HazardAt(a.Head()) {
			a.Health -= e.settings.HazardDamage
		}
	}
}

// feed lets agents eat the food that was on the board before the turn.
// Agents are served in registration order and each cell feeds one agent.
func feed(s *core.State, food []core.Point) {
	if len(food) == 0 {
		return
	}

	eaten := make(map[core.Point]bool)
	for i := range s.Agents {
		a := &s.Agents[i]
		if !a.Alive {
			continue
		}
		head := a.Head()
		if eaten[head] || !containsPoint(food, head) {
			continue
		}
		eaten[head] = true
		a.Health = core.MaxHealth
		a.Body = append(a.Body, a.Body[len(a.Body)-1])
	}

	if len(eaten) == 0 {
		return
	}
	remaining := s.Food[:0]
	for _, f := range s.Food {
		if !eaten[f] {
			remaining = append(remaining, f)
		}
	}
	s.Food = remaining
}

// eliminate marks every evaluated agent as out of the match.
func eliminate(s *core.State, outs []elimination) {
	for _, out := range outs {
		a := s.Agent(out.id)
		if a == nil {
			continue
		}
		a.Alive = false
		a.Health = 0
		a.Elimination = &core.Elimination{Cause: out.cause, Turn: s.Turn, By: out.by}
	}
	for i := range s.Agents {
		if s.Agents[i].Alive {
			s.Agents[i].Health = core.Clamp(s.Agents[i].Health, 0, core.MaxHealth)
		}
	}
}

// turnRand returns the generator for the variant choices made on turn.
func turnRand(seed int64, turn int) *rand.Rand {
	return rand.New(rand.NewSource(seed*1_000_003 + int64(turn)))
}

func containsPoint(points []core.Point, p core.Point) bool {
	for _, q := range points {
		if q == p {
			return true
		}
	}
	return false
}
