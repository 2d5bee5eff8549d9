package core

// MaxHealth is the health an agent starts with and returns to after eating.
const MaxHealth = 100

// Elimination records why and when an agent left the match.
type Elimination struct {
	Cause string
	Turn  int
	By    string // ID of the eliminating agent, empty when not applicable
}

// Agent is one participant on the board.
type Agent struct {
	ID       string
	Name     string
	Body     []Point // Head at index 0
	Health   int
	Alive    bool
	LastMove Move
	HasMove  bool // False until the agent has committed a move

	// Response details from the agent's latest move call.
	LatencyMS int
	Shout     string

	Elimination *Elimination
}

// Head returns the agent's head position.
// Callers must not call this on an agent with an empty body.
func (a *Agent) Head() Point {
	return a.Body[0]
}

// Length returns the number of body segments.
func (a *Agent) Length() int {
	return len(a.Body)
}

// Occupies reports whether any body segment from index start onward is at p.
func (a *Agent) Occupies(p Point, start int) bool {
	for i := start; i < len(a.Body); i++ {
		if a.Body[i] == p {
			return true
		}
	}
	return false
}

// Hazard is a board cell that damages heads resting on it.
// TTL counts the turns left before it disappears; 0 means permanent.
type Hazard struct {
	Point
	TTL int
}

// State is the full board at the end of a turn.
type State struct {
	Width  int
	Height int
	Turn   int

	// Agents are kept in registration order. Every rule that depends on
	// iteration order walks this slice front to back.
	Agents  []Agent
	Food    []Point
	Hazards []Hazard

	// SafeZone is the non-hazard area for shrinking variants.
	SafeZone Rect

	// Seed drives the per-turn random choices of the rules so that
	// advancing a state stays deterministic.
	Seed int64
}

// Bounds returns the rectangle covering the whole board.
func (s *State) Bounds() Rect {
	return NewRect(0, 0, s.Width, s.Height)
}

// InBounds reports whether p lies on the board.
func (s *State) InBounds(p Point) bool {
	return s.Bounds().Contains(p)
}

// Center returns the board's center cell.
func (s *State) Center() Point {
	return Point{X: (s.Width - 1) / 2, Y: (s.Height - 1) / 2}
}

// Agent returns a pointer to the agent with the given ID, or nil.
func (s *State) Agent(id string) *Agent {
	for i := range s.Agents {
		if s.Agents[i].ID == id {
			return &s.Agents[i]
		}
	}
	return nil
}

// LivingCount returns how many agents are still alive.
func (s *State) LivingCount() int {
	n := 0
	for i := range s.Agents {
		if s.Agents[i].Alive {
			n++
		}
	}
	return n
}

// LivingIDs returns the IDs of living agents in registration order.
func (s *State) LivingIDs() []string {
	ids := make([]string, 0, len(s.Agents))
	for i := range s.Agents {
		if s.Agents[i].Alive {
			ids = append(ids, s.Agents[i].ID)
		}
	}
	return ids
}

// HasFood reports whether p holds food.
func (s *State) HasFood(p Point) bool {
	for _, f := range s.Food {
		if f == p {
			return true
		}
	}
	return false
}

// HazardAt reports whether p is covered by a hazard.
func (s *State) HazardAt(p Point) bool {
	for _, h := range s.Hazards {
		if h.Point == p {
			return true
		}
	}
	return false
}

// Occupied reports whether any living agent's body covers p.
func (s *State) Occupied(p Point) bool {
	for i := range s.Agents {
		if s.Agents[i].Alive && s.Agents[i].Occupies(p, 0) {
			return true
		}
	}
	return false
}

// Clone performs a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	out := &State{
		Width:    s.Width,
		Height:   s.Height,
		Turn:     s.Turn,
		SafeZone: s.SafeZone,
		Seed:     s.Seed,
	}

	if len(s.Food) > 0 {
		out.Food = make([]Point, len(s.Food))
		copy(out.Food, s.Food)
	}
	if len(s.Hazards) > 0 {
		out.Hazards = make([]Hazard, len(s.Hazards))
		copy(out.Hazards, s.Hazards)
	}

	if len(s.Agents) > 0 {
		out.Agents = make([]Agent, len(s.Agents))
		for i := range s.Agents {
			a := s.Agents[i]
			a.Body = append([]Point(nil), s.Agents[i].Body...)
			if s.Agents[i].Elimination != nil {
				e := *s.Agents[i].Elimination
				a.Elimination = &e
			}
			out.Agents[i] = a
		}
	}

	return out
}
