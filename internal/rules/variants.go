package rules

import (
	"math/rand"

	"github.com/vovakirdan/snake-arena/internal/core"
)

// constrict grows every living agent and keeps it at full health.
func constrict(s *core.State) {
	for i := range s.Agents {
		a := &s.Agents[i]
		if !a.Alive {
			continue
		}
		a.Health = core.MaxHealth
		a.Body = append(a.Body, a.Body[len(a.Body)-1])
	}
}

// spawnFood tops the board up to the minimum food count and then rolls the
// spawn chance for one extra item.
func (e *Engine) spawnFood(s *core.State, rng *rand.Rand) {
	want := 0
	if len(s.Food) < e.settings.MinimumFood {
		want = e.settings.MinimumFood - len(s.Food)
	} else if e.settings.FoodSpawnChance > 0 && rng.Intn(100) < e.settings.FoodSpawnChance {
		want = 1
	}
	for range want {
		free := freeCells(s)
		if len(free) == 0 {
			return
		}
		s.Food = append(s.Food, free[rng.Intn(len(free))])
	}
}

// freeCells lists, bottom row first, the cells with no body, food or hazard.
func freeCells(s *core.State) []core.Point {
	var free []core.Point
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			p := core.Point{X: x, Y: y}
			if s.Occupied(p) || s.HasFood(p) || s.HazardAt(p) {
				continue
			}
			free = append(free, p)
		}
	}
	return free
}

// shrink moves one side of the safe zone inward on every shrink turn and
// covers everything outside it with permanent hazards.
func (e *Engine) shrink(s *core.State, rng *rand.Rand) {
	if s.SafeZone.Empty() && len(s.Hazards) == 0 {
		s.SafeZone = s.Bounds()
	}
	if e.settings.ShrinkEveryTurns <= 0 || s.Turn%e.settings.ShrinkEveryTurns != 0 || s.SafeZone.Empty() {
		return
	}

	z := s.SafeZone
	switch rng.Intn(4) {
	case 0: // left
		z.X++
		z.W--
	case 1: // right
		z.W--
	case 2: // bottom
		z.Y++
		z.H--
	default: // top
		z.H--
	}
	s.SafeZone = z

	hazards := make([]core.Hazard, 0, s.Width*s.Height-max(z.W, 0)*max(z.H, 0))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			p := core.Point{X: x, Y: y}
			if !z.Contains(p) {
				hazards = append(hazards, core.Hazard{Point: p})
			}
		}
	}
	s.Hazards = hazards
}

// trail ages the existing snail trail and lays a new segment on every cell a
// surviving agent's tail left this turn.
func (e *Engine) trail(s *core.State, vacated map[string]core.Point) {
	kept := s.Hazards[:0]
	for _, h := range s.Hazards {
		if h.TTL == 0 {
			kept = append(kept, h)
			continue
		}
		if h.TTL > 1 {
			h.TTL--
			kept = append(kept, h)
		}
	}
	s.Hazards = kept

	for i := range s.Agents {
		a := &s.Agents[i]
		if !a.Alive {
			continue
		}
		cell, ok := vacated[a.ID]
		if !ok || !s.InBounds(cell) || s.Occupied(cell) {
			continue
		}
		ttl := min(a.Length(), e.settings.SnailMaxTrail)
		if ttl <= 0 {
			continue
		}
		refreshed := false
		for j := range s.Hazards {
			if s.Hazards[j].Point == cell {
				s.Hazards[j].TTL = max(s.Hazards[j].TTL, ttl)
				refreshed = true
				break
			}
		}
		if !refreshed {
			s.Hazards = append(s.Hazards, core.Hazard{Point: cell, TTL: ttl})
		}
	}
}
