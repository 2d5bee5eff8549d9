package match

import (
	"sort"

	"github.com/vovakirdan/snake-arena/internal/core"
)

// Rank orders the agents of a final board.
//
// Survivors come first, longest first, then healthiest, then in registration
// order. Eliminated agents follow, the most recently eliminated first; agents
// eliminated on the same turn keep registration order.
func Rank(s *core.State) []Placement {
	type entry struct {
		p     Placement
		order int
	}

	entries := make([]entry, len(s.Agents))
	for i := range s.Agents {
		a := &s.Agents[i]
		p := Placement{
			AgentID: a.ID,
			Name:    a.Name,
			Alive:   a.Alive,
			Length:  a.Length(),
			Health:  a.Health,
		}
		if e := a.Elimination; e != nil {
			p.Cause = e.Cause
			p.EliminatedTurn = e.Turn
			p.EliminatedBy = e.By
		}
		entries[i] = entry{p: p, order: i}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].p, entries[j].p
		if a.Alive != b.Alive {
			return a.Alive
		}
		if a.Alive {
			if a.Length != b.Length {
				return a.Length > b.Length
			}
			if a.Health != b.Health {
				return a.Health > b.Health
			}
			return entries[i].order < entries[j].order
		}
		if a.EliminatedTurn != b.EliminatedTurn {
			return a.EliminatedTurn > b.EliminatedTurn
		}
		return entries[i].order < entries[j].order
	})

	out := make([]Placement, len(entries))
	for i, e := range entries {
		e.p.Rank = i + 1
		out[i] = e.p
	}
	return out
}
