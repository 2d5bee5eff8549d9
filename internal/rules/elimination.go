package rules

import "github.com/vovakirdan/snake-arena/internal/core"

// Death causes as written into frames.
const (
	CauseWallCollision  = "wall-collision"
	CauseStarvation     = "starvation"
	CauseSelfCollision  = "self-collision"
	CauseSnakeCollision = "snake-collision"
	CauseHeadCollision  = "head-collision"
)

type elimination struct {
	id    string
	cause string
	by    string
}

// evaluate inspects the post-move board and returns the agents that are out,
// in registration order. Nobody is removed while evaluating, so the result does
// not depend on the order agents are checked in.
func evaluate(s *core.State) []elimination {
	var outs []elimination
	for i := range s.Agents {
		a := &s.Agents[i]
		if !a.Alive {
			continue
		}
		if cause, by, out := checkAgent(s, i); out {
			outs = append(outs, elimination{id: a.ID, cause: cause, by: by})
		}
	}
	return outs
}

func checkAgent(s *core.State, idx int) (cause, by string, out bool) {
	a := &s.Agents[idx]
	head := a.Head()

	if !s.InBounds(head) {
		return CauseWallCollision, "", true
	}
	if a.Health <= 0 {
		return CauseStarvation, "", true
	}
	if a.Occupies(head, 1) {
		return CauseSelfCollision, a.ID, true
	}

	for j := range s.Agents {
		other := &s.Agents[j]
		if j == idx || !other.Alive {
			continue
		}
		if other.Occupies(head, 1) {
			return CauseSnakeCollision, other.ID, true
		}
	}

	for j := range s.Agents {
		other := &s.Agents[j]
		if j == idx || !other.Alive {
			continue
		}
		if other.Head() == head && a.Length() <= other.Length() {
			return CauseHeadCollision, other.ID, true
		}
	}

	return "", "", false
}
