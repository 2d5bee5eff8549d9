package match

import (
	"testing"

	"github.com/vovakirdan/snake-arena/internal/core"
)

func body(n int) []core.Point {
	return make([]core.Point, n)
}

func TestRankSurvivorsThenReverseElimination(t *testing.T) {
	s := &core.State{
		Agents: []core.Agent{
			{ID: "early", Body: body(3), Elimination: &core.Elimination{Cause: "wall-collision", Turn: 4}},
			{ID: "short", Body: body(3), Health: 90, Alive: true},
			{ID: "late-1", Body: body(5), Elimination: &core.Elimination{Cause: "head-collision", Turn: 20, By: "late-2"}},
			{ID: "long", Body: body(6), Health: 10, Alive: true},
			{ID: "late-2", Body: body(5), Elimination: &core.Elimination{Cause: "head-collision", Turn: 20, By: "late-1"}},
			{ID: "short-weak", Body: body(3), Health: 40, Alive: true},
		},
	}

	got := Rank(s)

	want := []string{"long", "short", "short-weak", "late-1", "late-2", "early"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d placements, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].AgentID != id {
			t.Errorf("Rank %d: expected %s, got %s", i+1, id, got[i].AgentID)
		}
		if got[i].Rank != i+1 {
			t.Errorf("Expected rank %d for %s, got %d", i+1, id, got[i].Rank)
		}
	}

	if got[3].Cause != "head-collision" || got[3].EliminatedBy != "late-2" || got[3].EliminatedTurn != 20 {
		t.Errorf("Expected elimination details carried over, got %+v", got[3])
	}
}

func TestRankEqualSurvivorsKeepRegistrationOrder(t *testing.T) {
	s := &core.State{
		Agents: []core.Agent{
			{ID: "first", Body: body(4), Health: 70, Alive: true},
			{ID: "second", Body: body(4), Health: 70, Alive: true},
		},
	}

	got := Rank(s)
	if got[0].AgentID != "first" || got[1].AgentID != "second" {
		t.Errorf("Expected registration order for ties, got %s, %s", got[0].AgentID, got[1].AgentID)
	}
}

func TestResultWinner(t *testing.T) {
	var empty *Result
	if _, ok := empty.Winner(); ok {
		t.Error("Expected no winner on nil result")
	}

	r := &Result{Placements: []Placement{{AgentID: "x", Rank: 1}}}
	if w, ok := r.Winner(); !ok || w.AgentID != "x" {
		t.Errorf("Expected winner x, got %+v", w)
	}
}
