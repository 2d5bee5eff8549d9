package agent

import "github.com/vovakirdan/snake-arena/internal/core"

// Failure describes a move call that produced no usable direction.
type Failure struct {
	AgentID  string
	Last     core.Move
	HasLast  bool
	TimedOut bool
	Err      error
	Request  *Request
}

// FallbackPolicy picks the move used in place of a failed response.
type FallbackPolicy func(Failure) core.Move

// ContinueLastMove repeats the agent's last committed move, or goes Up.
func ContinueLastMove(f Failure) core.Move {
	if f.HasLast {
		return f.Last
	}
	return core.MoveUp
}

// AvoidWalls repeats the last move unless that would leave the board, in
// which case it takes the first in-bounds move that does not reverse into the
// agent's neck.
func AvoidWalls(f Failure) core.Move {
	mv := ContinueLastMove(f)
	if f.Request == nil || len(f.Request.You.Body) == 0 {
		return mv
	}

	you := f.Request.You
	head := core.Point{X: you.Head.X, Y: you.Head.Y}
	bounds := core.NewRect(0, 0, f.Request.Board.Width, f.Request.Board.Height)
	var neck *core.Point
	if len(you.Body) > 1 {
		n := core.Point{X: you.Body[1].X, Y: you.Body[1].Y}
		if n != head {
			neck = &n
		}
	}

	safe := func(m core.Move) bool {
		next := head.Add(m.Vector())
		return bounds.Contains(next) && (neck == nil || next != *neck)
	}
	if safe(mv) {
		return mv
	}
	for _, m := range core.AllMoves {
		if safe(m) {
			return m
		}
	}
	return mv
}
