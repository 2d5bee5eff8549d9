// Package core provides the board model shared by the rules engine, the agent
// gateway, and the match orchestrator. It has no external dependencies so the
// rules stay pure and testable.
package core

import "strings"

// Point is a board coordinate. (0,0) is the bottom-left cell and Up increases Y.
// Coordinates are signed so a head that leaves the board can still be represented.
type Point struct {
	X, Y int
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Manhattan returns the grid distance between p and q.
func (p Point) Manhattan(q Point) int {
	return Abs(p.X-q.X) + Abs(p.Y-q.Y)
}

// Rect represents an axis-aligned region of the board.
type Rect struct {
	X, Y int // Bottom-left corner
	W, H int // Width and height
}

// NewRect creates a new rectangle with the given position and dimensions.
func NewRect(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Right returns the x-coordinate just past the right edge.
func (r Rect) Right() int {
	return r.X + r.W
}

// Top returns the y-coordinate just past the top edge.
func (r Rect) Top() int {
	return r.Y + r.H
}

// Contains returns true if p is inside this rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.Right() && p.Y >= r.Y && p.Y < r.Top()
}

// Empty reports whether the rectangle covers no cells.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Move is one of the four directions an agent can take in a turn.
type Move int

const (
	MoveUp Move = iota
	MoveDown
	MoveLeft
	MoveRight
)

// AllMoves lists the moves in a fixed order.
var AllMoves = []Move{MoveUp, MoveDown, MoveLeft, MoveRight}

// String returns the lowercase wire name of the move.
func (m Move) String() string {
	switch m {
	case MoveUp:
		return "up"
	case MoveDown:
		return "down"
	case MoveLeft:
		return "left"
	case MoveRight:
		return "right"
	default:
		return "unknown"
	}
}

// Vector returns the unit offset for the move.
func (m Move) Vector() Point {
	switch m {
	case MoveUp:
		return Point{X: 0, Y: 1}
	case MoveDown:
		return Point{X: 0, Y: -1}
	case MoveLeft:
		return Point{X: -1, Y: 0}
	case MoveRight:
		return Point{X: 1, Y: 0}
	default:
		return Point{}
	}
}

// ParseMove converts a case-insensitive direction string into a Move.
func ParseMove(s string) (Move, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return MoveUp, true
	case "down":
		return MoveDown, true
	case "left":
		return MoveLeft, true
	case "right":
		return MoveRight, true
	default:
		return MoveUp, false
	}
}

// Abs returns the absolute value of an integer.
func Abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Clamp restricts a value to be within [min, max].
func Clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
