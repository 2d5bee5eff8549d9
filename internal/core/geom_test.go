package core

import "testing"

func TestRectContains(t *testing.T) {
	r := NewRect(0, 0, 7, 5)

	tests := []struct {
		name     string
		p        Point
		expected bool
	}{
		{"inside", Point{3, 2}, true},
		{"bottom-left corner", Point{0, 0}, true},
		{"top-right cell", Point{6, 4}, true},
		{"right edge (exclusive)", Point{7, 2}, false},
		{"top edge (exclusive)", Point{3, 5}, false},
		{"negative x", Point{-1, 2}, false},
		{"negative y", Point{3, -1}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := r.Contains(tc.p)
			if result != tc.expected {
				t.Errorf("Contains(%v) = %v, expected %v", tc.p, result, tc.expected)
			}
		})
	}
}

func TestRectEdges(t *testing.T) {
	r := NewRect(1, 2, 5, 4)

	if r.Right() != 6 {
		t.Errorf("Right() = %d, expected 6", r.Right())
	}
	if r.Top() != 6 {
		t.Errorf("Top() = %d, expected 6", r.Top())
	}
	if r.Empty() {
		t.Error("5x4 rect should not be empty")
	}
	if !NewRect(3, 3, 0, 4).Empty() {
		t.Error("zero-width rect should be empty")
	}
}

func TestMoveVector(t *testing.T) {
	origin := Point{5, 5}
	tests := []struct {
		move     Move
		expected Point
	}{
		{MoveUp, Point{5, 6}},
		{MoveDown, Point{5, 4}},
		{MoveLeft, Point{4, 5}},
		{MoveRight, Point{6, 5}},
	}

	for _, tc := range tests {
		got := origin.Add(tc.move.Vector())
		if got != tc.expected {
			t.Errorf("%s from %v = %v, expected %v", tc.move, origin, got, tc.expected)
		}
	}
}

func TestParseMove(t *testing.T) {
	tests := []struct {
		in       string
		expected Move
		ok       bool
	}{
		{"up", MoveUp, true},
		{"DOWN", MoveDown, true},
		{" Left ", MoveLeft, true},
		{"rIgHt", MoveRight, true},
		{"north", MoveUp, false},
		{"", MoveUp, false},
	}

	for _, tc := range tests {
		got, ok := ParseMove(tc.in)
		if ok != tc.ok || got != tc.expected {
			t.Errorf("ParseMove(%q) = (%v, %v), expected (%v, %v)", tc.in, got, ok, tc.expected, tc.ok)
		}
	}

	for _, m := range AllMoves {
		back, ok := ParseMove(m.String())
		if !ok || back != m {
			t.Errorf("ParseMove(%q) did not return %v", m.String(), m)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		val, min, max, expected int
	}{
		{5, 0, 10, 5},   // within range
		{-5, 0, 10, 0},  // below min
		{15, 0, 10, 10}, // above max
		{0, 0, 10, 0},   // at min
		{10, 0, 10, 10}, // at max
	}

	for _, tc := range tests {
		result := Clamp(tc.val, tc.min, tc.max)
		if result != tc.expected {
			t.Errorf("Clamp(%d, %d, %d) = %d, expected %d", tc.val, tc.min, tc.max, result, tc.expected)
		}
	}
}

func TestAbsAndManhattan(t *testing.T) {
	if Abs(-5) != 5 {
		t.Error("Abs(-5) should be 5")
	}
	if Abs(0) != 0 {
		t.Error("Abs(0) should be 0")
	}
	if d := (Point{1, 1}).Manhattan(Point{4, -1}); d != 5 {
		t.Errorf("Manhattan = %d, expected 5", d)
	}
}
