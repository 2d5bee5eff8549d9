package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Cell is one character of a canvas with its foreground color.
type Cell struct {
	Rune  rune
	Color string // lipgloss color, empty for the terminal default
}

// Canvas is a 2D character buffer. Boards are drawn into it with plain
// rune operations and styled once at render time.
type Canvas struct {
	width  int
	height int
	cells  [][]Cell
}

// NewCanvas creates a blank canvas.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{}
	c.Resize(width, height)
	return c
}

// Width returns the canvas width in characters.
func (c *Canvas) Width() int {
	return c.width
}

// Height returns the canvas height in characters.
func (c *Canvas) Height() int {
	return c.height
}

// Resize changes the dimensions and clears the canvas.
func (c *Canvas) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	c.width, c.height = width, height
	c.cells = make([][]Cell, height)
	for y := range c.cells {
		c.cells[y] = make([]Cell, width)
	}
	c.Clear()
}

// Clear fills the canvas with uncolored spaces.
func (c *Canvas) Clear() {
	for y := range c.cells {
		for x := range c.cells[y] {
			c.cells[y][x] = Cell{Rune: ' '}
		}
	}
}

// Set places a rune at the given position.
// Out-of-bounds coordinates are silently ignored.
func (c *Canvas) Set(x, y int, r rune, color string) {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return
	}
	c.cells[y][x] = Cell{Rune: r, Color: color}
}

// Get returns the cell at the given position, or a blank cell outside.
func (c *Canvas) Get(x, y int) Cell {
	if x < 0 || x >= c.width || y < 0 || y >= c.height {
		return Cell{Rune: ' '}
	}
	return c.cells[y][x]
}

// DrawText writes a string horizontally starting at (x, y).
func (c *Canvas) DrawText(x, y int, text, color string) {
	i := 0
	for _, r := range text {
		c.Set(x+i, y, r, color)
		i++
	}
}

// DrawBox draws a box outline around w by h cells starting at (x, y).
func (c *Canvas) DrawBox(x, y, w, h int, color string) {
	if w < 2 || h < 2 {
		return
	}
	right, bottom := x+w-1, y+h-1

	c.Set(x, y, '┌', color)
	c.Set(right, y, '┐', color)
	c.Set(x, bottom, '└', color)
	c.Set(right, bottom, '┘', color)

	for i := x + 1; i < right; i++ {
		c.Set(i, y, '─', color)
		c.Set(i, bottom, '─', color)
	}
	for i := y + 1; i < bottom; i++ {
		c.Set(x, i, '│', color)
		c.Set(right, i, '│', color)
	}
}

// String returns the canvas without styling.
func (c *Canvas) String() string {
	var sb strings.Builder
	sb.Grow(c.width*c.height + c.height)
	for y := range c.cells {
		if y > 0 {
			sb.WriteRune('\n')
		}
		for _, cell := range c.cells[y] {
			sb.WriteRune(cell.Rune)
		}
	}
	return sb.String()
}

// Render converts the canvas to a styled string for display.
// Groups adjacent cells with the same color to minimize ANSI escape sequences.
// A nil renderer uses the lipgloss default.
func (c *Canvas) Render(r *lipgloss.Renderer) string {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	styles := make(map[string]lipgloss.Style)
	styleFor := func(color string) lipgloss.Style {
		s, ok := styles[color]
		if !ok {
			s = r.NewStyle()
			if color != "" {
				s = s.Foreground(lipgloss.Color(color))
			}
			styles[color] = s
		}
		return s
	}

	var sb strings.Builder
	// Pre-allocate with extra space for ANSI codes
	sb.Grow(c.width*c.height*2 + c.height)

	for y := range c.cells {
		if y > 0 {
			sb.WriteRune('\n')
		}

		x := 0
		for x < c.width {
			color := c.cells[y][x].Color

			var run strings.Builder
			for x < c.width && c.cells[y][x].Color == color {
				run.WriteRune(c.cells[y][x].Rune)
				x++
			}
			sb.WriteString(styleFor(color).Render(run.String()))
		}
	}
	return sb.String()
}
