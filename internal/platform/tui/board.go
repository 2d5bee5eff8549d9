package tui

import (
	"github.com/vovakirdan/snake-arena/internal/frame"
)

// Board glyphs. Every board cell is two characters wide so the grid looks
// square in most terminal fonts.
const (
	glyphEmpty  = "· "
	glyphFood   = "● "
	glyphHazard = "░░"
	glyphBody   = "██"
	glyphHead   = "▓▓"

	colorFrame  = "240"
	colorEmpty  = "237"
	colorFood   = "#ff5c75"
	colorHazard = "#6b4e9b"
)

// BoardSize returns the canvas size needed to draw a width by height board.
func BoardSize(width, height int) (int, int) {
	return width*2 + 2, height + 2
}

// DrawBoard draws a frame of a width by height board into c, border
// included. Board y grows upward, so row 0 is drawn at the bottom.
func DrawBoard(c *Canvas, f *frame.Frame, width, height int) {
	w, h := BoardSize(width, height)
	if c.Width() != w || c.Height() != h {
		c.Resize(w, h)
	} else {
		c.Clear()
	}
	c.DrawBox(0, 0, w, h, colorFrame)

	put := func(x, y int, glyph, color string) {
		if x < 0 || x >= width || y < 0 || y >= height {
			return
		}
		c.DrawText(1+x*2, 1+(height-1-y), glyph, color)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			put(x, y, glyphEmpty, colorEmpty)
		}
	}
	if f == nil {
		return
	}

	for _, p := range f.Hazards {
		put(p.X, p.Y, glyphHazard, colorHazard)
	}
	for _, p := range f.Food {
		put(p.X, p.Y, glyphFood, colorFood)
	}
	for _, s := range f.Living() {
		// Tail first so the head wins on stacked segments.
		for i := len(s.Body) - 1; i >= 0; i-- {
			glyph := glyphBody
			if i == 0 {
				glyph = glyphHead
			}
			put(s.Body[i].X, s.Body[i].Y, glyph, s.Color)
		}
	}
}
