// Package frame defines the persisted per-turn snapshot. Field names and their
// order match what existing board viewers expect, so the JSON layout here must
// not change.
package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vovakirdan/snake-arena/internal/core"
)

// ErrMalformed is returned when stored frame data cannot be decoded.
var ErrMalformed = errors.New("frame: malformed frame")

// Coord is a board cell.
type Coord struct {
	X int `json:"X"`
	Y int `json:"Y"`
}

// Death describes how a snake was eliminated.
type Death struct {
	Cause        string `json:"Cause"`
	Turn         int    `json:"Turn"`
	EliminatedBy string `json:"EliminatedBy"`
}

// Snake is one agent in a frame.
type Snake struct {
	ID              string  `json:"ID"`
	Name            string  `json:"Name"`
	Body            []Coord `json:"Body"`
	Health          int     `json:"Health"`
	Color           string  `json:"Color"`
	HeadType        string  `json:"HeadType"`
	TailType        string  `json:"TailType"`
	Latency         string  `json:"Latency"`
	Shout           string  `json:"Shout"`
	Squad           string  `json:"Squad"`
	APIVersion      string  `json:"APIVersion"`
	Author          string  `json:"Author"`
	Death           *Death  `json:"Death"`
	EliminatedCause string  `json:"EliminatedCause"`
	EliminatedBy    string  `json:"EliminatedBy"`
}

// Frame is the full board after one turn.
type Frame struct {
	Turn    int     `json:"Turn"`
	Snakes  []Snake `json:"Snakes"`
	Food    []Coord `json:"Food"`
	Hazards []Coord `json:"Hazards"`
}

// FromState builds the frame for a board. Every registered agent is listed,
// eliminated ones with their final body and death details.
func FromState(s *core.State) *Frame {
	f := &Frame{
		Turn:    s.Turn,
		Snakes:  make([]Snake, 0, len(s.Agents)),
		Food:    coords(s.Food),
		Hazards: make([]Coord, 0, len(s.Hazards)),
	}
	for _, h := range s.Hazards {
		f.Hazards = append(f.Hazards, Coord{X: h.X, Y: h.Y})
	}

	for i := range s.Agents {
		a := &s.Agents[i]
		snake := Snake{
			ID:         a.ID,
			Name:       a.Name,
			Body:       coords(a.Body),
			Health:     a.Health,
			Color:      Color(a.ID),
			HeadType:   "default",
			TailType:   "default",
			Latency:    strconv.Itoa(a.LatencyMS),
			Shout:      a.Shout,
			APIVersion: "1",
		}
		if e := a.Elimination; e != nil {
			snake.Death = &Death{Cause: e.Cause, Turn: e.Turn, EliminatedBy: e.By}
			snake.EliminatedCause = e.Cause
			snake.EliminatedBy = e.By
		}
		f.Snakes = append(f.Snakes, snake)
	}
	return f
}

// Encode serializes the frame to its wire form.
func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("frame: cannot encode turn %d: %w", f.Turn, err)
	}
	return data, nil
}

// Decode parses a stored frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &f, nil
}

// Living returns the snakes that have not been eliminated.
func (f *Frame) Living() []Snake {
	var out []Snake
	for _, s := range f.Snakes {
		if s.Death == nil {
			out = append(out, s)
		}
	}
	return out
}

func coords(points []core.Point) []Coord {
	out := make([]Coord, len(points))
	for i, p := range points {
		out[i] = Coord{X: p.X, Y: p.Y}
	}
	return out
}
