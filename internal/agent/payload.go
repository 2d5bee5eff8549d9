package agent

import (
	"strconv"

	"github.com/vovakirdan/snake-arena/internal/core"
)

// APIVersion is the agent API version advertised in requests.
const APIVersion = "1"

// Coord is a board cell in the agent API.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Customizations are the cosmetic fields of a snake.
type Customizations struct {
	Color string `json:"color"`
	Head  string `json:"head"`
	Tail  string `json:"tail"`
}

// Snake is one agent as seen by the other agents.
type Snake struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Health         int            `json:"health"`
	Body           []Coord        `json:"body"`
	Latency        string         `json:"latency"`
	Head           Coord          `json:"head"`
	Length         int            `json:"length"`
	Shout          string         `json:"shout"`
	Squad          string         `json:"squad"`
	Customizations Customizations `json:"customizations"`
}

// Board is the public board state.
type Board struct {
	Height  int     `json:"height"`
	Width   int     `json:"width"`
	Food    []Coord `json:"food"`
	Hazards []Coord `json:"hazards"`
	Snakes  []Snake `json:"snakes"`
}

// RoyaleSettings configures the shrinking variant.
type RoyaleSettings struct {
	ShrinkEveryNTurns int `json:"shrinkEveryNTurns"`
}

// RulesetSettings mirrors the engine tuning for agents.
type RulesetSettings struct {
	FoodSpawnChance     int            `json:"foodSpawnChance"`
	MinimumFood         int            `json:"minimumFood"`
	HazardDamagePerTurn int            `json:"hazardDamagePerTurn"`
	Royale              RoyaleSettings `json:"royale"`
}

// Ruleset names the variant being played.
type Ruleset struct {
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Settings RulesetSettings `json:"settings"`
}

// Game describes the match a request belongs to.
type Game struct {
	ID      string  `json:"id"`
	Ruleset Ruleset `json:"ruleset"`
	Map     string  `json:"map"`
	Timeout int     `json:"timeout"` // Milliseconds
	Source  string  `json:"source"`
}

// Request is the document posted to /start, /move and /end.
type Request struct {
	Game  Game  `json:"game"`
	Turn  int   `json:"turn"`
	Board Board `json:"board"`
	You   Snake `json:"you"`
}

// MoveResponse is the body an agent returns from /move.
type MoveResponse struct {
	Move  string `json:"move"`
	Shout string `json:"shout,omitempty"`
}

// ColorFunc assigns a display color to an agent ID.
type ColorFunc func(id string) string

// BuildRequest renders the board from the point of view of agentID. The board
// lists living agents only; you is filled from the agent's own entry even when
// it has been eliminated, so /end still describes the receiver.
func BuildRequest(s *core.State, game Game, agentID string, color ColorFunc) *Request {
	req := &Request{
		Game: game,
		Turn: s.Turn,
		Board: Board{
			Height:  s.Height,
			Width:   s.Width,
			Food:    coords(s.Food),
			Hazards: make([]Coord, 0, len(s.Hazards)),
			Snakes:  make([]Snake, 0, len(s.Agents)),
		},
	}
	for _, h := range s.Hazards {
		req.Board.Hazards = append(req.Board.Hazards, Coord{X: h.X, Y: h.Y})
	}

	for i := range s.Agents {
		a := &s.Agents[i]
		snake := toSnake(a, color)
		if a.Alive {
			req.Board.Snakes = append(req.Board.Snakes, snake)
		}
		if a.ID == agentID {
			req.You = snake
		}
	}
	return req
}

func toSnake(a *core.Agent, color ColorFunc) Snake {
	snake := Snake{
		ID:      a.ID,
		Name:    a.Name,
		Health:  a.Health,
		Body:    coords(a.Body),
		Latency: strconv.Itoa(a.LatencyMS),
		Length:  a.Length(),
		Shout:   a.Shout,
		Customizations: Customizations{
			Head: "default",
			Tail: "default",
		},
	}
	if len(a.Body) > 0 {
		snake.Head = Coord{X: a.Body[0].X, Y: a.Body[0].Y}
	}
	if color != nil {
		snake.Customizations.Color = color(a.ID)
	}
	return snake
}

func coords(points []core.Point) []Coord {
	out := make([]Coord, len(points))
	for i, p := range points {
		out[i] = Coord{X: p.X, Y: p.Y}
	}
	return out
}
