package rules

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/vovakirdan/snake-arena/internal/core"
)

const (
	// MinBoardSize is the smallest supported board side.
	MinBoardSize = 7
	// MaxAgents is the largest number of agents a board can seat.
	MaxAgents = 8
	// StartLength is the number of stacked segments an agent spawns with.
	StartLength = 3
)

var (
	ErrNoAgents      = errors.New("rules: at least one agent is required")
	ErrTooManyAgents = fmt.Errorf("rules: at most %d agents are supported", MaxAgents)
	ErrBoardTooSmall = fmt.Errorf("rules: board must be at least %dx%d", MinBoardSize, MinBoardSize)
)

// Entrant is an agent joining a new game.
type Entrant struct {
	ID   string
	Name string
}

// SpawnPositions picks count distinct starting cells from the four corners and
// the four edge midpoints, each inset one cell from the wall. Both pools are
// shuffled and a coin flip decides which one is used first.
func SpawnPositions(rng *rand.Rand, width, height, count int) ([]core.Point, error) {
	if count > MaxAgents {
		return nil, ErrTooManyAgents
	}
	if width < MinBoardSize || height < MinBoardSize {
		return nil, ErrBoardTooSmall
	}

	const lo = 1
	midX, midY := (width-1)/2, (height-1)/2
	hiX, hiY := width-2, height-2

	corners := []core.Point{
		{X: lo, Y: lo}, {X: lo, Y: hiY}, {X: hiX, Y: lo}, {X: hiX, Y: hiY},
	}
	edges := []core.Point{
		{X: lo, Y: midY}, {X: midX, Y: lo}, {X: midX, Y: hiY}, {X: hiX, Y: midY},
	}

	rng.Shuffle(len(corners), func(i, j int) { corners[i], corners[j] = corners[j], corners[i] })
	rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })

	var pool []core.Point
	if rng.Intn(2) == 0 {
		pool = append(corners, edges...)
	} else {
		pool = append(edges, corners...)
	}
	return pool[:count], nil
}

// InitialFood places one item diagonal to each agent's head where a candidate
// exists, then one at the center unless a body covers it.
func InitialFood(rng *rand.Rand, s *core.State) []core.Point {
	center := s.Center()
	corners := []core.Point{
		{X: 0, Y: 0}, {X: 0, Y: s.Height - 1}, {X: s.Width - 1, Y: 0}, {X: s.Width - 1, Y: s.Height - 1},
	}

	var food []core.Point
	for i := range s.Agents {
		a := &s.Agents[i]
		if len(a.Body) == 0 {
			continue
		}
		head := a.Head()
		diagonals := []core.Point{
			{X: head.X - 1, Y: head.Y - 1},
			{X: head.X - 1, Y: head.Y + 1},
			{X: head.X + 1, Y: head.Y - 1},
			{X: head.X + 1, Y: head.Y + 1},
		}

		var candidates []core.Point
		for _, p := range diagonals {
			if !s.InBounds(p) || p == center || containsPoint(food, p) || containsPoint(corners, p) {
				continue
			}
			candidates = append(candidates, p)
		}
		if len(candidates) > 0 {
			food = append(food, candidates[rng.Intn(len(candidates))])
		}
	}

	if !s.Occupied(center) && !containsPoint(food, center) {
		food = append(food, center)
	}
	return food
}

// NewGame builds the turn-0 board: each entrant stacked on its spawn cell
// at full health, plus the starting food.
func NewGame(width, height int, entrants []Entrant, seed int64) (*core.State, error) {
	if len(entrants) == 0 {
		return nil, ErrNoAgents
	}

	rng := rand.New(rand.NewSource(seed))
	spawns, err := SpawnPositions(rng, width, height, len(entrants))
	if err != nil {
		return nil, err
	}

	s := &core.State{
		Width:  width,
		Height: height,
		Agents: make([]core.Agent, len(entrants)),
		Seed:   seed,
	}
	s.SafeZone = s.Bounds()

	for i, e := range entrants {
		body := make([]core.Point, StartLength)
		for j := range body {
			body[j] = spawns[i]
		}
		s.Agents[i] = core.Agent{
			ID:     e.ID,
			Name:   e.Name,
			Body:   body,
			Health: core.MaxHealth,
			Alive:  true,
		}
	}

	s.Food = InitialFood(rng, s)
	return s, nil
}
