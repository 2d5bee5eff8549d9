package frame

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/vovakirdan/snake-arena/internal/core"
)

func TestFrameWireLayout(t *testing.T) {
	s := &core.State{
		Width:  7,
		Height: 7,
		Turn:   3,
		Agents: []core.Agent{
			{ID: "a", Name: "A", Body: []core.Point{{X: 1, Y: 2}}, Health: 100, Alive: true, LatencyMS: 12, Shout: "hi"},
			{
				ID: "b", Name: "B", Body: []core.Point{{X: 0, Y: -1}}, Health: 0,
				Elimination: &core.Elimination{Cause: "wall-collision", Turn: 3},
			},
		},
		Food: []core.Point{{X: 0, Y: 0}},
	}

	data, err := FromState(s).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := fmt.Sprintf(`{"Turn":3,"Snakes":[`+
		`{"ID":"a","Name":"A","Body":[{"X":1,"Y":2}],"Health":100,"Color":"%s","HeadType":"default","TailType":"default",`+
		`"Latency":"12","Shout":"hi","Squad":"","APIVersion":"1","Author":"","Death":null,"EliminatedCause":"","EliminatedBy":""},`+
		`{"ID":"b","Name":"B","Body":[{"X":0,"Y":-1}],"Health":0,"Color":"%s","HeadType":"default","TailType":"default",`+
		`"Latency":"0","Shout":"","Squad":"","APIVersion":"1","Author":"",`+
		`"Death":{"Cause":"wall-collision","Turn":3,"EliminatedBy":""},"EliminatedCause":"wall-collision","EliminatedBy":""}],`+
		`"Food":[{"X":0,"Y":0}],"Hazards":[]}`, Color("a"), Color("b"))

	if string(data) != want {
		t.Errorf("Unexpected wire frame.\n got: %s\nwant: %s", data, want)
	}
}

func TestDecodeRoundTripKeepsDeaths(t *testing.T) {
	s := &core.State{
		Turn: 9,
		Agents: []core.Agent{
			{ID: "a", Body: []core.Point{{X: 1, Y: 1}}, Health: 55, Alive: true},
			{ID: "b", Body: []core.Point{{X: 2, Y: 2}}, Elimination: &core.Elimination{Cause: "head-collision", Turn: 8, By: "a"}},
		},
		Hazards: []core.Hazard{{Point: core.Point{X: 4, Y: 4}, TTL: 2}},
	}
	data, _ := FromState(s).Encode()

	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.Turn != 9 {
		t.Errorf("Expected turn 9, got %d", f.Turn)
	}
	if living := f.Living(); len(living) != 1 || living[0].ID != "a" {
		t.Errorf("Expected only a living, got %+v", living)
	}
	if f.Snakes[1].Death == nil || f.Snakes[1].Death.EliminatedBy != "a" {
		t.Errorf("Expected death by a, got %+v", f.Snakes[1].Death)
	}
	if len(f.Hazards) != 1 || f.Hazards[0] != (Coord{X: 4, Y: 4}) {
		t.Errorf("Expected hazard at (4,4), got %v", f.Hazards)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"Turn":`))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Expected ErrMalformed, got %v", err)
	}
}

func TestColor(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9a-f]{6}$`)

	c1 := Color("snake-1")
	c2 := Color("snake-2")

	if c1 == c2 {
		t.Errorf("Expected different colors, both %s", c1)
	}
	if c1 != Color("snake-1") {
		t.Error("Expected color to be stable")
	}
	if !hex.MatchString(c1) {
		t.Errorf("Expected hex color, got %q", c1)
	}

	tests := []struct {
		id   string
		want string
	}{
		{"a", "#6ad826"},         // hue 97
		{"snake-27", "#d84426"},  // hue 10
		{"snake-102", "#43d826"}, // hue 110
		{"snake-63", "#26d844"},  // hue 130
		{"snake-120", "#26d8ba"}, // hue 170
		{"snake-81", "#26bad8"},  // hue 190
		{"snake-201", "#d82643"}, // hue 350
	}
	for _, tc := range tests {
		if got := Color(tc.id); got != tc.want {
			t.Errorf("Expected %s for id %s, got %s", tc.want, tc.id, got)
		}
	}
}
