package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/snake-arena/internal/frame"
)

// feedFunc adapts a function to Feed.
type feedFunc func(ctx context.Context, matchID string, from int, out chan<- Event) error

func (f feedFunc) Run(ctx context.Context, matchID string, from int, out chan<- Event) error {
	return f(ctx, matchID, from, out)
}

func testFrame(turn int) *frame.Frame {
	return &frame.Frame{
		Turn: turn,
		Snakes: []frame.Snake{
			{ID: "a", Name: "alpha", Body: []frame.Coord{{X: 1, Y: 1}, {X: 1, Y: 0}}, Health: 100 - turn, Color: "#ff0000", Latency: "12"},
			{ID: "b", Name: "beta", Body: []frame.Coord{{X: 4, Y: 4}}, Death: &frame.Death{Cause: "wall-collision", Turn: 1}},
		},
		Food: []frame.Coord{{X: 3, Y: 3}},
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func step(t *testing.T, m WatchModel, msg tea.Msg) (WatchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(WatchModel)
	if !ok {
		t.Fatalf("Update returned %T, expected WatchModel", next)
	}
	return wm, cmd
}

func TestWatchModelPlayback(t *testing.T) {
	m := NewWatchModel(context.Background(), "m1", nil, WatchOptions{TickRate: 4, BoardWidth: 7, BoardHeight: 7})
	defer m.cancel()

	if m.Current() != nil {
		t.Fatal("Expected no frame before the first event")
	}

	m, _ = step(t, m, Event{Kind: EventFrame, Frame: testFrame(0)})
	m, _ = step(t, m, Event{Kind: EventFrame, Frame: testFrame(1)})
	if m.Current().Turn != 0 {
		t.Errorf("Expected turn 0 on screen before a tick, got %d", m.Current().Turn)
	}

	m, cmd := step(t, m, TickMsg{viewer: m.viewer})
	if m.Current().Turn != 1 {
		t.Errorf("Expected tick to advance to turn 1, got %d", m.Current().Turn)
	}
	if cmd == nil {
		t.Error("Expected tick to schedule the next tick")
	}

	// Stepping back pauses playback.
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	m, _ = step(t, m, TickMsg{viewer: m.viewer})
	if m.Current().Turn != 0 {
		t.Errorf("Expected paused viewer to stay on turn 0, got %d", m.Current().Turn)
	}

	m, _ = step(t, m, keyRunes("G"))
	if m.Current().Turn != 1 {
		t.Errorf("Expected latest turn 1, got %d", m.Current().Turn)
	}

	m, _ = step(t, m, keyRunes("+"))
	if m.tickRate != 8 {
		t.Errorf("Expected tick rate 8, got %d", m.tickRate)
	}
	m, _ = step(t, m, keyRunes("-"))
	m, _ = step(t, m, keyRunes("-"))
	if m.tickRate != 2 {
		t.Errorf("Expected tick rate 2, got %d", m.tickRate)
	}

	m, cmd = step(t, m, Event{Kind: EventEnd, Status: "finished"})
	if ended, status := m.Ended(); !ended || status != "finished" {
		t.Errorf("Expected finished match, got %v %q", ended, status)
	}
	if cmd != nil {
		t.Error("Expected no further event wait after the end")
	}
}

func TestWatchModelView(t *testing.T) {
	m := NewWatchModel(context.Background(), "m1", nil, WatchOptions{BoardWidth: 7, BoardHeight: 7})
	defer m.cancel()

	if view := m.View(); !strings.Contains(view, "waiting for frames") {
		t.Errorf("Expected waiting message, got:\n%s", view)
	}

	m, _ = step(t, m, Event{Kind: EventFrame, Frame: testFrame(5)})
	view := m.View()
	for _, want := range []string{"match m1", "turn 5", "alpha", "beta", "wall-collision"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestWatchModelInfersBoardSize(t *testing.T) {
	m := NewWatchModel(context.Background(), "m1", nil, WatchOptions{})
	defer m.cancel()

	w, h := m.boardSize()
	if w != 7 || h != 7 {
		t.Errorf("Expected minimum 7x7, got %dx%d", w, h)
	}

	f := testFrame(1)
	f.Food = append(f.Food, frame.Coord{X: 12, Y: 2})
	m, _ = step(t, m, Event{Kind: EventFrame, Frame: f})
	w, h = m.boardSize()
	if w != 13 || h != 7 {
		t.Errorf("Expected 13x7, got %dx%d", w, h)
	}
}

func TestWatchModelQuitAndBack(t *testing.T) {
	m := NewWatchModel(context.Background(), "m1", nil, WatchOptions{})
	m, cmd := step(t, m, keyRunes("q"))
	if !m.IsQuitting() || cmd == nil {
		t.Error("Expected q to quit the program")
	}
	if m.ctx.Err() == nil {
		t.Error("Expected quitting to stop the feed")
	}

	embedded := NewWatchModel(context.Background(), "m1", nil, WatchOptions{Embedded: true})
	embedded, cmd = step(t, embedded, tea.KeyMsg{Type: tea.KeyEsc})
	if !embedded.BackRequested() {
		t.Error("Expected esc to request back")
	}
	if cmd != nil {
		t.Error("Expected embedded viewer not to quit the program")
	}
}

func TestWatchModelFeedDelivery(t *testing.T) {
	feed := feedFunc(func(ctx context.Context, matchID string, from int, out chan<- Event) error {
		if matchID != "m1" || from != 3 {
			return errors.New("unexpected arguments")
		}
		if err := send(ctx, out, Event{Kind: EventFrame, Frame: testFrame(3)}); err != nil {
			return err
		}
		return send(ctx, out, Event{Kind: EventEnd, Status: "finished"})
	})

	m := NewWatchModel(context.Background(), "m1", feed, WatchOptions{From: 3})
	defer m.cancel()

	done := make(chan tea.Msg, 1)
	go func() { done <- m.runFeed()() }()

	m, _ = step(t, m, m.waitForEvent()())
	m, _ = step(t, m, m.waitForEvent()())

	if m.Current() == nil || m.Current().Turn != 3 {
		t.Fatalf("Expected turn 3 on screen, got %+v", m.Current())
	}
	if ended, _ := m.Ended(); !ended {
		t.Error("Expected match to be over")
	}

	msg := <-done
	fd, ok := msg.(feedDoneMsg)
	if !ok || fd.err != nil {
		t.Errorf("Expected clean feed completion, got %+v", msg)
	}
}

func TestWatchModelFeedError(t *testing.T) {
	m := NewWatchModel(context.Background(), "m1", nil, WatchOptions{})
	defer m.cancel()

	m, _ = step(t, m, feedDoneMsg{err: errors.New("connection refused")})
	if !strings.Contains(m.View(), "connection refused") {
		t.Error("Expected feed error in the view")
	}

	quiet := NewWatchModel(context.Background(), "m1", nil, WatchOptions{})
	defer quiet.cancel()
	quiet, _ = step(t, quiet, feedDoneMsg{err: context.Canceled})
	if quiet.errText != "" {
		t.Errorf("Expected cancellation to be silent, got %q", quiet.errText)
	}
}

func TestWatchModelIgnoresOtherViewersTicks(t *testing.T) {
	old := NewWatchModel(context.Background(), "m1", nil, WatchOptions{BoardWidth: 7, BoardHeight: 7})
	defer old.cancel()
	m := NewWatchModel(context.Background(), "m2", nil, WatchOptions{BoardWidth: 7, BoardHeight: 7})
	defer m.cancel()

	m, _ = step(t, m, Event{Kind: EventFrame, Frame: testFrame(0)})
	m, _ = step(t, m, Event{Kind: EventFrame, Frame: testFrame(1)})

	m, cmd := step(t, m, TickMsg{viewer: old.viewer})
	if m.Current().Turn != 0 {
		t.Errorf("Expected a stale tick to leave turn 0, got %d", m.Current().Turn)
	}
	if cmd != nil {
		t.Error("Expected a stale tick not to schedule another")
	}

	m, _ = step(t, m, TickMsg{viewer: m.viewer})
	if m.Current().Turn != 1 {
		t.Errorf("Expected own tick to advance to turn 1, got %d", m.Current().Turn)
	}
}
