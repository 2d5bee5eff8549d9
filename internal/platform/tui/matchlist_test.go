package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/snake-arena/internal/match"
)

// fakeCatalog serves a fixed set of matches.
type fakeCatalog struct {
	matches    []match.Info
	placements map[string][]match.Placement
	err        error
}

func (c *fakeCatalog) RecentMatches(_ context.Context, limit int) ([]match.Info, error) {
	if c.err != nil {
		return nil, c.err
	}
	if limit < len(c.matches) {
		return c.matches[:limit], nil
	}
	return c.matches, nil
}

func (c *fakeCatalog) Placements(_ context.Context, matchID string) ([]match.Placement, error) {
	return c.placements[matchID], nil
}

func (c *fakeCatalog) MatchByID(_ context.Context, matchID string) (*match.Info, error) {
	for _, m := range c.matches {
		if m.ID == matchID {
			return &m, nil
		}
	}
	return nil, match.ErrNotFound
}

func newFakeCatalog() *fakeCatalog {
	now := time.Now()
	return &fakeCatalog{
		matches: []match.Info{
			{ID: "match-one-1234", Ruleset: "royale", Width: 11, Height: 11, Status: match.StatusFinished,
				Agents: []match.AgentSpec{{ID: "a"}, {ID: "b"}}, CreatedAt: now.Add(-time.Hour)},
			{ID: "match-two-5678", Ruleset: "standard", Width: 7, Height: 7, Status: match.StatusRunning,
				Agents: []match.AgentSpec{{ID: "c"}}, CreatedAt: now.Add(-2 * time.Hour)},
		},
		placements: map[string][]match.Placement{
			"match-one-1234": {
				{AgentID: "a", Name: "alpha", Rank: 1, Alive: true},
				{AgentID: "b", Name: "beta", Rank: 2, Cause: "head-collision"},
			},
		},
	}
}

// drain runs a command and feeds its message back, as the runtime would.
func drain(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	for cmd != nil {
		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				if c != nil {
					m = drain(t, m, c)
				}
			}
			return m
		}
		if msg == nil {
			return m
		}
		m, cmd = m.Update(msg)
	}
	return m
}

func TestMatchListLoadsAndShowsPlacements(t *testing.T) {
	cat := newFakeCatalog()
	var m tea.Model = NewMatchListModel(cat, 140, 30, MatchListOptions{Embedded: true})
	m = drain(t, m, m.Init())

	view := m.View()
	for _, want := range []string{"ARENA MATCHES", "match-on", "Royale", "11x11", "finished", "1 hour ago", "alpha", "head-collision"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestMatchListSelect(t *testing.T) {
	cat := newFakeCatalog()
	var m tea.Model = NewMatchListModel(cat, 140, 30, MatchListOptions{Embedded: true})
	m = drain(t, m, m.Init())

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = drain(t, next, cmd)
	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	list := m.(MatchListModel)
	if list.Selected() != "match-two-5678" {
		t.Errorf("Expected second match selected, got %q", list.Selected())
	}
	if cmd != nil {
		t.Error("Expected embedded list not to quit on select")
	}
	info, ok := list.SelectedInfo()
	if !ok || info.Width != 7 {
		t.Errorf("Expected info of the 7x7 match, got %+v", info)
	}

	list.ClearSelection()
	if list.Selected() != "" {
		t.Error("Expected selection to be cleared")
	}
}

func TestMatchListEmptyAndError(t *testing.T) {
	var empty tea.Model = NewMatchListModel(&fakeCatalog{}, 80, 24, MatchListOptions{})
	empty = drain(t, empty, empty.Init())
	if !strings.Contains(empty.View(), "No matches recorded yet") {
		t.Errorf("Expected empty message, got:\n%s", empty.View())
	}

	var failing tea.Model = NewMatchListModel(&fakeCatalog{err: errors.New("disk on fire")}, 80, 24, MatchListOptions{})
	failing = drain(t, failing, failing.Init())
	if !strings.Contains(failing.View(), "disk on fire") {
		t.Errorf("Expected load error, got:\n%s", failing.View())
	}
}

func TestMatchListQuit(t *testing.T) {
	var m tea.Model = NewMatchListModel(newFakeCatalog(), 80, 24, MatchListOptions{})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !m.(MatchListModel).IsQuitting() || cmd == nil {
		t.Error("Expected q to quit")
	}
}

func TestSessionModelListToWatchAndBack(t *testing.T) {
	cat := newFakeCatalog()
	feed := feedFunc(func(ctx context.Context, _ string, _ int, _ chan<- Event) error {
		<-ctx.Done()
		return ctx.Err()
	})

	s := NewSessionModel(context.Background(), cat, feed, nil, 140, 30)
	var m tea.Model = s
	m = drain(t, m, s.list.Init())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	id, watching := m.(SessionModel).Watching()
	if !watching || id != "match-one-1234" {
		t.Fatalf("Expected to watch the first match, got %q %v", id, watching)
	}
	if w := m.(SessionModel).watch; w.opts.BoardWidth != 11 {
		t.Errorf("Expected board width from the match info, got %d", w.opts.BoardWidth)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, watching := m.(SessionModel).Watching(); watching {
		t.Error("Expected esc to return to the list")
	}
	if m.(SessionModel).quitting {
		t.Error("Expected session to stay open after leaving the viewer")
	}
}

func TestSessionModelDirectOpen(t *testing.T) {
	cat := newFakeCatalog()
	s := NewSessionModel(context.Background(), cat, nil, nil, 100, 30).Open("match-two-5678")

	if s.watch == nil || s.watch.opts.BoardHeight != 7 {
		t.Fatal("Expected viewer sized from the stored match")
	}

	m, cmd := s.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !m.(SessionModel).quitting || cmd == nil {
		t.Error("Expected leaving a directly opened match to end the session")
	}
}
