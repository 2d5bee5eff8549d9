package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vovakirdan/snake-arena/internal/agent"
	"github.com/vovakirdan/snake-arena/internal/core"
	"github.com/vovakirdan/snake-arena/internal/match"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testInfo(id string) match.Info {
	return match.Info{
		ID:          id,
		Ruleset:     "standard",
		Width:       11,
		Height:      11,
		Status:      match.StatusRunning,
		Seed:        42,
		MaxTurns:    500,
		MoveTimeout: 500 * time.Millisecond,
		Agents: []match.AgentSpec{
			{ID: "a", Name: "Alpha", URL: "http://alpha"},
			{ID: "b", Name: "Beta", URL: "http://beta"},
		},
	}
}

func TestStoreOpenClose(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStoreSaveAndLoadMatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveMatch(ctx, testInfo("m1")); err != nil {
		t.Fatalf("SaveMatch() failed: %v", err)
	}

	info, err := store.MatchByID(ctx, "m1")
	if err != nil {
		t.Fatalf("MatchByID() failed: %v", err)
	}
	if info.Status != match.StatusRunning {
		t.Errorf("Expected status running, got %s", info.Status)
	}
	if info.MoveTimeout != 500*time.Millisecond {
		t.Errorf("Expected timeout 500ms, got %v", info.MoveTimeout)
	}
	if len(info.Agents) != 2 || info.Agents[0].ID != "a" || info.Agents[1].URL != "http://beta" {
		t.Errorf("Expected agents in registration order, got %+v", info.Agents)
	}
	if info.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}

	if err := store.UpdateMatchStatus(ctx, "m1", match.StatusFinished); err != nil {
		t.Fatalf("UpdateMatchStatus() failed: %v", err)
	}
	info, _ = store.MatchByID(ctx, "m1")
	if info.Status != match.StatusFinished {
		t.Errorf("Expected status finished, got %s", info.Status)
	}
}

func TestStoreMissingMatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.MatchByID(ctx, "nope"); !errors.Is(err, match.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateMatchStatus(ctx, "nope", match.StatusAborted); !errors.Is(err, match.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on update, got %v", err)
	}
}

func TestStoreAppendTurnsInOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.SaveMatch(ctx, testInfo("m1")); err != nil {
		t.Fatalf("SaveMatch() failed: %v", err)
	}

	for turn := 0; turn < 3; turn++ {
		ref, err := store.AppendTurn(ctx, "m1", turn, []byte(`{"Turn":`+string(rune('0'+turn))+`}`))
		if err != nil {
			t.Fatalf("AppendTurn(%d) failed: %v", turn, err)
		}
		if ref.Turn != turn || ref.ID == "" {
			t.Errorf("Unexpected ref %+v", ref)
		}
	}

	if _, err := store.AppendTurn(ctx, "m1", 5, []byte(`{}`)); !errors.Is(err, match.ErrTurnOutOfOrder) {
		t.Errorf("Expected ErrTurnOutOfOrder for a gap, got %v", err)
	}
	if _, err := store.AppendTurn(ctx, "m1", 1, []byte(`{}`)); !errors.Is(err, match.ErrTurnOutOfOrder) {
		t.Errorf("Expected ErrTurnOutOfOrder for a repeat, got %v", err)
	}

	all, err := store.TurnsFrom(ctx, "m1", 0)
	if err != nil {
		t.Fatalf("TurnsFrom() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(all))
	}
	for i, rec := range all {
		if rec.Turn != i {
			t.Errorf("Expected turn %d, got %d", i, rec.Turn)
		}
	}
	if string(all[2].Frame) != `{"Turn":2}` {
		t.Errorf("Expected frame bytes preserved, got %s", all[2].Frame)
	}

	tail, _ := store.TurnsFrom(ctx, "m1", 2)
	if len(tail) != 1 || tail[0].Turn != 2 {
		t.Errorf("Expected only turn 2, got %+v", tail)
	}

	none, _ := store.TurnsFrom(ctx, "m1", 10)
	if len(none) != 0 {
		t.Errorf("Expected no turns past the end, got %d", len(none))
	}
}

func TestStoreAgentTurns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.SaveMatch(ctx, testInfo("m1")); err != nil {
		t.Fatalf("SaveMatch() failed: %v", err)
	}
	if _, err := store.AppendTurn(ctx, "m1", 0, []byte(`{}`)); err != nil {
		t.Fatalf("AppendTurn() failed: %v", err)
	}
	ref, err := store.AppendTurn(ctx, "m1", 1, []byte(`{}`))
	if err != nil {
		t.Fatalf("AppendTurn() failed: %v", err)
	}

	results := []agent.MoveResult{
		{AgentID: "a", Move: core.MoveLeft, Latency: 42 * time.Millisecond, LatencyMeasured: true, Shout: "hi"},
		{AgentID: "b", Move: core.MoveUp, TimedOut: true},
	}
	for _, res := range results {
		if err := store.AppendAgentTurn(ctx, ref, res); err != nil {
			t.Fatalf("AppendAgentTurn() failed: %v", err)
		}
	}

	got, err := store.AgentTurns(ctx, "m1")
	if err != nil {
		t.Fatalf("AgentTurns() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 agent turns, got %d", len(got))
	}
	if got[0].AgentID != "a" || got[0].Move != "left" || got[0].LatencyMS != 42 || !got[0].LatencyMeasured || got[0].Shout != "hi" {
		t.Errorf("Unexpected first agent turn %+v", got[0])
	}
	if got[1].AgentID != "b" || !got[1].TimedOut || got[1].LatencyMeasured || got[1].Turn != 1 {
		t.Errorf("Unexpected second agent turn %+v", got[1])
	}
}

func TestStorePlacements(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.SaveMatch(ctx, testInfo("m1")); err != nil {
		t.Fatalf("SaveMatch() failed: %v", err)
	}

	if got, _ := store.Placements(ctx, "m1"); len(got) != 0 {
		t.Errorf("Expected no placements before the match ends, got %d", len(got))
	}

	placements := []match.Placement{
		{AgentID: "b", Name: "Beta", Rank: 1, Alive: true, Length: 7, Health: 88},
		{AgentID: "a", Name: "Alpha", Rank: 2, Length: 4, Cause: "head-collision", EliminatedTurn: 31, EliminatedBy: "b"},
	}
	if err := store.SavePlacements(ctx, "m1", placements); err != nil {
		t.Fatalf("SavePlacements() failed: %v", err)
	}

	got, err := store.Placements(ctx, "m1")
	if err != nil {
		t.Fatalf("Placements() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 placements, got %d", len(got))
	}
	if got[0] != placements[0] || got[1] != placements[1] {
		t.Errorf("Expected %+v, got %+v", placements, got)
	}

	err = store.SavePlacements(ctx, "m1", []match.Placement{{AgentID: "ghost", Rank: 3}})
	if !errors.Is(err, match.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown agent, got %v", err)
	}
}

func TestStoreRecentMatches(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		if err := store.SaveMatch(ctx, testInfo(id)); err != nil {
			t.Fatalf("SaveMatch(%s) failed: %v", id, err)
		}
	}

	recent, err := store.RecentMatches(ctx, 2)
	if err != nil {
		t.Fatalf("RecentMatches() failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(recent))
	}
	if recent[0].ID != "third" || recent[1].ID != "second" {
		t.Errorf("Expected newest first, got %s, %s", recent[0].ID, recent[1].ID)
	}
}

func TestStoreDuplicateRunKeepsFinishedMatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	gateway := agent.NewGateway(nil, log.New(io.Discard))
	spec := match.Spec{
		ID:     "dup",
		Width:  7,
		Height: 7,
		Seed:   5,
		Agents: []match.AgentSpec{{ID: "solo", URL: "http://127.0.0.1:1"}},
	}

	if _, err := match.NewRunner(store, gateway, nil, log.New(io.Discard)).Run(ctx, spec); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	_, err := match.NewRunner(store, gateway, nil, log.New(io.Discard)).Run(ctx, spec)
	var pe *match.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected PersistenceError for a duplicate id, got %v", err)
	}

	info, err := store.MatchByID(ctx, "dup")
	if err != nil {
		t.Fatalf("MatchByID() failed: %v", err)
	}
	if info.Status != match.StatusFinished {
		t.Errorf("Expected status finished after a rejected rerun, got %s", info.Status)
	}
}
