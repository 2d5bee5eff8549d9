// Package storage provides SQLite-based persistence for matches and their turns.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/snake-arena/internal/agent"
	"github.com/vovakirdan/snake-arena/internal/match"
)

// Store manages the SQLite database connection for match persistence.
type Store struct {
	db *sql.DB
}

// Ensure Store implements TurnStore
var _ match.TurnStore = (*Store)(nil)

// AgentTurn is one stored move outcome.
type AgentTurn struct {
	ID              string
	TurnID          string
	Turn            int
	AgentID         string
	Move            string
	LatencyMS       int64
	LatencyMeasured bool
	TimedOut        bool
	Shout           string
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}
	// Writers from concurrent matches queue on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			ruleset TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			status TEXT NOT NULL,
			seed INTEGER NOT NULL,
			max_turns INTEGER NOT NULL,
			move_timeout_ms INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_matches_created ON matches(created_at DESC);

		CREATE TABLE IF NOT EXISTS match_agents (
			match_id TEXT NOT NULL REFERENCES matches(id),
			agent_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			url TEXT NOT NULL,
			rank INTEGER,
			alive INTEGER,
			length INTEGER,
			health INTEGER,
			cause TEXT,
			eliminated_turn INTEGER,
			eliminated_by TEXT,
			PRIMARY KEY (match_id, agent_id)
		);

		CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			match_id TEXT NOT NULL REFERENCES matches(id),
			turn_number INTEGER NOT NULL,
			frame TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (match_id, turn_number)
		);

		CREATE TABLE IF NOT EXISTS agent_turns (
			id TEXT PRIMARY KEY,
			turn_id TEXT NOT NULL REFERENCES turns(id),
			agent_id TEXT NOT NULL,
			move TEXT NOT NULL,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			latency_measured INTEGER NOT NULL DEFAULT 0,
			timed_out INTEGER NOT NULL DEFAULT 0,
			shout TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_agent_turns_turn ON agent_turns(turn_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveMatch records a new match and its registered agents.
func (s *Store) SaveMatch(ctx context.Context, info match.Info) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: cannot begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO matches (id, ruleset, width, height, status, seed, max_turns, move_timeout_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Ruleset, info.Width, info.Height, string(info.Status),
		info.Seed, info.MaxTurns, info.MoveTimeout.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save match: %w", err)
	}

	for i, a := range info.Agents {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO match_agents (match_id, agent_id, position, name, url) VALUES (?, ?, ?, ?, ?)`,
			info.ID, a.ID, i, a.Name, a.URL,
		)
		if err != nil {
			return fmt.Errorf("storage: cannot save agent %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: cannot commit match: %w", err)
	}
	return nil
}

// UpdateMatchStatus changes the status of an existing match.
func (s *Store) UpdateMatchStatus(ctx context.Context, matchID string, status match.Status) error {
	res, err := s.db.ExecContext(ctx, "UPDATE matches SET status = ? WHERE id = ?", string(status), matchID)
	if err != nil {
		return fmt.Errorf("storage: cannot update match status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: cannot read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage: match %s: %w", matchID, match.ErrNotFound)
	}
	return nil
}

// AppendTurn stores the frame for the next turn of a match. Turns must arrive
// in order starting at 0.
func (s *Store) AppendTurn(ctx context.Context, matchID string, turn int, frame []byte) (match.TurnRef, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return match.TurnRef{}, fmt.Errorf("storage: cannot begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(turn_number) FROM turns WHERE match_id = ?", matchID,
	).Scan(&last)
	if err != nil {
		return match.TurnRef{}, fmt.Errorf("storage: cannot query last turn: %w", err)
	}
	expected := 0
	if last.Valid {
		expected = int(last.Int64) + 1
	}
	if turn != expected {
		return match.TurnRef{}, fmt.Errorf("storage: match %s: %w: got %d, want %d",
			matchID, match.ErrTurnOutOfOrder, turn, expected)
	}

	ref := match.TurnRef{ID: uuid.NewString(), MatchID: matchID, Turn: turn}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO turns (id, match_id, turn_number, frame) VALUES (?, ?, ?, ?)",
		ref.ID, matchID, turn, string(frame),
	)
	if err != nil {
		return match.TurnRef{}, fmt.Errorf("storage: cannot save turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return match.TurnRef{}, fmt.Errorf("storage: cannot commit turn: %w", err)
	}
	return ref, nil
}

// AppendAgentTurn records one agent's move outcome for a stored turn.
func (s *Store) AppendAgentTurn(ctx context.Context, ref match.TurnRef, res agent.MoveResult) error {
	var latency int64
	if res.LatencyMeasured {
		latency = res.Latency.Milliseconds()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_turns (id, turn_id, agent_id, move, latency_ms, latency_measured, timed_out, shout)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), ref.ID, res.AgentID, res.Move.String(),
		latency, res.LatencyMeasured, res.TimedOut, res.Shout,
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save agent turn: %w", err)
	}
	return nil
}

// TurnsFrom returns the stored turns of a match with turn number >= from,
// in ascending order.
func (s *Store) TurnsFrom(ctx context.Context, matchID string, from int) ([]match.TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, match_id, turn_number, frame, created_at
		 FROM turns
		 WHERE match_id = ? AND turn_number >= ?
		 ORDER BY turn_number ASC`,
		matchID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query turns: %w", err)
	}
	defer rows.Close()

	var records []match.TurnRecord
	for rows.Next() {
		var r match.TurnRecord
		var data string
		var createdAt any
		if err := rows.Scan(&r.ID, &r.MatchID, &r.Turn, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		r.Frame = json.RawMessage(data)
		r.CreatedAt = parseTime(createdAt)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return records, nil
}

// SavePlacements stores the final standings of a match.
func (s *Store) SavePlacements(ctx context.Context, matchID string, placements []match.Placement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: cannot begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range placements {
		res, err := tx.ExecContext(ctx,
			`UPDATE match_agents
			 SET rank = ?, alive = ?, length = ?, health = ?, cause = ?, eliminated_turn = ?, eliminated_by = ?
			 WHERE match_id = ? AND agent_id = ?`,
			p.Rank, p.Alive, p.Length, p.Health, p.Cause, p.EliminatedTurn, p.EliminatedBy,
			matchID, p.AgentID,
		)
		if err != nil {
			return fmt.Errorf("storage: cannot save placement: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("storage: agent %s in match %s: %w", p.AgentID, matchID, match.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: cannot commit placements: %w", err)
	}
	return nil
}

// MatchByID retrieves a match and its agents.
func (s *Store) MatchByID(ctx context.Context, matchID string) (*match.Info, error) {
	var info match.Info
	var status string
	var timeoutMS int64
	var createdAt any

	err := s.db.QueryRowContext(ctx,
		`SELECT id, ruleset, width, height, status, seed, max_turns, move_timeout_ms, created_at
		 FROM matches
		 WHERE id = ?`,
		matchID,
	).Scan(&info.ID, &info.Ruleset, &info.Width, &info.Height, &status,
		&info.Seed, &info.MaxTurns, &timeoutMS, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage: match %s: %w", matchID, match.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query match: %w", err)
	}
	info.Status = match.Status(status)
	info.MoveTimeout = time.Duration(timeoutMS) * time.Millisecond
	info.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx,
		"SELECT agent_id, name, url FROM match_agents WHERE match_id = ? ORDER BY position",
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query match agents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a match.AgentSpec
		if err := rows.Scan(&a.ID, &a.Name, &a.URL); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		info.Agents = append(info.Agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return &info, nil
}

// RecentMatches retrieves the most recently created matches, without agents.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]match.Info, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ruleset, width, height, status, seed, max_turns, move_timeout_ms, created_at
		 FROM matches
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query matches: %w", err)
	}
	defer rows.Close()

	var out []match.Info
	for rows.Next() {
		var info match.Info
		var status string
		var timeoutMS int64
		var createdAt any
		if err := rows.Scan(&info.ID, &info.Ruleset, &info.Width, &info.Height, &status,
			&info.Seed, &info.MaxTurns, &timeoutMS, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		info.Status = match.Status(status)
		info.MoveTimeout = time.Duration(timeoutMS) * time.Millisecond
		info.CreatedAt = parseTime(createdAt)
		out = append(out, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return out, nil
}

// Placements returns the stored standings of a match ordered by rank. Agents
// of an unfinished match are not returned.
func (s *Store) Placements(ctx context.Context, matchID string) ([]match.Placement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, name, rank, alive, length, health,
		        COALESCE(cause, ''), COALESCE(eliminated_turn, 0), COALESCE(eliminated_by, '')
		 FROM match_agents
		 WHERE match_id = ? AND rank IS NOT NULL
		 ORDER BY rank ASC`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query placements: %w", err)
	}
	defer rows.Close()

	var out []match.Placement
	for rows.Next() {
		var p match.Placement
		if err := rows.Scan(&p.AgentID, &p.Name, &p.Rank, &p.Alive, &p.Length, &p.Health,
			&p.Cause, &p.EliminatedTurn, &p.EliminatedBy); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return out, nil
}

// AgentTurns returns every recorded move of a match, ordered by turn and then
// by the order the moves were stored.
func (s *Store) AgentTurns(ctx context.Context, matchID string) ([]AgentTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.turn_id, t.turn_number, a.agent_id, a.move,
		        a.latency_ms, a.latency_measured, a.timed_out, a.shout
		 FROM agent_turns a
		 JOIN turns t ON t.id = a.turn_id
		 WHERE t.match_id = ?
		 ORDER BY t.turn_number ASC, a.rowid ASC`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query agent turns: %w", err)
	}
	defer rows.Close()

	var out []AgentTurn
	for rows.Next() {
		var at AgentTurn
		if err := rows.Scan(&at.ID, &at.TurnID, &at.Turn, &at.AgentID, &at.Move,
			&at.LatencyMS, &at.LatencyMeasured, &at.TimedOut, &at.Shout); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		out = append(out, at)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return out, nil
}

// parseTime handles both time.Time and string datetimes from the driver.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
