package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, step)
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			step INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	upsertStep: `INSERT INTO workflow_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			state = excluded.state`,
	upsertCheckpoint: `INSERT INTO workflow_checkpoints (checkpoint_id, state, step)
		VALUES (?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			state = excluded.state,
			step = excluded.step,
			updated_at = CURRENT_TIMESTAMP`,
}

// SQLiteStore persists workflow state in a single-file SQLite database.
//
// It needs no setup and survives process restarts, which makes it the
// natural choice for a CLI that pauses for human input and may be resumed
// later. The pure Go modernc.org/sqlite driver is used, so no cgo.
//
// Schema:
//   - workflow_steps: step-by-step execution history
//   - workflow_checkpoints: named checkpoints
type SQLiteStore[S any] struct {
	*sqlStore[S]
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
//
// Example:
//
//	st, err := store.NewSQLiteStore[research.State]("./runs.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// One writer at a time; a single connection also keeps ":memory:"
	// databases alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	base, err := newSQLStore[S](ctx, db, sqliteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore[S]{sqlStore: base, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
