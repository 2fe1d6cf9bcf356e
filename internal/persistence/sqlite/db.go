package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the ciris_engine.db connection. It implements
// task.Store, thought.Store, and graph.Store (see db_task.go,
// db_thought.go, db_graph.go, db_correlation.go) against the same
// underlying *sql.DB, matching the three-database split of spec.md §6
// (a sibling DB opens secrets.db and ciris_audit.db with this same
// helper).
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) a sqlite database at path and
// applies the schema. A busy_timeout pragma is set so that the
// single-writer cooperative scheduling model never needs its own
// queueing in front of sqlite.
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema %s: %w", path, err)
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error { return d.conn.Close() }

// requiredTables lists the tables C13 phase 2 must find present
// before memory (phase 3) is allowed to start.
var requiredTables = []string{"tasks", "thoughts", "graph_nodes", "graph_edges"}

// VerifyTables checks that every table spec.md §4.9 phase 2 names is
// present in the schema, per the runtime's database-verification step.
func (d *DB) VerifyTables(ctx context.Context) error {
	for _, name := range requiredTables {
		var found string
		err := d.conn.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&found)
		if err == sql.ErrNoRows {
			return fmt.Errorf("required table %q is missing", name)
		}
		if err != nil {
			return fmt.Errorf("verify table %q: %w", name, err)
		}
	}
	return nil
}
