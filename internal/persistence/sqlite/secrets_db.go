package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ciris-ai/ciris-core/internal/secrets"
)

const secretsSchemaSQL = `
CREATE TABLE IF NOT EXISTS vault_secrets (
	id           TEXT PRIMARY KEY,
	ciphertext   BLOB NOT NULL,
	nonce        BLOB NOT NULL,
	pattern_name TEXT NOT NULL,
	sensitivity  TEXT NOT NULL,
	context_hint TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);
`

// SecretsDB wraps secrets.db, kept as its own sqlite file per the
// spec's three-database split (ciris_engine.db / secrets.db /
// ciris_audit.db) so an operator can apply stricter file permissions
// to it independently.
type SecretsDB struct {
	conn *sql.DB
}

var _ secrets.Store = (*SecretsDB)(nil)

// OpenSecretsDB opens (creating if absent) the secrets database.
func OpenSecretsDB(path string) (*SecretsDB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open secrets db %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping secrets db %s: %w", path, err)
	}
	if _, err := conn.ExecContext(ctx, secretsSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init secrets schema %s: %w", path, err)
	}
	return &SecretsDB{conn: conn}, nil
}

func (s *SecretsDB) Close() error { return s.conn.Close() }

func (s *SecretsDB) PutSecret(ctx context.Context, id string, ciphertext, nonce []byte, ref secrets.Reference) error {
	_, err := s.conn.ExecContext(ctx, `
INSERT INTO vault_secrets (id, ciphertext, nonce, pattern_name, sensitivity, context_hint, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET ciphertext=excluded.ciphertext, nonce=excluded.nonce`,
		id, ciphertext, nonce, ref.PatternName, string(ref.Sensitivity), ref.ContextHint, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("put secret %s: %w", id, err)
	}
	return nil
}

func (s *SecretsDB) GetSecret(ctx context.Context, id string) ([]byte, []byte, error) {
	var ciphertext, nonce []byte
	err := s.conn.QueryRowContext(ctx, "SELECT ciphertext, nonce FROM vault_secrets WHERE id = ?", id).
		Scan(&ciphertext, &nonce)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("secret not found: %s", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get secret %s: %w", id, err)
	}
	return ciphertext, nonce, nil
}

// ListAll returns every stored reference's metadata (not the
// plaintext), ordered newest first, for the SystemSnapshot secrets
// summary (§5: "secrets snapshot" batch-fetched fields).
func (s *SecretsDB) ListAll(ctx context.Context) ([]secrets.Reference, error) {
	rows, err := s.conn.QueryContext(ctx, `
SELECT id, pattern_name, sensitivity, context_hint, created_at FROM vault_secrets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()
	var out []secrets.Reference
	for rows.Next() {
		var r secrets.Reference
		var sens string
		if err := rows.Scan(&r.UUID, &r.PatternName, &sens, &r.ContextHint, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan secret reference: %w", err)
		}
		r.Sensitivity = secrets.Sensitivity(sens)
		out = append(out, r)
	}
	return out, rows.Err()
}
