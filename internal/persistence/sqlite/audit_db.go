package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ciris-ai/ciris-core/internal/audit"
	"github.com/ciris-ai/ciris-core/internal/audit/signing"
)

const auditSchemaSQL = `
CREATE TABLE IF NOT EXISTS audit_log (
	sequence_number INTEGER PRIMARY KEY,
	event_type      TEXT NOT NULL,
	actor           TEXT NOT NULL,
	payload_json    TEXT NOT NULL,
	previous_hash   TEXT NOT NULL DEFAULT '',
	entry_hash      TEXT NOT NULL,
	signature       BLOB,
	signing_key_id  TEXT NOT NULL DEFAULT '',
	event_timestamp TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_signing_keys (
	key_id      TEXT PRIMARY KEY,
	private_jwk TEXT,
	public_jwk  TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	revoked_at  TIMESTAMP
);
`

// AuditDB wraps ciris_audit.db, the third database of spec.md §6's
// three-database split. It implements both audit.Store (the hash
// chain) and signing.Store (the key registry) against the same
// connection, mirroring DB's one-file-many-tables shape.
type AuditDB struct {
	conn *sql.DB
}

var (
	_ audit.Store   = (*AuditDB)(nil)
	_ signing.Store = (*AuditDB)(nil)
)

// OpenAuditDB opens (creating if absent) the audit database.
func OpenAuditDB(path string) (*AuditDB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping audit db %s: %w", path, err)
	}
	if _, err := conn.ExecContext(ctx, auditSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init audit schema %s: %w", path, err)
	}
	return &AuditDB{conn: conn}, nil
}

func (d *AuditDB) Close() error { return d.conn.Close() }

func (d *AuditDB) LastEntry(ctx context.Context) (*audit.Entry, error) {
	row := d.conn.QueryRowContext(ctx, `
SELECT sequence_number, event_type, actor, payload_json, previous_hash, entry_hash, signature, signing_key_id, event_timestamp
FROM audit_log ORDER BY sequence_number DESC LIMIT 1`)
	e, err := scanAuditEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load last audit entry: %w", err)
	}
	return e, nil
}

func (d *AuditDB) AppendEntry(ctx context.Context, e *audit.Entry) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO audit_log (sequence_number, event_type, actor, payload_json, previous_hash, entry_hash, signature, signing_key_id, event_timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SequenceNumber, e.EventType, e.Actor, string(payloadJSON), e.PreviousHash, e.EntryHash, e.Signature, e.SigningKeyID, e.EventTimestamp)
	if err != nil {
		return fmt.Errorf("append audit entry %d: %w", e.SequenceNumber, err)
	}
	return nil
}

func (d *AuditDB) RangeEntries(ctx context.Context, fromSeq, toSeq int64) ([]*audit.Entry, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT sequence_number, event_type, actor, payload_json, previous_hash, entry_hash, signature, signing_key_id, event_timestamp
FROM audit_log WHERE sequence_number BETWEEN ? AND ? ORDER BY sequence_number ASC`, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("range audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

func (d *AuditDB) AllEntries(ctx context.Context) ([]*audit.Entry, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT sequence_number, event_type, actor, payload_json, previous_hash, entry_hash, signature, signing_key_id, event_timestamp
FROM audit_log ORDER BY sequence_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEntry(row rowScanner) (*audit.Entry, error) {
	var e audit.Entry
	var payloadJSON string
	if err := row.Scan(&e.SequenceNumber, &e.EventType, &e.Actor, &payloadJSON, &e.PreviousHash, &e.EntryHash, &e.Signature, &e.SigningKeyID, &e.EventTimestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payloadJSON), &e.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return &e, nil
}

func scanAuditEntries(rows *sql.Rows) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *AuditDB) PutKey(ctx context.Context, k *signing.KeyRecord) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO audit_signing_keys (key_id, private_jwk, public_jwk, created_at, revoked_at)
VALUES (?, ?, ?, ?, ?)`,
		k.KeyID, string(k.PrivateJWK), string(k.PublicJWK), k.CreatedAt, k.RevokedAt)
	if err != nil {
		return fmt.Errorf("put signing key %s: %w", k.KeyID, err)
	}
	return nil
}

func (d *AuditDB) GetKey(ctx context.Context, keyID string) (*signing.KeyRecord, error) {
	row := d.conn.QueryRowContext(ctx, `
SELECT key_id, private_jwk, public_jwk, created_at, revoked_at FROM audit_signing_keys WHERE key_id = ?`, keyID)
	return scanKeyRecord(row)
}

func (d *AuditDB) GetActiveKey(ctx context.Context) (*signing.KeyRecord, error) {
	row := d.conn.QueryRowContext(ctx, `
SELECT key_id, private_jwk, public_jwk, created_at, revoked_at FROM audit_signing_keys
WHERE revoked_at IS NULL ORDER BY created_at DESC LIMIT 1`)
	k, err := scanKeyRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active signing key")
	}
	return k, err
}

func (d *AuditDB) RevokeKey(ctx context.Context, keyID string, at time.Time) error {
	res, err := d.conn.ExecContext(ctx, `UPDATE audit_signing_keys SET revoked_at = ? WHERE key_id = ?`, at, keyID)
	if err != nil {
		return fmt.Errorf("revoke signing key %s: %w", keyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("signing key not found: %s", keyID)
	}
	return nil
}

func scanKeyRecord(row rowScanner) (*signing.KeyRecord, error) {
	var k signing.KeyRecord
	var privJWK sql.NullString
	var pubJWK string
	var revokedAt sql.NullTime
	if err := row.Scan(&k.KeyID, &privJWK, &pubJWK, &k.CreatedAt, &revokedAt); err != nil {
		return nil, err
	}
	if privJWK.Valid {
		k.PrivateJWK = []byte(privJWK.String)
	}
	k.PublicJWK = []byte(pubJWK)
	if revokedAt.Valid {
		t := revokedAt.Time
		k.RevokedAt = &t
	}
	return &k, nil
}
