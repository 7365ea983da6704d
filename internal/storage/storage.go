// Package storage implements the cloud-side audit ledger (spec.md §6.1
// EXPANSION): a strictly additive, optional record of every /verify and
// /inference/direct call, adapted from the teacher's SQLiteStore +
// embedded-migrations pattern. It is never read by the decision path and
// is not the HistoryTracker — spec.md's "HistoryTracker is in-memory, no
// other persistence" invariant is preserved; this is debugging bookkeeping
// only, disabled by default.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// AuditRecord is one logged /verify or /inference/direct call.
type AuditRecord struct {
	ID             int64
	RequestID      string
	Endpoint       string // "verify" or "inference/direct"
	PromptLen      int
	Accepted       bool
	AcceptanceRate float64
	LatencyMs      float64
	CreatedAt      time.Time
}

// SQLiteStore is the cloud-side audit ledger, backed by modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending migrations.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version TEXT PRIMARY KEY);`); err != nil {
		return err
	}
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, e := range entries {
		v := e.Name()
		var exists string
		err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = ?", v).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return err
		}
		body, err := migrationFS.ReadFile("migrations/" + v)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, string(body)); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations(version) VALUES(?)", v); err != nil {
			return err
		}
	}
	return nil
}

// AppendAudit inserts one record. Callers treat a failure as non-fatal: the
// audit ledger is bookkeeping, never part of the request's success path.
func (s *SQLiteStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	accepted := 0
	if rec.Accepted {
		accepted = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_events(request_id,endpoint,prompt_len,accepted,acceptance_rate,latency_ms,created_at) VALUES(?,?,?,?,?,?,?)",
		rec.RequestID, rec.Endpoint, rec.PromptLen, accepted, rec.AcceptanceRate, rec.LatencyMs, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// RecentAudit returns the most recent limit records, newest first.
func (s *SQLiteStore) RecentAudit(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id,request_id,endpoint,prompt_len,accepted,acceptance_rate,latency_ms,created_at FROM audit_events ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var accepted int
		var created string
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Endpoint, &r.PromptLen, &accepted, &r.AcceptanceRate, &r.LatencyMs, &created); err != nil {
			return nil, err
		}
		r.Accepted = accepted != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
