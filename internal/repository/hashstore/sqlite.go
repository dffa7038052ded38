package hashstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/kailas-cloud/syncdex/internal/domain/record"
)

// sqliteMaxVars keeps IN (...) lists under SQLite's bound-parameter limit.
const sqliteMaxVars = 500

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS record_hashes (
	tenant      TEXT NOT NULL,
	collection  TEXT NOT NULL,
	external_id TEXT NOT NULL,
	digest      TEXT NOT NULL,
	nested      TEXT NOT NULL DEFAULT '{}',
	updated_at  DATETIME NOT NULL,
	PRIMARY KEY (tenant, collection, external_id)
)`

// SQLite keeps hashes in a single table keyed by (tenant, collection, external id).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the hash database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the stored hashes of the given ids; unknown ids are absent.
func (s *SQLite) Get(ctx context.Context, tenant, collection string, ids []string) (map[string]record.Hash, error) {
	out := make(map[string]record.Hash, len(ids))
	for chunk := range slices.Chunk(ids, sqliteMaxVars) {
		args := make([]any, 0, len(chunk)+2)
		args = append(args, tenant, collection)
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT external_id, digest, nested FROM record_hashes
			WHERE tenant = ? AND collection = ? AND external_id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("querying hashes: %w", err)
		}
		if err := scanHashes(rows, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Upsert stores hashes in one transaction.
func (s *SQLite) Upsert(ctx context.Context, tenant, collection string, hashes []record.Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO record_hashes (tenant, collection, external_id, digest, nested, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant, collection, external_id) DO UPDATE SET
			digest = excluded.digest,
			nested = excluded.nested,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, h := range hashes {
		nested, err := json.Marshal(h.Nested)
		if err != nil {
			return fmt.Errorf("encoding nested hashes %s: %w", h.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, tenant, collection, h.ID, h.Digest, string(nested), now); err != nil {
			return fmt.Errorf("saving hash %s: %w", h.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing hashes: %w", err)
	}
	return nil
}

// MarkDeleted forgets the given ids.
func (s *SQLite) MarkDeleted(ctx context.Context, tenant, collection string, ids []string) error {
	for chunk := range slices.Chunk(ids, sqliteMaxVars) {
		args := make([]any, 0, len(chunk)+2)
		args = append(args, tenant, collection)
		for _, id := range chunk {
			args = append(args, id)
		}
		if _, err := s.db.ExecContext(ctx, `
			DELETE FROM record_hashes
			WHERE tenant = ? AND collection = ? AND external_id IN (`+placeholders(len(chunk))+`)`, args...); err != nil {
			return fmt.Errorf("deleting hashes: %w", err)
		}
	}
	return nil
}

// IDs lists every stored id, sorted.
func (s *SQLite) IDs(ctx context.Context, tenant, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id FROM record_hashes
		WHERE tenant = ? AND collection = ?
		ORDER BY external_id`, tenant, collection)
	if err != nil {
		return nil, fmt.Errorf("listing hashes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanHashes(rows *sql.Rows, out map[string]record.Hash) error {
	defer rows.Close()
	for rows.Next() {
		var h record.Hash
		var nested string
		if err := rows.Scan(&h.ID, &h.Digest, &nested); err != nil {
			return fmt.Errorf("scanning hash: %w", err)
		}
		if nested != "" && nested != "null" {
			if err := json.Unmarshal([]byte(nested), &h.Nested); err != nil {
				return fmt.Errorf("decoding nested hashes %s: %w", h.ID, err)
			}
		}
		out[h.ID] = h
	}
	return rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
