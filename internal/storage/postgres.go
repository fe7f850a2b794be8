package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS client_storage (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

	getSQL    = `SELECT value FROM client_storage WHERE key = $1`
	keysSQL   = `SELECT key FROM client_storage WHERE key LIKE $1 ESCAPE '\' ORDER BY key`
	upsertSQL = `INSERT INTO client_storage (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	deleteSQL = `DELETE FROM client_storage WHERE key = ANY($1)`
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresStore persists client storage in the client_storage table
type PostgresStore struct {
	db         *sql.DB
	tx         *TxManager
	getStmt    *sql.Stmt
	keysStmt   *sql.Stmt
	deleteStmt *sql.Stmt
	now        func() time.Time
}

// EnsureSchema creates the client_storage table when it does not exist yet
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create client_storage table: %w", err)
	}
	return nil
}

// NewPostgresStore creates a PostgresStore with prepared statements.
// Returns an error if statement preparation fails.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db, tx: NewTxManager(db), now: time.Now}

	var err error
	s.getStmt, err = db.Prepare(getSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.keysStmt, err = db.Prepare(keysSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare keys statement: %w", err)
	}

	s.deleteStmt, err = db.Prepare(deleteSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// SetMany upserts every entry in one transaction, in key order
func (s *PostgresStore) SetMany(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.now().UTC()
	return s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, upsertSQL, k, entries[k], now); err != nil {
				return fmt.Errorf("failed to write %s: %w", k, err)
			}
		}
		return nil
	})
}

// DeleteMany removes all keys with a single statement
func (s *PostgresStore) DeleteMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.deleteStmt.ExecContext(ctx, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.keysStmt.QueryContext(ctx, likeEscaper.Replace(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close releases the prepared statements
func (s *PostgresStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{s.getStmt, s.keysStmt, s.deleteStmt} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
