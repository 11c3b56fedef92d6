package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"indexsync/internal/domain"
)

// StateStore is the durable key-value store behind sync bookkeeping and
// listing tracking entries. Rows past their expiry are treated as absent by
// Get, still visible to List so the sweep can act on them, and eventually
// reaped by PurgeExpired.
type StateStore struct {
	db *sqlx.DB
}

func NewStateStore(db *sqlx.DB) *StateStore {
	return &StateStore{db: db}
}

// EnsureSchema creates the backing table when it does not exist yet.
func (s *StateStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("create kv_state: %w", err)
	}
	return nil
}

func (s *StateStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := `
		SELECT value FROM kv_state
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`

	err := s.db.GetContext(ctx, &value, query, key)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("key %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", &domain.UpstreamError{System: "state", Err: err}
	}
	return value, nil
}

// Put stores a value under key. A zero ttl means the key never expires.
func (s *StateStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	query := `
		INSERT INTO kv_state (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at`

	if _, err := s.db.ExecContext(ctx, query, key, value, expiresAt); err != nil {
		return &domain.UpstreamError{System: "state", Err: err}
	}
	return nil
}

func (s *StateStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_state WHERE key = $1", key); err != nil {
		return &domain.UpstreamError{System: "state", Err: err}
	}
	return nil
}

// List returns all key/value pairs whose key starts with prefix, including
// rows past their expiry. The expiration sweep depends on this: a tracking
// entry becomes actionable exactly when it lapses, so filtering lapsed rows
// here would hide every candidate the sweep exists to find. Lapsed rows
// disappear once PurgeExpired reaps them.
func (s *StateStore) List(ctx context.Context, prefix string) (map[string]string, error) {
	query := `
		SELECT key, value FROM kv_state
		WHERE key LIKE $1 || '%'`

	rows, err := s.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, &domain.UpstreamError{System: "state", Err: err}
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, &domain.UpstreamError{System: "state", Err: err}
		}
		result[key] = value
	}

	return result, rows.Err()
}

// PurgeExpired deletes rows whose expiry passed more than grace ago and
// reports how many were removed. The grace window keeps freshly lapsed
// tracking entries around across sweep runs, so a failed expire can be
// retried before its row is reaped.
func (s *StateStore) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().Add(-grace)
	res, err := s.db.ExecContext(ctx, "DELETE FROM kv_state WHERE expires_at IS NOT NULL AND expires_at <= $1", cutoff)
	if err != nil {
		return 0, &domain.UpstreamError{System: "state", Err: err}
	}
	return res.RowsAffected()
}
