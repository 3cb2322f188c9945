package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"milecal/pkg/logging"
)

// PostgresStore implements Store using PostgreSQL. Sessions are stored
// as JSON documents; per-ID serialization comes from SELECT ... FOR
// UPDATE inside Update.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// Schema is the DDL the Postgres store expects. Applied by the
// deployment, not by the gateway.
const Schema = `
CREATE TABLE IF NOT EXISTS milecal_sessions (
    id         TEXT PRIMARY KEY,
    data       JSONB NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS milecal_sessions_expires_at ON milecal_sessions (expires_at);
`

// NewPostgresStore connects to Postgres and returns a session store.
func NewPostgresStore(ctx context.Context, connString string, ttl time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create session pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach session database: %w", err)
	}

	logging.Info("Session", "Using Postgres session store")
	return &PostgresStore{pool: pool, ttl: ttl}, nil
}

// Load implements Store.
func (ps *PostgresStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	var data []byte
	err := ps.pool.QueryRow(ctx, `
		SELECT data FROM milecal_sessions
		WHERE id = $1 AND expires_at > now()
	`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return decodeSession(data)
}

// Save implements Store.
func (ps *PostgresStore) Save(ctx context.Context, sess *Session) error {
	stored := sess.Clone()
	stored.UpdatedAt = time.Now()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = ps.pool.Exec(ctx, `
		INSERT INTO milecal_sessions (id, data, expires_at)
		VALUES ($1, $2, now() + $3)
		ON CONFLICT (id) DO UPDATE SET data = $2, expires_at = now() + $3
	`, sess.ID, data, ps.ttl)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Update implements Store. The row lock taken by FOR UPDATE serializes
// concurrent mutations of the same session across gateway instances.
func (ps *PostgresStore) Update(ctx context.Context, sessionID string, fn func(*Session) error) error {
	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin session update: %w", err)
	}
	defer tx.Rollback(ctx)

	var data []byte
	err = tx.QueryRow(ctx, `
		SELECT data FROM milecal_sessions
		WHERE id = $1 AND expires_at > now()
		FOR UPDATE
	`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return err
	}

	if err := fn(sess); err != nil {
		return err
	}
	sess.UpdatedAt = time.Now()

	updated, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE milecal_sessions SET data = $2, expires_at = now() + $3
		WHERE id = $1
	`, sessionID, updated, ps.ttl); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	return tx.Commit(ctx)
}

// Destroy implements Store. Deleting an absent row is a no-op.
func (ps *PostgresStore) Destroy(ctx context.Context, sessionID string) error {
	if _, err := ps.pool.Exec(ctx, `DELETE FROM milecal_sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (ps *PostgresStore) Close() {
	ps.pool.Close()
}

func decodeSession(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}
