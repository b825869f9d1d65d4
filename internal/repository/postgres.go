package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists values in a Postgres table, for clients that run on shared hosts
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates the table if needed and returns the store.
// The store takes ownership of the pool.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	query := `
		CREATE TABLE IF NOT EXISTS client_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := db.Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("failed to create client_kv table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Get retrieves a value by key
func (r *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM client_kv WHERE key = $1`
	var value string
	err := r.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get value: %w", err)
	}
	return value, true, nil
}

// Set inserts or overwrites a value
func (r *PostgresStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO client_kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`
	if _, err := r.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}
	return nil
}

// Delete removes a value; deleting an absent key is not an error
func (r *PostgresStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM client_kv WHERE key = $1`
	if _, err := r.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *PostgresStore) Close() error {
	r.db.Close()
	return nil
}
