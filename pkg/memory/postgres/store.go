// Package postgres stores agent memories in PostgreSQL.
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nanobot-edge/nanobot/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Store is a [memory.Store] backed by a pgx connection pool. Safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, pings the server and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping reports whether the database is reachable. Used as a readiness check.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Put implements memory.Store.
func (s *Store) Put(ctx context.Context, agent, name, content string) error {
	key := memory.Key(name)
	if key == "" {
		return errors.New("postgres store: name must not be empty")
	}
	const q = `
INSERT INTO memories (agent, name, content)
VALUES ($1, $2, $3)
ON CONFLICT (agent, name)
DO UPDATE SET content = EXCLUDED.content, last_used_at = now()`
	if _, err := s.pool.Exec(ctx, q, agent, key, strings.TrimSpace(content)); err != nil {
		return fmt.Errorf("postgres store: put: %w", err)
	}
	return nil
}

// Get implements memory.Store.
func (s *Store) Get(ctx context.Context, agent, name string) (memory.Entry, error) {
	const q = `
UPDATE memories SET uses = uses + 1, last_used_at = now()
WHERE agent = $1 AND name = $2
RETURNING name, content, uses, created_at, last_used_at`
	rows, err := s.pool.Query(ctx, q, agent, memory.Key(name))
	if err != nil {
		return memory.Entry{}, fmt.Errorf("postgres store: get: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Entry{}, fmt.Errorf("%w: %q", memory.ErrNotFound, name)
	}
	if err != nil {
		return memory.Entry{}, fmt.Errorf("postgres store: get: %w", err)
	}
	return e, nil
}

// Delete implements memory.Store.
func (s *Store) Delete(ctx context.Context, agent, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE agent = $1 AND name = $2`, agent, memory.Key(name))
	if err != nil {
		return fmt.Errorf("postgres store: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", memory.ErrNotFound, name)
	}
	return nil
}

// List implements memory.Store.
func (s *Store) List(ctx context.Context, agent string) ([]memory.Entry, error) {
	const q = `
SELECT name, content, uses, created_at, last_used_at
FROM memories WHERE agent = $1 ORDER BY name`
	rows, err := s.pool.Query(ctx, q, agent)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list: %w", err)
	}
	return entries, nil
}

// Clear implements memory.Store.
func (s *Store) Clear(ctx context.Context, agent string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE agent = $1`, agent); err != nil {
		return fmt.Errorf("postgres store: clear: %w", err)
	}
	return nil
}

func scanEntry(row pgx.CollectableRow) (memory.Entry, error) {
	var e memory.Entry
	err := row.Scan(&e.Name, &e.Content, &e.Uses, &e.CreatedAt, &e.LastUsedAt)
	return e, err
}
