package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMemories = `
CREATE TABLE IF NOT EXISTS memories (
    agent        TEXT         NOT NULL,
    name         TEXT         NOT NULL,
    content      TEXT         NOT NULL,
    uses         INTEGER      NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_used_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (agent, name)
);

CREATE INDEX IF NOT EXISTS idx_memories_lfu
    ON memories (agent, uses, last_used_at);
`

// Migrate creates the memories table if it does not exist. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlMemories); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
