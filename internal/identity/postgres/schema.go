package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlIdentities = `
CREATE TABLE IF NOT EXISTS enrolled_identities (
    name         TEXT         PRIMARY KEY,
    enrolled_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlEmbeddings carries the vector dimension, fixed at first migration.
const ddlEmbeddings = `
CREATE TABLE IF NOT EXISTS identity_embeddings (
    id         BIGSERIAL  PRIMARY KEY,
    name       TEXT       NOT NULL REFERENCES enrolled_identities (name) ON DELETE CASCADE,
    embedding  VECTOR(%d) NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_identity_embeddings_name
    ON identity_embeddings (name);

CREATE INDEX IF NOT EXISTS idx_identity_embeddings_hnsw
    ON identity_embeddings USING hnsw (embedding vector_l2_ops);
`

// migrate installs the pgvector extension and creates the identity tables.
// Idempotent; safe to run on every startup.
func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlIdentities); err != nil {
		return fmt.Errorf("create enrolled_identities: %w", err)
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf(ddlEmbeddings, dims)); err != nil {
		return fmt.Errorf("create identity_embeddings: %w", err)
	}
	return nil
}
