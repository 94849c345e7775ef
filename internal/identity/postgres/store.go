// Package postgres provides a PostgreSQL-backed identity.Store. Face
// embeddings are stored as pgvector columns so nearest-identity lookups run
// in the database; the pgvector extension must be available in the target
// database and is installed by the automatic migration.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/nholtz/roomwarden/internal/identity"
)

var _ identity.Store = (*Store)(nil)

// Store is the PostgreSQL-backed identity store. All operations are safe for
// concurrent use; the store owns a single connection pool.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// NewStore connects to the database at dsn, registers pgvector types on
// every connection, and runs the migration. dims must match the embedding
// dimension produced by the face service (128 for dlib-style encodings);
// changing it after the first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, dims int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("identity store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("identity store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("identity store: ping: %w", err)
	}
	if err := migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("identity store: migrate: %w", err)
	}
	return &Store{pool: pool, dims: dims}, nil
}

// Enroll implements identity.Store.
func (s *Store) Enroll(ctx context.Context, name string, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return identity.ErrNoEmbeddings
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("identity store: begin enroll: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO enrolled_identities (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return fmt.Errorf("identity store: upsert identity: %w", err)
	}
	for _, emb := range embeddings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO identity_embeddings (name, embedding) VALUES ($1, $2)`,
			name, pgvector.NewVector(emb)); err != nil {
			return fmt.Errorf("identity store: insert embedding: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("identity store: commit enroll: %w", err)
	}
	return nil
}

// Names implements identity.Store.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name FROM enrolled_identities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("identity store: list names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("identity store: scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity store: list names: %w", err)
	}
	return names, nil
}

// Get implements identity.Store.
func (s *Store) Get(ctx context.Context, name string) (*identity.Identity, error) {
	id := &identity.Identity{Name: name}
	err := s.pool.QueryRow(ctx,
		`SELECT enrolled_at FROM enrolled_identities WHERE name = $1`, name).
		Scan(&id.EnrolledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity store: get %q: %w", name, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT embedding FROM identity_embeddings WHERE name = $1 ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("identity store: embeddings for %q: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("identity store: scan embedding: %w", err)
		}
		id.Embeddings = append(id.Embeddings, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("identity store: embeddings for %q: %w", name, err)
	}
	return id, nil
}

// Nearest implements identity.Store using the pgvector L2 distance operator.
func (s *Store) Nearest(ctx context.Context, embedding []float32) (string, float32, error) {
	var (
		name string
		dist float32
	)
	err := s.pool.QueryRow(ctx, `
		SELECT name, embedding <-> $1 AS distance
		FROM identity_embeddings
		ORDER BY distance
		LIMIT 1`, pgvector.NewVector(embedding)).Scan(&name, &dist)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, identity.ErrNotFound
	}
	if err != nil {
		return "", 0, fmt.Errorf("identity store: nearest: %w", err)
	}
	return name, dist, nil
}

// Remove implements identity.Store. Embeddings cascade.
func (s *Store) Remove(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM enrolled_identities WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("identity store: remove %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// Ping verifies database connectivity. Used by the readiness endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
