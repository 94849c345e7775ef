// Package identity defines the persisted store of enrolled identities: the
// people the guard trusts, each with a name and the face embeddings captured
// during enrollment.
//
// The policy core reads the store only as a set of known names (for
// identity-contradiction checks and reasoning context); embeddings are
// consumed by the face-match side. Two implementations exist: an in-memory
// store for tests and single-run setups, and a PostgreSQL store (see the
// postgres subpackage) for durable enrollment.
package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an identity name is not enrolled.
var ErrNotFound = errors.New("identity: not found")

// ErrNoEmbeddings is returned when an enrollment carries no embeddings.
var ErrNoEmbeddings = errors.New("identity: enrollment requires at least one embedding")

// Identity is one enrolled person.
type Identity struct {
	Name       string
	Embeddings [][]float32
	EnrolledAt time.Time
}

// Store persists enrolled identities. Implementations must be safe for
// concurrent use.
type Store interface {
	// Enroll stores name with its embeddings. Re-enrolling an existing name
	// appends the new embeddings to the identity.
	Enroll(ctx context.Context, name string, embeddings [][]float32) error

	// Names returns all enrolled names, sorted.
	Names(ctx context.Context) ([]string, error)

	// Get returns one enrolled identity by name, or ErrNotFound.
	Get(ctx context.Context, name string) (*Identity, error)

	// Nearest returns the enrolled name whose stored embedding is closest to
	// the query embedding, with its distance. Returns ErrNotFound when the
	// store is empty.
	Nearest(ctx context.Context, embedding []float32) (name string, distance float32, err error)

	// Remove deletes an enrolled identity, or returns ErrNotFound.
	Remove(ctx context.Context, name string) error

	// Close releases any resources held by the store.
	Close()
}
