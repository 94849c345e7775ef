package identity

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"
)

// MemStore is an in-memory Store. Contents are lost on exit; intended for
// tests and runs without a database.
type MemStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	now        func() time.Time
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		identities: make(map[string]*Identity),
		now:        time.Now,
	}
}

// Enroll implements Store.
func (s *MemStore) Enroll(_ context.Context, name string, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return ErrNoEmbeddings
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.identities[name]; ok {
		existing.Embeddings = append(existing.Embeddings, cloneAll(embeddings)...)
		return nil
	}
	s.identities[name] = &Identity{
		Name:       name,
		Embeddings: cloneAll(embeddings),
		EnrolledAt: s.now(),
	}
	return nil
}

// Names implements Store.
func (s *MemStore) Names(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.identities))
	for name := range s.identities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, name string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[name]
	if !ok {
		return nil, ErrNotFound
	}
	out := &Identity{
		Name:       id.Name,
		Embeddings: cloneAll(id.Embeddings),
		EnrolledAt: id.EnrolledAt,
	}
	return out, nil
}

// Nearest implements Store with a linear scan over all stored embeddings.
func (s *MemStore) Nearest(_ context.Context, embedding []float32) (string, float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bestName := ""
	bestDist := float32(math.MaxFloat32)
	for name, id := range s.identities {
		for _, emb := range id.Embeddings {
			if d := euclidean(embedding, emb); d < bestDist {
				bestName, bestDist = name, d
			}
		}
	}
	if bestName == "" {
		return "", 0, ErrNotFound
	}
	return bestName, bestDist, nil
}

// Remove implements Store.
func (s *MemStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[name]; !ok {
		return ErrNotFound
	}
	delete(s.identities, name)
	return nil
}

// Close implements Store. No-op.
func (s *MemStore) Close() {}

func euclidean(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

func cloneAll(embeddings [][]float32) [][]float32 {
	out := make([][]float32, len(embeddings))
	for i, e := range embeddings {
		out[i] = slices.Clone(e)
	}
	return out
}
