// Package mock provides a test double for the faces.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/nholtz/roomwarden/pkg/provider/faces"
)

// Provider is a mock implementation of faces.Provider.
// The zero value reports no faces. Set Matches/Embedding/errors as needed.
type Provider struct {
	mu sync.Mutex

	// Matches is returned by every Detect call when MatchSeq is empty.
	Matches []faces.Match

	// MatchSeq, when non-empty, is consumed one element per Detect call.
	MatchSeq [][]faces.Match

	// DetectErr, if non-nil, is returned by Detect.
	DetectErr error

	// Embedding is returned by Embed.
	Embedding []float32

	// EmbedErr, if non-nil, is returned by Embed.
	EmbedErr error

	// DetectCalls counts Detect invocations.
	DetectCalls int
}

// Compile-time interface assertion.
var _ faces.Provider = (*Provider)(nil)

// Detect implements faces.Provider.
func (p *Provider) Detect(_ context.Context, _ []byte) ([]faces.Match, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.DetectCalls++
	if p.DetectErr != nil {
		return nil, p.DetectErr
	}
	if len(p.MatchSeq) > 0 {
		m := p.MatchSeq[0]
		p.MatchSeq = p.MatchSeq[1:]
		return m, nil
	}
	return p.Matches, nil
}

// Detections returns how many times Detect has been called.
func (p *Provider) Detections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DetectCalls
}

// Embed implements faces.Provider.
func (p *Provider) Embed(_ context.Context, _ []byte) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.Embedding, nil
}
