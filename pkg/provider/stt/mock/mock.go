// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces. Tests drive the guard's listening loop by
// pushing Transcript values onto a mock session's Finals channel.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/nholtz/roomwarden/pkg/provider/stt"
)

// Session is a mock stt.SessionHandle. Use Emit to deliver transcripts to
// the consumer under test.
type Session struct {
	mu     sync.Mutex
	finals chan stt.Transcript
	closed bool

	// Sent records every chunk passed to SendAudio.
	Sent [][]byte
}

// Compile-time interface assertion.
var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session with a buffered Finals channel.
func NewSession() *Session {
	return &Session{finals: make(chan stt.Transcript, 16)}
}

// Emit delivers a final transcript with the given text to the consumer.
func (s *Session) Emit(text string) {
	s.finals <- stt.Transcript{Text: text}
}

// SendAudio records the chunk. Returns an error after Close.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session is closed")
	}
	s.Sent = append(s.Sent, chunk)
	return nil
}

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// SentCount returns how many chunks have been delivered via SendAudio.
func (s *Session) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// Close closes the Finals channel. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.finals)
	}
	return nil
}

// Provider is a mock stt.Provider that hands out pre-created sessions.
type Provider struct {
	mu sync.Mutex

	// Sessions is consumed one element per StartStream call. When empty, a
	// fresh Session is created.
	Sessions []*Session

	// Err, if non-nil, is returned by StartStream.
	Err error

	// Configs records the StreamConfig of every StartStream call, so tests
	// can assert mode-driven retuning.
	Configs []stt.StreamConfig
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// StartStream implements stt.Provider.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Configs = append(p.Configs, cfg)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Sessions) > 0 {
		s := p.Sessions[0]
		p.Sessions = p.Sessions[1:]
		return s, nil
	}
	return NewSession(), nil
}

// StartedConfigs returns a copy of the StreamConfig of every StartStream
// call so far.
func (p *Provider) StartedConfigs() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.StreamConfig, len(p.Configs))
	copy(out, p.Configs)
	return out
}
