// Package mock provides a test double for the tts.Speaker interface.
// Tests use it to assert what the guard says and with which voice mode.
package mock

import (
	"context"
	"sync"

	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// Utterance records a single Speak invocation.
type Utterance struct {
	Text string
	Mode tts.VoiceMode
}

// Speaker is a mock implementation of tts.Speaker.
// The zero value is ready to use. Set Err to inject failures.
type Speaker struct {
	mu sync.Mutex

	// Spoken records every utterance in order.
	Spoken []Utterance

	// Err, if non-nil, is returned by every Speak call (after recording).
	Err error
}

// Compile-time interface assertion.
var _ tts.Speaker = (*Speaker)(nil)

// Speak implements tts.Speaker.
func (s *Speaker) Speak(_ context.Context, text string, mode tts.VoiceMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, Utterance{Text: text, Mode: mode})
	return s.Err
}

// Last returns the most recent utterance, or a zero Utterance when nothing
// has been spoken.
func (s *Speaker) Last() Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Spoken) == 0 {
		return Utterance{}
	}
	return s.Spoken[len(s.Spoken)-1]
}

// Texts returns all spoken texts in order.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Spoken))
	for i, u := range s.Spoken {
		out[i] = u.Text
	}
	return out
}
