package resilience

import (
	"context"

	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// SpeakerFallback implements [tts.Speaker] with automatic failover across
// multiple synthesis backends. Losing speech output mid-interrogation would
// leave a visitor facing a silent guard, so every configured backend gets
// its own circuit breaker and the group is tried in order.
type SpeakerFallback struct {
	group *FallbackGroup[tts.Speaker]
}

// Compile-time interface assertion.
var _ tts.Speaker = (*SpeakerFallback)(nil)

// NewSpeakerFallback creates a [SpeakerFallback] with primary as the
// preferred backend.
func NewSpeakerFallback(primary tts.Speaker, primaryName string, cfg FallbackConfig) *SpeakerFallback {
	return &SpeakerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis backend as a fallback.
func (f *SpeakerFallback) AddFallback(name string, speaker tts.Speaker) {
	f.group.AddFallback(name, speaker)
}

// Speak synthesises and plays text through the first healthy backend.
func (f *SpeakerFallback) Speak(ctx context.Context, text string, mode tts.VoiceMode) error {
	return f.group.Execute(func(s tts.Speaker) error {
		return s.Speak(ctx, text, mode)
	})
}
