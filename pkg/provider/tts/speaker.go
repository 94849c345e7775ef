// Package tts defines the Speaker interface for speech synthesis backends.
//
// A Speaker turns guard replies into audible speech. The policy core treats
// synthesis as fire-and-forget — it never inspects the audio — but
// implementations may block until playback completes so that consecutive
// replies do not overlap.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceMode selects the delivery style of a spoken reply.
type VoiceMode string

const (
	// ModeNormal is the default delivery used for commands and questions.
	ModeNormal VoiceMode = "normal"

	// ModeFriendly is the warmer delivery used when greeting trusted people.
	ModeFriendly VoiceMode = "friendly"

	// ModeAlert requests slower, more deliberate delivery for warnings and
	// alarms.
	ModeAlert VoiceMode = "alert"
)

// IsValid reports whether m is a recognised voice mode.
func (m VoiceMode) IsValid() bool {
	switch m {
	case ModeNormal, ModeFriendly, ModeAlert:
		return true
	}
	return false
}

// Speaker is the abstraction over any speech synthesis backend.
type Speaker interface {
	// Speak synthesises and plays text with the given delivery mode.
	// Implementations may block until playback finishes. Returns an error
	// if synthesis or playback fails or ctx is cancelled first.
	Speak(ctx context.Context, text string, mode VoiceMode) error
}
