// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model, or
// any remote service) and exposes a uniform streaming interface. The central
// abstraction is SessionHandle: once opened, a session accepts raw PCM audio
// frames and emits authoritative final Transcript values as utterances are
// committed.
//
// The guard retunes recognition per mode (guard mode listens harder than a
// trusted conversation does), which is expressed by restarting the session
// with a different StreamConfig rather than mutating a live session.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Transcript represents a committed speech-to-text result.
type Transcript struct {
	// Text is the transcribed speech content. Empty text means the engine
	// heard audio but recognised nothing; callers treat it as no utterance.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// engine does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration

	// Latency is how long the engine took to transcribe the buffered
	// utterance. Zero when the engine does not measure it.
	Latency time.Duration

	// Alternatives holds candidate transcripts beside Text, best first, when
	// the session was opened with ReturnAlternatives and the engine supports
	// n-best output. Callers that only want the best hypothesis read Text.
	Alternatives []string
}

// StreamConfig describes the audio format and segmentation tuning for a new
// STT session. Zero values fall back to provider defaults.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 is whisper-native).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono; stereo input is
	// downmixed by the provider.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	Language string

	// EnergyThreshold is the RMS level (16-bit PCM units) below which a frame
	// counts as silence. Lower values make the session more sensitive; guard
	// mode uses a lower threshold than idle listening.
	EnergyThreshold float64

	// PauseMs is the consecutive-silence duration that ends an utterance and
	// triggers transcription of the buffered speech.
	PauseMs int

	// MaxBufferMs caps buffered speech before a forced flush.
	MaxBufferMs int

	// ReturnAlternatives asks the engine to emit candidate transcripts in
	// [Transcript.Alternatives]. Engines without n-best support ignore it.
	ReturnAlternatives bool
}

// SessionHandle represents an open STT session. Callers must call Close when
// the session is no longer needed; failing to do so leaks the provider's
// internal goroutines. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit little-endian signed PCM audio
	// for silence analysis and buffering. Calling SendAudio after Close
	// returns an error.
	SendAudio(chunk []byte) error

	// Finals returns a read-only channel emitting authoritative Transcript
	// values as utterances are committed. Closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending speech, and closes the
	// Finals channel. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new transcription session. The returned handle is
	// ready to accept audio immediately. Returns an error if the session
	// cannot be established or ctx is already cancelled.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
