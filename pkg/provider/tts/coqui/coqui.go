// Package coqui provides a Coqui TTS-backed Speaker that connects to a
// locally-running standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu) via
// its REST API. Synthesis is performed via GET /api/tts with URL query
// parameters; the returned WAV is handed to a playback sink.
//
// Voice modes map onto synthesis parameters: ModeAlert lowers the speaking
// rate (where the model supports a speed parameter) so warnings come out
// slower and clearer; ModeFriendly and ModeNormal use the default rate.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002", playWAV,
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	err = p.Speak(ctx, "Guard mode activated.", tts.ModeNormal)
package coqui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"

	// alertSpeed is the speed factor requested for ModeAlert. Values below
	// 1.0 slow delivery down.
	alertSpeed = 0.8

	// maxWAVBytes caps the synthesised response size to guard against a
	// misbehaving server streaming unbounded audio.
	maxWAVBytes = 16 << 20
)

// Compile-time interface assertion.
var _ tts.Speaker = (*Speaker)(nil)

// PlayFunc receives a complete WAV file and plays it, blocking until
// playback finishes. Implementations typically shell out to a local audio
// player or write to an audio device.
type PlayFunc func(ctx context.Context, wav []byte) error

// Option is a functional option for configuring a Speaker.
type Option func(*Speaker)

// WithLanguage sets the BCP-47 language code sent to the TTS server
// (e.g., "en", "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Speaker) { s.language = lang }
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) { s.httpClient.Timeout = d }
}

// WithSpeakerID selects a named voice for multi-speaker models. Empty
// (default) uses the model's single/default voice.
func WithSpeakerID(id string) Option {
	return func(s *Speaker) { s.speakerID = id }
}

// Speaker implements tts.Speaker backed by a locally-running Coqui TTS
// server. Safe for concurrent use; concurrent Speak calls serialise only at
// the playback sink if the sink requires it.
type Speaker struct {
	serverURL  string
	language   string
	speakerID  string
	httpClient *http.Client
	play       PlayFunc
}

// New creates a Speaker targeting the TTS server at serverURL
// (e.g., "http://localhost:5002"). play receives each synthesised WAV;
// both arguments must be non-nil/non-empty.
func New(serverURL string, play PlayFunc, opts ...Option) (*Speaker, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	if play == nil {
		return nil, errors.New("coqui: play must not be nil")
	}
	s := &Speaker{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		play:       play,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Speak synthesises text via the Coqui server and plays the result.
// ModeAlert requests a reduced speaking rate.
func (s *Speaker) Speak(ctx context.Context, text string, mode tts.VoiceMode) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	wav, err := s.synthesize(ctx, text, mode)
	if err != nil {
		return err
	}

	if err := s.play(ctx, wav); err != nil {
		return fmt.Errorf("coqui: playback: %w", err)
	}
	return nil
}

// synthesize issues the GET /api/tts request and returns the WAV bytes.
func (s *Speaker) synthesize(ctx context.Context, text string, mode tts.VoiceMode) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("language_id", s.language)
	if s.speakerID != "" {
		q.Set("speaker_id", s.speakerID)
	}
	if mode == tts.ModeAlert {
		q.Set("speed", fmt.Sprintf("%.2f", alertSpeed))
	}

	reqURL := s.serverURL + apiTTSEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coqui: tts request: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxWAVBytes))
	if err != nil {
		return nil, fmt.Errorf("coqui: read audio: %w", err)
	}
	if len(wav) == 0 {
		return nil, errors.New("coqui: server returned empty audio")
	}
	return wav, nil
}
