// Package whisper provides a local whisper.cpp-backed STT provider using the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a) and
// headers (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at startup and shared across sessions; each
// session creates its own whisper context, so a session restart (e.g. when
// the guard retunes energy/pause thresholds for a new mode) does not reload
// the model.
//
// Segmentation is energy-based: incoming PCM frames are classified as speech
// or silence by RMS level, buffered speech is flushed to inference once the
// configured pause elapses (or the buffer cap is hit), and each flushed
// utterance is emitted as one final Transcript.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/nholtz/roomwarden/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	// defaultEnergyThreshold is the RMS level (in 16-bit PCM units) below
	// which audio is considered silent. The maximum possible value for
	// 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultEnergyThreshold = 300.0

	defaultLanguage    = "en"
	defaultSampleRate  = 16000
	defaultPauseMs     = 500
	defaultMaxBufferMs = 10_000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default BCP-47 language code for transcription
// (e.g., "en", "de"). Sessions may override it via StreamConfig. Defaults
// to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the default audio sample rate in Hz. This must match
// the PCM data delivered via SendAudio. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEnergyThreshold sets the default RMS silence threshold. Sessions may
// override it via StreamConfig. Defaults to 300.
func WithEnergyThreshold(rms float64) Option {
	return func(p *Provider) { p.energyThreshold = rms }
}

// WithPauseMs sets the default consecutive-silence duration (ms) that flushes
// the accumulated speech buffer to inference. Defaults to 500 ms.
func WithPauseMs(ms int) Option {
	return func(p *Provider) { p.pauseMs = ms }
}

// WithMaxBufferMs sets the default maximum buffered audio duration (ms)
// before a forced flush. Defaults to 10 000 ms.
func WithMaxBufferMs(ms int) Option {
	return func(p *Provider) { p.maxBufferMs = ms }
}

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO).
// The model is loaded once and shared across all sessions.
type Provider struct {
	model    whisperlib.Model
	language string

	sampleRate      int
	energyThreshold float64
	pauseMs         int
	maxBufferMs     int
}

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:           model,
		language:        defaultLanguage,
		sampleRate:      defaultSampleRate,
		energyThreshold: defaultEnergyThreshold,
		pauseMs:         defaultPauseMs,
		maxBufferMs:     defaultMaxBufferMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new transcription session. Zero-valued StreamConfig
// fields fall back to the provider-level defaults, so the guard can restart
// a session overriding only the energy/pause tuning it cares about.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	s := &session{
		model:           p.model,
		language:        orDefault(cfg.Language, p.language),
		sampleRate:      orDefaultInt(cfg.SampleRate, p.sampleRate),
		channels:        orDefaultInt(cfg.Channels, 1),
		energyThreshold: orDefaultFloat(cfg.EnergyThreshold, p.energyThreshold),
		pauseMs:         orDefaultInt(cfg.PauseMs, p.pauseMs),
		maxBufferMs:     orDefaultInt(cfg.MaxBufferMs, p.maxBufferMs),

		started: time.Now(),
		audioCh: make(chan []byte, 256),
		finals:  make(chan stt.Transcript, 64),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func orDefaultInt(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

func orDefaultFloat(v, d float64) float64 {
	if v <= 0 {
		return d
	}
	return v
}

// ---- session ----------------------------------------------------------------

// session is a live whisper transcription session. It implements
// stt.SessionHandle. All mutable state driving silence detection and
// buffering is confined to the processLoop goroutine.
type session struct {
	// immutable configuration (set once in StartStream)
	model           whisperlib.Model
	language        string
	sampleRate      int
	channels        int
	energyThreshold float64
	pauseMs         int
	maxBufferMs     int

	started time.Time

	audioCh chan []byte
	finals  chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Compile-time assertion that session satisfies stt.SessionHandle.
var _ stt.SessionHandle = (*session)(nil)

// SendAudio queues a chunk of raw 16-bit little-endian signed PCM audio.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

// Finals returns a read-only channel that emits committed Transcript values.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close terminates the session, flushes any pending speech audio, closes the
// Finals channel, and releases all associated resources.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop is the single goroutine responsible for silence detection,
// audio buffering, and inference dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
		startedAt time.Duration
	)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferMs * bytesPerMs

	doFlush := func() {
		if len(buffer) == 0 || !hadSpeech {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return
		}

		pcm := buffer
		dur := time.Duration(len(pcm)/bytesPerMs) * time.Millisecond
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		inferStart := time.Now()
		text, err := s.infer(pcm)
		if err != nil {
			slog.Error("whisper inference failed", "error", err)
			return
		}
		if text == "" {
			return
		}

		select {
		case s.finals <- stt.Transcript{
			Text:      text,
			Timestamp: startedAt,
			Duration:  dur,
			Latency:   time.Since(inferStart),
		}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			doFlush()
			return

		case <-s.done:
			doFlush()
			return

		case chunk, ok := <-s.audioCh:
			if !ok {
				doFlush()
				return
			}

			rms := computeRMS(chunk)
			chunkMs := chunkDurationMs(chunk, s.sampleRate, s.channels)

			if rms < s.energyThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.pauseMs {
						doFlush()
					}
				}
			} else {
				if !hadSpeech {
					startedAt = time.Since(s.started)
				}
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					doFlush()
				}
			}
		}
	}
}

// infer converts the buffered PCM audio to float32, runs whisper.cpp
// inference using a fresh context, and returns the concatenated text.
func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, s.channels)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines; create a fresh context per inference.
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
