// Package enroll implements the voice-driven enrollment flow: the guard asks
// for a name, captures a handful of camera frames, extracts a face embedding
// from each, and persists the new identity.
//
// The flow is a small two-step conversation owned by the arbiter while the
// machine is in enroll mode: first utterance names the person, then capture
// and storage run synchronously. Saying "cancel" at the name prompt aborts.
package enroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nholtz/roomwarden/internal/eventlog"
	"github.com/nholtz/roomwarden/internal/identity"
	"github.com/nholtz/roomwarden/pkg/provider/faces"
)

// Defaults for the capture step.
const (
	DefaultSamples     = 6
	DefaultSampleDelay = 500 * time.Millisecond
)

// FrameFunc returns the most recent camera frame as JPEG bytes.
type FrameFunc func(ctx context.Context) ([]byte, error)

// Option is a functional option for configuring a Flow.
type Option func(*Flow)

// WithSamples sets how many face samples to capture. Default: 6.
func WithSamples(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.samples = n
		}
	}
}

// WithSampleDelay sets the pause between capture attempts. Default: 500ms.
func WithSampleDelay(d time.Duration) Option {
	return func(f *Flow) { f.sampleDelay = d }
}

// WithEvents sets the event log for enrollment milestones.
func WithEvents(events *eventlog.Log) Option {
	return func(f *Flow) { f.events = events }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) { f.logger = logger }
}

// Flow runs one enrollment at a time. Not safe for concurrent use; the
// arbiter serialises all calls.
type Flow struct {
	store       identity.Store
	faces       faces.Provider
	frame       FrameFunc
	events      *eventlog.Log
	logger      *slog.Logger
	samples     int
	sampleDelay time.Duration

	active bool
}

// NewFlow returns an enrollment flow using the given collaborators.
func NewFlow(store identity.Store, provider faces.Provider, frame FrameFunc, opts ...Option) *Flow {
	f := &Flow{
		store:       store,
		faces:       provider,
		frame:       frame,
		logger:      slog.Default(),
		samples:     DefaultSamples,
		sampleDelay: DefaultSampleDelay,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Active reports whether an enrollment is waiting for input.
func (f *Flow) Active() bool { return f.active }

// Begin starts a new enrollment and returns the name prompt to speak.
func (f *Flow) Begin() string {
	f.active = true
	f.logger.Info("enrollment started")
	return "Enrollment started. Please tell me the name of the person to enroll, or say cancel."
}

// HandleText consumes the next utterance of the flow. When a name is given,
// capture and storage run immediately; the returned reply reports the
// result. done is true once the flow finished, successfully or not.
func (f *Flow) HandleText(ctx context.Context, text string) (reply string, done bool) {
	if !f.active {
		return "", true
	}

	name := cleanName(text)
	switch {
	case name == "":
		return "I didn't catch a name. Please say the name again, or say cancel.", false
	case strings.EqualFold(name, "Cancel"):
		f.finish()
		f.logEvent("enrollment cancelled")
		return "Enrollment cancelled.", true
	}

	embeddings, err := f.captureSamples(ctx)
	if err != nil {
		f.finish()
		f.logger.Warn("enrollment capture failed", slog.String("error", err.Error()))
		f.logEvent(fmt.Sprintf("enrollment of %s failed: %s", name, err))
		return "I couldn't capture your face clearly. Enrollment failed, please try again with better lighting.", true
	}

	if err := f.store.Enroll(ctx, name, embeddings); err != nil {
		f.finish()
		f.logger.Error("enrollment store failed", slog.String("error", err.Error()))
		f.logEvent(fmt.Sprintf("enrollment of %s failed: storage error", name))
		return "Something went wrong saving the enrollment. Please try again.", true
	}

	f.finish()
	f.logger.Info("enrollment complete",
		slog.String("name", name),
		slog.Int("samples", len(embeddings)))
	f.logEvent(fmt.Sprintf("enrolled %s with %d face samples", name, len(embeddings)))
	return fmt.Sprintf("Thank you, %s. You are now enrolled and I will recognize you.", name), true
}

// Cancel aborts an in-progress enrollment, e.g. on silence timeout.
func (f *Flow) Cancel() {
	if f.active {
		f.finish()
		f.logEvent("enrollment cancelled")
	}
}

// captureSamples grabs frames and embeds the face in each until enough
// samples are collected. Frames without a detectable face are skipped; at
// least one embedding must be collected within samples*2 attempts.
func (f *Flow) captureSamples(ctx context.Context) ([][]float32, error) {
	var embeddings [][]float32
	attempts := f.samples * 2
	for i := 0; i < attempts && len(embeddings) < f.samples; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.sampleDelay):
			}
		}

		frame, err := f.frame(ctx)
		if err != nil {
			return nil, fmt.Errorf("enroll: capture frame: %w", err)
		}
		emb, err := f.faces.Embed(ctx, frame)
		if err != nil || len(emb) == 0 {
			// No face in this frame; try the next one.
			continue
		}
		embeddings = append(embeddings, emb)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("enroll: no face found in %d frames", attempts)
	}
	return embeddings, nil
}

func (f *Flow) finish() { f.active = false }

func (f *Flow) logEvent(message string) {
	if f.events != nil {
		f.events.Append(eventlog.TypeEnrollment, message)
	}
}

// cleanName normalises a spoken name: trims punctuation and keeps the first
// two capitalised words at most.
func cleanName(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > 2 {
		fields = fields[:2]
	}
	for i, w := range fields {
		w = strings.Trim(w, ".,!?;:'\"")
		if w == "" {
			return ""
		}
		fields[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(fields, " ")
}
