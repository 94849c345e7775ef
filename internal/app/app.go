// Package app wires all roomwarden subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the capture workers and the silence monitor, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithIdentityStore, WithMicrophone, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nholtz/roomwarden/internal/arbiter"
	"github.com/nholtz/roomwarden/internal/chat"
	"github.com/nholtz/roomwarden/internal/command"
	"github.com/nholtz/roomwarden/internal/config"
	"github.com/nholtz/roomwarden/internal/enroll"
	"github.com/nholtz/roomwarden/internal/eventlog"
	"github.com/nholtz/roomwarden/internal/guard"
	"github.com/nholtz/roomwarden/internal/identity"
	identitypg "github.com/nholtz/roomwarden/internal/identity/postgres"
	"github.com/nholtz/roomwarden/internal/interrogate"
	"github.com/nholtz/roomwarden/internal/observe"
	"github.com/nholtz/roomwarden/internal/snapshot"
	"github.com/nholtz/roomwarden/internal/vision"
	"github.com/nholtz/roomwarden/pkg/capture"
	"github.com/nholtz/roomwarden/pkg/provider/faces"
	"github.com/nholtz/roomwarden/pkg/provider/llm"
	"github.com/nholtz/roomwarden/pkg/provider/stt"
	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured; the corresponding worker stays inactive.
// Populated by main.go via the config registry.
type Providers struct {
	LLM   llm.Provider
	STT   stt.Provider
	TTS   tts.Speaker
	Faces faces.Provider
}

// App owns all subsystem lifetimes and orchestrates the guard pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	identities identity.Store
	pg         *identitypg.Store // non-nil when the store is PostgreSQL-backed
	events     *eventlog.Log
	snapshots  *snapshot.Saver
	metrics    *observe.Metrics
	machine    *guard.Machine
	engine     *interrogate.Engine
	arb        *arbiter.Arbiter
	flow       *enroll.Flow
	chat       *chat.Responder
	smoother   *vision.Smoother

	// Capture devices. Nil degrades the matching worker to inactive.
	camera capture.Camera
	mic    capture.Microphone

	// lastFrame is the most recent camera frame, kept for enrollment
	// sampling and alarm snapshots.
	frameMu   sync.RWMutex
	lastFrame []byte

	// trustedName is who the guard is currently chatting with.
	trustedMu   sync.RWMutex
	trustedName string

	// listening is the live segmentation tuning; hot-reloadable.
	listenMu  sync.RWMutex
	listening config.ListeningConfig

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithIdentityStore injects an identity store instead of creating one from
// config.
func WithIdentityStore(s identity.Store) Option {
	return func(a *App) { a.identities = s }
}

// WithEventLog injects an event log instead of creating one from config.
func WithEventLog(l *eventlog.Log) Option {
	return func(a *App) { a.events = l }
}

// WithCamera sets the camera device feeding the vision worker.
func WithCamera(c capture.Camera) Option {
	return func(a *App) { a.camera = c }
}

// WithMicrophone sets the microphone device feeding the transcription worker.
func WithMicrophone(m capture.Microphone) Option {
	return func(a *App) { a.mic = m }
}

// WithMetrics injects a metrics sink instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: event log setup, identity
// store connection, snapshot sink creation, and policy-core assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.providers == nil {
		a.providers = &Providers{}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.listening = cfg.Guard.Listening

	// ── 1. Event log ─────────────────────────────────────────────────────
	a.initEvents()

	// ── 2. Identity store ────────────────────────────────────────────────
	if err := a.initIdentity(ctx); err != nil {
		return nil, fmt.Errorf("app: init identity store: %w", err)
	}

	// ── 3. Snapshot sink ─────────────────────────────────────────────────
	if err := a.initSnapshots(); err != nil {
		return nil, fmt.Errorf("app: init snapshots: %w", err)
	}

	// ── 4. Policy core ───────────────────────────────────────────────────
	a.initPolicy()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initEvents sets up the event ring, with a rotated JSONL sink when one is
// configured.
func (a *App) initEvents() {
	if a.events != nil {
		return
	}

	var opts []eventlog.Option
	if p := a.cfg.Events.Path; p != "" {
		opts = append(opts, eventlog.WithFile(p,
			a.cfg.Events.MaxSizeMB,
			a.cfg.Events.MaxBackups,
			a.cfg.Events.Compress))
		slog.Info("event log persisted", "path", p)
	} else {
		slog.Warn("no events.path configured — events are kept in memory only")
	}

	a.events = eventlog.New(opts...)
	a.closers = append(a.closers, a.events.Close)
}

// initIdentity sets up the pgvector identity store, or the in-memory store
// when no DSN is configured.
func (a *App) initIdentity(ctx context.Context) error {
	if a.identities != nil {
		return nil // injected
	}

	dsn := a.cfg.Identity.PostgresDSN
	if dsn == "" {
		slog.Warn("no identity.postgres_dsn configured — enrolled identities are lost on restart")
		a.identities = identity.NewMemStore()
		return nil
	}

	dims := a.cfg.Identity.EmbeddingDimensions
	if dims == 0 {
		dims = 128 // dlib face_recognition embedding size
	}

	store, err := identitypg.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.pg = store
	a.identities = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initSnapshots creates the labelled-frame sink when a directory is
// configured.
func (a *App) initSnapshots() error {
	if a.cfg.Snapshots.Dir == "" {
		return nil
	}
	saver, err := snapshot.New(a.cfg.Snapshots.Dir)
	if err != nil {
		return err
	}
	a.snapshots = saver
	return nil
}

// initPolicy assembles the mode machine, the escalation engine, the chat and
// enrollment flows, and the arbiter that routes between them.
func (a *App) initPolicy() {
	g := a.cfg.Guard

	var matcherOpts []command.Option
	if g.CommandThreshold > 0 {
		matcherOpts = append(matcherOpts, command.WithThreshold(g.CommandThreshold))
	}
	a.machine = guard.New(command.New(matcherOpts...))

	engineOpts := []interrogate.Option{
		interrogate.WithEvents(a.events),
		interrogate.WithAcceptThresholds(
			g.Interrogation.AcceptCooperative,
			g.Interrogation.AcceptAfter.Std()),
		interrogate.WithHardTimeout(g.Interrogation.HardTimeout.Std()),
		interrogate.WithMaxInquiryResponses(g.Interrogation.MaxInquiryResponses),
		interrogate.WithEscalationHook(func(cause string) {
			a.metrics.RecordEscalation(context.Background(), cause)
		}),
	}
	if a.providers.LLM != nil {
		engineOpts = append(engineOpts,
			interrogate.WithAdvisor(a.measuredAdvisor(interrogate.NewLLMAdvisor(a.providers.LLM))))
	} else {
		slog.Warn("no llm provider configured — interrogation runs on the rule-based classifier only")
	}
	a.engine = interrogate.New(engineOpts...)

	var smootherOpts []vision.Option
	if g.SmoothingWindow > 0 {
		smootherOpts = append(smootherOpts, vision.WithWindow(g.SmoothingWindow))
	}
	if d := g.ActionCooldown.Std(); d > 0 {
		smootherOpts = append(smootherOpts, vision.WithCooldown(d))
	}
	a.smoother = vision.New(smootherOpts...)

	var chatOpts []chat.Option
	if a.providers.LLM != nil {
		chatOpts = append(chatOpts, chat.WithProvider(a.providers.LLM))
	}
	a.chat = chat.New(a.events, chatOpts...)

	if a.providers.Faces != nil {
		a.flow = enroll.NewFlow(a.identities, a.providers.Faces, a.latestFrame,
			enroll.WithEvents(a.events))
	}

	a.arb = arbiter.New(a.machine, a.engine, a,
		arbiter.WithSpeaker(a.speaker()),
		arbiter.WithNames(a.identities),
		arbiter.WithEvents(a.events),
		arbiter.WithMetrics(a.metrics),
		arbiter.WithSilenceTimeout(g.ConversationTimeout.Std()),
	)
}

// speaker returns the TTS backend wrapped with latency instrumentation, or
// nil when no TTS provider is configured.
func (a *App) speaker() tts.Speaker {
	if a.providers.TTS == nil {
		return nil
	}
	return &measuredSpeaker{inner: a.providers.TTS, metrics: a.metrics}
}

// latestFrame hands the most recent camera frame to the enrollment flow.
func (a *App) latestFrame(context.Context) ([]byte, error) {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	if len(a.lastFrame) == 0 {
		return nil, fmt.Errorf("app: no camera frame available")
	}
	frame := make([]byte, len(a.lastFrame))
	copy(frame, a.lastFrame)
	return frame, nil
}

func (a *App) storeFrame(jpeg []byte) {
	a.frameMu.Lock()
	a.lastFrame = jpeg
	a.frameMu.Unlock()
}

func (a *App) setTrustedName(name string) {
	a.trustedMu.Lock()
	a.trustedName = name
	a.trustedMu.Unlock()
}

func (a *App) currentTrustedName() string {
	a.trustedMu.RLock()
	defer a.trustedMu.RUnlock()
	return a.trustedName
}

// Arbiter exposes the routing core, mostly for tests.
func (a *App) Arbiter() *arbiter.Arbiter { return a.arb }

// Events exposes the event log.
func (a *App) Events() *eventlog.Log { return a.events }

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop the capture devices first so the workers drain out.
		if a.mic != nil {
			if err := a.mic.Close(); err != nil {
				slog.Warn("microphone close error", "err", err)
			}
		}
		if a.camera != nil {
			if err := a.camera.Close(); err != nil {
				slog.Warn("camera close error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Instrumented decorators ─────────────────────────────────────────────────

// measuredSpeaker records synthesis latency around the wrapped speaker.
type measuredSpeaker struct {
	inner   tts.Speaker
	metrics *observe.Metrics
}

var _ tts.Speaker = (*measuredSpeaker)(nil)

func (s *measuredSpeaker) Speak(ctx context.Context, text string, mode tts.VoiceMode) error {
	start := time.Now()
	err := s.inner.Speak(ctx, text, mode)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	return err
}

// instrumentedAdvisor records reasoning latency, and counts the turns that
// fall back to the rule-based classifier after a reasoning failure.
type instrumentedAdvisor struct {
	inner   interrogate.Advisor
	metrics *observe.Metrics
}

var _ interrogate.Advisor = (*instrumentedAdvisor)(nil)

func (a *App) measuredAdvisor(inner interrogate.Advisor) interrogate.Advisor {
	return &instrumentedAdvisor{inner: inner, metrics: a.metrics}
}

func (ia *instrumentedAdvisor) Advise(ctx context.Context, tc interrogate.TurnContext) (interrogate.Verdict, error) {
	start := time.Now()
	v, err := ia.inner.Advise(ctx, tc)
	ia.metrics.ReasoningDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		ia.metrics.ReasoningFallbacks.Add(ctx, 1)
	}
	return v, err
}
