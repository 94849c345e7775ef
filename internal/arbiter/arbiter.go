// Package arbiter routes every incoming utterance and face event to the
// right part of the policy core.
//
// For each utterance the command matcher is always tried first; when no
// command is recognised the current mode decides the route: enrollment input,
// trusted chat, or intruder testimony. The arbiter serialises all mutation of
// the mode machine and the escalation engine behind one mutex, and owns the
// silence timeout that ends a trusted conversation (and abandons a stalled
// interrogation) when nobody has spoken for a while.
package arbiter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nholtz/roomwarden/internal/chat"
	"github.com/nholtz/roomwarden/internal/command"
	"github.com/nholtz/roomwarden/internal/eventlog"
	"github.com/nholtz/roomwarden/internal/guard"
	"github.com/nholtz/roomwarden/internal/interrogate"
	"github.com/nholtz/roomwarden/internal/observe"
	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// DefaultSilenceTimeout ends a trusted conversation (or abandons an
// interrogation) after this much silence.
const DefaultSilenceTimeout = 30 * time.Second

// monitorTick is how often the silence monitor wakes up.
const monitorTick = time.Second

// Hooks is the capability set the application implements for the arbiter.
// Each method corresponds to one routing outcome; the arbiter never reaches
// into the application any other way.
type Hooks interface {
	// OnCommand performs the external side effect of a recognised
	// transition intent (capture retuning, arming checks, starting the
	// enrollment flow) and reports whether it succeeded. The mode machine
	// commits the transition based on the returned confirmation.
	OnCommand(ctx context.Context, intent command.Intent) guard.Confirmation

	// OnEnrollmentText feeds one utterance to the enrollment flow and
	// returns the spoken reply plus whether the flow finished (by success
	// or cancellation).
	OnEnrollmentText(ctx context.Context, text string) (reply string, done bool)

	// OnIntruderText reacts to a processed intruder turn: snapshot
	// relabelling when a name was claimed, alarm side effects when the
	// session escalated to the alert level. The engine has already updated
	// its own state; this is for effects outside the policy core.
	OnIntruderText(ctx context.Context, res interrogate.Result)

	// OnTrustedText produces the casual-chat reply for one trusted
	// utterance that was neither a command nor a goodbye.
	OnTrustedText(ctx context.Context, text string) (reply string)
}

// NameSource lists the enrolled names read at interrogation start for the
// identity-contradiction check. *identity.MemStore and the postgres store
// both satisfy it.
type NameSource interface {
	Names(ctx context.Context) ([]string, error)
}

// Option is a functional option for configuring an Arbiter.
type Option func(*Arbiter)

// WithSpeaker sets the synthesis backend replies are spoken through.
// Without one, replies are only logged.
func WithSpeaker(s tts.Speaker) Option {
	return func(a *Arbiter) { a.speaker = s }
}

// WithNames sets the enrolled-name source consulted at session start.
func WithNames(src NameSource) Option {
	return func(a *Arbiter) { a.names = src }
}

// WithEvents sets the event log.
func WithEvents(events *eventlog.Log) Option {
	return func(a *Arbiter) { a.events = events }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Arbiter) { a.logger = logger }
}

// WithMetrics sets the metrics sink. Default: none.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Arbiter) { a.metrics = m }
}

// WithSilenceTimeout overrides [DefaultSilenceTimeout].
func WithSilenceTimeout(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

// Arbiter is the single-threaded heart of the guard: every utterance and
// face event passes through it, one at a time.
type Arbiter struct {
	machine *guard.Machine
	engine  *interrogate.Engine
	hooks   Hooks

	speaker tts.Speaker
	names   NameSource
	events  *eventlog.Log
	logger  *slog.Logger
	metrics *observe.Metrics
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	lastVoice time.Time
}

// New returns an Arbiter routing between machine and engine via hooks.
func New(machine *guard.Machine, engine *interrogate.Engine, hooks Hooks, opts ...Option) *Arbiter {
	a := &Arbiter{
		machine: machine,
		engine:  engine,
		hooks:   hooks,
		logger:  slog.Default(),
		timeout: DefaultSilenceTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Mode returns the current operating mode.
func (a *Arbiter) Mode() guard.Mode {
	return a.machine.Mode()
}

// HandleUtterance routes one transcribed utterance. Empty text is a no-op.
func (a *Arbiter) HandleUtterance(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Debug("utterance received", "text", text, "mode", a.machine.Mode())

	d := a.machine.Evaluate(text)
	switch d.Outcome {
	case guard.OutcomeRejected:
		a.recordCommand(ctx, d.Intent, "rejected")
		a.logEvent(eventlog.TypeCommand, "command refused: "+d.Reason)
		a.say(ctx, d.Reason, tts.ModeNormal)

	case guard.OutcomeIntent:
		a.commitIntent(ctx, d.Intent)

	default:
		a.routeByMode(ctx, text)
	}
}

// HandleUnknownFace starts an interrogation for an unrecognised visitor.
// Only meaningful in guard mode; a detection during an active session is
// dropped, never queued.
func (a *Arbiter) HandleUnknownFace(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.machine.Mode() != guard.ModeGuard {
		return
	}

	greeting, ok := a.engine.StartSession(a.enrolledNames(ctx))
	if !ok {
		return
	}
	a.lastVoice = a.now()
	if a.metrics != nil {
		a.metrics.ActiveInterrogations.Add(ctx, 1)
	}
	a.say(ctx, greeting, tts.ModeNormal)
}

// HandleKnownFace reacts to a confirmed trusted face: in guard mode the
// guard greets the person and opens a trusted conversation. Ignored while an
// interrogation is running or in any other mode.
func (a *Arbiter) HandleKnownFace(ctx context.Context, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.machine.Mode() != guard.ModeGuard || a.engine.Active() {
		return
	}
	if !a.machine.BeginTrustedConversation() {
		return
	}
	a.lastVoice = a.now()
	a.logEvent(eventlog.TypeFace, "recognized "+name)
	a.say(ctx, "Hello, "+name+". How can I help?", tts.ModeFriendly)
}

// Run drives the silence monitor until ctx is cancelled. It always returns
// nil; the signature fits an errgroup worker.
func (a *Arbiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(monitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.checkSilence(ctx)
		}
	}
}

// commitIntent drives the confirmation-gated transition and speaks the
// result. Caller holds a.mu.
func (a *Arbiter) commitIntent(ctx context.Context, intent command.Intent) {
	prev := a.machine.Mode()
	committed := a.machine.RequestTransition(ctx, intent, a.hooks.OnCommand)
	if !committed {
		a.recordCommand(ctx, intent, "refused")
		a.logEvent(eventlog.TypeCommand, "transition not confirmed: "+string(intent))
		a.say(ctx, "I couldn't complete that. Staying as we are.", tts.ModeNormal)
		return
	}

	next := a.machine.Mode()
	a.recordCommand(ctx, intent, "committed")
	a.syncGuardGauge(ctx, prev, next)
	a.logEvent(eventlog.TypeMode, "mode changed to "+string(next))

	switch intent {
	case command.IntentGuardOn:
		a.say(ctx, "Guard mode activated. I am watching the room.", tts.ModeNormal)
	case command.IntentGuardOff:
		// Turning the guard off also abandons any running interrogation.
		if a.engine.Active() {
			a.endSession(ctx, interrogate.OutcomeAbandoned)
		}
		a.say(ctx, "Guard mode deactivated. Standing down.", tts.ModeNormal)
	case command.IntentEnroll:
		// The enrollment flow speaks its own name prompt via OnCommand.
	}
}

// routeByMode dispatches a non-command utterance. Caller holds a.mu.
func (a *Arbiter) routeByMode(ctx context.Context, text string) {
	switch a.machine.Mode() {
	case guard.ModeEnroll:
		reply, done := a.hooks.OnEnrollmentText(ctx, text)
		if done {
			a.machine.FinishEnrollment()
			a.logEvent(eventlog.TypeMode, "mode changed to "+string(guard.ModeIdle))
		}
		a.say(ctx, reply, tts.ModeFriendly)

	case guard.ModeTrusted:
		a.lastVoice = a.now()
		if chat.IsGoodbye(text) {
			a.endTrustedConversation(ctx, "goodbye")
			return
		}
		a.say(ctx, a.hooks.OnTrustedText(ctx, text), tts.ModeFriendly)

	case guard.ModeGuard:
		if !a.engine.Active() {
			return
		}
		a.lastVoice = a.now()
		res, err := a.engine.ProcessResponse(ctx, text)
		if err != nil {
			if !errors.Is(err, interrogate.ErrNoSession) {
				a.logger.Error("interrogation turn failed", "err", err)
			}
			return
		}
		a.applyDirectives(ctx, res)

	default:
		// Idle: nothing is listening for free speech.
	}
}

// applyDirectives executes an engine result: speak, react, and close out the
// session when it ended. Caller holds a.mu.
func (a *Arbiter) applyDirectives(ctx context.Context, res interrogate.Result) {
	a.hooks.OnIntruderText(ctx, res)

	if res.Reply != "" {
		a.say(ctx, res.Reply, res.Voice)
	}

	if res.Continue {
		return
	}

	// Session over; the engine has logged the labelled outcome itself.
	outcome := interrogate.OutcomeRejected
	switch {
	case res.Alarm:
		outcome = interrogate.OutcomeAlarmed
	case res.Accepted:
		outcome = interrogate.OutcomeAccepted
	}
	a.recordSessionEnd(ctx, outcome)

	if res.Alarm {
		// An alarm stands the guard down until someone resets it.
		prev := a.machine.Mode()
		a.machine.ForceIdle()
		a.syncGuardGauge(ctx, prev, guard.ModeIdle)
	}
}

// checkSilence ends a trusted conversation, or abandons an interrogation,
// once the silence timeout has elapsed.
func (a *Arbiter) checkSilence(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.machine.Mode() {
	case guard.ModeTrusted:
		if a.now().Sub(a.lastVoice) >= a.timeout {
			a.endTrustedConversation(ctx, "silence")
		}
	case guard.ModeGuard:
		if a.engine.Active() && a.now().Sub(a.lastVoice) >= a.timeout {
			a.endSession(ctx, interrogate.OutcomeAbandoned)
			a.logger.Info("interrogation abandoned after silence")
		}
	}
}

// endTrustedConversation returns to guard mode. Caller holds a.mu.
func (a *Arbiter) endTrustedConversation(ctx context.Context, cause string) {
	if !a.machine.EndTrustedConversation() {
		return
	}
	a.logEvent(eventlog.TypeConversation, "trusted conversation ended ("+cause+")")
	a.say(ctx, "Alright, back to keeping watch.", tts.ModeFriendly)
}

// endSession ends the active interrogation with the given outcome label and
// updates the session gauge. Caller holds a.mu.
func (a *Arbiter) endSession(ctx context.Context, outcome string) {
	a.engine.End(outcome)
	a.recordSessionEnd(ctx, outcome)
}

// enrolledNames reads the identity store, tolerating its absence.
func (a *Arbiter) enrolledNames(ctx context.Context) []string {
	if a.names == nil {
		return nil
	}
	names, err := a.names.Names(ctx)
	if err != nil {
		a.logger.Warn("reading enrolled names failed", "err", err)
		return nil
	}
	return names
}

// say speaks text through the configured speaker, logging failures.
func (a *Arbiter) say(ctx context.Context, text string, mode tts.VoiceMode) {
	if text == "" {
		return
	}
	if a.speaker == nil {
		a.logger.Info("reply (no speaker configured)", "text", text, "voice", mode)
		return
	}
	if err := a.speaker.Speak(ctx, text, mode); err != nil {
		a.logger.Error("speech synthesis failed", "err", err, "text", text)
	}
}

func (a *Arbiter) logEvent(eventType, message string) {
	if a.events != nil {
		a.events.Append(eventType, message)
	}
}

func (a *Arbiter) recordCommand(ctx context.Context, intent command.Intent, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordCommand(ctx, string(intent), outcome)
	}
}

func (a *Arbiter) recordSessionEnd(ctx context.Context, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordSessionEnd(ctx, outcome)
		a.metrics.ActiveInterrogations.Add(ctx, -1)
	}
}

// syncGuardGauge keeps the armed gauge in step with mode changes. Guard and
// trusted conversation both count as armed.
func (a *Arbiter) syncGuardGauge(ctx context.Context, prev, next guard.Mode) {
	if a.metrics == nil {
		return
	}
	armed := func(m guard.Mode) bool {
		return m == guard.ModeGuard || m == guard.ModeTrusted
	}
	switch {
	case !armed(prev) && armed(next):
		a.metrics.GuardActive.Add(ctx, 1)
	case armed(prev) && !armed(next):
		a.metrics.GuardActive.Add(ctx, -1)
	}
}
