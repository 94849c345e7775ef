// Package guard owns the system's operating mode and the rules that decide
// when a spoken utterance changes it.
//
// Exactly one mode is active at a time. Command-driven transitions follow a
// two-phase commit: the machine recognises an intent, invokes an external
// confirmation callback (which performs the real-world side effect, such as
// arming capture or checking enrolled identities), and applies the mode
// change only when the callback signals success. This keeps voice-perceived
// state from drifting away from actual system capability.
package guard

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nholtz/roomwarden/internal/command"
)

// Mode enumerates the machine's operating states.
type Mode string

const (
	ModeIdle    Mode = "idle"
	ModeGuard   Mode = "guard"
	ModeEnroll  Mode = "enroll"
	ModeTrusted Mode = "trusted_conversation"
)

// trustedOffMaxGap is the maximum allowed token distance between consecutive
// command words in the ordered guard-off phrase honoured during a trusted
// conversation.
const trustedOffMaxGap = 3

// Confirmation is the result of an external transition callback.
type Confirmation int

const (
	// ConfirmFailed means the side effect explicitly failed. No intent
	// commits on a failed confirmation.
	ConfirmFailed Confirmation = iota

	// ConfirmOK means the side effect explicitly succeeded.
	ConfirmOK

	// ConfirmIndeterminate means the callback completed without reporting an
	// explicit result. GuardOff and Enroll still commit; GuardOn does not,
	// because arming the guard must never be assumed.
	ConfirmIndeterminate
)

// ConfirmFunc performs the external side effect of a transition and reports
// whether it succeeded.
type ConfirmFunc func(ctx context.Context, intent command.Intent) Confirmation

// Outcome classifies the result of evaluating one utterance.
type Outcome int

const (
	// OutcomeNone means no command was recognised; the utterance belongs to
	// whatever conversation is in progress.
	OutcomeNone Outcome = iota

	// OutcomeRejected means a command was recognised but is not allowed in
	// the current mode. The reason is user-visible.
	OutcomeRejected

	// OutcomeIntent means a command was recognised and is allowed; the
	// caller should drive RequestTransition with the intent.
	OutcomeIntent
)

// Decision is the evaluation result for one utterance.
type Decision struct {
	Outcome Outcome
	Intent  command.Intent

	// Reason is a speakable explanation, set for OutcomeRejected.
	Reason string
}

// Option is a functional option for configuring a Machine.
type Option func(*Machine)

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// Machine is the mode state machine. Safe for concurrent use, though the
// arbiter serialises all mutating calls in practice.
type Machine struct {
	matcher *command.Matcher
	logger  *slog.Logger

	mu   sync.RWMutex
	mode Mode
}

// New returns a Machine starting in Idle.
func New(matcher *command.Matcher, opts ...Option) *Machine {
	m := &Machine{
		matcher: matcher,
		logger:  slog.Default(),
		mode:    ModeIdle,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Mode returns the current operating mode.
func (m *Machine) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// commandTokens is the full target vocabulary evaluated per utterance.
var commandTokens = []string{
	command.TokenGuard,
	command.TokenMode,
	command.TokenOn,
	command.TokenOff,
	command.TokenEnroll,
}

// Evaluate matches text against the command vocabulary and applies the
// transition policy for the current mode. The priority order is fixed:
// enroll is always checked first so enrollment stays reachable after failed
// guard attempts; a trusted conversation only honours the strict ordered
// guard-off phrase; guard-off outranks guard-on.
func (m *Machine) Evaluate(text string) Decision {
	set := m.matcher.Match(text, commandTokens)
	mode := m.Mode()

	// Enroll intent, unconditionally first.
	if set.Has(command.TokenEnroll) {
		if mode != ModeIdle {
			return Decision{
				Outcome: OutcomeRejected,
				Intent:  command.IntentEnroll,
				Reason:  "Enrollment is only available while the system is idle.",
			}
		}
		return Decision{Outcome: OutcomeIntent, Intent: command.IntentEnroll}
	}

	// Mid-conversation, only the explicit ordered guard-off phrase counts as
	// a command; everything else is trusted speech. Short utterances are too
	// easily misheard as commands to honour the looser rule here.
	if mode == ModeTrusted {
		if orderedGuardOff(set) {
			return Decision{Outcome: OutcomeIntent, Intent: command.IntentGuardOff}
		}
		return Decision{Outcome: OutcomeNone}
	}

	// GuardOff: two-of-three with an off token, honoured from any non-Idle
	// mode.
	if mode != ModeIdle && set.Has(command.TokenOff) &&
		(set.Has(command.TokenGuard) || set.Has(command.TokenMode)) {
		return Decision{Outcome: OutcomeIntent, Intent: command.IntentGuardOff}
	}

	// GuardOn: two-of-three with an on token.
	if set.Has(command.TokenOn) &&
		(set.Has(command.TokenGuard) || set.Has(command.TokenMode)) {
		if mode == ModeGuard {
			return Decision{
				Outcome: OutcomeRejected,
				Intent:  command.IntentGuardOn,
				Reason:  "Guard mode is already active.",
			}
		}
		return Decision{Outcome: OutcomeIntent, Intent: command.IntentGuardOn}
	}

	return Decision{Outcome: OutcomeNone}
}

// orderedGuardOff reports whether the match set contains all three guard-off
// tokens in utterance order with pairwise gaps of at most trustedOffMaxGap.
func orderedGuardOff(set command.MatchSet) bool {
	if !set.Has(command.TokenGuard, command.TokenMode, command.TokenOff) {
		return false
	}
	g := set[command.TokenGuard].Position
	md := set[command.TokenMode].Position
	off := set[command.TokenOff].Position
	if !(g <= md && md <= off) {
		return false
	}
	return md-g <= trustedOffMaxGap && off-md <= trustedOffMaxGap && off-g <= trustedOffMaxGap
}

// RequestTransition runs the commit protocol for an allowed intent: the
// confirmation callback performs the external side effect, and the mode
// changes only on success. GuardOn demands an explicit ConfirmOK; GuardOff
// and Enroll commit unless the callback explicitly failed, so a stuck
// confirmation can never leave the guard armed against the user's will.
// Returns true if the mode changed.
func (m *Machine) RequestTransition(ctx context.Context, intent command.Intent, confirm ConfirmFunc) bool {
	target, ok := m.targetMode(intent)
	if !ok {
		m.logger.Warn("transition not allowed in current mode",
			slog.String("intent", string(intent)),
			slog.String("mode", string(m.Mode())))
		return false
	}

	result := ConfirmIndeterminate
	if confirm != nil {
		result = confirm(ctx, intent)
	}

	switch intent {
	case command.IntentGuardOn:
		if result != ConfirmOK {
			m.logger.Info("guard-on not confirmed, mode unchanged")
			return false
		}
	default:
		if result == ConfirmFailed {
			m.logger.Info("transition confirmation failed, mode unchanged",
				slog.String("intent", string(intent)))
			return false
		}
	}

	m.setMode(target)
	return true
}

// targetMode maps an intent to its destination mode, rechecking the
// precondition in case the mode moved between Evaluate and commit.
func (m *Machine) targetMode(intent command.Intent) (Mode, bool) {
	mode := m.Mode()
	switch intent {
	case command.IntentGuardOn:
		if mode == ModeGuard {
			return "", false
		}
		return ModeGuard, true
	case command.IntentGuardOff:
		if mode == ModeIdle {
			return "", false
		}
		return ModeIdle, true
	case command.IntentEnroll:
		if mode != ModeIdle {
			return "", false
		}
		return ModeEnroll, true
	default:
		return "", false
	}
}

// BeginTrustedConversation enters TrustedConversation from Guard, used when
// a recognised face is confirmed while guarding. Returns false from any
// other mode.
func (m *Machine) BeginTrustedConversation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeGuard {
		return false
	}
	m.mode = ModeTrusted
	m.logger.Info("mode changed", slog.String("mode", string(ModeTrusted)))
	return true
}

// EndTrustedConversation returns to Guard after a trusted conversation ends
// (goodbye phrase or silence timeout). Returns false if no conversation was
// in progress.
func (m *Machine) EndTrustedConversation() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode != ModeTrusted {
		return false
	}
	m.mode = ModeGuard
	m.logger.Info("mode changed", slog.String("mode", string(ModeGuard)))
	return true
}

// FinishEnrollment returns to Idle when enrollment completes or is
// cancelled.
func (m *Machine) FinishEnrollment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeEnroll {
		m.mode = ModeIdle
		m.logger.Info("mode changed", slog.String("mode", string(ModeIdle)))
	}
}

// ForceIdle drops to Idle unconditionally, used after an alarm fires.
func (m *Machine) ForceIdle() {
	m.setMode(ModeIdle)
}

func (m *Machine) setMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == mode {
		return
	}
	m.logger.Info("mode changed",
		slog.String("from", string(m.mode)),
		slog.String("to", string(mode)))
	m.mode = mode
}
