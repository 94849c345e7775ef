package guard

import (
	"context"
	"testing"

	"github.com/nholtz/roomwarden/internal/command"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	return New(command.New())
}

func confirmWith(result Confirmation) ConfirmFunc {
	return func(context.Context, command.Intent) Confirmation { return result }
}

func TestEvaluateGuardOn(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	tests := []struct {
		text string
		want Outcome
	}{
		{"guard mode on", OutcomeIntent},
		{"god mode on", OutcomeIntent},
		{"guard on", OutcomeIntent},
		{"mode on", OutcomeIntent},
		{"turn it on", OutcomeNone},  // "on" alone is never a command
		{"guard mode", OutcomeNone},  // no on/off token
		{"hello there", OutcomeNone}, // nothing matches
	}
	for _, tt := range tests {
		d := m.Evaluate(tt.text)
		if d.Outcome != tt.want {
			t.Errorf("Evaluate(%q).Outcome = %v, want %v", tt.text, d.Outcome, tt.want)
		}
		if tt.want == OutcomeIntent && d.Intent != command.IntentGuardOn {
			t.Errorf("Evaluate(%q).Intent = %v, want guard_on", tt.text, d.Intent)
		}
	}
}

func TestEvaluateGuardOnAlreadyGuarding(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	m.setMode(ModeGuard)

	d := m.Evaluate("guard mode on")
	if d.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %v, want rejected", d.Outcome)
	}
	if d.Reason == "" {
		t.Error("rejected decision should carry a speakable reason")
	}
	if m.Mode() != ModeGuard {
		t.Errorf("mode = %v, want guard (no-op)", m.Mode())
	}
}

func TestEvaluateGuardOffRequiresNonIdle(t *testing.T) {
	t.Parallel()

	m := newMachine(t)

	// In Idle there is nothing to turn off.
	if d := m.Evaluate("guard mode off"); d.Outcome != OutcomeNone {
		t.Errorf("idle off outcome = %v, want none", d.Outcome)
	}

	m.setMode(ModeGuard)
	d := m.Evaluate("guard off")
	if d.Outcome != OutcomeIntent || d.Intent != command.IntentGuardOff {
		t.Errorf("guard off from guard mode = %+v, want guard_off intent", d)
	}
	// Off outranks on when both somehow match.
	d = m.Evaluate("guard mode off on")
	if d.Intent != command.IntentGuardOff {
		t.Errorf("off should outrank on, got %v", d.Intent)
	}
}

func TestEvaluateEnrollAlwaysCheckedFirst(t *testing.T) {
	t.Parallel()

	m := newMachine(t)

	d := m.Evaluate("enroll my face please")
	if d.Outcome != OutcomeIntent || d.Intent != command.IntentEnroll {
		t.Fatalf("enroll from idle = %+v, want enroll intent", d)
	}

	// Enrollment stays reachable after an arbitrary failed guard attempt.
	ok := m.RequestTransition(context.Background(), command.IntentGuardOn, confirmWith(ConfirmFailed))
	if ok || m.Mode() != ModeIdle {
		t.Fatalf("failed guard-on must leave mode idle, got %v", m.Mode())
	}
	d = m.Evaluate("enroll")
	if d.Outcome != OutcomeIntent || d.Intent != command.IntentEnroll {
		t.Errorf("enroll after failed guard attempt = %+v, want enroll intent", d)
	}
}

func TestEvaluateEnrollRejectedOutsideIdle(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	m.setMode(ModeGuard)

	d := m.Evaluate("enroll me")
	if d.Outcome != OutcomeRejected || d.Intent != command.IntentEnroll {
		t.Fatalf("enroll outside idle = %+v, want rejected enroll", d)
	}
	if d.Reason == "" {
		t.Error("rejection should carry a reason")
	}
}

func TestEvaluateTrustedConversation(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	m.setMode(ModeTrusted)

	tests := []struct {
		text string
		want Outcome
	}{
		// Full ordered phrase, tight spacing.
		{"guard mode off", OutcomeIntent},
		{"guard mode off please", OutcomeIntent},
		// Two-of-three is not enough mid-conversation.
		{"guard off", OutcomeNone},
		{"mode off", OutcomeNone},
		// Wrong order.
		{"off mode guard", OutcomeNone},
		// Tokens too far apart.
		{"guard is what I call my dog and his mode is always sleepy so off", OutcomeNone},
		// Ordinary trusted speech passes through.
		{"I'm doing fine thanks", OutcomeNone},
		{"it's about nine o'clock", OutcomeNone},
	}
	for _, tt := range tests {
		d := m.Evaluate(tt.text)
		if d.Outcome != tt.want {
			t.Errorf("trusted Evaluate(%q) = %v, want %v", tt.text, d.Outcome, tt.want)
		}
	}
}

func TestRequestTransitionGuardOnCommitProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  Confirmation
		wantOK  bool
		wantEnd Mode
	}{
		{"confirmed", ConfirmOK, true, ModeGuard},
		{"failed", ConfirmFailed, false, ModeIdle},
		{"indeterminate", ConfirmIndeterminate, false, ModeIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMachine(t)
			ok := m.RequestTransition(context.Background(), command.IntentGuardOn, confirmWith(tt.result))
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if m.Mode() != tt.wantEnd {
				t.Errorf("mode = %v, want %v", m.Mode(), tt.wantEnd)
			}
		})
	}
}

func TestRequestTransitionGuardOffCommitProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  Confirmation
		wantOK  bool
		wantEnd Mode
	}{
		// Only an explicit failure keeps the guard armed.
		{"confirmed", ConfirmOK, true, ModeIdle},
		{"indeterminate", ConfirmIndeterminate, true, ModeIdle},
		{"failed", ConfirmFailed, false, ModeGuard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMachine(t)
			m.setMode(ModeGuard)
			ok := m.RequestTransition(context.Background(), command.IntentGuardOff, confirmWith(tt.result))
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if m.Mode() != tt.wantEnd {
				t.Errorf("mode = %v, want %v", m.Mode(), tt.wantEnd)
			}
		})
	}
}

func TestRequestTransitionNilConfirm(t *testing.T) {
	t.Parallel()

	// With no callback at all, guard-on must not commit but enroll does.
	m := newMachine(t)
	if m.RequestTransition(context.Background(), command.IntentGuardOn, nil) {
		t.Error("guard-on committed without explicit confirmation")
	}
	if !m.RequestTransition(context.Background(), command.IntentEnroll, nil) {
		t.Error("enroll should commit without a callback")
	}
	if m.Mode() != ModeEnroll {
		t.Errorf("mode = %v, want enroll", m.Mode())
	}
}

func TestRequestTransitionRechecksPrecondition(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	m.setMode(ModeGuard)

	called := false
	confirm := func(context.Context, command.Intent) Confirmation {
		called = true
		return ConfirmOK
	}
	if m.RequestTransition(context.Background(), command.IntentEnroll, confirm) {
		t.Error("enroll must not commit outside idle")
	}
	if called {
		t.Error("callback must not run for a disallowed transition")
	}
}

func TestTrustedConversationLifecycle(t *testing.T) {
	t.Parallel()

	m := newMachine(t)

	if m.BeginTrustedConversation() {
		t.Error("trusted conversation must require guard mode")
	}
	m.setMode(ModeGuard)
	if !m.BeginTrustedConversation() {
		t.Fatal("BeginTrustedConversation from guard failed")
	}
	if m.Mode() != ModeTrusted {
		t.Fatalf("mode = %v, want trusted", m.Mode())
	}
	if !m.EndTrustedConversation() {
		t.Fatal("EndTrustedConversation failed")
	}
	if m.Mode() != ModeGuard {
		t.Errorf("mode after conversation = %v, want guard", m.Mode())
	}
	if m.EndTrustedConversation() {
		t.Error("double end should report false")
	}
}

func TestFinishEnrollmentAndForceIdle(t *testing.T) {
	t.Parallel()

	m := newMachine(t)
	m.setMode(ModeEnroll)
	m.FinishEnrollment()
	if m.Mode() != ModeIdle {
		t.Errorf("mode = %v, want idle", m.Mode())
	}

	m.setMode(ModeGuard)
	m.FinishEnrollment() // no-op outside enroll
	if m.Mode() != ModeGuard {
		t.Errorf("mode = %v, want guard", m.Mode())
	}
	m.ForceIdle()
	if m.Mode() != ModeIdle {
		t.Errorf("mode after alarm = %v, want idle", m.Mode())
	}
}
