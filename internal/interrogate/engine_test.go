package interrogate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// scriptedAdvisor returns canned verdicts in order, then repeats the last.
type scriptedAdvisor struct {
	verdicts []Verdict
	err      error
	calls    int
}

func (a *scriptedAdvisor) Advise(context.Context, TurnContext) (Verdict, error) {
	a.calls++
	if a.err != nil {
		return Verdict{}, a.err
	}
	i := a.calls - 1
	if i >= len(a.verdicts) {
		i = len(a.verdicts) - 1
	}
	return a.verdicts[i], nil
}

func newEngine(t *testing.T, clock *fakeClock, opts ...Option) *Engine {
	t.Helper()
	return New(append([]Option{WithClock(clock.Now)}, opts...)...)
}

func mustStart(t *testing.T, e *Engine, enrolled ...string) {
	t.Helper()
	greeting, ok := e.StartSession(enrolled)
	if !ok {
		t.Fatal("StartSession failed")
	}
	if greeting == "" {
		t.Fatal("empty greeting")
	}
}

func process(t *testing.T, e *Engine, text string) Result {
	t.Helper()
	r, err := e.ProcessResponse(context.Background(), text)
	if err != nil {
		t.Fatalf("ProcessResponse(%q): %v", text, err)
	}
	return r
}

func TestSessionSingleton(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)
	if _, ok := e.StartSession(nil); ok {
		t.Error("second detection must be dropped while a session is active")
	}
}

func TestNoSession(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	if _, err := e.ProcessResponse(context.Background(), "hello"); !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
	e.End(OutcomeAbandoned) // idempotent no-op
}

func TestEmptyUtteranceIsNoOp(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)
	r := process(t, e, "   ")
	if !r.Continue || r.Reply != "" || r.Alarm {
		t.Errorf("empty turn = %+v, want silent continue", r)
	}
	if e.Level() != LevelInquiry {
		t.Errorf("level = %v, want inquiry", e.Level())
	}
}

func TestHostileEscalatesImmediately(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)

	r := process(t, e, "none of your business")
	if e.Level() != LevelSuspicion {
		t.Errorf("level = %v, want suspicion", e.Level())
	}
	if r.Alarm || !r.Continue {
		t.Errorf("result = %+v, want continue without alarm", r)
	}
}

func TestLevelNonDecreasingAndAlarmAtAlert(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)

	var last Result
	levels := []Level{LevelSuspicion, LevelWarning, LevelAlert}
	for i, want := range levels {
		last = process(t, e, "shut up")
		if i < len(levels)-1 {
			if got := e.Level(); got != want {
				t.Fatalf("turn %d: level = %v, want %v", i+1, got, want)
			}
			if last.Alarm {
				t.Fatalf("turn %d: premature alarm", i+1)
			}
		}
	}
	if !last.Alarm || last.Continue {
		t.Fatalf("final turn = %+v, want alarm and end", last)
	}
	if last.Voice != tts.ModeAlert {
		t.Errorf("alarm voice = %v, want alert", last.Voice)
	}
	if e.Active() {
		t.Error("session should be cleared after alarm")
	}
}

func TestIdentityContradiction(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e, "Alice", "Bob")

	r := process(t, e, "I'm Alice, let me in")
	if e.Level() != LevelSuspicion {
		t.Errorf("level = %v, want suspicion", e.Level())
	}
	if !r.Continue || r.Alarm {
		t.Errorf("result = %+v, want continue without alarm", r)
	}
	if r.ClaimedName != "Alice" {
		t.Errorf("claimed name = %q, want Alice", r.ClaimedName)
	}
	if r.Reply == "" || r.Voice != tts.ModeAlert {
		t.Errorf("contradiction reply = %+v, want fixed alert reply", r)
	}
}

func TestIdentityContradictionAtWarningAlarms(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e, "Alice")

	// Drive to warning with hostility, then claim an enrolled identity.
	process(t, e, "get lost")
	process(t, e, "get lost")
	if e.Level() != LevelWarning {
		t.Fatalf("level = %v, want warning", e.Level())
	}
	r := process(t, e, "my name is alice")
	if !r.Alarm || r.Continue {
		t.Errorf("contradiction at warning = %+v, want alarm", r)
	}
}

func TestContradictionOnlyOnFirstClaim(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e, "Alice")

	process(t, e, "I'm Dave")
	r := process(t, e, "actually I'm Alice")
	// The claimed name is already set; no second extraction, no contradiction.
	if r.ClaimedName != "Dave" {
		t.Errorf("claimed name = %q, want Dave", r.ClaimedName)
	}
	if e.Level() != LevelInquiry {
		t.Errorf("level = %v, want inquiry", e.Level())
	}
}

func TestTimeGatedAcceptance(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	e := newEngine(t, clock)
	mustStart(t, e)

	// Four cooperative responses, then wait past the time gate.
	for i := 0; i < 4; i++ {
		r := process(t, e, "sorry, I can explain everything please")
		if r.Accepted {
			t.Fatalf("accepted after %d cooperative turns", i+1)
		}
	}
	clock.Advance(61 * time.Second)

	// Fifth cooperative response with both gates satisfied accepts.
	r := process(t, e, "thank you for being patient with me")
	if !r.Accepted || r.Continue || r.Alarm {
		t.Fatalf("result = %+v, want acceptance", r)
	}
	if e.Active() {
		t.Error("session should be cleared after acceptance")
	}
}

func TestAcceptanceNeedsEveryCondition(t *testing.T) {
	t.Parallel()

	t.Run("not enough cooperation", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		e := newEngine(t, clock)
		mustStart(t, e)
		for i := 0; i < 3; i++ {
			process(t, e, "sorry about that, please bear with me")
		}
		clock.Advance(2 * time.Minute)
		r := process(t, e, "thank you so much") // cooperative_count reaches 4
		if r.Accepted {
			t.Error("accepted with cooperative_count = 4")
		}
	})

	t.Run("too early", func(t *testing.T) {
		t.Parallel()
		e := newEngine(t, newFakeClock())
		mustStart(t, e)
		for i := 0; i < 6; i++ {
			if r := process(t, e, "sorry, please give me a second"); r.Accepted {
				t.Fatal("accepted before the time gate")
			}
		}
	})

	t.Run("level above inquiry", func(t *testing.T) {
		t.Parallel()
		clock := newFakeClock()
		e := newEngine(t, clock)
		mustStart(t, e)
		process(t, e, "shut up") // level 2; acceptance now unreachable
		clock.Advance(2 * time.Minute)
		for i := 0; i < 8; i++ {
			r := process(t, e, "sorry, please, thank you for listening")
			if r.Accepted {
				t.Fatal("accepted above inquiry level")
			}
			if !r.Continue {
				break
			}
		}
	})
}

func TestLegitimatePurposeAcceptsAtInquiry(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)

	r := process(t, e, "I'm here to pick up notes for my roommate")
	if !r.Accepted || r.Continue {
		t.Fatalf("result = %+v, want immediate acceptance", r)
	}
}

func TestLegitimatePurposeRefusedAboveInquiry(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)

	process(t, e, "get lost")
	r := process(t, e, "wait, I'm just here to pick up a book, I was invited")
	if r.Accepted {
		t.Error("accepted above inquiry level")
	}
	if !r.Continue || r.Reply == "" {
		t.Errorf("result = %+v, want refusal line and continue", r)
	}
}

func TestHostilityEscalatesDespiteCooperationRefusal(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	e := newEngine(t, clock)
	mustStart(t, e)

	process(t, e, "shut up") // suspicion; acceptance now unreachable
	for i := 0; i < 5; i++ {
		process(t, e, "sorry, please, thank you")
	}
	clock.Advance(61 * time.Second)

	// Both acceptance gates are met but the level is past inquiry, so the
	// turn ends in a refusal — and the hostility still escalates first.
	r := process(t, e, "get lost already")
	if r.Accepted {
		t.Fatal("accepted above inquiry level")
	}
	if e.Level() != LevelWarning {
		t.Errorf("level = %v, want warning after hostile refusal turn", e.Level())
	}
	if !r.Continue || r.Reply == "" {
		t.Errorf("result = %+v, want refusal line and continue", r)
	}
}

func TestHostilityInCooperationCornerCanAlarm(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	e := newEngine(t, clock)
	mustStart(t, e)

	process(t, e, "shut up")
	process(t, e, "shut up") // warning: one escalation from alert
	for i := 0; i < 5; i++ {
		process(t, e, "sorry, please, thank you")
	}
	clock.Advance(61 * time.Second)

	r := process(t, e, "fuck off")
	if !r.Alarm || r.Continue {
		t.Errorf("result = %+v, want alarm and end", r)
	}
	if e.Active() {
		t.Error("session should be cleared after alarm")
	}
}

func TestRefusedAcceptanceDoesNotStallEscalate(t *testing.T) {
	t.Parallel()

	advisor := &scriptedAdvisor{verdicts: []Verdict{
		{Class: ClassHostile, Decision: DecisionEscalate},
		{Class: ClassCooperative, Decision: DecisionAccept},
	}}
	clock := newFakeClock()
	e := newEngine(t, clock, WithAdvisor(advisor))
	mustStart(t, e)

	process(t, e, "go away") // suspicion
	clock.Advance(2 * time.Minute)

	// The refused acceptance is a terminal refusal turn: elapsed time past
	// the hard timeout must not escalate it on the side.
	r := process(t, e, "look, I live next door")
	if r.Accepted {
		t.Fatal("accepted above inquiry level")
	}
	if e.Level() != LevelSuspicion {
		t.Errorf("level = %v, want suspicion unchanged on refusal turn", e.Level())
	}
	if !r.Continue || r.Reply == "" {
		t.Errorf("result = %+v, want refusal line and continue", r)
	}
}

func TestEvasionEscalatesOnSecondStrike(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)

	process(t, e, "just looking")
	if e.Level() != LevelInquiry {
		t.Fatalf("level after first evasion = %v, want inquiry", e.Level())
	}
	process(t, e, "it doesn't matter")
	if e.Level() != LevelSuspicion {
		t.Errorf("level after second evasion = %v, want suspicion", e.Level())
	}
}

func TestSevenExchangesEscalate(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e)

	// Generic short utterances: no classification triggers at all.
	for i := 0; i < 6; i++ {
		process(t, e, "um okay")
		if e.Level() != LevelInquiry {
			t.Fatalf("turn %d: level = %v, want inquiry", i+1, e.Level())
		}
	}
	process(t, e, "um okay")
	if e.Level() != LevelSuspicion {
		t.Errorf("level after 7th exchange = %v, want suspicion", e.Level())
	}
}

func TestElapsedTimeEscalates(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	e := newEngine(t, clock)
	mustStart(t, e)

	clock.Advance(91 * time.Second)
	process(t, e, "um okay")
	if e.Level() != LevelSuspicion {
		t.Errorf("level = %v, want suspicion after hard timeout", e.Level())
	}
}

func TestAdvisorDrivesCountersAndDecision(t *testing.T) {
	t.Parallel()

	advisor := &scriptedAdvisor{verdicts: []Verdict{
		{Class: ClassCooperative, Decision: DecisionMaintain, Reply: "And who invited you?"},
		{Class: ClassHostile, Decision: DecisionEscalate, Reply: "That attitude is not helping."},
	}}
	e := newEngine(t, newFakeClock(), WithAdvisor(advisor))
	mustStart(t, e)

	r := process(t, e, "a friend let me in earlier today")
	if r.Reply != "And who invited you?" {
		t.Errorf("reply = %q, want advisor reply", r.Reply)
	}
	if e.Level() != LevelInquiry {
		t.Errorf("level = %v, want inquiry after maintain", e.Level())
	}

	process(t, e, "whatever")
	if e.Level() != LevelSuspicion {
		t.Errorf("level = %v, want suspicion after advised escalate", e.Level())
	}
}

func TestAdvisorAcceptOnlyAtInquiry(t *testing.T) {
	t.Parallel()

	advisor := &scriptedAdvisor{verdicts: []Verdict{
		{Class: ClassHostile, Decision: DecisionEscalate},
		{Class: ClassCooperative, Decision: DecisionAccept, Reply: "Fine, come in."},
	}}
	e := newEngine(t, newFakeClock(), WithAdvisor(advisor))
	mustStart(t, e)

	process(t, e, "buzz off")
	r := process(t, e, "look, I live next door")
	if r.Accepted {
		t.Error("advisor accept must be refused above inquiry level")
	}
	if !r.Continue {
		t.Error("session should continue after refused acceptance")
	}
}

func TestAdvisorFailureFallsBackToRules(t *testing.T) {
	t.Parallel()

	advisor := &scriptedAdvisor{err: errors.New("model unavailable")}
	e := newEngine(t, newFakeClock(), WithAdvisor(advisor))
	mustStart(t, e)

	// The rule classifier handles the turn transparently.
	process(t, e, "none of your business")
	if e.Level() != LevelSuspicion {
		t.Errorf("level = %v, want suspicion via rule fallback", e.Level())
	}
	if advisor.calls != 1 {
		t.Errorf("advisor calls = %d, want 1", advisor.calls)
	}
}

func TestEndResetsEverything(t *testing.T) {
	t.Parallel()

	e := newEngine(t, newFakeClock())
	mustStart(t, e, "Alice")
	process(t, e, "I'm Dave and I refuse to leave, none of your business")

	e.End(OutcomeRejected)
	if e.Active() {
		t.Fatal("session still active after End")
	}
	e.End(OutcomeRejected) // idempotent

	// A fresh session starts clean: counters zero, no claimed name.
	mustStart(t, e)
	r := process(t, e, "hello there, nice to meet you")
	if r.ClaimedName != "" {
		t.Errorf("claimed name leaked into new session: %q", r.ClaimedName)
	}
	if e.Level() != LevelInquiry {
		t.Errorf("level = %v, want inquiry in fresh session", e.Level())
	}
}
