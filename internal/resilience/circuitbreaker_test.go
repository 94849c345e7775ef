package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend unavailable")

// breakerClock is a settable time source wired into cb.now.
type breakerClock struct {
	mu sync.Mutex
	t  time.Time
}

func newBreakerClock() *breakerClock {
	return &breakerClock{t: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)}
}

func (c *breakerClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *breakerClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// transition records one OnStateChange invocation.
type transition struct {
	name     string
	from, to State
}

func newBreaker(t *testing.T, cfg CircuitBreakerConfig) (*CircuitBreaker, *breakerClock) {
	t.Helper()
	clock := newBreakerClock()
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.Now
	return cb, clock
}

func failTimes(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
}

func TestBreakerDefaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "gemini"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = %d/%v/%d, want 5/30s/3",
			cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestBreakerClosedForwardsCalls(t *testing.T) {
	t.Parallel()

	cb, _ := newBreaker(t, CircuitBreakerConfig{Name: "gemini", MaxFailures: 3})
	called := false
	if err := cb.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("fn was not called in closed state")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb, _ := newBreaker(t, CircuitBreakerConfig{
		Name: "gemini", MaxFailures: 3, ResetTimeout: time.Hour,
	})

	failTimes(cb, 3)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 failures", cb.State())
	}

	// Open state rejects without calling fn.
	err := cb.Execute(func() error {
		t.Fatal("fn must not run while the circuit is open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessClearsFailureStreak(t *testing.T) {
	t.Parallel()

	cb, _ := newBreaker(t, CircuitBreakerConfig{Name: "gemini", MaxFailures: 3})

	failTimes(cb, 2)
	_ = cb.Execute(func() error { return nil })
	failTimes(cb, 2)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success must reset the streak)", cb.State())
	}
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()

	cb, clock := newBreaker(t, CircuitBreakerConfig{
		Name: "gemini", MaxFailures: 2, ResetTimeout: 30 * time.Second, HalfOpenMax: 2,
	})

	failTimes(cb, 2)
	if cb.State() != StateOpen {
		t.Fatal("expected open")
	}
	clock.Advance(31 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after the reset timeout", cb.State())
	}
}

func TestBreakerClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	cb, clock := newBreaker(t, CircuitBreakerConfig{
		Name: "gemini", MaxFailures: 2, ResetTimeout: 30 * time.Second, HalfOpenMax: 2,
	})

	failTimes(cb, 2)
	clock.Advance(31 * time.Second)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i+1, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", cb.State())
	}
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	t.Parallel()

	cb, clock := newBreaker(t, CircuitBreakerConfig{
		Name: "gemini", MaxFailures: 2, ResetTimeout: 30 * time.Second, HalfOpenMax: 3,
	})

	failTimes(cb, 2)
	clock.Advance(31 * time.Second)

	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe err = %v, want the backend error", err)
	}
	// Freshly re-opened: the reset timeout starts over.
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after half-open failure", cb.State())
	}
}

func TestBreakerManualReset(t *testing.T) {
	t.Parallel()

	cb, _ := newBreaker(t, CircuitBreakerConfig{
		Name: "gemini", MaxFailures: 2, ResetTimeout: time.Hour,
	})

	failTimes(cb, 2)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after Reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset: %v", err)
	}
}

func TestBreakerStateChangeHook(t *testing.T) {
	t.Parallel()

	var transitions []transition
	cb, clock := newBreaker(t, CircuitBreakerConfig{
		Name:         "gemini",
		MaxFailures:  2,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, transition{name, from, to})
		},
	})

	failTimes(cb, 2)                         // closed → open
	clock.Advance(31 * time.Second)          // (transition on next call)
	_ = cb.Execute(func() error { return nil }) // open → half-open → closed

	want := []transition{
		{"gemini", StateClosed, StateOpen},
		{"gemini", StateOpen, StateHalfOpen},
		{"gemini", StateHalfOpen, StateClosed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i, tr := range want {
		if transitions[i] != tr {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], tr)
		}
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
