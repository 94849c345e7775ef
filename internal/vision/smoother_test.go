package vision

import (
	"sync"
	"testing"
	"time"

	"github.com/nholtz/roomwarden/pkg/provider/faces"
)

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

func observeAll(s *Smoother, names ...string) (string, bool) {
	var (
		confirmed string
		ok        bool
	)
	for _, n := range names {
		confirmed, ok = s.Observe(n)
	}
	return confirmed, ok
}

func TestObserveNeedsFullWindow(t *testing.T) {
	t.Parallel()

	s := New(WithClock(newFakeClock().Now))
	if _, ok := observeAll(s, "Alice", "Alice", "Alice", "Alice"); ok {
		t.Error("confirmed before the window filled")
	}
	confirmed, ok := s.Observe("Alice")
	if !ok || confirmed != "Alice" {
		t.Errorf("Observe = (%q, %v), want (Alice, true)", confirmed, ok)
	}
}

func TestObserveMajorityWins(t *testing.T) {
	t.Parallel()

	s := New(WithClock(newFakeClock().Now))
	// 3 of 5 for Alice despite flicker.
	confirmed, ok := observeAll(s, "Alice", faces.Unknown, "Alice", faces.Unknown, "Alice")
	if !ok || confirmed != "Alice" {
		t.Errorf("Observe = (%q, %v), want (Alice, true)", confirmed, ok)
	}
}

func TestObserveNoStrictMajority(t *testing.T) {
	t.Parallel()

	s := New(WithClock(newFakeClock().Now))
	// 2/2/1 split: nobody wins a strict majority of 5.
	if name, ok := observeAll(s, "Alice", "Alice", "Bob", "Bob", faces.Unknown); ok {
		t.Errorf("confirmed %q without strict majority", name)
	}
}

func TestObserveUnknownIsConfirmable(t *testing.T) {
	t.Parallel()

	s := New(WithClock(newFakeClock().Now))
	confirmed, ok := observeAll(s,
		faces.Unknown, faces.Unknown, faces.Unknown, faces.Unknown, faces.Unknown)
	if !ok || confirmed != faces.Unknown {
		t.Errorf("Observe = (%q, %v), want (Unknown, true)", confirmed, ok)
	}
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	if _, ok := observeAll(s, "Alice", "Alice", "Alice", "Alice", "Alice"); !ok {
		t.Fatal("first confirmation failed")
	}
	// The window keeps sliding with a winning majority, but the cooldown
	// holds further confirmations back.
	for i := 0; i < 5; i++ {
		if name, ok := s.Observe("Alice"); ok {
			t.Fatalf("confirmed %q during cooldown", name)
		}
	}
	clock.Advance(11 * time.Second)
	if _, ok := s.Observe("Alice"); !ok {
		t.Error("confirmation should resume after cooldown")
	}
}

func TestCooldownIsPerName(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	observeAll(s, "Alice", "Alice", "Alice", "Alice", "Alice")
	// Bob's cooldown is independent of Alice's.
	confirmed, ok := observeAll(s, "Bob", "Bob", "Bob", "Bob", "Bob")
	if !ok || confirmed != "Bob" {
		t.Errorf("Observe = (%q, %v), want (Bob, true)", confirmed, ok)
	}
}

func TestResetClearsWindowNotCooldowns(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := New(WithClock(clock.Now))

	observeAll(s, "Alice", "Alice", "Alice", "Alice", "Alice")
	s.Reset()

	// Window must refill from scratch, and Alice stays in cooldown.
	if _, ok := observeAll(s, "Alice", "Alice", "Alice", "Alice", "Alice"); ok {
		t.Error("cooldown should survive a reset")
	}
}

func TestBestName(t *testing.T) {
	t.Parallel()

	if got := BestName(nil); got != faces.Unknown {
		t.Errorf("BestName(nil) = %q, want Unknown", got)
	}
	matches := []faces.Match{
		{Name: "Bob", Distance: 0.52},
		{Name: "Alice", Distance: 0.31},
		{Name: faces.Unknown, Distance: 0.9},
	}
	if got := BestName(matches); got != "Alice" {
		t.Errorf("BestName = %q, want Alice", got)
	}
}
