// Package vision smooths per-frame face-match results into stable identity
// decisions. Raw frame matches flicker between a name and "Unknown"; the
// policy core only ever acts on the majority vote over a rolling window, and
// only once a per-name cooldown has elapsed since the last action on the
// same name.
package vision

import (
	"sync"
	"time"

	"github.com/nholtz/roomwarden/pkg/provider/faces"
)

// Defaults matching the guard's tuning.
const (
	DefaultWindow   = 5
	DefaultCooldown = 10 * time.Second
)

// Option is a functional option for configuring a Smoother.
type Option func(*Smoother)

// WithWindow sets the rolling vote window size. Default: 5.
func WithWindow(n int) Option {
	return func(s *Smoother) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithCooldown sets the per-name action cooldown. Default: 10s.
func WithCooldown(d time.Duration) Option {
	return func(s *Smoother) { s.cooldown = d }
}

// WithClock overrides the time source. Mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Smoother) { s.now = now }
}

// Smoother turns a stream of per-frame names into confirmed identity events.
// Safe for concurrent use.
type Smoother struct {
	window   int
	cooldown time.Duration
	now      func() time.Time

	mu         sync.Mutex
	votes      []string
	lastAction map[string]time.Time
}

// New returns a Smoother with an empty window.
func New(opts ...Option) *Smoother {
	s := &Smoother{
		window:     DefaultWindow,
		cooldown:   DefaultCooldown,
		now:        time.Now,
		lastAction: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(s)
	}
	s.votes = make([]string, 0, s.window)
	return s
}

// Observe records one frame's best-match name ("Unknown" for a failed match)
// and reports the confirmed name, if any. A name is confirmed when the
// window is full, the name wins a strict majority of it, and the cooldown
// since the last confirmation of the same name has elapsed. Unknown is a
// confirmable result too: a sustained Unknown majority is what starts an
// interrogation.
func (s *Smoother) Observe(name string) (confirmed string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.votes) >= s.window {
		s.votes = s.votes[1:]
	}
	s.votes = append(s.votes, name)
	if len(s.votes) < s.window {
		return "", false
	}

	winner, count := majority(s.votes)
	if count*2 <= s.window {
		return "", false
	}

	if last, seen := s.lastAction[winner]; seen && s.now().Sub(last) < s.cooldown {
		return "", false
	}
	s.lastAction[winner] = s.now()
	return winner, true
}

// Reset clears the vote window, but not the cooldowns. Used when capture
// restarts so stale frames never outvote fresh ones.
func (s *Smoother) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = s.votes[:0]
}

// BestName reduces a frame's raw matches to the single name to vote on: the
// match with the smallest distance, or Unknown when the frame has no match.
func BestName(matches []faces.Match) string {
	if len(matches) == 0 {
		return faces.Unknown
	}
	best := matches[0]
	for _, m := range matches[1:] {
		if m.Distance < best.Distance {
			best = m
		}
	}
	return best.Name
}

// majority returns the most frequent name in votes and its count.
func majority(votes []string) (string, int) {
	counts := make(map[string]int, len(votes))
	winner, best := "", 0
	for _, v := range votes {
		counts[v]++
		if counts[v] > best {
			winner, best = v, counts[v]
		}
	}
	return winner, best
}
