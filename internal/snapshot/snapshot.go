// Package snapshot persists labelled camera frames captured during guard
// events: one JPEG per intruder detection, named by timestamp and label.
// When an interrogation later extracts a claimed name, the last snapshot is
// relabelled so the audit trail ties the face to the claim.
package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Option is a functional option for configuring a Saver.
type Option func(*Saver)

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Saver) { s.logger = logger }
}

// WithClock overrides the time source. Mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Saver) { s.now = now }
}

// Saver writes labelled JPEG snapshots into a directory.
// Safe for concurrent use.
type Saver struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last string
}

// New returns a Saver writing into dir, creating it if needed.
func New(dir string, opts ...Option) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	s := &Saver{
		dir:    dir,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Save writes frame as a JPEG named after the current time and label, and
// returns the file path.
func (s *Saver) Save(frame []byte, label string) (string, error) {
	name := fmt.Sprintf("%s_%s.jpg", s.now().Format("20060102_150405"), sanitize(label))
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, frame, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", name, err)
	}

	s.mu.Lock()
	s.last = path
	s.mu.Unlock()

	s.logger.Info("snapshot saved", slog.String("path", path))
	return path, nil
}

// RelabelLast renames the most recent snapshot to carry the claimed name,
// e.g. "…_unknown.jpg" becomes "…_unknown_(Dave).jpg". A prior claimed-name
// suffix is replaced, so repeating the same claim is a no-op and a changed
// claim swaps the label. A no-op when nothing has been saved yet.
func (s *Saver) RelabelLast(claimedName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == "" || claimedName == "" {
		return nil
	}
	ext := filepath.Ext(s.last)
	base := strings.TrimSuffix(s.last, ext)
	if idx := strings.LastIndex(base, "_("); idx >= 0 && strings.HasSuffix(base, ")") {
		base = base[:idx]
	}
	renamed := fmt.Sprintf("%s_(%s)%s", base, sanitize(claimedName), ext)
	if renamed == s.last {
		return nil
	}
	if err := os.Rename(s.last, renamed); err != nil {
		return fmt.Errorf("snapshot: relabel: %w", err)
	}
	s.last = renamed
	s.logger.Info("snapshot relabelled", slog.String("path", renamed))
	return nil
}

// sanitize makes a label safe for a file name.
func sanitize(label string) string {
	if label == "" {
		return "unlabelled"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '(' || r == ')':
			return r
		default:
			return '_'
		}
	}, label)
}
