// Package eventlog keeps a bounded in-memory ring of security events and
// optionally appends each event as a JSON line to a rotating file.
//
// The ring is the (small) context window handed to the reasoning service and
// the trusted-conversation responder; the file is the durable audit trail.
package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Event types recorded by the guard.
const (
	TypeMode         = "mode"
	TypeCommand      = "command"
	TypeFace         = "face"
	TypeIntruder     = "intruder"
	TypeEscalation   = "escalation"
	TypeAlarm        = "alarm"
	TypeEnrollment   = "enrollment"
	TypeConversation = "conversation"
	TypeSnapshot     = "snapshot"
)

// DefaultCapacity is the ring size kept in memory.
const DefaultCapacity = 50

// Entry is one recorded event.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
}

// String renders the entry the way it is presented in reasoning prompts.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05"), e.Type, e.Message)
}

// Option is a functional option for configuring a Log.
type Option func(*Log)

// WithCapacity sets the ring capacity. Default: 50.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithFile appends every event as a JSON line to path, rotated at maxSizeMB
// with maxBackups old files kept.
func WithFile(path string, maxSizeMB, maxBackups int, compress bool) Option {
	return func(l *Log) {
		l.sink = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   compress,
		}
	}
}

// WithSink appends every event as a JSON line to w. Mostly for tests.
func WithSink(w io.WriteCloser) Option {
	return func(l *Log) { l.sink = w }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithClock overrides the time source. Mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// Log is a bounded event ring with an optional JSONL sink.
// Safe for concurrent use.
type Log struct {
	capacity int
	sink     io.WriteCloser
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	entries []Entry
}

// New returns a Log configured with the supplied options.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	l.entries = make([]Entry, 0, l.capacity)
	return l
}

// Append records an event, evicting the oldest entry once the ring is full.
// Sink write failures are logged and do not affect the in-memory ring.
func (l *Log) Append(eventType, message string) {
	entry := Entry{
		Timestamp: l.now(),
		Type:      eventType,
		Message:   message,
	}

	l.mu.Lock()
	if len(l.entries) >= l.capacity {
		l.entries = append(l.entries[1:len(l.entries):len(l.entries)], entry)
	} else {
		l.entries = append(l.entries, entry)
	}
	l.mu.Unlock()

	if l.sink != nil {
		line, err := json.Marshal(entry)
		if err == nil {
			_, err = l.sink.Write(append(line, '\n'))
		}
		if err != nil {
			l.logger.Warn("event sink write failed", slog.String("error", err.Error()))
		}
	}
}

// Appendf records a formatted event.
func (l *Log) Appendf(eventType, format string, args ...any) {
	l.Append(eventType, fmt.Sprintf(format, args...))
}

// Recent returns up to n most recent entries, oldest first.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close flushes and closes the sink, if any.
func (l *Log) Close() error {
	if l.sink == nil {
		return nil
	}
	if err := l.sink.Close(); err != nil {
		return fmt.Errorf("eventlog: close sink: %w", err)
	}
	return nil
}
