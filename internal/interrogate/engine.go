package interrogate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nholtz/roomwarden/internal/eventlog"
	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// ErrNoSession is returned when a response arrives with no interrogation in
// progress.
var ErrNoSession = errors.New("interrogate: no active session")

// Default policy thresholds.
const (
	defaultAcceptAfter     = 60 * time.Second
	defaultAcceptCount     = 5
	defaultHardTimeout     = 90 * time.Second
	defaultMaxInquiryTurns = 7
	recentEventCount       = 5
)

// Session outcome labels recorded in the event log.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeAlarmed   = "alarmed"
	OutcomeAbandoned = "abandoned"
)

// Result is the engine's directive for one processed utterance.
type Result struct {
	// Reply is the line to speak back, empty for a no-op turn.
	Reply string

	// Continue reports whether the session is still running.
	Continue bool

	// Alarm is set when the session ended at the alert level.
	Alarm bool

	// Accepted is set when the session ended by granting access.
	Accepted bool

	// ClaimedName is the visitor's claimed identity, if any was extracted.
	ClaimedName string

	// Voice is the synthesis mode matching the current escalation level.
	Voice tts.VoiceMode
}

// session holds the state of one visitor encounter. Counters and level are
// owned exclusively by the engine and cleared on end.
type session struct {
	start         time.Time
	level         Level
	history       []Turn
	responseCount int
	cooperative   int
	evasive       int
	hostile       int
	claimedName   string
	enrolled      []string
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithAdvisor sets the delegated reasoning service. Without one the engine
// runs entirely on the rule-based classifier.
func WithAdvisor(a Advisor) Option {
	return func(e *Engine) { e.advisor = a }
}

// WithEvents sets the event log consulted for reasoning context and used to
// record session milestones.
func WithEvents(events *eventlog.Log) Option {
	return func(e *Engine) { e.events = events }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source. Mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAcceptThresholds overrides the time-gated acceptance thresholds.
// Non-positive values keep the defaults.
func WithAcceptThresholds(count int, after time.Duration) Option {
	return func(e *Engine) {
		if count > 0 {
			e.acceptCount = count
		}
		if after > 0 {
			e.acceptAfter = after
		}
	}
}

// WithEscalationHook registers a callback invoked after every committed
// escalation with its cause. Used to feed metrics.
func WithEscalationHook(fn func(cause string)) Option {
	return func(e *Engine) { e.onEscalate = fn }
}

// WithHardTimeout overrides the elapsed time after which a session still at
// a low level is escalated. Non-positive values keep the default.
func WithHardTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.hardTimeout = d
		}
	}
}

// WithMaxInquiryResponses overrides the exchange count that escalates a
// session stuck at the inquiry level. Non-positive values keep the default.
func WithMaxInquiryResponses(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxInquiry = n
		}
	}
}

// Engine interrogates unrecognized visitors, escalating suspicion across one
// singleton session at a time. Safe for concurrent use; all mutation runs
// under one lock.
type Engine struct {
	advisor     Advisor
	events      *eventlog.Log
	logger      *slog.Logger
	now         func() time.Time
	acceptAfter time.Duration
	acceptCount int
	hardTimeout time.Duration
	maxInquiry  int
	onEscalate  func(cause string)

	mu sync.Mutex
	s  *session
}

// New returns an Engine with no active session.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:      slog.Default(),
		now:         time.Now,
		acceptAfter: defaultAcceptAfter,
		acceptCount: defaultAcceptCount,
		hardTimeout: defaultHardTimeout,
		maxInquiry:  defaultMaxInquiryTurns,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Active reports whether an interrogation is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s != nil
}

// Level returns the current escalation level, or zero when no session is
// active.
func (e *Engine) Level() Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s == nil {
		return 0
	}
	return e.s.level
}

// StartSession begins a new interrogation and returns the greeting to speak.
// The active session is a singleton: a detection arriving while one is in
// progress is dropped and ok is false, never queued or merged.
// enrolledNames is captured once, at session start, for the
// identity-contradiction check.
func (e *Engine) StartSession(enrolledNames []string) (greetingText string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.s != nil {
		e.logger.Debug("detection dropped, interrogation already active")
		return "", false
	}

	g := greeting()
	e.s = &session{
		start:    e.now(),
		level:    LevelInquiry,
		history:  []Turn{{Speaker: "GUARD", Text: g}},
		enrolled: slices.Clone(enrolledNames),
	}
	e.logger.Info("interrogation started", slog.Int("enrolled_names", len(enrolledNames)))
	e.logEvent(eventlog.TypeIntruder, "interrogation started")
	return g, true
}

// ProcessResponse runs one turn of the interrogation: name extraction and
// the contradiction short-circuit, classification (reasoning service with
// rule fallback), the time-gated acceptance check, and the escalation
// decision. Returns ErrNoSession if no interrogation is active.
func (e *Engine) ProcessResponse(ctx context.Context, text string) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.s
	if s == nil {
		return Result{}, ErrNoSession
	}
	if strings.TrimSpace(text) == "" {
		// Empty transcription is "no utterance this turn".
		return Result{Continue: true, ClaimedName: s.claimedName, Voice: s.level.Voice()}, nil
	}

	s.history = append(s.history, Turn{Speaker: "VISITOR", Text: text})
	s.responseCount++

	// A claim to be an enrolled person, paired with the face-recognition
	// miss that started this session, short-circuits everything else.
	if name := extractName(text); name != "" && s.claimedName == "" {
		s.claimedName = name
		e.logger.Info("visitor claimed a name", slog.String("name", name))
		if slices.Contains(s.enrolled, name) {
			return e.contradictionTurn(s, name), nil
		}
	}

	verdict := e.advise(ctx, s, text)
	switch verdict.Class {
	case ClassCooperative, ClassLegitimate:
		s.cooperative++
	case ClassEvasive:
		s.evasive++
	case ClassHostile:
		s.hostile++
	}

	decision := verdict.Decision
	if decision == DecisionAuto {
		decision = e.deriveDecision(s, verdict.Class)
	}

	// Time-gated acceptance is the sole path to access, and only while the
	// session never left the inquiry level.
	elapsed := e.now().Sub(s.start)
	if s.cooperative >= e.acceptCount && elapsed >= e.acceptAfter {
		if s.level == LevelInquiry {
			return e.endTurn(s, "You've answered my questions well. I'll grant you access. Welcome!",
				Result{Accepted: true}, OutcomeAccepted), nil
		}
		// Past the inquiry level cooperation earns only a refusal, and a
		// hostile turn still escalates first.
		if decision == DecisionEscalate {
			e.escalate(s, "classification")
			if s.level >= LevelAlert {
				reply := verdict.Reply
				if reply == "" {
					reply = scriptedLine(s.level)
				}
				return e.endTurn(s, reply, Result{Alarm: true}, OutcomeAlarmed), nil
			}
		}
		reply := "I appreciate your cooperation, but you need to leave now."
		s.history = append(s.history, Turn{Speaker: "GUARD", Text: reply})
		return Result{Reply: reply, Continue: true, ClaimedName: s.claimedName, Voice: s.level.Voice()}, nil
	}

	switch decision {
	case DecisionAccept:
		if s.level == LevelInquiry {
			reply := verdict.Reply
			if reply == "" {
				reply = "Okay, that makes sense. Come on in!"
			}
			return e.endTurn(s, reply, Result{Accepted: true}, OutcomeAccepted), nil
		}
		// A turn the classifier wanted to accept ends with the refusal as-is;
		// it never doubles as a stall-escalation turn.
		reply := "I appreciate your explanation, but you need to leave now."
		s.history = append(s.history, Turn{Speaker: "GUARD", Text: reply})
		return Result{Reply: reply, Continue: true, ClaimedName: s.claimedName, Voice: s.level.Voice()}, nil
	case DecisionEscalate:
		e.escalate(s, "classification")
	}

	// Escalate on stalling regardless of classification: a long session
	// stuck below warning, or too many inquiry-level exchanges.
	if elapsed > e.hardTimeout && s.level < LevelWarning {
		e.escalate(s, "elapsed time")
	}
	if s.responseCount >= e.maxInquiry && s.level == LevelInquiry {
		e.escalate(s, "too many exchanges")
	}

	reply := verdict.Reply
	if reply == "" {
		reply = scriptedLine(s.level)
	}

	if s.level >= LevelAlert {
		return e.endTurn(s, reply, Result{Alarm: true}, OutcomeAlarmed), nil
	}

	s.history = append(s.history, Turn{Speaker: "GUARD", Text: reply})
	return Result{Reply: reply, Continue: true, ClaimedName: s.claimedName, Voice: s.level.Voice()}, nil
}

// contradictionTurn escalates once and returns the fixed suspicious reply,
// bypassing classification. If that escalation reaches the alert level, the
// session ends with an alarm.
func (e *Engine) contradictionTurn(s *session, name string) Result {
	e.escalate(s, "identity contradiction")
	reply := fmt.Sprintf("Wait a moment. You say you're %s, but my facial recognition didn't identify you. That's very suspicious. Explain yourself now!", name)

	if s.level >= LevelAlert {
		return e.endTurn(s, reply, Result{Alarm: true}, OutcomeAlarmed)
	}
	s.history = append(s.history, Turn{Speaker: "GUARD", Text: reply})
	return Result{Reply: reply, Continue: true, ClaimedName: name, Voice: tts.ModeAlert}
}

// advise asks the reasoning service for a verdict, falling back to the rule
// classifier for this turn on any failure. No session state is lost either
// way.
func (e *Engine) advise(ctx context.Context, s *session, text string) Verdict {
	tc := TurnContext{
		Utterance:     text,
		Level:         s.level,
		Elapsed:       e.now().Sub(s.start),
		ResponseCount: s.responseCount,
		Cooperative:   s.cooperative,
		Evasive:       s.evasive,
		Hostile:       s.hostile,
		ClaimedName:   s.claimedName,
		EnrolledNames: s.enrolled,
		History:       slices.Clone(s.history),
	}
	if e.events != nil {
		for _, entry := range e.events.Recent(recentEventCount) {
			tc.RecentEvents = append(tc.RecentEvents, entry.String())
		}
	}

	if e.advisor != nil {
		v, err := e.advisor.Advise(ctx, tc)
		if err == nil {
			return v
		}
		e.logger.Warn("reasoning service failed, using rule fallback",
			slog.String("error", err.Error()))
	}
	v, _ := ruleAdvisor{}.Advise(ctx, tc)
	return v
}

// deriveDecision applies the escalation thresholds for verdicts that carry
// no explicit decision.
func (e *Engine) deriveDecision(s *session, class Class) Decision {
	switch class {
	case ClassHostile:
		return DecisionEscalate
	case ClassLegitimate:
		return DecisionAccept
	case ClassEvasive:
		if s.evasive >= 2 {
			return DecisionEscalate
		}
	}
	return DecisionMaintain
}

// escalate raises the session level one step, clamped at alert.
func (e *Engine) escalate(s *session, cause string) {
	prev := s.level
	s.level = s.level.Next()
	if s.level == prev {
		return
	}
	e.logger.Info("escalated",
		slog.String("from", prev.String()),
		slog.String("to", s.level.String()),
		slog.String("cause", cause))
	e.logEvent(eventlog.TypeEscalation, fmt.Sprintf("escalated to %s (%s)", s.level, cause))
	if e.onEscalate != nil {
		e.onEscalate(cause)
	}
}

// endTurn finalises a terminating turn: the reply is recorded, the result is
// filled from the session, and the session is cleared.
func (e *Engine) endTurn(s *session, reply string, base Result, outcome string) Result {
	base.Reply = reply
	base.ClaimedName = s.claimedName
	base.Voice = s.level.Voice()
	e.end(s, outcome)
	return base
}

// End terminates the active session with the given outcome label, clearing
// all session state. Idempotent: ending with no session is a no-op.
func (e *Engine) End(outcome string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.s != nil {
		e.end(e.s, outcome)
	}
}

func (e *Engine) end(s *session, outcome string) {
	msg := fmt.Sprintf("interrogation ended: %s", outcome)
	if s.claimedName != "" {
		msg = fmt.Sprintf("interrogation ended: %s (claimed to be %s)", outcome, s.claimedName)
	}
	e.logger.Info("interrogation ended",
		slog.String("outcome", outcome),
		slog.String("level", s.level.String()),
		slog.Int("responses", s.responseCount))
	eventType := eventlog.TypeIntruder
	if outcome == OutcomeAlarmed {
		eventType = eventlog.TypeAlarm
	}
	e.logEvent(eventType, msg)
	e.s = nil
}

func (e *Engine) logEvent(eventType, message string) {
	if e.events != nil {
		e.events.Append(eventType, message)
	}
}
