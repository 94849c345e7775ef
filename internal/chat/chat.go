// Package chat implements the trusted-conversation responder: casual
// question answering for a recognised person, grounded in the guard's recent
// event log ("did anyone come by while I was out?").
//
// A language model produces the reply when available; a small keyword
// fallback keeps the conversation functional without one.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nholtz/roomwarden/internal/eventlog"
	"github.com/nholtz/roomwarden/pkg/provider/llm"
)

const recentEventCount = 5

// Option is a functional option for configuring a Responder.
type Option func(*Responder)

// WithProvider sets the language model. Without one every reply comes from
// the keyword fallback.
func WithProvider(p llm.Provider) Option {
	return func(r *Responder) { r.provider = p }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) { r.logger = logger }
}

// Responder answers casual questions from a trusted person.
// Safe for concurrent use.
type Responder struct {
	provider llm.Provider
	events   *eventlog.Log
	logger   *slog.Logger
}

// New returns a Responder reading context from events.
func New(events *eventlog.Log, opts ...Option) *Responder {
	r := &Responder{
		events: events,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Respond produces a reply to text spoken by person. Model failures degrade
// to the keyword fallback for that turn.
func (r *Responder) Respond(ctx context.Context, person, text string) string {
	if r.provider != nil {
		reply, err := r.complete(ctx, person, text)
		if err == nil && reply != "" {
			return reply
		}
		if err != nil {
			r.logger.Warn("chat model failed, using fallback", slog.String("error", err.Error()))
		}
	}
	return r.fallback(person, text)
}

func (r *Responder) complete(ctx context.Context, person, text string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly AI room guard chatting with %s, a recognized trusted person.\n", person)
	if entries := r.recent(); len(entries) > 0 {
		b.WriteString("Recent events you observed:\n")
		for _, ev := range entries {
			fmt.Fprintf(&b, "- %s\n", ev)
		}
	}
	fmt.Fprintf(&b, "\n%s says: %q\n\nReply in one or two friendly sentences. ", person, text)
	b.WriteString("Answer questions about recent events from the list above; if nothing relevant happened, say so.")

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: b.String()}},
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("chat: completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// fallback answers with keyword rules only.
func (r *Responder) fallback(person, text string) string {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "anyone", "anybody", "someone", "visitor", "come by", "happened"):
		entries := r.recent()
		if len(entries) == 0 {
			return "All quiet. Nothing happened while you were away."
		}
		return fmt.Sprintf("A few things happened. Most recently: %s.", entries[len(entries)-1])
	case containsAny(lower, "hello", "hi ", "hey"):
		return fmt.Sprintf("Hello %s! Good to see you again.", person)
	case containsAny(lower, "how are you"):
		return "All systems normal, and happy to see a familiar face."
	default:
		return "Good to have you back. Say goodbye when you want me to resume guarding."
	}
}

func (r *Responder) recent() []string {
	if r.events == nil {
		return nil
	}
	entries := r.events.Recent(recentEventCount)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Goodbye phrases ending a trusted conversation.
var goodbyePhrases = []string{"bye", "goodbye", "see you", "later", "thank you", "thanks", "done"}

// IsGoodbye reports whether text is a conversation-ending phrase.
func IsGoodbye(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	return containsAny(lower, goodbyePhrases...)
}
