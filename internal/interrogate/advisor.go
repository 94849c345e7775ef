package interrogate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nholtz/roomwarden/pkg/provider/llm"
)

// Class is the behavioural classification of one visitor utterance.
type Class int

const (
	// ClassNone means the turn produced no classification; no counter is
	// incremented.
	ClassNone Class = iota
	ClassCooperative
	ClassEvasive
	ClassHostile

	// ClassLegitimate marks an utterance stating a plausible purpose
	// (roommate, invited, picking something up). Counts as cooperative and
	// qualifies for immediate acceptance at the inquiry level.
	ClassLegitimate
)

// Decision is the advised action for one turn.
type Decision int

const (
	// DecisionAuto lets the engine derive the action from the class and the
	// session counters. Rule-based verdicts use this.
	DecisionAuto Decision = iota
	DecisionMaintain
	DecisionAccept
	DecisionEscalate
)

// Verdict is one turn's advice: how the utterance classifies, what to do,
// and optionally what to say. A zero Verdict is valid and means "no
// classification, derive the action, use a scripted line".
type Verdict struct {
	Class    Class
	Decision Decision

	// Reply is the next line to speak. Empty means scripted fallback.
	Reply string
}

// TurnContext is the full session snapshot handed to an Advisor.
type TurnContext struct {
	Utterance     string
	Level         Level
	Elapsed       time.Duration
	ResponseCount int
	Cooperative   int
	Evasive       int
	Hostile       int
	ClaimedName   string
	EnrolledNames []string
	RecentEvents  []string
	History       []Turn
}

// Turn is one exchange in the session history.
type Turn struct {
	Speaker string // "GUARD" or "VISITOR"
	Text    string
}

// Advisor produces a Verdict for one visitor utterance. Implementations must
// not mutate session state; failures are recovered by the engine's
// rule-based fallback for that turn.
type Advisor interface {
	Advise(ctx context.Context, tc TurnContext) (Verdict, error)
}

// ── LLM advisor ──────────────────────────────────────────────────────────

// LLMAdvisor delegates classification and reply generation to a language
// model, parsing its answer with a strict tagged-line grammar.
type LLMAdvisor struct {
	provider    llm.Provider
	temperature float64
}

var _ Advisor = (*LLMAdvisor)(nil)

// NewLLMAdvisor returns an Advisor backed by the given completion provider.
func NewLLMAdvisor(provider llm.Provider) *LLMAdvisor {
	return &LLMAdvisor{provider: provider, temperature: 0.7}
}

// Advise builds the interrogation prompt, calls the model, and parses the
// tagged response. Any transport or parse anomaly degrades to defaults
// rather than failing the turn outright; only the completion call itself can
// return an error.
func (a *LLMAdvisor) Advise(ctx context.Context, tc TurnContext) (Verdict, error) {
	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(tc)},
		},
		Temperature: a.temperature,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("interrogate: reasoning call: %w", err)
	}
	return parseVerdict(resp.Content), nil
}

const systemPrompt = `You are an AI room guard questioning an unrecognized visitor. ` +
	`Stay firm but professional. Escalate when the visitor is hostile, evasive, ` +
	`or claims an identity that face recognition should have confirmed.`

// buildPrompt renders the session snapshot into the structured prompt the
// tagged-line grammar is anchored to.
func buildPrompt(tc TurnContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CURRENT ESCALATION LEVEL: %d (%s)\n", int(tc.Level), tc.Level)
	fmt.Fprintf(&b, "ELAPSED TIME: %d seconds\n", int(tc.Elapsed.Seconds()))
	fmt.Fprintf(&b, "COUNTERS: responses=%d cooperative=%d evasive=%d hostile=%d\n",
		tc.ResponseCount, tc.Cooperative, tc.Evasive, tc.Hostile)
	if tc.ClaimedName != "" {
		fmt.Fprintf(&b, "VISITOR CLAIMS TO BE: %s\n", tc.ClaimedName)
	}

	if len(tc.EnrolledNames) > 0 {
		fmt.Fprintf(&b, "\nENROLLED TRUSTED PEOPLE: %s\n", strings.Join(tc.EnrolledNames, ", "))
		b.WriteString("The visitor's face matched none of them. A claim to be one of them is highly suspicious.\n")
	}

	if len(tc.RecentEvents) > 0 {
		b.WriteString("\nRECENT EVENTS:\n")
		for _, ev := range tc.RecentEvents {
			fmt.Fprintf(&b, "- %s\n", ev)
		}
	}

	if len(tc.History) > 0 {
		b.WriteString("\nCONVERSATION SO FAR:\n")
		for _, turn := range tc.History {
			fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Text)
		}
	}

	fmt.Fprintf(&b, "\nVISITOR'S LATEST RESPONSE: %q\n", tc.Utterance)

	b.WriteString(`
RULES:
- Acceptance is only possible at level 1. Once at level 2 or higher, never accept.
- Escalate immediately on hostility or an identity claim that should have been recognized.
- Escalate when the visitor stays evasive after repeated exchanges.

Classify the response, decide the action, and give your next line (1-2 sentences).
Format EXACTLY as:
RESPONSE_TYPE: [COOPERATIVE/EVASIVE/HOSTILE]
ESCALATION_DECISION: [ACCEPT/MAINTAIN/ESCALATE]
NEXT_RESPONSE: [your response]`)

	return b.String()
}

// parseVerdict parses the model output line by line. Missing or malformed
// tags fall back to defaults: no classification, a derived decision, and a
// scripted reply. Parse failure never errors.
func parseVerdict(text string) Verdict {
	v := Verdict{Decision: DecisionMaintain}

	for _, line := range strings.Split(text, "\n") {
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, "RESPONSE_TYPE:"):
			switch tagValue(line, upper, "RESPONSE_TYPE:") {
			case "COOPERATIVE":
				v.Class = ClassCooperative
			case "EVASIVE":
				v.Class = ClassEvasive
			case "HOSTILE":
				v.Class = ClassHostile
			}
		case strings.Contains(upper, "ESCALATION_DECISION:"):
			switch tagValue(line, upper, "ESCALATION_DECISION:") {
			case "ACCEPT":
				v.Decision = DecisionAccept
			case "ESCALATE":
				v.Decision = DecisionEscalate
			case "MAINTAIN":
				v.Decision = DecisionMaintain
			}
		case strings.Contains(upper, "NEXT_RESPONSE:"):
			idx := strings.Index(upper, "NEXT_RESPONSE:")
			reply := strings.TrimSpace(line[idx+len("NEXT_RESPONSE:"):])
			v.Reply = strings.Trim(reply, `"'`)
		}
	}
	return v
}

// tagValue extracts and upper-cases the value after a tag within a line.
func tagValue(line, upper, tag string) string {
	idx := strings.Index(upper, tag)
	return strings.ToUpper(strings.TrimSpace(line[idx+len(tag):]))
}
