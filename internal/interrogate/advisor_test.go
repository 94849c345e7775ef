package interrogate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nholtz/roomwarden/pkg/provider/llm"
	llmmock "github.com/nholtz/roomwarden/pkg/provider/llm/mock"
)

func TestParseVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want Verdict
	}{
		{
			name: "well formed",
			text: "RESPONSE_TYPE: COOPERATIVE\nESCALATION_DECISION: MAINTAIN\nNEXT_RESPONSE: Who invited you?",
			want: Verdict{Class: ClassCooperative, Decision: DecisionMaintain, Reply: "Who invited you?"},
		},
		{
			name: "escalate hostile",
			text: "RESPONSE_TYPE: HOSTILE\nESCALATION_DECISION: ESCALATE\nNEXT_RESPONSE: \"Leave now.\"",
			want: Verdict{Class: ClassHostile, Decision: DecisionEscalate, Reply: "Leave now."},
		},
		{
			name: "lowercase tags and padding",
			text: "  response_type: evasive\n  escalation_decision: escalate  \n  next_response: Answer me.",
			want: Verdict{Class: ClassEvasive, Decision: DecisionEscalate, Reply: "Answer me."},
		},
		{
			name: "missing everything falls back to defaults",
			text: "I think this person seems fine.",
			want: Verdict{Class: ClassNone, Decision: DecisionMaintain},
		},
		{
			name: "malformed type keeps default class",
			text: "RESPONSE_TYPE: CONFUSED\nESCALATION_DECISION: ACCEPT\nNEXT_RESPONSE: Come in.",
			want: Verdict{Class: ClassNone, Decision: DecisionAccept, Reply: "Come in."},
		},
		{
			name: "malformed decision defaults to maintain",
			text: "RESPONSE_TYPE: COOPERATIVE\nESCALATION_DECISION: PANIC\nNEXT_RESPONSE: Alright.",
			want: Verdict{Class: ClassCooperative, Decision: DecisionMaintain, Reply: "Alright."},
		},
		{
			name: "empty input",
			text: "",
			want: Verdict{Decision: DecisionMaintain},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseVerdict(tt.text); got != tt.want {
				t.Errorf("parseVerdict(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	tc := TurnContext{
		Utterance:     "I'm just here for a book",
		Level:         LevelSuspicion,
		Elapsed:       45 * time.Second,
		ResponseCount: 3,
		Cooperative:   1,
		Evasive:       2,
		ClaimedName:   "Dave",
		EnrolledNames: []string{"Alice", "Bob"},
		RecentEvents:  []string{"[12:00:01] face: unknown face detected"},
		History: []Turn{
			{Speaker: "GUARD", Text: "Who are you?"},
			{Speaker: "VISITOR", Text: "I'm Dave"},
		},
	}
	prompt := buildPrompt(tc)

	for _, want := range []string{
		"CURRENT ESCALATION LEVEL: 2 (suspicion)",
		"ELAPSED TIME: 45 seconds",
		"cooperative=1 evasive=2",
		"VISITOR CLAIMS TO BE: Dave",
		"Alice, Bob",
		"unknown face detected",
		"VISITOR: I'm Dave",
		`"I'm just here for a book"`,
		"RESPONSE_TYPE:",
		"ESCALATION_DECISION:",
		"NEXT_RESPONSE:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLLMAdvisorAdvise(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: &llm.CompletionResponse{
			Content: "RESPONSE_TYPE: EVASIVE\nESCALATION_DECISION: MAINTAIN\nNEXT_RESPONSE: Be specific.",
		},
	}
	a := NewLLMAdvisor(provider)

	v, err := a.Advise(context.Background(), TurnContext{Utterance: "stuff", Level: LevelInquiry})
	if err != nil {
		t.Fatalf("Advise: %v", err)
	}
	want := Verdict{Class: ClassEvasive, Decision: DecisionMaintain, Reply: "Be specific."}
	if v != want {
		t.Errorf("verdict = %+v, want %+v", v, want)
	}
	if provider.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.CallCount())
	}
}
