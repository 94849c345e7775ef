package interrogate

import (
	"context"
	"strings"
)

// Keyword sets for the rule-based classifier. Matched as substrings of the
// lower-cased utterance.
var (
	hostileKeywords    = []string{"none of your business", "shut up", "fuck", "get lost"}
	evasiveKeywords    = []string{"just looking", "nothing", "none", "doesn't matter"}
	legitimateKeywords = []string{"roommate", "friend", "invited", "waiting for", "pick up", "drop off"}
	cooperativeWords   = []string{"please", "sorry", "thank you"}
)

// substantiveLength is the utterance length above which an unclassified
// answer still counts as cooperative engagement.
const substantiveLength = 15

// classify runs the keyword fallback. It guarantees the engine degrades
// gracefully without the reasoning service: hostile keywords win, then a
// stated legitimate purpose, then evasion, then cooperation markers; any
// other substantive answer counts as cooperative.
func classify(text string) Class {
	lower := strings.ToLower(text)

	if containsAny(lower, hostileKeywords) {
		return ClassHostile
	}
	if containsAny(lower, legitimateKeywords) {
		return ClassLegitimate
	}
	if containsAny(lower, evasiveKeywords) {
		return ClassEvasive
	}
	if containsAny(lower, cooperativeWords) {
		return ClassCooperative
	}
	if len(strings.TrimSpace(text)) > substantiveLength {
		return ClassCooperative
	}
	return ClassNone
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// ruleAdvisor is the always-available fallback Advisor. Decision is left to
// the engine (DecisionAuto) so the same escalation thresholds apply whether
// or not a reasoning service is configured.
type ruleAdvisor struct{}

var _ Advisor = ruleAdvisor{}

func (ruleAdvisor) Advise(_ context.Context, tc TurnContext) (Verdict, error) {
	return Verdict{Class: classify(tc.Utterance), Decision: DecisionAuto}, nil
}
