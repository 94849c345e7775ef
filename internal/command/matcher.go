// Package command implements fuzzy matching of recognised speech against the
// guard's spoken command vocabulary ("guard mode on", "guard mode off",
// "enroll").
//
// Consumer-grade transcription mangles short command words freely ("guard"
// arrives as "card", "god", or "yard"), so matching runs in three stages per
// target token:
//
//  1. Exact membership in the utterance's token set.
//  2. A fixed table of known misrecognition variants, checked as whole
//     tokens, as substrings, and (for multi-word variants) against the
//     joined token stream.
//  3. A normalised Levenshtein similarity ratio against every input token;
//     the best ratio must exceed the configured threshold.
//
// A Matcher is a pure function of its configuration: it holds no mutable
// state and is safe for concurrent use. Single-token matches never trigger a
// transition on their own — the mode machine requires its own token subset
// rules on top of the raw match set.
package command

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultThreshold is the default minimum similarity ratio for the
// edit-distance stage. Lower values trade precision for recall against noisy
// transcription.
const DefaultThreshold = 0.65

// Intent identifies a recognised mode command. Intents are transient values,
// produced per utterance and never persisted.
type Intent string

const (
	IntentGuardOn  Intent = "guard_on"
	IntentGuardOff Intent = "guard_off"
	IntentEnroll   Intent = "enroll"
)

// Target tokens making up the command vocabulary.
const (
	TokenGuard  = "guard"
	TokenMode   = "mode"
	TokenOn     = "on"
	TokenOff    = "off"
	TokenEnroll = "enroll"
)

// Hit describes how one target token matched the utterance.
type Hit struct {
	// Position is the index of the input token that produced the match.
	Position int

	// Score is the similarity ratio of the match. Exact and variant matches
	// report 1.0.
	Score float64
}

// MatchSet maps matched target tokens to their best Hit.
type MatchSet map[string]Hit

// Has reports whether every given target token is present in the set.
func (s MatchSet) Has(targets ...string) bool {
	for _, t := range targets {
		if _, ok := s[t]; !ok {
			return false
		}
	}
	return true
}

// Option is a functional option for configuring a Matcher.
type Option func(*Matcher)

// WithThreshold sets the minimum similarity ratio for the edit-distance
// stage. Default: 0.65.
func WithThreshold(threshold float64) Option {
	return func(m *Matcher) { m.threshold = threshold }
}

// WithVariants replaces the built-in misrecognition variant table. Keys are
// target tokens, values are known transcription mistakes for that token.
func WithVariants(variants map[string][]string) Option {
	return func(m *Matcher) { m.variants = variants }
}

// Matcher fuzzy-matches utterances against target token sets.
// Read-only after construction; safe for concurrent use.
type Matcher struct {
	threshold float64
	variants  map[string][]string
}

// New returns a Matcher configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		threshold: DefaultThreshold,
		variants:  defaultVariants(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match lower-cases and tokenises text, then tests each target token through
// the exact / variant / edit-similarity stages. The returned MatchSet holds
// one Hit per matched target.
func (m *Matcher) Match(text string, targets []string) MatchSet {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return MatchSet{}
	}

	joined := strings.Join(tokens, " ")
	set := make(MatchSet, len(targets))
	for _, target := range targets {
		if hit, ok := m.matchTarget(target, tokens, joined); ok {
			set[target] = hit
		}
	}
	return set
}

// matchTarget runs the three matching stages for a single target token.
func (m *Matcher) matchTarget(target string, tokens []string, joined string) (Hit, bool) {
	// Stage 1: exact token membership.
	for i, tok := range tokens {
		if tok == target {
			return Hit{Position: i, Score: 1.0}, true
		}
	}

	// Stage 2: known misrecognition variants, as whole tokens or substrings.
	// Multi-word variants ("in role") span token boundaries, so they are
	// checked against the joined token stream instead.
	for _, variant := range m.variants[target] {
		if strings.Contains(variant, " ") {
			if idx := strings.Index(joined, variant); idx >= 0 {
				return Hit{Position: strings.Count(joined[:idx], " "), Score: 1.0}, true
			}
			continue
		}
		for i, tok := range tokens {
			if tok == variant || strings.Contains(tok, variant) {
				return Hit{Position: i, Score: 1.0}, true
			}
		}
	}

	// Stage 3: best normalised edit-similarity ratio over all input tokens.
	best := Hit{Position: -1}
	for i, tok := range tokens {
		if score := similarity(target, tok); score > best.Score {
			best = Hit{Position: i, Score: score}
		}
	}
	if best.Position >= 0 && best.Score >= m.threshold {
		return best, true
	}
	return Hit{}, false
}

// similarity returns a Levenshtein edit-distance ratio normalised to
// [0.0, 1.0], where 1.0 means identical strings.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := max(len(a), len(b))
	dist := matchr.Levenshtein(a, b)
	if dist >= longest {
		return 0
	}
	return 1.0 - float64(dist)/float64(longest)
}

// tokenize lower-cases text and splits it into whitespace-separated tokens,
// stripping surrounding punctuation.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
