package interrogate

import (
	"regexp"
	"strings"
)

// Self-introduction patterns, matched against lower-cased text.
var (
	imPattern     = regexp.MustCompile(`\b(?:i'm|im|i am)\s+([a-z]+)`)
	myNamePattern = regexp.MustCompile(`\bmy name is\s+([a-z]+)`)
	thisIsPattern = regexp.MustCompile(`\bthis is\s+([a-z]+)`)
)

// Filler words that follow "I'm" without being names ("I'm just looking").
var nameStoplist = map[string]bool{
	"Here": true,
	"Just": true,
	"The":  true,
	"From": true,
	"With": true,
}

// extractName pulls a claimed name out of a visitor utterance, or returns ""
// if none of the self-introduction patterns produce a plausible name.
func extractName(text string) string {
	lower := strings.ToLower(text)

	if m := imPattern.FindStringSubmatch(lower); m != nil {
		name := title(m[1])
		if len(name) > 2 && !nameStoplist[name] {
			return name
		}
	}
	if m := myNamePattern.FindStringSubmatch(lower); m != nil {
		return title(m[1])
	}
	if m := thisIsPattern.FindStringSubmatch(lower); m != nil {
		name := title(m[1])
		if len(name) > 2 {
			return name
		}
	}
	return ""
}

// title upper-cases the first letter of an ASCII lower-case word.
func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
