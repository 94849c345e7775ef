// Package interrogate implements the escalation engine that questions
// unrecognized visitors. A session tracks one encounter from first detection
// to its terminal outcome (accepted, rejected, or alarmed); suspicion only
// ever rises within a session.
package interrogate

import (
	"math/rand/v2"

	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// Level is the escalation level of an ongoing interrogation. Strictly
// forward-only within a session; there is no de-escalation.
type Level int

const (
	LevelInquiry   Level = 1
	LevelSuspicion Level = 2
	LevelWarning   Level = 3
	LevelAlert     Level = 4
)

// String returns the level's display name.
func (l Level) String() string {
	switch l {
	case LevelInquiry:
		return "inquiry"
	case LevelSuspicion:
		return "suspicion"
	case LevelWarning:
		return "warning"
	case LevelAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// Next returns the following level, clamped at Alert.
func (l Level) Next() Level {
	if l >= LevelAlert {
		return LevelAlert
	}
	return l + 1
}

// Voice returns the synthesis voice appropriate for this level. Warning and
// Alert request the slower, firmer alert delivery.
func (l Level) Voice() tts.VoiceMode {
	if l >= LevelWarning {
		return tts.ModeAlert
	}
	return tts.ModeNormal
}

var greetings = []string{
	"Hello! I don't recognize you. Who are you and what brings you here?",
	"Excuse me, I haven't seen you before. May I know your name and why you're here?",
	"Hi there. I don't believe we've met. Can you tell me who you are?",
}

var scriptedLines = map[Level][]string{
	LevelInquiry: {
		"Can you please tell me your name and why you're in this room?",
		"I need to know who you are. This is a private room.",
	},
	LevelSuspicion: {
		"I'm not satisfied with your answer. Who exactly are you here for?",
		"This room is monitored. Tell me exactly what you're doing here.",
	},
	LevelWarning: {
		"This is your final warning. Leave this room immediately.",
		"Leave right now. This is private property and you're trespassing.",
	},
	LevelAlert: {
		"Security alert! I'm calling the authorities right now!",
		"ALARM! Security is being notified! Leave immediately!",
	},
}

// greeting returns a randomly chosen opening line for a new session.
func greeting() string {
	return greetings[rand.IntN(len(greetings))]
}

// scriptedLine returns a pre-scripted line for the level, used whenever the
// reasoning service supplies no reply.
func scriptedLine(l Level) string {
	lines, ok := scriptedLines[l]
	if !ok {
		return "Please identify yourself."
	}
	return lines[rand.IntN(len(lines))]
}
