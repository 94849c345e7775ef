package app

import (
	"context"
	"log/slog"

	"github.com/nholtz/roomwarden/internal/arbiter"
	"github.com/nholtz/roomwarden/internal/command"
	"github.com/nholtz/roomwarden/internal/eventlog"
	"github.com/nholtz/roomwarden/internal/guard"
	"github.com/nholtz/roomwarden/internal/interrogate"
	"github.com/nholtz/roomwarden/pkg/provider/tts"
)

// The App is the arbiter's hook implementation: everything the policy core
// needs from the outside world (arming checks, enrollment, chat, snapshot
// effects) funnels through these four methods. All of them run under the
// arbiter's mutex.
var _ arbiter.Hooks = (*App)(nil)

// OnCommand performs the side effect of a recognised transition intent and
// reports whether it succeeded.
func (a *App) OnCommand(ctx context.Context, intent command.Intent) guard.Confirmation {
	switch intent {
	case command.IntentGuardOn:
		names, err := a.identities.Names(ctx)
		if err != nil {
			slog.Error("reading enrolled names failed", "err", err)
			return guard.ConfirmFailed
		}
		if len(names) == 0 {
			// Arming with nobody enrolled would interrogate everyone,
			// including the owner.
			a.events.Append(eventlog.TypeCommand, "guard-on refused: no identities enrolled")
			slog.Warn("guard-on refused: no identities enrolled")
			return guard.ConfirmFailed
		}
		a.smoother.Reset()
		return guard.ConfirmOK

	case command.IntentGuardOff:
		return guard.ConfirmOK

	case command.IntentEnroll:
		if a.flow == nil {
			slog.Warn("enrollment unavailable: no faces provider configured")
			return guard.ConfirmFailed
		}
		prompt := a.flow.Begin()
		a.speak(ctx, prompt, tts.ModeFriendly)
		return guard.ConfirmOK
	}
	return guard.ConfirmIndeterminate
}

// OnEnrollmentText feeds one utterance to the enrollment flow.
func (a *App) OnEnrollmentText(ctx context.Context, text string) (string, bool) {
	if a.flow == nil {
		return "Enrollment is not available right now.", true
	}
	return a.flow.HandleText(ctx, text)
}

// OnIntruderText reacts to a processed intruder turn with effects outside
// the policy core: snapshot relabelling when the visitor claimed a name, and
// an alarm frame when the session escalated to the alert level.
func (a *App) OnIntruderText(ctx context.Context, res interrogate.Result) {
	if a.snapshots == nil {
		return
	}

	if res.ClaimedName != "" {
		if err := a.snapshots.RelabelLast(res.ClaimedName); err != nil {
			slog.Warn("snapshot relabel failed", "err", err)
		}
	}

	if res.Alarm {
		a.frameMu.RLock()
		frame := a.lastFrame
		a.frameMu.RUnlock()
		if len(frame) > 0 {
			if _, err := a.snapshots.Save(frame, "alarm"); err != nil {
				slog.Warn("alarm snapshot failed", "err", err)
			}
		}
	}
}

// OnTrustedText produces the casual-chat reply for a trusted utterance.
func (a *App) OnTrustedText(ctx context.Context, text string) string {
	return a.chat.Respond(ctx, a.currentTrustedName(), text)
}

// speak synthesises text directly, outside the arbiter's own reply path.
func (a *App) speak(ctx context.Context, text string, mode tts.VoiceMode) {
	if text == "" {
		return
	}
	sp := a.speaker()
	if sp == nil {
		slog.Info("reply (no speaker configured)", "text", text, "voice", mode)
		return
	}
	if err := sp.Speak(ctx, text, mode); err != nil {
		slog.Error("speech synthesis failed", "err", err, "text", text)
	}
}
