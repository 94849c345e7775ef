package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/nholtz/roomwarden/pkg/provider/tts"
	ttsmock "github.com/nholtz/roomwarden/pkg/provider/tts/mock"
)

func TestSpeakerFallbackPrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Speaker{}
	secondary := &ttsmock.Speaker{}

	fb := NewSpeakerFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if err := fb.Speak(context.Background(), "leave now", tts.ModeAlert); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := primary.Last(); got.Text != "leave now" || got.Mode != tts.ModeAlert {
		t.Errorf("primary spoke %+v", got)
	}
	if len(secondary.Spoken) != 0 {
		t.Errorf("secondary spoke %v, want nothing", secondary.Texts())
	}
}

func TestSpeakerFallbackFailover(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Speaker{Err: errors.New("playback device busy")}
	secondary := &ttsmock.Speaker{}

	fb := NewSpeakerFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if err := fb.Speak(context.Background(), "hello", tts.ModeFriendly); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := secondary.Last(); got.Text != "hello" || got.Mode != tts.ModeFriendly {
		t.Errorf("secondary spoke %+v", got)
	}
}

func TestSpeakerFallbackAllFailed(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Speaker{Err: errors.New("down")}
	fb := NewSpeakerFallback(primary, "only", FallbackConfig{})

	err := fb.Speak(context.Background(), "hello", tts.ModeNormal)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
