package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/nholtz/roomwarden/pkg/provider/stt"
	sttmock "github.com/nholtz/roomwarden/pkg/provider/stt/mock"
)

func TestSTTFallbackPrimarySuccess(t *testing.T) {
	t.Parallel()

	session := sttmock.NewSession()
	primary := &sttmock.Provider{Sessions: []*sttmock.Session{session}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{})

	handle, err := fb.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if handle != stt.SessionHandle(session) {
		t.Error("handle is not the primary's session")
	}
	if len(primary.Configs) != 1 || primary.Configs[0].SampleRate != 16000 {
		t.Errorf("primary configs = %+v", primary.Configs)
	}
}

func TestSTTFallbackFailover(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("model not loaded")}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if _, err := fb.StartStream(context.Background(), stt.StreamConfig{}); err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if len(secondary.Configs) != 1 {
		t.Errorf("secondary calls = %d, want 1", len(secondary.Configs))
	}
}

func TestSTTFallbackAllFailed(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errors.New("down")}
	fb := NewSTTFallback(primary, "only", FallbackConfig{})

	if _, err := fb.StartStream(context.Background(), stt.StreamConfig{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
