package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/nholtz/roomwarden/internal/config"
	"github.com/nholtz/roomwarden/internal/guard"
	"github.com/nholtz/roomwarden/internal/health"
	"github.com/nholtz/roomwarden/internal/observe"
	"github.com/nholtz/roomwarden/internal/vision"
	"github.com/nholtz/roomwarden/pkg/provider/faces"
	"github.com/nholtz/roomwarden/pkg/provider/stt"
)

// httpShutdownTimeout bounds the graceful drain of the metrics listener.
const httpShutdownTimeout = 5 * time.Second

// Run starts all workers and blocks until ctx is cancelled or a worker fails:
// the transcription worker (microphone → STT → arbiter), the vision worker
// (camera → face match → smoother → arbiter), the arbiter's silence monitor,
// and the metrics/health listener. A missing device or provider degrades the
// matching worker to inactive rather than failing startup.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.arb.Run(ctx) })

	if a.mic != nil && a.providers.STT != nil {
		g.Go(func() error { return a.runTranscription(ctx) })
	} else {
		slog.Warn("transcription inactive", "microphone", a.mic != nil, "stt", a.providers.STT != nil)
	}

	if a.camera != nil && a.providers.Faces != nil {
		g.Go(func() error { return a.runVision(ctx) })
	} else {
		slog.Warn("vision inactive", "camera", a.camera != nil, "faces", a.providers.Faces != nil)
	}

	if a.cfg.Server.ListenAddr != "" {
		g.Go(func() error { return a.serveHTTP(ctx) })
	}

	slog.Info("roomwarden running", "mode", a.machine.Mode())
	return g.Wait()
}

// ApplyConfig reacts to a configuration change detected by the file watcher.
// Listening tuning is picked up at the next capture rotation; other guard
// tuning requires a restart. Log level changes are applied by main.
func (a *App) ApplyConfig(d config.ConfigDiff, next *config.Config) {
	if !d.Any() {
		return
	}
	if d.ListeningChanged {
		a.listenMu.Lock()
		a.listening = next.Guard.Listening
		a.listenMu.Unlock()
		slog.Info("listening tuning updated; applies at next capture rotation")
	}
	if d.GuardChanged {
		slog.Warn("guard tuning changed on disk; restart to apply")
	}
}

// ─── Transcription worker ────────────────────────────────────────────────────

// runTranscription drives the microphone → STT → arbiter pipeline. The STT
// session is rotated whenever the desired segmentation tuning changes, which
// is how guard mode "listens harder" than relaxed listening: closing the old
// session flushes pending speech, the replacement opens with the new tuning.
func (a *App) runTranscription(ctx context.Context) error {
	cur := a.streamConfig()
	sess, err := a.providers.STT.StartStream(ctx, cur)
	if err != nil {
		return fmt.Errorf("app: start transcription: %w", err)
	}
	defer func() { _ = sess.Close() }()

	frames := a.mic.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil

		case t, ok := <-sess.Finals():
			if !ok {
				// Rotation replaces the session before the next select, so a
				// closed channel here means the provider side is gone.
				slog.Warn("stt session closed")
				return nil
			}
			if t.Latency > 0 {
				a.metrics.STTDuration.Record(ctx, t.Latency.Seconds())
			}
			a.arb.HandleUtterance(ctx, t.Text)

		case chunk, ok := <-frames:
			if !ok {
				slog.Warn("microphone stream closed")
				return nil
			}
			if want := a.streamConfig(); want != cur {
				next, err := a.rotateListener(ctx, sess, want)
				if err != nil {
					return fmt.Errorf("app: rotate stt session: %w", err)
				}
				sess, cur = next, want
			}
			if err := sess.SendAudio(chunk); err != nil {
				slog.Warn("stt send failed", "err", err)
			}
		}
	}
}

// rotateListener closes the current STT session and opens a replacement with
// the new tuning.
func (a *App) rotateListener(ctx context.Context, old stt.SessionHandle, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := old.Close(); err != nil {
		slog.Warn("stt session close failed", "err", err)
	}
	slog.Info("retuning capture",
		"energy_threshold", cfg.EnergyThreshold,
		"pause_ms", cfg.PauseMs)
	return a.providers.STT.StartStream(ctx, cfg)
}

// streamConfig derives the desired STT tuning from the current mode: guard
// mode uses the hard-listening profile, everything else the relaxed one.
func (a *App) streamConfig() stt.StreamConfig {
	a.listenMu.RLock()
	listening := a.listening
	a.listenMu.RUnlock()

	tuning := listening.Relaxed
	if a.machine.Mode() == guard.ModeGuard {
		tuning = listening.Guard
	}
	return stt.StreamConfig{
		SampleRate:      16000,
		Channels:        1,
		Language:        "en",
		EnergyThreshold: tuning.EnergyThreshold,
		PauseMs:         tuning.PauseMs,
	}
}

// ─── Vision worker ───────────────────────────────────────────────────────────

// runVision drives the camera → face match → smoother → arbiter pipeline.
// Frames are analysed only while the guard is watching; every frame is kept
// as the enrollment/alarm frame source regardless of mode.
func (a *App) runVision(ctx context.Context) error {
	frames := a.camera.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-frames:
			if !ok {
				slog.Warn("camera stream closed")
				return nil
			}
			a.storeFrame(frame.JPEG)

			if a.machine.Mode() != guard.ModeGuard {
				continue
			}

			start := time.Now()
			matches, err := a.providers.Faces.Detect(ctx, frame.JPEG)
			a.metrics.FrameDuration.Record(ctx, time.Since(start).Seconds())
			if err != nil {
				slog.Warn("face detection failed", "err", err)
				continue
			}
			if len(matches) == 0 {
				continue
			}

			name, confirmed := a.smoother.Observe(vision.BestName(matches))
			if !confirmed {
				continue
			}
			if name == faces.Unknown {
				if a.snapshots != nil {
					if _, err := a.snapshots.Save(frame.JPEG, "unknown"); err != nil {
						slog.Warn("snapshot save failed", "err", err)
					}
				}
				a.arb.HandleUnknownFace(ctx)
			} else {
				a.setTrustedName(name)
				a.arb.HandleKnownFace(ctx, name)
			}
		}
	}
}

// ─── Metrics/health listener ─────────────────────────────────────────────────

// serveHTTP runs the metrics and health endpoints until ctx is cancelled.
func (a *App) serveHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	checkers := []health.Checker{{
		Name: "speech",
		Check: func(context.Context) error {
			if a.providers.STT == nil && a.providers.TTS == nil {
				return errors.New("speech providers unavailable")
			}
			return nil
		},
	}}
	if a.pg != nil {
		checkers = append(checkers, health.Ping("identity-store", a.pg))
	}
	health.New(checkers...).Register(mux)

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("metrics listener started", "addr", a.cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return fmt.Errorf("app: http listener: %w", err)
	}
}
