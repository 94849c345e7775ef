// Command roomwarden is the main entry point for the roomwarden voice guard.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/nholtz/roomwarden/internal/app"
	"github.com/nholtz/roomwarden/internal/config"
	"github.com/nholtz/roomwarden/internal/observe"
	"github.com/nholtz/roomwarden/internal/resilience"
	"github.com/nholtz/roomwarden/pkg/provider/faces"
	"github.com/nholtz/roomwarden/pkg/provider/faces/facesrv"
	"github.com/nholtz/roomwarden/pkg/provider/llm"
	"github.com/nholtz/roomwarden/pkg/provider/llm/anyllm"
	"github.com/nholtz/roomwarden/pkg/provider/stt"
	"github.com/nholtz/roomwarden/pkg/provider/stt/whisper"
	"github.com/nholtz/roomwarden/pkg/provider/tts"
	"github.com/nholtz/roomwarden/pkg/provider/tts/coqui"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "roomwarden: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "roomwarden: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("roomwarden starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "roomwarden",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		application.ApplyConfig(d, next)
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The API-key providers all share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// The local inference servers use BaseURL for the address, not an API key.
	for _, providerName := range []string{"ollama", "llamacpp", "llamafile"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.BaseURL
		if modelPath == "" {
			modelPath = entry.Model
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, whisper.WithSampleRate(rate))
		}
		return whisper.New(modelPath, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Speaker, error) {
		player := optString(entry.Options, "player")
		if player == "" {
			player = "aplay"
		}
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if id := optString(entry.Options, "speaker_id"); id != "" {
			opts = append(opts, coqui.WithSpeakerID(id))
		}
		return coqui.New(entry.BaseURL, wavPlayer(player), opts...)
	})

	// ── Faces ─────────────────────────────────────────────────────────────────

	reg.RegisterFaces("facesrv", func(entry config.ProviderEntry) (faces.Provider, error) {
		return facesrv.New(entry.BaseURL)
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. The LLM, STT, and TTS slots wrap the primary and any configured
// fallbacks in circuit-breaker failover groups; breaker state changes feed
// the metrics.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	fallbackCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				observe.DefaultMetrics().RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		primary, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		group := resilience.NewLLMFallback(primary, name, fallbackCfg)
		for _, entry := range cfg.Providers.LLMFallbacks {
			fb, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, fb)
			slog.Info("llm fallback registered", "name", entry.Name)
		}
		ps.LLM = group
		slog.Info("provider created", "kind", "llm", "name", name,
			"fallbacks", len(cfg.Providers.LLMFallbacks))
	}

	if name := cfg.Providers.STT.Name; name != "" {
		primary, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		group := resilience.NewSTTFallback(primary, name, fallbackCfg)
		for _, entry := range cfg.Providers.STTFallbacks {
			fb, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, fb)
			slog.Info("stt fallback registered", "name", entry.Name)
		}
		ps.STT = group
		slog.Info("provider created", "kind", "stt", "name", name,
			"fallbacks", len(cfg.Providers.STTFallbacks))
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		primary, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		group := resilience.NewSpeakerFallback(primary, name, fallbackCfg)
		for _, entry := range cfg.Providers.TTSFallbacks {
			fb, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, fb)
			slog.Info("tts fallback registered", "name", entry.Name)
		}
		ps.TTS = group
		slog.Info("provider created", "kind", "tts", "name", name,
			"fallbacks", len(cfg.Providers.TTSFallbacks))
	}

	if name := cfg.Providers.Faces.Name; name != "" {
		p, err := reg.CreateFaces(cfg.Providers.Faces)
		if err != nil {
			return nil, fmt.Errorf("create faces provider %q: %w", name, err)
		}
		ps.Faces = p
		slog.Info("provider created", "kind", "faces", "name", name)
	}

	return ps, nil
}

// wavPlayer returns a playback sink that pipes synthesised WAV audio into a
// local player command (aplay, paplay, ...) reading from stdin.
func wavPlayer(player string) coqui.PlayFunc {
	return func(ctx context.Context, wav []byte) error {
		cmd := exec.CommandContext(ctx, player)
		cmd.Stdin = bytes.NewReader(wav)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("play wav via %s: %w: %s", player, err, out)
		}
		return nil
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       roomwarden — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Faces", cfg.Providers.Faces.Name, "")
	if cfg.Identity.PostgresDSN != "" {
		fmt.Printf("║  Identity store  : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Identity store  : %-19s ║\n", "in-memory")
	}
	if cfg.Events.Path != "" {
		fmt.Printf("║  Event log       : %-19s ║\n", trimCell(cfg.Events.Path))
	} else {
		fmt.Printf("║  Event log       : %-19s ║\n", "(memory only)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, trimCell(value))
}

func trimCell(value string) string {
	if len(value) > 19 {
		return value[:16] + "…"
	}
	return value
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map[string]any.
// YAML decodes untyped numbers as int; anything else yields zero.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	n, _ := opts[key].(int)
	return n
}
