package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"whisper"},
	"tts":   {"coqui"},
	"faces": {"facesrv"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("faces", cfg.Providers.Faces.Name)
	for _, fb := range cfg.Providers.LLMFallbacks {
		validateProviderName("llm", fb.Name)
	}
	for _, fb := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", fb.Name)
	}
	for _, fb := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", fb.Name)
	}

	// Provider availability warnings. Each missing stage is a degradation,
	// not a startup failure.
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; interrogation will run on the keyword classifier only")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; voice commands will not be recognised")
	}
	if cfg.Providers.Faces.Name == "" {
		slog.Warn("no faces provider configured; face recognition and enrollment are disabled")
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks is set but providers.llm is not configured"))
	}
	if len(cfg.Providers.STTFallbacks) > 0 && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt_fallbacks is set but providers.stt is not configured"))
	}
	if len(cfg.Providers.TTSFallbacks) > 0 && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts_fallbacks is set but providers.tts is not configured"))
	}

	// Guard tuning
	g := cfg.Guard
	if g.CommandThreshold != 0 && (g.CommandThreshold <= 0 || g.CommandThreshold > 1) {
		errs = append(errs, fmt.Errorf("guard.command_threshold %.2f is out of range (0, 1]", g.CommandThreshold))
	}
	if g.SmoothingWindow < 0 {
		errs = append(errs, fmt.Errorf("guard.smoothing_window %d is negative", g.SmoothingWindow))
	}
	if g.ConversationTimeout < 0 {
		errs = append(errs, fmt.Errorf("guard.conversation_timeout %s is negative", g.ConversationTimeout.Std()))
	}
	if g.ActionCooldown < 0 {
		errs = append(errs, fmt.Errorf("guard.action_cooldown %s is negative", g.ActionCooldown.Std()))
	}

	// Interrogation tuning
	it := g.Interrogation
	if it.AcceptCooperative < 0 {
		errs = append(errs, fmt.Errorf("guard.interrogation.accept_cooperative %d is negative", it.AcceptCooperative))
	}
	if it.MaxInquiryResponses < 0 {
		errs = append(errs, fmt.Errorf("guard.interrogation.max_inquiry_responses %d is negative", it.MaxInquiryResponses))
	}
	if it.AcceptAfter != 0 && it.HardTimeout != 0 && it.AcceptAfter >= it.HardTimeout {
		errs = append(errs, fmt.Errorf("guard.interrogation.accept_after %s must be shorter than hard_timeout %s",
			it.AcceptAfter.Std(), it.HardTimeout.Std()))
	}

	// Listening tuning
	for _, mt := range []struct {
		name   string
		tuning ModeTuning
	}{
		{"guard.listening.guard", g.Listening.Guard},
		{"guard.listening.relaxed", g.Listening.Relaxed},
	} {
		if mt.tuning.EnergyThreshold < 0 {
			errs = append(errs, fmt.Errorf("%s.energy_threshold %.1f is negative", mt.name, mt.tuning.EnergyThreshold))
		}
		if mt.tuning.PauseMs < 0 {
			errs = append(errs, fmt.Errorf("%s.pause_ms %d is negative", mt.name, mt.tuning.PauseMs))
		}
	}

	// Identity store
	if cfg.Identity.PostgresDSN != "" && cfg.Identity.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("identity.embedding_dimensions must be set when identity.postgres_dsn is configured"))
	}
	if cfg.Identity.PostgresDSN == "" {
		slog.Warn("identity.postgres_dsn is empty; enrolled identities will not survive restarts")
	}

	// Event log
	if cfg.Events.Path == "" {
		slog.Warn("events.path is empty; the event log will not be persisted")
	}
	if cfg.Events.MaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("events.max_size_mb %d is negative", cfg.Events.MaxSizeMB))
	}
	if cfg.Events.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("events.max_backups %d is negative", cfg.Events.MaxBackups))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
