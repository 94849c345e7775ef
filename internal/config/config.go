// Package config provides the configuration schema, loader, and provider
// registry for the roomwarden guard.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the guard process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a [time.Duration] that unmarshals from YAML strings such as
// "30s" or "2m" (anything [time.ParseDuration] accepts).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a standard [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for the guard.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Guard     GuardConfig     `yaml:"guard"`
	Identity  IdentityConfig  `yaml:"identity"`
	Events    EventsConfig    `yaml:"events"`
	Snapshots SnapshotConfig  `yaml:"snapshots"`
}

// ServerConfig holds network and logging settings for the metrics/health
// listener.
type ServerConfig struct {
	// ListenAddr is the TCP address the listener binds (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the listener. When nil, it serves plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which implementation to use for each pipeline
// stage. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM   ProviderEntry `yaml:"llm"`
	STT   ProviderEntry `yaml:"stt"`
	TTS   ProviderEntry `yaml:"tts"`
	Faces ProviderEntry `yaml:"faces"`

	// LLMFallbacks are tried in order when the primary LLM fails; the
	// keyword classifier remains the terminal fallback regardless.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// STTFallbacks are tried in order when a transcription session cannot
	// be opened against the primary STT backend.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// TTSFallbacks are tried in order when the primary synthesis backend
	// fails, so the guard does not fall silent mid-interrogation.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini",
	// "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint. For local backends
	// (whisper, coqui, facesrv) this is the model path or server URL.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g.,
	// "gemini-2.0-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// GuardConfig tunes the policy core: command matching, vision smoothing, and
// the interrogation engine.
type GuardConfig struct {
	// CommandThreshold is the minimum edit-similarity ratio for fuzzy
	// command-token recovery, in (0, 1]. Zero selects the default (0.65).
	CommandThreshold float64 `yaml:"command_threshold"`

	// ConversationTimeout ends a trusted conversation or an interrogation
	// after this much silence. Zero selects the default (30s).
	ConversationTimeout Duration `yaml:"conversation_timeout"`

	// SmoothingWindow is the size of the vision majority-vote window.
	// Zero selects the default (5).
	SmoothingWindow int `yaml:"smoothing_window"`

	// ActionCooldown suppresses repeat reactions to the same confirmed face.
	// Zero selects the default (10s).
	ActionCooldown Duration `yaml:"action_cooldown"`

	Interrogation InterrogationConfig `yaml:"interrogation"`
	Listening     ListeningConfig     `yaml:"listening"`
}

// InterrogationConfig tunes escalation and acceptance for visitor sessions.
type InterrogationConfig struct {
	// AcceptAfter is the minimum session age before sustained cooperation
	// can end a session. Zero selects the default (60s).
	AcceptAfter Duration `yaml:"accept_after"`

	// AcceptCooperative is the cooperative-response count required for
	// acceptance. Zero selects the default (5).
	AcceptCooperative int `yaml:"accept_cooperative"`

	// HardTimeout escalates any session still at a low level after this
	// much elapsed time. Zero selects the default (90s).
	HardTimeout Duration `yaml:"hard_timeout"`

	// MaxInquiryResponses escalates a session stuck at the first level
	// after this many exchanges. Zero selects the default (7).
	MaxInquiryResponses int `yaml:"max_inquiry_responses"`
}

// ListeningConfig holds per-mode speech segmentation tuning. Guard mode
// listens harder (lower energy threshold, shorter pause) than relaxed
// listening does; switching modes restarts the capture session with the
// matching tuning.
type ListeningConfig struct {
	Guard   ModeTuning `yaml:"guard"`
	Relaxed ModeTuning `yaml:"relaxed"`
}

// ModeTuning is the speech segmentation tuning for one listening mode.
type ModeTuning struct {
	// EnergyThreshold is the RMS level below which a frame counts as
	// silence. Zero falls back to the STT provider default.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// PauseMs is the consecutive-silence duration (ms) that commits an
	// utterance. Zero falls back to the STT provider default.
	PauseMs int `yaml:"pause_ms"`
}

// IdentityConfig holds settings for the enrolled-identity store.
type IdentityConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector
	// identity store. Empty selects the in-memory store (identities are
	// lost on restart).
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension of face embeddings.
	// Must match the faces provider's model.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// EventsConfig configures the persistent event log sink.
type EventsConfig struct {
	// Path is the JSONL event log file. Empty keeps events in memory only.
	Path string `yaml:"path"`

	// MaxSizeMB rotates the log file when it exceeds this size.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups caps the number of rotated files kept.
	MaxBackups int `yaml:"max_backups"`

	// Compress gzips rotated files.
	Compress bool `yaml:"compress"`
}

// SnapshotConfig configures the intruder snapshot sink.
type SnapshotConfig struct {
	// Dir is the directory labelled frame JPEGs are written to. Empty
	// disables snapshots.
	Dir string `yaml:"dir"`
}
