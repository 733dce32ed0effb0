// Package config provides the configuration schema, loader, and provider
// registry for the wisdomtrail curriculum player.
package config

import "time"

// LogLevel controls log verbosity.
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

// IdentityBackend selects where the learner identity is persisted.
type IdentityBackend string

const (
	// IdentityFile stores one JSON record in a file. Suited to the
	// single-learner terminal player.
	IdentityFile IdentityBackend = "file"

	// IdentityBadger stores records in an embedded BadgerDB keyed per
	// learner. Suited to the HTTP server.
	IdentityBadger IdentityBackend = "badger"
)

// IsValid reports whether b is a recognised identity backend.
func (b IdentityBackend) IsValid() bool {
	return b == IdentityFile || b == IdentityBadger
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Narration NarrationConfig `yaml:"narration"`
	Capture   CaptureConfig   `yaml:"capture"`
	Identity  IdentityConfig  `yaml:"identity"`
	Journal   JournalConfig   `yaml:"journal"`
	Insight   InsightConfig   `yaml:"insight"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`

	// SessionTTL drops idle HTTP learner sessions after this long.
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation backs each remote
// capability. The fallback lists are tried in order when the primary fails.
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	TTS          ProviderEntry   `yaml:"tts"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
	STT          ProviderEntry   `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider (e.g., "gemini", "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] as a string, or "" when absent.
func (e ProviderEntry) OptionString(key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// FeedbackConfig tunes the reflective-feedback request.
type FeedbackConfig struct {
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// NarrationConfig tunes speech synthesis and playback.
type NarrationConfig struct {
	// Voice is the provider voice ID (e.g., "Kore").
	Voice string `yaml:"voice"`

	// StylePrompt is prepended to every narration text.
	StylePrompt string `yaml:"style_prompt"`

	// Volume is the initial playback level in [0, 1].
	Volume float64 `yaml:"volume"`

	// Timeout bounds one synthesis request.
	Timeout time.Duration `yaml:"timeout"`

	// Player overrides the detected playback command. Args may use the
	// {rate} and {channels} placeholders.
	Player     string   `yaml:"player"`
	PlayerArgs []string `yaml:"player_args"`
}

// CaptureConfig tunes microphone speech capture.
type CaptureConfig struct {
	// Language is the recognition locale.
	Language string `yaml:"language"`

	// MaxDuration ends capture if no final transcript arrives.
	MaxDuration time.Duration `yaml:"max_duration"`

	// Recorder overrides the detected recording command.
	Recorder     string   `yaml:"recorder"`
	RecorderArgs []string `yaml:"recorder_args"`
}

// IdentityConfig selects the identity store.
type IdentityConfig struct {
	Backend IdentityBackend `yaml:"backend"`

	// Path is the JSON file (file backend) or database directory (badger).
	Path string `yaml:"path"`
}

// JournalConfig locates the reflection journal.
type JournalConfig struct {
	// Path is the JSON-lines journal file. Empty disables the journal.
	Path string `yaml:"path"`
}

// InsightConfig selects the peer-response source.
type InsightConfig struct {
	// PostgresDSN enables stored peer responses. Empty keeps the static seed.
	PostgresDSN string `yaml:"postgres_dsn"`
}
