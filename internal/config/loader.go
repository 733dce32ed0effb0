package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"gemini", "openai"},
	"stt": {"whisper", "deepgram"},
}

// Environment variables that override secrets from the file.
const (
	EnvLLMAPIKey   = "WISDOMTRAIL_LLM_API_KEY"
	EnvTTSAPIKey   = "WISDOMTRAIL_TTS_API_KEY"
	EnvSTTAPIKey   = "WISDOMTRAIL_STT_API_KEY"
	EnvPostgresDSN = "WISDOMTRAIL_POSTGRES_DSN"
)

// Default returns a configuration that is valid with zero providers: feedback
// falls back to the fixed sentence and narration/capture report unavailable.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.SessionTTL == 0 {
		cfg.Server.SessionTTL = 2 * time.Hour
	}
	if cfg.Feedback.Temperature == 0 {
		cfg.Feedback.Temperature = 0.7
	}
	if cfg.Feedback.Timeout == 0 {
		cfg.Feedback.Timeout = 20 * time.Second
	}
	if cfg.Narration.Voice == "" {
		cfg.Narration.Voice = "Kore"
	}
	if cfg.Narration.StylePrompt == "" {
		cfg.Narration.StylePrompt = "請用溫暖且具啟發性的語氣朗讀以下內容："
	}
	if cfg.Narration.Volume == 0 {
		cfg.Narration.Volume = 0.8
	}
	if cfg.Narration.Timeout == 0 {
		cfg.Narration.Timeout = 30 * time.Second
	}
	if cfg.Capture.Language == "" {
		cfg.Capture.Language = "zh-TW"
	}
	if cfg.Capture.MaxDuration == 0 {
		cfg.Capture.MaxDuration = 30 * time.Second
	}
	if cfg.Identity.Backend == "" {
		cfg.Identity.Backend = IdentityFile
	}
	if cfg.Identity.Path == "" {
		cfg.Identity.Path = filepath.Join(dataDir(), defaultIdentityPath(cfg.Identity.Backend))
	}
}

func defaultIdentityPath(b IdentityBackend) string {
	if b == IdentityBadger {
		return "identity.db"
	}
	return "identity.json"
}

func dataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "wisdomtrail")
	}
	return ".wisdomtrail"
}

// applyEnv overrides secrets from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v := os.Getenv(EnvTTSAPIKey); v != "" {
		cfg.Providers.TTS.APIKey = v
	}
	if v := os.Getenv(EnvSTTAPIKey); v != "" {
		cfg.Providers.STT.APIKey = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Insight.PostgresDSN = v
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// environment overrides, and validates the result. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, e := range cfg.Providers.LLMFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", e.Name)
	}
	for i, e := range cfg.Providers.TTSFallbacks {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", e.Name)
	}
	if cfg.Providers.LLM.Name == "" && len(cfg.Providers.LLMFallbacks) > 0 {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Providers.TTSFallbacks) > 0 {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts"))
	}

	if cfg.Feedback.Temperature < 0 || cfg.Feedback.Temperature > 2 {
		errs = append(errs, fmt.Errorf("feedback.temperature %.2f is out of range [0, 2]", cfg.Feedback.Temperature))
	}
	if cfg.Feedback.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("feedback.max_tokens %d must not be negative", cfg.Feedback.MaxTokens))
	}
	if cfg.Feedback.Timeout < 0 {
		errs = append(errs, errors.New("feedback.timeout must not be negative"))
	}
	if cfg.Narration.Volume < 0 || cfg.Narration.Volume > 1 {
		errs = append(errs, fmt.Errorf("narration.volume %.2f is out of range [0, 1]", cfg.Narration.Volume))
	}
	if cfg.Narration.Timeout < 0 {
		errs = append(errs, errors.New("narration.timeout must not be negative"))
	}
	if cfg.Capture.MaxDuration < 0 {
		errs = append(errs, errors.New("capture.max_duration must not be negative"))
	}
	if cfg.Identity.Backend != "" && !cfg.Identity.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("identity.backend %q is invalid; valid values: file, badger", cfg.Identity.Backend))
	}

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; feedback will use the fixed fallback sentence")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; narration will be unavailable")
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
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
