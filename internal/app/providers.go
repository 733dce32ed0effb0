package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/wisdomtrail/internal/config"
	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/internal/resilience"
	"github.com/MrWong99/wisdomtrail/pkg/provider/llm"
	"github.com/MrWong99/wisdomtrail/pkg/provider/llm/anyllm"
	geminillm "github.com/MrWong99/wisdomtrail/pkg/provider/llm/gemini"
	openaillm "github.com/MrWong99/wisdomtrail/pkg/provider/llm/openai"
	"github.com/MrWong99/wisdomtrail/pkg/provider/stt"
	"github.com/MrWong99/wisdomtrail/pkg/provider/stt/deepgram"
	"github.com/MrWong99/wisdomtrail/pkg/provider/stt/whisper"
	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
	geminitts "github.com/MrWong99/wisdomtrail/pkg/provider/tts/gemini"
	openaitts "github.com/MrWong99/wisdomtrail/pkg/provider/tts/openai"
)

// Providers holds one interface value per remote capability. Nil means the
// capability is not configured. Names label metrics and logs.
type Providers struct {
	LLM     llm.Provider
	LLMName string
	TTS     tts.Provider
	TTSName string
	STT     stt.Provider
	STTName string
}

// optStylePrompt is the provider option key carrying the narration delivery
// instruction into TTS factories.
const optStylePrompt = "style_prompt"

// anyllmBackends are served through any-llm-go and share one factory shape:
// optional APIKey plus optional BaseURL.
var anyllmBackends = []string{"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// RegisterBuiltinProviders wires every built-in provider factory into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		return geminillm.New(context.Background(), entry.APIKey, entry.Model)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization"); org != "" {
			opts = append(opts, openaillm.WithOrganization(org))
		}
		return openaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, backend := range anyllmBackends {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []geminitts.Option
		if prompt := entry.OptionString(optStylePrompt); prompt != "" {
			opts = append(opts, geminitts.WithStylePrompt(prompt))
		}
		return geminitts.New(context.Background(), entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []openaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaitts.WithBaseURL(entry.BaseURL))
		}
		if prompt := entry.OptionString(optStylePrompt); prompt != "" {
			opts = append(opts, openaitts.WithInstructions(prompt))
		}
		return openaitts.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	for kind, names := range map[string][]string{"llm": reg.Names("llm"), "tts": reg.Names("tts"), "stt": reg.Names("stt")} {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// BuildProviders instantiates every provider named in cfg. Primary LLM and
// TTS providers with fallbacks configured are wrapped in a failover group so
// a secondary backend answers before the fixed fallback is used. Breaker
// transitions are counted on m when it is non-nil. A name without a
// registered factory is skipped with a warning.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	fb := resilience.FallbackConfig{}
	if m != nil {
		fb.CircuitBreaker.OnStateChange = func(name string, _, to resilience.State) {
			m.RecordBreakerTransition(name, to.String())
		}
	}

	if entry := cfg.Providers.LLM; entry.Name != "" {
		p, err := createProvider("llm", entry, reg.CreateLLM)
		if err != nil {
			return nil, err
		}
		if p != nil && len(cfg.Providers.LLMFallbacks) > 0 {
			group := resilience.NewLLMFallback(p, entry.Name, fb)
			for _, e := range cfg.Providers.LLMFallbacks {
				alt, err := createProvider("llm", e, reg.CreateLLM)
				if err != nil {
					return nil, err
				}
				if alt != nil {
					group.AddFallback(e.Name, alt)
				}
			}
			p = group
		}
		if p != nil {
			ps.LLM, ps.LLMName = p, entry.Name
		}
	}

	if entry := withStylePrompt(cfg.Providers.TTS, cfg.Narration.StylePrompt); entry.Name != "" {
		p, err := createProvider("tts", entry, reg.CreateTTS)
		if err != nil {
			return nil, err
		}
		if p != nil && len(cfg.Providers.TTSFallbacks) > 0 {
			group := resilience.NewTTSFallback(p, entry.Name, fb)
			for _, e := range cfg.Providers.TTSFallbacks {
				alt, err := createProvider("tts", withStylePrompt(e, cfg.Narration.StylePrompt), reg.CreateTTS)
				if err != nil {
					return nil, err
				}
				if alt != nil {
					group.AddFallback(e.Name, alt)
				}
			}
			p = group
		}
		if p != nil {
			ps.TTS, ps.TTSName = p, entry.Name
		}
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		if entry.OptionString("language") == "" {
			entry = withOption(entry, "language", cfg.Capture.Language)
		}
		p, err := createProvider("stt", entry, reg.CreateSTT)
		if err != nil {
			return nil, err
		}
		if p != nil {
			ps.STT, ps.STTName = p, entry.Name
		}
	}

	return ps, nil
}

// createProvider returns a nil provider and no error when name has no
// registered factory.
func createProvider[T any](kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) (T, error) {
	var zero T
	p, err := create(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero, nil
	case err != nil:
		return zero, fmt.Errorf("app: create %s provider %q: %w", kind, entry.Name, err)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model)
	return p, nil
}

func withStylePrompt(e config.ProviderEntry, prompt string) config.ProviderEntry {
	if prompt == "" || e.OptionString(optStylePrompt) != "" {
		return e
	}
	return withOption(e, optStylePrompt, prompt)
}

// withOption returns e with Options[key] set, leaving the caller's map
// untouched.
func withOption(e config.ProviderEntry, key, value string) config.ProviderEntry {
	opts := make(map[string]any, len(e.Options)+1)
	for k, v := range e.Options {
		opts[k] = v
	}
	opts[key] = value
	e.Options = opts
	return e
}
