// Package gemini provides a TTS provider backed by Gemini's native audio
// output. Gemini speech models answer with raw 24 kHz s16le PCM as inline
// data, which is exactly the narration wire format.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"

	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

const (
	// DefaultModel is the Gemini speech model used when none is configured.
	DefaultModel = "gemini-2.5-flash-preview-tts"

	// DefaultVoice is the prebuilt voice used when the profile has no ID.
	DefaultVoice = "Kore"
)

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements tts.Provider using Gemini speech generation.
type Provider struct {
	models generator
	model  string
	prompt string
}

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for Provider.
type Option func(*Provider)

// WithStylePrompt prefixes every narration text with a delivery instruction,
// e.g. "請用溫暖且具啟發性的語氣朗讀以下內容：".
func WithStylePrompt(prompt string) Option {
	return func(p *Provider) { p.prompt = prompt }
}

// New creates a Gemini TTS provider.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini tts: new client: %w", err)
	}
	p := &Provider{models: client.Models, model: model}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (string, error) {
	resp, err := p.models.GenerateContent(ctx, p.model, []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(p.prompt + text)}},
	}, speechConfig(voice))
	if err != nil {
		return "", fmt.Errorf("gemini tts: generate: %w", err)
	}

	pcm := inlineAudio(resp)
	if len(pcm) == 0 {
		return "", tts.ErrNoAudio
	}
	return base64.StdEncoding.EncodeToString(pcm), nil
}

func speechConfig(voice types.VoiceProfile) *genai.GenerateContentConfig {
	name := voice.ID
	if name == "" {
		name = DefaultVoice
	}
	cfg := &genai.GenerateContentConfig{
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: name},
			},
		},
	}
	cfg.ResponseModalities = append(cfg.ResponseModalities, "AUDIO")
	return cfg
}

// inlineAudio concatenates the inline data of the first candidate.
func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []byte
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil {
			out = append(out, part.InlineData.Data...)
		}
	}
	return out
}
