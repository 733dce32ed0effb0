// Package gemini provides an LLM provider backed by the Google Gen AI SDK.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/MrWong99/wisdomtrail/pkg/provider/llm"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// DefaultModel is used when New is given an empty model name.
const DefaultModel = "gemini-3-flash-preview"

// generator is the subset of *genai.Models the provider calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements llm.Provider using Gemini.
type Provider struct {
	models generator
	model  string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a Gemini provider. The client is created once and reused.
func New(ctx context.Context, apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{models: client.Models, model: model}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	cfg, contents := buildRequest(req)
	resp, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}

	text, err := llm.PlainText(resp.Text())
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	out := &llm.CompletionResponse{Content: text}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// buildRequest maps the request onto Gemini contents. System messages in
// req.Messages are folded into the system instruction since Gemini has no
// system role.
func buildRequest(req llm.CompletionRequest) (*genai.GenerateContentConfig, []*genai.Content) {
	cfg := &genai.GenerateContentConfig{}

	var system []*genai.Part
	if req.SystemPrompt != "" {
		system = append(system, genai.NewPartFromText(req.SystemPrompt))
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, genai.NewPartFromText(m.Content))
			continue
		}
		role := roleOf(m)
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, genai.NewPartFromText(m.Content))
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}

	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		cfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg, contents
}

func roleOf(m types.Message) string {
	if m.Role == "assistant" {
		return genai.RoleModel
	}
	return genai.RoleUser
}
