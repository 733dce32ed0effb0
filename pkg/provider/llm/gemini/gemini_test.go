package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/wisdomtrail/pkg/provider/llm"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

type fakeModels struct {
	resp  *genai.GenerateContentResponse
	err   error
	model string
	cfg   *genai.GenerateContentConfig
	in    []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.in, f.cfg = model, contents, cfg
	return f.resp, f.err
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: s}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 20,
			TotalTokenCount:      30,
		},
	}
}

// ── buildRequest ─────────────────────────────────────────────────────────────

func TestBuildRequest_SystemInstruction(t *testing.T) {
	cfg, contents := buildRequest(llm.CompletionRequest{
		SystemPrompt: "你是導師。",
		Messages: []types.Message{
			{Role: "system", Content: "補充說明"},
			{Role: "user", Content: "第一句"},
			{Role: "user", Content: "第二句"},
			{Role: "assistant", Content: "回覆"},
		},
		Temperature: 0.7,
		MaxTokens:   256,
	})

	if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) != 2 {
		t.Fatalf("system instruction = %+v, want 2 parts", cfg.SystemInstruction)
	}
	if len(contents) != 2 {
		t.Fatalf("contents = %d, want 2 (consecutive user turns merged)", len(contents))
	}
	if contents[0].Role != genai.RoleUser || len(contents[0].Parts) != 2 {
		t.Errorf("first content = %+v", contents[0])
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("second role = %q, want model", contents[1].Role)
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.7) {
		t.Errorf("temperature = %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 256 {
		t.Errorf("max output tokens = %d", cfg.MaxOutputTokens)
	}
}

// ── Complete ─────────────────────────────────────────────────────────────────

func TestComplete_ReturnsText(t *testing.T) {
	f := &fakeModels{resp: textResponse("  智慧的起點  ")}
	p := &Provider{models: f, model: DefaultModel}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "q"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "智慧的起點" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("total tokens = %d, want 30", resp.Usage.TotalTokens)
	}
	if f.model != DefaultModel {
		t.Errorf("model = %q", f.model)
	}
}

func TestComplete_EmptyText(t *testing.T) {
	p := &Provider{models: &fakeModels{resp: textResponse("   ")}, model: "m"}
	_, err := p.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestComplete_BackendError(t *testing.T) {
	boom := errors.New("quota")
	p := &Provider{models: &fakeModels{err: boom}, model: "m"}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped quota error", err)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
