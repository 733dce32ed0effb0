package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/wisdomtrail/pkg/provider/llm"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// ── params ────────────────────────────────────────────────────────────────────

func TestParams_SystemPromptAndOptions(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}
	params := p.params(llm.CompletionRequest{
		SystemPrompt: "導師",
		Messages:     []types.Message{{Role: "user", Content: "問題"}},
		Temperature:  0.7,
		MaxTokens:    300,
	})

	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 300 {
		t.Errorf("max tokens = %v, want 300", params.MaxTokens)
	}
}

func TestParams_ZeroValuesOmitted(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.params(llm.CompletionRequest{Messages: []types.Message{{Role: "user", Content: "x"}}})
	if params.Temperature != nil {
		t.Error("temperature should be nil when zero")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be nil when zero")
	}
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1 (no system prompt)", len(params.Messages))
	}
}

// ── New ───────────────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "m"); err == nil {
		t.Error("expected error for empty backend name")
	}
	if _, err := New("anthropic", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("nonsense", "m"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBackends_Sorted(t *testing.T) {
	got := Backends()
	if len(got) != 9 || got[0] != "anthropic" || got[len(got)-1] != "openai" {
		t.Errorf("Backends() = %v", got)
	}
}

func TestParams_PreservesConversation(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.params(llm.CompletionRequest{Messages: []types.Message{
		{Role: "user", Content: "虛空的虛空"},
		{Role: "assistant", Content: "凡事都是虛空"},
	}})
	if len(params.Messages) != 2 || params.Messages[1].Role != "assistant" || params.Messages[1].ContentString() != "凡事都是虛空" {
		t.Errorf("messages = %+v", params.Messages)
	}
}
