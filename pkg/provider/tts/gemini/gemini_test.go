package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error
	text string
	cfg  *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.text = contents[0].Parts[0].Text
	f.cfg = cfg
	return f.resp, f.err
}

func audioResponse(chunks ...[]byte) *genai.GenerateContentResponse {
	var parts []*genai.Part
	for _, c := range chunks {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "audio/L16;rate=24000", Data: c}})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

// ── Synthesize ───────────────────────────────────────────────────────────────

func TestSynthesize_EncodesInlineAudio(t *testing.T) {
	f := &fakeModels{resp: audioResponse([]byte{1, 2}, []byte{3, 4})}
	p := &Provider{models: f, model: DefaultModel, prompt: "請朗讀："}

	payload, err := p.Synthesize(context.Background(), "虛空的虛空", types.VoiceProfile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(payload)
	if string(raw) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("decoded payload = %v", raw)
	}
	if f.text != "請朗讀：虛空的虛空" {
		t.Errorf("prompt text = %q", f.text)
	}
	if got := f.cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != DefaultVoice {
		t.Errorf("voice = %q, want %q", got, DefaultVoice)
	}
	if len(f.cfg.ResponseModalities) != 1 || !strings.EqualFold(string(f.cfg.ResponseModalities[0]), "audio") {
		t.Errorf("modalities = %v", f.cfg.ResponseModalities)
	}
}

func TestSynthesize_CustomVoice(t *testing.T) {
	f := &fakeModels{resp: audioResponse([]byte{0, 0})}
	p := &Provider{models: f, model: DefaultModel}
	if _, err := p.Synthesize(context.Background(), "x", types.VoiceProfile{ID: "Puck"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.cfg.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Puck" {
		t.Errorf("voice = %q, want Puck", got)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	p := &Provider{models: &fakeModels{resp: &genai.GenerateContentResponse{}}, model: DefaultModel}
	if _, err := p.Synthesize(context.Background(), "x", types.VoiceProfile{}); !errors.Is(err, tts.ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestSynthesize_BackendError(t *testing.T) {
	boom := errors.New("unavailable")
	p := &Provider{models: &fakeModels{err: boom}, model: DefaultModel}
	if _, err := p.Synthesize(context.Background(), "x", types.VoiceProfile{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped backend error", err)
	}
}
