package resilience

import (
	"errors"
	"testing"

	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
	ttsmock "github.com/MrWong99/wisdomtrail/pkg/provider/tts/mock"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// ── TTSFallback ──────────────────────────────────────────────────────────────

func TestTTSFallback_PrimaryAnswers(t *testing.T) {
	primary := &ttsmock.Provider{Payload: "AAAA"}
	secondary := &ttsmock.Provider{Payload: "BBBB"}

	f := NewTTSFallback(primary, "gemini", FallbackConfig{})
	f.AddFallback("openai", secondary)

	got, err := f.Synthesize(t.Context(), "今天的安靜整合", types.VoiceProfile{ID: "Kore"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != "AAAA" {
		t.Errorf("payload = %q, want AAAA", got)
	}
	calls := primary.Calls()
	if len(calls) != 1 || calls[0].Voice.ID != "Kore" {
		t.Errorf("primary calls = %+v", calls)
	}
	if len(secondary.Calls()) != 0 {
		t.Error("secondary should not be called")
	}
}

func TestTTSFallback_NoAudioFailsOver(t *testing.T) {
	primary := &ttsmock.Provider{}
	secondary := &ttsmock.Provider{Payload: "BBBB"}

	f := NewTTSFallback(primary, "gemini", FallbackConfig{})
	f.AddFallback("openai", secondary)

	got, err := f.Synthesize(t.Context(), "text", types.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got != "BBBB" {
		t.Errorf("payload = %q, want BBBB", got)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	f := NewTTSFallback(&ttsmock.Provider{Err: errTest}, "gemini", FallbackConfig{})
	f.AddFallback("openai", &ttsmock.Provider{})

	_, err := f.Synthesize(t.Context(), "text", types.VoiceProfile{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, tts.ErrNoAudio) {
		t.Errorf("err = %v, should wrap the last error (ErrNoAudio)", err)
	}
}
