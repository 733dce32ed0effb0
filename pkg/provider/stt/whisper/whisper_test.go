package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/wisdomtrail/pkg/provider/stt"
	"github.com/MrWong99/wisdomtrail/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type inferenceLog struct {
	mu        sync.Mutex
	languages []string
	prompts   []string
}

func (l *inferenceLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.languages) == 0 {
		return ""
	}
	return l.languages[len(l.languages)-1]
}

// newMockServer answers POST /inference with responseText and counts calls.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32, log *inferenceLog) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if log != nil {
			_ = r.ParseMultipartForm(1 << 20)
			log.mu.Lock()
			log.languages = append(log.languages, r.FormValue("language"))
			log.prompts = append(log.prompts, r.FormValue("prompt"))
			log.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// makeSpeechPCM returns a 440 Hz tone well above the silence threshold.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func makeSilencePCM(samples int) []byte { return make([]byte, samples*2) }

func mustStartStream(t *testing.T, p *whisper.Provider, cfg stt.StreamConfig) stt.SessionHandle {
	t.Helper()
	h, err := p.StartStream(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	return h
}

var capture16k = stt.StreamConfig{SampleRate: 16000, Channels: 1}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestStartStream_CancelledContext_ReturnsError(t *testing.T) {
	p, _ := whisper.New("http://localhost:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, capture16k); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

// ---- silence detection / buffering ------------------------------------------

func TestSilenceAloneDoesNotTriggerInference(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "unexpected", &calls, nil)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(50))
	h := mustStartStream(t, p, capture16k)

	_ = h.SendAudio(makeSilencePCM(16000))
	time.Sleep(150 * time.Millisecond)
	h.Close()

	if n := calls.Load(); n != 0 {
		t.Errorf("inference called %d time(s) for silence-only audio; want 0", n)
	}
}

func TestSpeechFollowedBySilenceTriggersInference(t *testing.T) {
	const wantText = "我覺得世界值得信任"
	log := &inferenceLog{}
	srv := newMockServer(t, "  "+wantText+"\n", nil, log)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "zh-TW"})
	defer h.Close()

	if err := h.SendAudio(makeSpeechPCM(1600)); err != nil {
		t.Fatalf("SendAudio (speech): %v", err)
	}
	if err := h.SendAudio(makeSilencePCM(1600)); err != nil {
		t.Fatalf("SendAudio (silence): %v", err)
	}

	select {
	case tr := <-h.Finals():
		if tr.Text != wantText {
			t.Errorf("Finals().Text = %q; want %q", tr.Text, wantText)
		}
		if !tr.IsFinal {
			t.Error("transcript should have IsFinal = true")
		}
		if tr.Duration != 200*time.Millisecond {
			t.Errorf("Duration = %v; want 200ms", tr.Duration)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
	if got := log.last(); got != "zh" {
		t.Errorf("language field = %q; want zh", got)
	}
}

func TestHintsSentAsPrompt(t *testing.T) {
	log := &inferenceLog{}
	srv := newMockServer(t, "箴言", nil, log)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, stt.StreamConfig{
		SampleRate: 16000,
		Channels:   1,
		Hints:      []string{"箴言", "", "傳道書"},
	})
	defer h.Close()

	_ = h.SendAudio(makeSpeechPCM(1600))
	_ = h.SendAudio(makeSilencePCM(1600))

	select {
	case <-h.Finals():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.prompts) == 0 || log.prompts[0] != "箴言、傳道書" {
		t.Errorf("prompt fields = %q", log.prompts)
	}
}

func TestMaxBufferExceededForcesFlush(t *testing.T) {
	const wantText = "虛空"
	srv := newMockServer(t, wantText, nil, nil)

	p, _ := whisper.New(srv.URL,
		whisper.WithSilenceThresholdMs(10_000),
		whisper.WithMaxBufferDurationMs(200),
	)
	h := mustStartStream(t, p, capture16k)
	defer h.Close()

	if err := h.SendAudio(makeSpeechPCM(3360)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case tr := <-h.Finals():
		if tr.Text != wantText {
			t.Errorf("Finals().Text = %q; want %q", tr.Text, wantText)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for forced-flush transcript")
	}
}

// ---- session close ----------------------------------------------------------

func TestClose_ClosesFinalsChannel(t *testing.T) {
	srv := newMockServer(t, "", nil, nil)
	p, _ := whisper.New(srv.URL)
	h := mustStartStream(t, p, capture16k)
	h.Close()

	select {
	case _, open := <-h.Finals():
		if open {
			t.Error("Finals channel should be closed after Close()")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Finals channel to close")
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := newMockServer(t, "", nil, nil)
	p, _ := whisper.New(srv.URL)
	h := mustStartStream(t, p, capture16k)

	if err := h.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}
}

func TestSendAudio_AfterClose_ReturnsError(t *testing.T) {
	srv := newMockServer(t, "", nil, nil)
	p, _ := whisper.New(srv.URL)
	h := mustStartStream(t, p, capture16k)
	h.Close()

	if err := h.SendAudio(makeSpeechPCM(100)); err != stt.ErrSessionClosed {
		t.Fatalf("SendAudio after Close() = %v; want ErrSessionClosed", err)
	}
}

func TestClose_FlushesRemainingBuffer(t *testing.T) {
	const wantText = "鐵磨鐵"
	srv := newMockServer(t, wantText, nil, nil)

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(60_000))
	h := mustStartStream(t, p, capture16k)

	_ = h.SendAudio(makeSpeechPCM(1600))
	time.Sleep(50 * time.Millisecond)
	h.Close()

	var got []string
	for tr := range h.Finals() {
		got = append(got, tr.Text)
	}
	if len(got) != 1 || got[0] != wantText {
		t.Errorf("finals after close = %v; want [%q]", got, wantText)
	}
}

// ---- error handling ---------------------------------------------------------

func TestInference_ServerError_ProducesNoTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, capture16k)

	_ = h.SendAudio(makeSpeechPCM(1600))
	_ = h.SendAudio(makeSilencePCM(1600))
	time.Sleep(200 * time.Millisecond)
	h.Close()

	for tr := range h.Finals() {
		t.Errorf("expected no finals on server error, got %q", tr.Text)
	}
}

func TestInference_EmptyResponse_ProducesNoTranscript(t *testing.T) {
	srv := newMockServer(t, "   ", nil, nil)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(100))
	h := mustStartStream(t, p, capture16k)

	_ = h.SendAudio(makeSpeechPCM(1600))
	_ = h.SendAudio(makeSilencePCM(1600))
	time.Sleep(200 * time.Millisecond)
	h.Close()

	for tr := range h.Finals() {
		t.Errorf("received transcript %q; expected no emission", tr.Text)
	}
}
