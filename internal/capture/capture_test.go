package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/wisdomtrail/pkg/audio"
	audiomock "github.com/MrWong99/wisdomtrail/pkg/audio/mock"
	sttmock "github.com/MrWong99/wisdomtrail/pkg/provider/stt/mock"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// recorder collects callback invocations.
type recorder struct {
	mu    sync.Mutex
	texts []string
	got   chan struct{}
}

func newRecorder() *recorder { return &recorder{got: make(chan struct{}, 8)} }

func (r *recorder) onFinal(text string) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func mic() *audiomock.Source { return &audiomock.Source{PCM: make([]byte, 640)} }

// ── Availability ─────────────────────────────────────────────────────────────

func TestAvailable(t *testing.T) {
	tests := []struct {
		name string
		a    *Adapter
		want bool
	}{
		{"both", New(&sttmock.Provider{}, mic()), true},
		{"no provider", New(nil, mic()), false},
		{"no microphone", New(&sttmock.Provider{}, nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Available(); got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}

	if err := New(nil, nil).Start(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Start err = %v, want ErrUnavailable", err)
	}
}

// ── Start ────────────────────────────────────────────────────────────────────

func TestStart_DeliversFirstFinalOnce(t *testing.T) {
	sess := sttmock.NewSession(
		types.Transcript{Text: "  ", IsFinal: true},
		types.Transcript{Text: " 我會懷疑自己 ", IsFinal: true},
		types.Transcript{Text: "第二句", IsFinal: true},
	)
	p := &sttmock.Provider{Session: sess}
	src := mic()
	a := New(p, src)
	rec := newRecorder()

	if err := a.Start(context.Background(), rec.onFinal, "懷疑", "信任"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript delivered")
	}
	_ = a.Close()

	if got := rec.all(); len(got) != 1 || got[0] != "我會懷疑自己" {
		t.Errorf("callbacks = %q, want one trimmed transcript", got)
	}
	if a.Listening() {
		t.Error("still listening after final transcript")
	}
	cfg := p.Calls()[0].Cfg
	if cfg.Language != "zh-TW" || cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Errorf("stream config = %+v", cfg)
	}
	if len(cfg.Hints) != 2 || cfg.Hints[0] != "懷疑" {
		t.Errorf("hints = %q", cfg.Hints)
	}
	if opens := src.Opens(); len(opens) != 1 || opens[0] != audio.CaptureFormat {
		t.Errorf("microphone opens = %v", opens)
	}
	if sess.CloseCalls() == 0 {
		t.Error("session not closed")
	}
	if len(sess.Chunks()) == 0 {
		t.Error("no audio forwarded")
	}
}

func TestStart_AlreadyListening(t *testing.T) {
	a := New(&sttmock.Provider{}, mic())
	if err := a.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Close()
	if err := a.Start(context.Background(), nil); !errors.Is(err, ErrListening) {
		t.Errorf("second Start = %v, want ErrListening", err)
	}
}

func TestStart_StreamError(t *testing.T) {
	a := New(&sttmock.Provider{StartStreamErr: errors.New("401")}, mic())
	if err := a.Start(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if a.Listening() {
		t.Error("listening after failed start")
	}
}

func TestStart_MicrophoneError(t *testing.T) {
	sess := sttmock.NewSession()
	a := New(&sttmock.Provider{Session: sess}, &audiomock.Source{Err: errors.New("device busy")})
	if err := a.Start(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if sess.CloseCalls() != 1 {
		t.Errorf("session close calls = %d, want 1", sess.CloseCalls())
	}
}

// ── Stop ─────────────────────────────────────────────────────────────────────

func TestStop_SuppressesCallback(t *testing.T) {
	p := &sttmock.Provider{Session: sttmock.NewSession()}
	a := New(p, mic())
	rec := newRecorder()

	if err := a.Start(context.Background(), rec.onFinal); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.Listening() {
		t.Fatal("not listening after Start")
	}
	a.Stop()
	_ = a.Close()

	if got := rec.all(); len(got) != 0 {
		t.Errorf("callbacks after Stop = %q", got)
	}
	if a.Listening() {
		t.Error("still listening after Stop")
	}

	p.Session = sttmock.NewSession(types.Transcript{Text: "再試一次", IsFinal: true})
	if err := a.Start(context.Background(), rec.onFinal); err != nil {
		t.Fatalf("restart: %v", err)
	}
	<-rec.got
	_ = a.Close()
	if got := rec.all(); len(got) != 1 {
		t.Errorf("callbacks = %q, want one after restart", got)
	}
}

func TestStop_InterruptsSlowConnect(t *testing.T) {
	dialing := make(chan struct{})
	p := &sttmock.Provider{Connect: func(ctx context.Context) error {
		close(dialing)
		<-ctx.Done()
		return ctx.Err()
	}}
	a := New(p, mic())

	done := make(chan error, 1)
	go func() { done <- a.Start(context.Background(), nil) }()
	<-dialing

	if !a.Listening() {
		t.Error("Listening() = false while connecting")
	}
	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind the connect")
	}
	if err := <-done; !errors.Is(err, ErrStopped) {
		t.Errorf("Start = %v, want ErrStopped", err)
	}
	if a.Listening() {
		t.Error("listening after Stop")
	}

	p.Connect = nil
	p.Session = sttmock.NewSession(types.Transcript{Text: "好", IsFinal: true})
	rec := newRecorder()
	if err := a.Start(context.Background(), rec.onFinal); err != nil {
		t.Fatalf("restart: %v", err)
	}
	<-rec.got
	_ = a.Close()
}

func TestMaxDuration(t *testing.T) {
	a := New(&sttmock.Provider{Session: sttmock.NewSession()}, mic(), WithMaxDuration(20*time.Millisecond))
	rec := newRecorder()
	if err := a.Start(context.Background(), rec.onFinal); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitUntil(t, func() bool { return !a.Listening() })
	_ = a.Close()
	if got := rec.all(); len(got) != 0 {
		t.Errorf("callbacks = %q, want none", got)
	}
}

func TestSessionEndsWithoutTranscript(t *testing.T) {
	sess := sttmock.NewSession()
	a := New(&sttmock.Provider{Session: sess}, mic())
	rec := newRecorder()
	if err := a.Start(context.Background(), rec.onFinal); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = sess.Close()
	waitUntil(t, func() bool { return !a.Listening() })
	_ = a.Close()
	if got := rec.all(); len(got) != 0 {
		t.Errorf("callbacks = %q, want none", got)
	}
}

func TestLanguageOption(t *testing.T) {
	if got := New(nil, nil, WithLanguage("zh-CN")).Language(); got != "zh-CN" {
		t.Errorf("Language() = %q", got)
	}
	if got := New(nil, nil, WithLanguage("")).Language(); got != DefaultLanguage {
		t.Errorf("Language() = %q, want default", got)
	}
}
