// Package capture turns one spoken answer into text.
//
// An [Adapter] streams microphone audio to a speech-to-text backend and
// hands the first committed transcript to its caller exactly once, then
// stops by itself. Errors end capture without a callback; so does Stop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/pkg/audio"
	"github.com/MrWong99/wisdomtrail/pkg/provider/stt"
)

// Defaults for an [Adapter].
const (
	DefaultLanguage    = "zh-TW"
	DefaultMaxDuration = 30 * time.Second
)

// chunkSize is 100 ms of capture audio.
var chunkSize = audio.CaptureFormat.BytesPerSecond() / 10

var (
	// ErrUnavailable is returned by Start when capture is not possible on
	// this host.
	ErrUnavailable = errors.New("capture: speech recognition unavailable")

	// ErrListening is returned by Start while a capture is running.
	ErrListening = errors.New("capture: already listening")

	// ErrStopped is returned by Start when Stop ran before the stream was
	// connected.
	ErrStopped = errors.New("capture: stopped while connecting")
)

// Adapter captures one utterance at a time. It is safe for concurrent use.
type Adapter struct {
	provider    stt.Provider
	source      audio.Source
	name        string
	language    string
	maxDuration time.Duration
	metrics     *observe.Metrics
	log         *slog.Logger
	available   bool

	mu        sync.Mutex
	listening bool
	cancel    context.CancelFunc
	id        uint64
	wg        sync.WaitGroup
}

// Option configures an [Adapter].
type Option func(*Adapter)

// WithLanguage sets the recognition locale. Defaults to [DefaultLanguage].
func WithLanguage(lang string) Option {
	return func(a *Adapter) {
		if lang != "" {
			a.language = lang
		}
	}
}

// WithMaxDuration ends a capture that produced no transcript in time.
func WithMaxDuration(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.maxDuration = d
		}
	}
}

// WithMetrics records capture duration and provider outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.log = l }
}

// WithProviderName labels provider metrics. Defaults to "stt".
func WithProviderName(name string) Option {
	return func(a *Adapter) { a.name = name }
}

// New returns an adapter. Availability is decided here, once: both a
// backend and a microphone source are required.
func New(p stt.Provider, src audio.Source, opts ...Option) *Adapter {
	a := &Adapter{
		provider:    p,
		source:      src,
		name:        "stt",
		language:    DefaultLanguage,
		maxDuration: DefaultMaxDuration,
		log:         slog.Default(),
		available:   p != nil && src != nil,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Available reports whether Start can work. Front ends hide dictation
// controls when it is false.
func (a *Adapter) Available() bool { return a.available }

// Language returns the recognition locale.
func (a *Adapter) Language() string { return a.language }

// Listening reports whether a capture is running.
func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// Start begins capturing. onFinal receives the first non-empty final
// transcript, at most once, after which capture stops. It runs on the
// adapter's goroutine, after the capture has already ended. hints bias
// recognition towards expected words where the backend supports it.
func (a *Adapter) Start(ctx context.Context, onFinal func(string), hints ...string) error {
	if !a.available {
		return ErrUnavailable
	}
	a.mu.Lock()
	if a.listening {
		a.mu.Unlock()
		return ErrListening
	}
	ctx, cancel := context.WithTimeout(ctx, a.maxDuration)
	a.id++
	id := a.id
	a.listening = true
	a.cancel = cancel
	a.mu.Unlock()

	// The dial runs unlocked so Stop can cancel a slow connect.
	sess, mic, err := a.open(ctx, hints)

	a.mu.Lock()
	defer a.mu.Unlock()
	current := a.id == id && a.listening
	if err != nil || !current {
		if current {
			a.stopLocked()
		}
		cancel()
		if mic != nil {
			_ = mic.Close()
		}
		if sess != nil {
			_ = sess.Close()
		}
		if !current {
			return ErrStopped
		}
		return err
	}
	a.wg.Add(2)
	go a.pump(ctx, mic, sess)
	go a.run(ctx, id, mic, sess, onFinal)
	return nil
}

func (a *Adapter) open(ctx context.Context, hints []string) (stt.SessionHandle, io.ReadCloser, error) {
	sess, err := a.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: audio.CaptureFormat.SampleRate,
		Channels:   audio.CaptureFormat.Channels,
		Language:   a.language,
		Hints:      hints,
	})
	if err != nil {
		a.recordProvider(ctx, observe.StatusError)
		return nil, nil, fmt.Errorf("capture: start stream: %w", err)
	}
	mic, err := a.source.Open(ctx, audio.CaptureFormat)
	if err != nil {
		return sess, nil, fmt.Errorf("capture: open microphone: %w", err)
	}
	return sess, mic, nil
}

// Stop ends the current capture. No callback fires afterwards.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

// Close stops any capture and waits for its goroutines to exit.
func (a *Adapter) Close() error {
	a.Stop()
	a.wg.Wait()
	return nil
}

func (a *Adapter) stopLocked() {
	if !a.listening {
		return
	}
	a.listening = false
	a.id++
	a.cancel()
}

// pump forwards microphone audio until the stream ends or the session
// rejects it.
func (a *Adapter) pump(ctx context.Context, mic io.Reader, sess stt.SessionHandle) {
	defer a.wg.Done()
	buf := make([]byte, chunkSize)
	for ctx.Err() == nil {
		n, err := mic.Read(buf)
		if n > 0 {
			if serr := sess.SendAudio(buf[:n]); serr != nil {
				if !errors.Is(serr, stt.ErrSessionClosed) {
					a.log.Warn("capture: send audio", "err", serr)
				}
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// run waits for the first final transcript, delivers it if this capture is
// still current, and tears the capture down.
func (a *Adapter) run(ctx context.Context, id uint64, mic io.Closer, sess stt.SessionHandle, onFinal func(string)) {
	defer a.wg.Done()
	start := time.Now()

	var text string
	finals := sess.Finals()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case tr, ok := <-finals:
			if !ok {
				break loop
			}
			if t := strings.TrimSpace(tr.Text); t != "" {
				text = t
				break loop
			}
		}
	}

	_ = mic.Close()
	if err := sess.Close(); err != nil {
		a.log.Debug("capture: close session", "err", err)
	}

	a.mu.Lock()
	current := a.id == id && a.listening
	if current {
		a.listening = false
		a.cancel()
	}
	a.mu.Unlock()

	status := observe.StatusOK
	switch {
	case text != "":
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status = observe.StatusTimeout
		a.log.Info("capture: no transcript before max duration", "max", a.maxDuration)
	default:
		status = observe.StatusError
	}
	if !current {
		return
	}
	a.recordProvider(ctx, status)
	if a.metrics != nil {
		a.metrics.RecordCapture(context.WithoutCancel(ctx), time.Since(start), status)
	}
	if text != "" && onFinal != nil {
		onFinal(text)
	}
}

func (a *Adapter) recordProvider(ctx context.Context, status string) {
	if a.metrics != nil {
		a.metrics.RecordProviderRequest(context.WithoutCancel(ctx), a.name, observe.KindSTT, status)
	}
}
