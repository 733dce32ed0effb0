// Package narration drives read-aloud controls.
//
// An [Engine] is bound to one control and narrates whatever text it was
// last given. Play toggles, Replay restarts from the beginning, and the
// volume applies live. Each Engine caches the decoded audio for its current
// text, so repeated plays of the same text reach the backend once. A
// response for text the control no longer shows is never cached.
package narration

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/pkg/audio"
	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
)

// DefaultVolume is the initial playback level.
const DefaultVolume = 0.8

// ErrClosed is returned by operations on a closed [Engine].
var ErrClosed = errors.New("narration: engine closed")

// State is what the control currently shows.
type State int

const (
	Idle State = iota
	Loading
	Playing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	}
	return "unknown"
}

// Engine narrates one control's text. It is safe for concurrent use.
type Engine struct {
	synth   *Synthesizer
	sink    audio.Sink
	gain    *audio.Gain
	metrics *observe.Metrics
	log     *slog.Logger
	onState func(State)

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	text     string
	cached   *audio.Buffer
	state    State
	autoplay bool
	stopPlay context.CancelFunc
	playID   uint64
	closed   bool

	emitMu  sync.Mutex
	emitted State
}

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithVolume sets the initial level in [0, 1]. Defaults to [DefaultVolume].
func WithVolume(v float32) EngineOption {
	return func(e *Engine) { e.gain.Store(v) }
}

// WithStateHook is called after every state change, in order, with the new
// state. It must not block.
func WithStateHook(fn func(State)) EngineOption {
	return func(e *Engine) { e.onState = fn }
}

// WithMetrics records cache hits and misses on m.
func WithMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine returns an idle engine. sink may be nil when there is no local
// playback device; Play then reports [ErrUnavailable] but Render still works.
func NewEngine(synth *Synthesizer, sink audio.Sink, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		synth:  synth,
		sink:   sink,
		gain:   audio.NewGain(DefaultVolume),
		log:    slog.Default(),
		base:   ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Available reports whether Play can produce sound.
func (e *Engine) Available() bool { return e.synth.Available() && e.sink != nil }

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Text returns the text currently bound to the control.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// Volume returns the current level.
func (e *Engine) Volume() float32 { return e.gain.Load() }

// SetVolume changes the level of current and future playback. Values are
// clamped to [0, 1].
func (e *Engine) SetVolume(v float32) { e.gain.Store(v) }

// SetText binds new text. A different value drops the cached audio, stops
// playback and abandons any pending load.
func (e *Engine) SetText(text string) {
	e.mu.Lock()
	if text == e.text {
		e.mu.Unlock()
		return
	}
	e.text = text
	e.cached = nil
	e.autoplay = false
	e.stopLocked()
	e.state = Idle
	e.mu.Unlock()
	e.emit()
}

// Play toggles narration: it stops audio that is playing, does nothing
// while loading, and otherwise plays the current text, synthesizing it
// first when it is not cached. Play returns once playback or loading has
// started; a failed load leaves the engine idle and is only logged.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	var err error
	switch e.state {
	case Playing:
		e.stopLocked()
		e.state = Idle
	case Idle:
		err = e.startLocked(ctx)
	}
	e.mu.Unlock()
	e.emit()
	return err
}

// Replay stops current playback and plays the current text from the start.
// It does nothing while loading.
func (e *Engine) Replay(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	var err error
	if e.state != Loading {
		e.stopLocked()
		e.state = Idle
		err = e.startLocked(ctx)
	}
	e.mu.Unlock()
	e.emit()
	return err
}

// Stop ends playback. A pending load still fills the cache but will not
// start playing.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.autoplay = false
	if e.state == Playing {
		e.stopLocked()
		e.state = Idle
	}
	e.mu.Unlock()
	e.emit()
}

// Render returns the decoded audio for the current text, synthesizing it
// when it is not cached. It does not play anything.
func (e *Engine) Render(ctx context.Context) (*audio.Buffer, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	text, buf := e.text, e.cached
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordNarrationCache(ctx, buf != nil)
	}
	if buf != nil {
		return buf, nil
	}
	buf, err := e.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.text == text && e.cached == nil {
		e.cached = buf
	}
	e.mu.Unlock()
	return buf, nil
}

// Wait blocks until pending loads and playback have finished.
func (e *Engine) Wait() { e.wg.Wait() }

// Close stops playback, abandons pending loads and waits for them to
// unwind. Further calls to Play, Replay and Render fail with [ErrClosed].
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.autoplay = false
	e.stopLocked()
	e.state = Idle
	e.mu.Unlock()

	e.cancel()
	e.emit()
	e.wg.Wait()
	return nil
}

func (e *Engine) startLocked(ctx context.Context) error {
	if e.text == "" {
		return nil
	}
	if e.cached != nil {
		if e.metrics != nil {
			e.metrics.RecordNarrationCache(ctx, true)
		}
		return e.playLocked(e.cached)
	}
	if !e.Available() {
		return ErrUnavailable
	}
	if e.metrics != nil {
		e.metrics.RecordNarrationCache(ctx, false)
	}

	e.state = Loading
	e.autoplay = true
	text := e.text
	// The load belongs to the engine, not to the caller: keep the span,
	// drop the caller's cancellation.
	lctx := trace.ContextWithSpan(e.base, trace.SpanFromContext(ctx))
	e.wg.Add(1)
	go e.load(lctx, text)
	return nil
}

func (e *Engine) load(ctx context.Context, text string) {
	defer e.wg.Done()
	buf, err := e.synth.Synthesize(ctx, text)

	e.mu.Lock()
	if e.closed || e.text != text {
		e.mu.Unlock()
		e.log.Debug("narration: dropping result for stale text")
		return
	}
	if err != nil {
		if e.state == Loading {
			e.state = Idle
		}
		e.autoplay = false
		e.mu.Unlock()
		e.emit()
		if errors.Is(err, tts.ErrNoAudio) {
			e.log.Info("narration: no audio returned")
		} else {
			e.log.Warn("narration: synthesis failed", "err", err)
		}
		return
	}
	if e.cached == nil {
		e.cached = buf
	}
	if e.state == Loading {
		if e.autoplay {
			e.autoplay = false
			if err := e.playLocked(e.cached); err != nil {
				e.state = Idle
			}
		} else {
			e.state = Idle
		}
	}
	e.mu.Unlock()
	e.emit()
}

func (e *Engine) playLocked(buf *audio.Buffer) error {
	if e.sink == nil {
		return ErrUnavailable
	}
	ctx, cancel := context.WithCancel(e.base)
	e.playID++
	id := e.playID
	e.stopPlay = cancel
	e.state = Playing

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := e.sink.Play(ctx, buf, e.gain)
		cancel()

		e.mu.Lock()
		finished := e.playID == id
		if finished {
			e.stopPlay = nil
			e.state = Idle
		}
		e.mu.Unlock()
		if finished {
			e.emit()
		}
		if err != nil {
			e.log.Warn("narration: playback failed", "err", err)
		}
	}()
	return nil
}

func (e *Engine) stopLocked() {
	if e.stopPlay != nil {
		e.stopPlay()
		e.stopPlay = nil
		e.playID++
	}
}

// emit reports the current state to the hook if it changed since the last
// report. Serialised so the hook sees states in order.
func (e *Engine) emit() {
	if e.onState == nil {
		return
	}
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	s := e.State()
	if s == e.emitted {
		return
	}
	e.emitted = s
	e.onState(s)
}
