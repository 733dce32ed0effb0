// Package mock provides test doubles for [audio.Sink] and [audio.Source].
//
// Both mocks are safe for concurrent use and record every call so tests can
// assert on what was played or opened.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/wisdomtrail/pkg/audio"
)

// ─── Sink ────────────────────────────────────────────────────────────────────

// PlayCall records a single invocation of Sink.Play.
type PlayCall struct {
	Buffer *audio.Buffer
	// Gain is the level observed when playback started.
	Gain float32
}

// Sink is a mock implementation of [audio.Sink].
//
// When Block is true, Play does not return until its context is cancelled or
// Release is called, which lets tests observe the "playing" state.
type Sink struct {
	mu sync.Mutex

	// Block makes Play wait for cancellation or Release.
	Block bool

	// Err is returned from Play when non-nil.
	Err error

	calls   []PlayCall
	release chan struct{}
	started chan struct{}
}

var _ audio.Sink = (*Sink)(nil)

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, b *audio.Buffer, gain *audio.Gain) error {
	s.mu.Lock()
	s.calls = append(s.calls, PlayCall{Buffer: b, Gain: gain.Load()})
	if s.release == nil {
		s.release = make(chan struct{})
	}
	release := s.release
	block := s.Block
	err := s.Err
	if s.started != nil {
		close(s.started)
		s.started = nil
	}
	s.mu.Unlock()

	if !block {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case <-release:
		return err
	}
}

// Started returns a channel closed by the next call to Play.
func (s *Sink) Started() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.started = ch
	return ch
}

// Release unblocks every Play currently waiting.
func (s *Sink) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release != nil {
		close(s.release)
		s.release = nil
	}
}

// Calls returns a copy of all recorded Play calls.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlayCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source] that streams PCM from
// memory.
type Source struct {
	mu sync.Mutex

	// PCM is returned by every Open call.
	PCM []byte

	// Err is returned from Open when non-nil.
	Err error

	opens []audio.Format
}

var _ audio.Source = (*Source)(nil)

// Open implements [audio.Source]. When PCM is exhausted the stream blocks
// until ctx is cancelled or the stream is closed, like a live microphone.
func (s *Source) Open(ctx context.Context, f audio.Format) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens = append(s.opens, f)
	if s.Err != nil {
		return nil, s.Err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &liveReader{r: bytes.NewReader(s.PCM), ctx: ctx, cancel: cancel}, nil
}

// Opens returns the formats requested by each Open call.
func (s *Source) Opens() []audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.Format, len(s.opens))
	copy(out, s.opens)
	return out
}

type liveReader struct {
	r      *bytes.Reader
	ctx    context.Context
	cancel context.CancelFunc
}

func (l *liveReader) Read(p []byte) (int, error) {
	if l.r.Len() > 0 {
		return l.r.Read(p)
	}
	<-l.ctx.Done()
	return 0, io.EOF
}

func (l *liveReader) Close() error {
	l.cancel()
	return nil
}
