// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces.
//
// A Session emits its configured Finals once the first audio chunk arrives,
// which mirrors a real recogniser that only answers after hearing speech.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wisdomtrail/pkg/provider/stt"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	// FinalsToEmit are delivered after the first SendAudio call.
	FinalsToEmit []types.Transcript

	// SendAudioErr, if non-nil, is returned from SendAudio.
	SendAudioErr error

	finals  chan types.Transcript
	chunks  [][]byte
	emitted bool
	closed  bool
	closeN  int
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session that will emit finals after the first chunk.
func NewSession(finals ...types.Transcript) *Session {
	return &Session{
		FinalsToEmit: finals,
		finals:       make(chan types.Transcript, len(finals)+1),
	}
}

// SendAudio records the chunk and, on the first call, emits FinalsToEmit.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.chunks = append(s.chunks, c)
	if !s.emitted {
		s.emitted = true
		for _, t := range s.FinalsToEmit {
			s.finals <- t
		}
	}
	return nil
}

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Close implements stt.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeN++
	if !s.closed {
		s.closed = true
		close(s.finals)
	}
	return nil
}

// Chunks returns a copy of every audio chunk received.
func (s *Session) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// CloseCalls reports how many times Close was called.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeN
}

// StartStreamCall records a single invocation of StartStream.
type StartStreamCall struct {
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. A fresh empty session is created
	// when nil.
	Session *Session

	// StartStreamErr, if non-nil, is returned from StartStream.
	StartStreamErr error

	// Connect, if set, runs at the start of StartStream without the mock's
	// lock held, standing in for a slow dial. A non-nil error is returned.
	Connect func(ctx context.Context) error

	calls []StartStreamCall
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns Session or StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	connect := p.Connect
	p.mu.Unlock()
	if connect != nil {
		if err := connect(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, StartStreamCall{Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Calls returns a copy of every recorded StartStream call.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.calls))
	copy(out, p.calls)
	return out
}
