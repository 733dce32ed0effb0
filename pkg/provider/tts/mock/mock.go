// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Payload: base64.StdEncoding.EncodeToString(pcm)}
//	payload, _ := p.Synthesize(ctx, "生活提問：…", voice)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Payload is returned by Synthesize when SynthesizeFunc is nil.
	Payload string

	// Err, if non-nil, is returned instead of Payload.
	Err error

	// SynthesizeFunc, when set, computes the result. It runs without the
	// mock's lock held so it may block.
	SynthesizeFunc func(ctx context.Context, text string) (string, error)

	calls []SynthesizeCall
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, SynthesizeCall{Text: text, Voice: voice})
	fn, payload, err := p.SynthesizeFunc, p.Payload, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return "", err
	}
	if payload == "" {
		return "", tts.ErrNoAudio
	}
	return payload, nil
}

// Calls returns a copy of every recorded Synthesize call.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
