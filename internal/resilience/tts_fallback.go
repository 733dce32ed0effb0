package resilience

import (
	"context"

	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// TTSFallback is a [tts.Provider] that fails over across speech backends.
//
// Every member must produce the same PCM format, since the narration engine
// decodes whatever comes back with one fixed layout.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a failover provider preferring primary.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a secondary backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.Add(name, p)
}

// Providers returns backend names in try order.
func (f *TTSFallback) Providers() []string { return f.group.Names() }

// Synthesize implements [tts.Provider]. A backend that answers without audio
// counts as failed.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (string, error) {
	return Do(ctx, f.group, func(p tts.Provider) (string, error) {
		payload, err := p.Synthesize(ctx, text, voice)
		if err != nil {
			return "", err
		}
		if payload == "" {
			return "", tts.ErrNoAudio
		}
		return payload, nil
	})
}
