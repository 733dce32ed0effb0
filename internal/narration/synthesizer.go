package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/pkg/audio"
	"github.com/MrWong99/wisdomtrail/pkg/provider/tts"
	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// Defaults for a [Synthesizer].
const (
	DefaultVoice   = "Kore"
	DefaultTimeout = 30 * time.Second
)

// ErrUnavailable is returned when no speech synthesis backend is configured.
var ErrUnavailable = errors.New("narration: speech synthesis unavailable")

// Synthesizer turns narration text into decoded audio. Concurrent requests
// for the same text share one backend call, so any number of engines (one
// per learner on the HTTP server) can sit on top of a single Synthesizer.
type Synthesizer struct {
	provider tts.Provider
	name     string
	voice    types.VoiceProfile
	timeout  time.Duration
	metrics  *observe.Metrics
	log      *slog.Logger

	group singleflight.Group
}

// SynthOption configures a [Synthesizer].
type SynthOption func(*Synthesizer)

// WithVoice selects the provider voice. Defaults to [DefaultVoice].
func WithVoice(v types.VoiceProfile) SynthOption {
	return func(s *Synthesizer) {
		if v.ID != "" {
			s.voice = v
		}
	}
}

// WithTimeout bounds one backend call. Defaults to [DefaultTimeout].
func WithTimeout(d time.Duration) SynthOption {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSynthMetrics records synthesis latency and outcome on m.
func WithSynthMetrics(m *observe.Metrics) SynthOption {
	return func(s *Synthesizer) { s.metrics = m }
}

// WithSynthLogger overrides the default logger.
func WithSynthLogger(l *slog.Logger) SynthOption {
	return func(s *Synthesizer) { s.log = l }
}

// WithProviderName labels provider metrics. Defaults to "tts".
func WithProviderName(name string) SynthOption {
	return func(s *Synthesizer) { s.name = name }
}

// NewSynthesizer wraps p. A nil p yields a synthesizer that reports
// [ErrUnavailable] for every request.
func NewSynthesizer(p tts.Provider, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{
		provider: p,
		name:     "tts",
		voice:    types.VoiceProfile{ID: DefaultVoice, Language: "zh-TW"},
		timeout:  DefaultTimeout,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Available reports whether a backend is configured.
func (s *Synthesizer) Available() bool { return s != nil && s.provider != nil }

// Voice returns the configured voice.
func (s *Synthesizer) Voice() types.VoiceProfile { return s.voice }

// Synthesize returns decoded audio for text. A backend answer without audio
// is reported as [tts.ErrNoAudio]. The backend call outlives cancellation of
// ctx so that other callers waiting on the same text still get a result; it
// is bounded by the configured timeout instead.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}
	ch := s.group.DoChan(text, func() (any, error) {
		return s.synthesize(context.WithoutCancel(ctx), text)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*audio.Buffer), nil
	}
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) (*audio.Buffer, error) {
	ctx, span := observe.StartSpan(ctx, "narration.synthesize")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	payload, err := s.provider.Synthesize(ctx, text, s.voice)
	var buf *audio.Buffer
	if err == nil {
		buf, err = audio.DecodeBase64PCM(payload, audio.NarrationFormat)
		if errors.Is(err, audio.ErrEmptyPayload) {
			err = tts.ErrNoAudio
		}
	}

	status := observe.StatusOK
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = observe.StatusTimeout
	case err != nil:
		status = observe.StatusError
	}
	if s.metrics != nil {
		s.metrics.RecordSynthesis(ctx, time.Since(start), status)
		s.metrics.RecordProviderRequest(ctx, s.name, observe.KindTTS, status)
	}
	if err != nil {
		return nil, fmt.Errorf("narration: synthesize: %w", err)
	}
	s.log.Debug("narration: synthesized", "runes", len([]rune(text)), "duration", buf.Duration())
	return buf, nil
}
