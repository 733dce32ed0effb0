// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one narration text into one audio payload. Every
// provider returns the same wire shape: base64-encoded, headerless, 16-bit
// little-endian mono PCM at 24 kHz (see [audio.NarrationFormat]). Decoding is
// left to the caller so cached payloads stay provider-agnostic.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// ErrNoAudio is returned when the backend answered but carried no audio.
// Callers treat it as a recoverable "nothing to play".
var ErrNoAudio = errors.New("tts: no audio in response")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns the base64
	// PCM payload. An empty payload is reported as ErrNoAudio.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (string, error)
}
