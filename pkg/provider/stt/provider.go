// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (Deepgram, a local
// whisper.cpp server) behind a streaming session: the caller pushes raw PCM
// with SendAudio and reads authoritative results from Finals. Interim
// guesses are never surfaced.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition locale for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 for microphone capture).
	SampleRate int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Language is the BCP-47 tag for recognition, e.g. "zh-TW".
	Language string

	// Hints are words the learner is likely to say, such as the options of
	// a choice question. Providers without vocabulary biasing ignore them.
	Hints []string
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM. Calling it after
	// Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Finals emits committed transcripts. The channel is closed when the
	// session ends.
	Finals() <-chan types.Transcript

	// Close terminates the session and releases its resources. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new transcription session ready for audio.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
