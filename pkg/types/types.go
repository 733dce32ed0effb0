// Package types defines the small set of values shared between the provider
// packages and the curriculum core.
//
// Each internal package owns its domain types; only data that crosses a
// provider boundary lives here to avoid import cycles.
package types

import "time"

// Message is a single entry in a text-generation request.
type Message struct {
	// Role is the speaker role: "system", "user" or "assistant".
	Role string

	// Content is the plain-text message body.
	Content string
}

// VoiceProfile selects a synthesis voice on a TTS provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier (e.g. "Kore", "alloy").
	ID string

	// Name is a human-readable label. Optional.
	Name string

	// Provider names the TTS backend the voice belongs to.
	Provider string

	// Language is the BCP-47 tag the voice is intended for (e.g. "zh-TW").
	Language string
}

// Transcript is a speech-to-text result.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	// Interim results are never surfaced to learners.
	IsFinal bool

	// Confidence is in [0, 1]; zero when the provider does not report it.
	Confidence float64

	// Duration is the length of the recognised utterance, when known.
	Duration time.Duration
}
