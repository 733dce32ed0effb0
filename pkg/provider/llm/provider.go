// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote model API (Gemini, OpenAI, or any backend reachable
// through any-llm) behind a single blocking Complete call. The curriculum only
// ever asks for one short reflective passage at a time, so there is no
// streaming or tool-calling surface.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/wisdomtrail/pkg/types"
)

// ErrEmptyResponse is returned when the backend answered without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Usage holds token accounting returned by the backend, when available.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to answer.
type CompletionRequest struct {
	// SystemPrompt is the persona instruction. Providers without a native
	// system slot prepend it as a "system" message.
	SystemPrompt string

	// Messages is the ordered conversation; the last entry drives the reply.
	Messages []types.Message

	// Temperature in [0, 2]. Zero means provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
