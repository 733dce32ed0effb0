package resilience

import (
	"context"

	"github.com/MrWong99/wisdomtrail/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over across text backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a failover provider preferring primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a secondary backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// Providers returns backend names in try order.
func (f *LLMFallback) Providers() []string { return f.group.Names() }

// Complete implements [llm.Provider]. An empty reply counts as a failure so
// the next backend gets a chance to answer.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || resp.Content == "" {
			return nil, llm.ErrEmptyResponse
		}
		return resp, nil
	})
}
