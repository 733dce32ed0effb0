// Package mock is a scripted llm.Provider for tests.
//
// Replies are consumed in order; once they run out the provider falls back
// to CompleteResponse and CompleteErr. CompleteFunc overrides both.
//
//	p := &mock.Provider{Replies: []string{"先問自己為什麼。", "再看結果。"}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/wisdomtrail/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Call is one recorded request.
type Call struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers Complete from its script. The zero value returns
// (nil, nil).
type Provider struct {
	// Replies are returned as response content, one per call.
	Replies []string

	CompleteResponse *llm.CompletionResponse
	CompleteErr      error

	// CompleteFunc runs without the lock held, so it may block.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu    sync.Mutex
	calls []Call
}

// Complete records req and returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	resp, err := p.CompleteResponse, p.CompleteErr
	if fn == nil && len(p.Replies) > 0 {
		resp, err = &llm.CompletionResponse{Content: p.Replies[0]}, nil
		p.Replies = p.Replies[1:]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Calls returns the requests seen so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
