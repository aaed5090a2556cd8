// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts sent by the question
// generator and to feed controlled responses without a live LLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "What did you do today?"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ioanna/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete. May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// Responses, when non-empty, are returned in order instead of
	// CompleteResponse. The last entry repeats once the list is exhausted.
	Responses []string

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// ModelName is returned by Model.
	ModelName string

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	if len(p.Responses) > 0 {
		return &llm.CompletionResponse{Content: p.Responses[min(i, len(p.Responses)-1)]}, nil
	}
	return p.CompleteResponse, nil
}

// Model returns ModelName.
func (p *Provider) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelName
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
