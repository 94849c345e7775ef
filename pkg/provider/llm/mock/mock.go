// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the reasoning prompts sent by the
// interrogation engine and to feed controlled model output without a live
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Response: &llm.CompletionResponse{Content: "RESPONSE_TYPE: COOPERATIVE\n..."},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/nholtz/roomwarden/pkg/provider/llm"
)

// Call records a single invocation of Complete.
type Call struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// A zero value returns an empty response and a nil error. Set Err to inject
// failures, or Responses to script a sequence of turns.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Responses is empty.
	Response *llm.CompletionResponse

	// Responses, when non-empty, is consumed one element per Complete call.
	// After the slice is exhausted, Response (or an empty response) is used.
	Responses []*llm.CompletionResponse

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Calls records every invocation in order.
	Calls []Call
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})

	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) > 0 {
		resp := p.Responses[0]
		p.Responses = p.Responses[1:]
		return resp, nil
	}
	if p.Response != nil {
		return p.Response, nil
	}
	return &llm.CompletionResponse{}, nil
}

// CallCount returns the number of Complete invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
