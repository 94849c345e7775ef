// Package llm defines the Provider interface for the language-model backend
// used by the interrogation reasoning service and trusted chit-chat.
//
// A Provider wraps a remote or local model API (Gemini, OpenAI, Anthropic,
// Ollama, ...) and exposes a single blocking completion call. The guard never
// streams model output — every reasoning turn is one bounded request whose
// result is parsed as a whole — so the interface is deliberately small.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled.
package llm

import "context"

// Message is a single entry in a conversation history sent to the model.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may be zero for backends that do not report
// usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty; a zero-value request is invalid.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history. Providers without a native system slot must
	// prepend it as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int
}

// CompletionResponse is the model's full reply to a [CompletionRequest].
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
