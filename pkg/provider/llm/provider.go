// Package llm defines the Provider interface for Large Language Model backends.
//
// Ioanna only needs one-shot completions: the question generator sends a
// single system prompt (persona, recent context and memories) and uses the
// returned text as the next spoken question. Streaming and tool calling are
// not part of the contract.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/ioanna/pkg/types"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At least one of SystemPrompt or Messages must be set.
type CompletionRequest struct {
	// SystemPrompt is sent as a leading "system" message when non-empty.
	SystemPrompt string

	// Messages is the ordered conversation history following the system prompt.
	Messages []types.Message

	// Temperature controls output randomness. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero uses the provider
	// default.
	MaxTokens int
}

// Validate reports requests no backend can serve.
func (r CompletionRequest) Validate() error {
	if r.SystemPrompt == "" && len(r.Messages) == 0 {
		return errors.New("llm: request has neither system prompt nor messages")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("llm: temperature %v outside [0, 2]", r.Temperature)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("llm: negative max tokens %d", r.MaxTokens)
	}
	return nil
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier used for requests. It is reported in
	// logs and metrics.
	Model() string
}
