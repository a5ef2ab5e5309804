// Package llm defines the Provider interface for chat-completion backends.
//
// The caption pipeline uses an LLM only as one possible translation engine
// (see the translate/llmtranslate package), so the interface is limited to
// single-shot completions.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Role values accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a chat conversation.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string

	// Content is the plain-text message body.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is usually from
	// the user role.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero selects the
	// provider default.
	Temperature float64

	// MaxTokens caps the number of generated tokens. Zero selects the provider
	// default.
	MaxTokens int

	// SystemPrompt is injected before Messages as a system-role message.
	SystemPrompt string
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	// Content is the generated text.
	Content string

	// Usage reports token consumption for this request.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and blocks until the full reply is available or ctx
	// is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier used for requests.
	Model() string
}
