package llm

import (
	"context"

	"github.com/openai/openai-go"
)

// LLMRequest represents a request to the LLM. Zero sampling values fall back
// to the client's task profile.
type LLMRequest struct {
	Messages    []openai.ChatCompletionMessageParamUnion `json:"messages"`
	Model       string                                   `json:"model,omitempty"`
	MaxTokens   int                                      `json:"max_tokens,omitempty"`
	Temperature float64                                  `json:"temperature,omitempty"`
	TopP        float64                                  `json:"top_p,omitempty"`
}

// StreamingChunk represents a chunk from streaming LLM response
type StreamingChunk struct {
	Content    string `json:"content"`
	Done       bool   `json:"done"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// StreamChat sends a chat completion request and streams the response
	StreamChat(ctx context.Context, req *LLMRequest, callback func(*StreamingChunk) error) error

	// Chat sends a chat completion request and returns the complete response
	Chat(ctx context.Context, req *LLMRequest) (*LLMResponse, error)

	// SetModel updates the model for this client
	SetModel(model string) error

	// GetModel returns the current model
	GetModel() string
}

// LLMResponse represents a complete LLM response
type LLMResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used"`
}

// UserPrompt builds a single user message request
func UserPrompt(prompt string) *LLMRequest {
	return &LLMRequest{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
}
