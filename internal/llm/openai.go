package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultBaseURL is the Cerebras OpenAI-compatible endpoint
const DefaultBaseURL = "https://api.cerebras.ai/v1/"

// ClientConfig configures an OpenAI-compatible client for one profile
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Profile Profile
	// Timeout bounds a single HTTP attempt. Zero leaves it to the caller's context.
	Timeout time.Duration
	Logger  *slog.Logger
}

// OpenAIClient implements LLMClient for any OpenAI-compatible API
type OpenAIClient struct {
	client  *openai.Client
	baseURL string
	logger  *slog.Logger

	mu      sync.RWMutex
	profile Profile
}

// NewOpenAIClient creates a new client. Retries are handled by the SDK with
// the profile's MaxRetries.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	baseURL := normalizeBaseURL(cfg.BaseURL)
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(cfg.Profile.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := openai.NewClient(opts...)
	return &OpenAIClient{
		client:  &client,
		baseURL: baseURL,
		logger:  logger,
		profile: cfg.Profile,
	}
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL
}

func (c *OpenAIClient) params(req *LLMRequest) openai.ChatCompletionNewParams {
	c.mu.RLock()
	p := c.profile
	c.mu.RUnlock()

	if req.Model != "" {
		p.Model = req.Model
	}
	if req.Temperature > 0 {
		p.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		p.TopP = req.TopP
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = req.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:       p.Model,
		Messages:    req.Messages,
		Temperature: openai.Float(p.Temperature),
		TopP:        openai.Float(p.TopP),
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.MaxTokens))
	}
	return params
}

// StreamChat implements LLMClient interface with real streaming
func (c *OpenAIClient) StreamChat(ctx context.Context, req *LLMRequest, callback func(*StreamingChunk) error) error {
	params := c.params(req)
	c.logger.Debug("llm stream request", "model", params.Model, "messages", len(req.Messages), "base_url", c.baseURL)

	stream := (*c.client).Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	chunkCount := 0
	tokensUsed := 0
	sawDone := false
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			tokensUsed = int(chunk.Usage.TotalTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		chunkCount++

		choice := chunk.Choices[0]
		streamingChunk := &StreamingChunk{
			Content:    choice.Delta.Content,
			Done:       choice.FinishReason != "",
			TokensUsed: tokensUsed,
		}
		if streamingChunk.Done {
			sawDone = true
		}
		if err := callback(streamingChunk); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("llm streaming error after %d chunks: %w", chunkCount, err)
	}
	if !sawDone {
		if err := callback(&StreamingChunk{Done: true, TokensUsed: tokensUsed}); err != nil {
			return err
		}
	}

	c.logger.Debug("llm stream completed", "model", params.Model, "chunks", chunkCount, "tokens", tokensUsed)
	return nil
}

// Chat implements LLMClient interface for non-streaming
func (c *OpenAIClient) Chat(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	params := c.params(req)
	c.logger.Debug("llm request", "model", params.Model, "messages", len(req.Messages), "base_url", c.baseURL)

	resp, err := (*c.client).Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("llm API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in llm response")
	}

	choice := resp.Choices[0]
	return &LLMResponse{
		Content:      choice.Message.Content,
		Model:        params.Model,
		FinishReason: string(choice.FinishReason),
		TokensUsed:   int(resp.Usage.TotalTokens),
	}, nil
}

// SetModel updates the model for this client
func (c *OpenAIClient) SetModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return fmt.Errorf("model is required")
	}
	c.mu.Lock()
	c.profile.Model = model
	c.mu.Unlock()
	c.logger.Info("llm client model updated", "model", model)
	return nil
}

// GetModel returns the current model
func (c *OpenAIClient) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile.Model
}

// Profile returns the client's current model parameters
func (c *OpenAIClient) Profile() Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.profile
}
