package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	cfg ClientConfig
}

func (s *stubClient) StreamChat(ctx context.Context, req *LLMRequest, callback func(*StreamingChunk) error) error {
	return nil
}

func (s *stubClient) Chat(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	return &LLMResponse{Model: s.cfg.Profile.Model}, nil
}

func (s *stubClient) SetModel(model string) error { return nil }

func (s *stubClient) GetModel() string { return s.cfg.Profile.Model }

func TestFactoryCachesClientPerTask(t *testing.T) {
	f := NewFactory(FactoryConfig{APIKey: "k", BaseURL: "http://llm.local/v1"})
	created := 0
	f.newClient = func(c ClientConfig) LLMClient {
		created++
		return &stubClient{cfg: c}
	}

	q1, err := f.Client(TaskQuery)
	require.NoError(t, err)
	q2, err := f.Client(TaskQuery)
	require.NoError(t, err)
	assert.Same(t, q1, q2)

	md, err := f.Client(TaskMarkdown)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, "gpt-oss-120b", q1.GetModel())
	assert.Equal(t, "llama3.1-8b", md.GetModel())
	assert.Equal(t, "http://llm.local/v1/", md.(*stubClient).cfg.BaseURL)
}

func TestFactoryErrors(t *testing.T) {
	f := NewFactory(FactoryConfig{APIKey: "k"})
	_, err := f.Client(TaskType("vision"))
	assert.True(t, errors.Is(err, ErrUnsupportedTask))

	noKey := NewFactory(FactoryConfig{})
	_, err = noKey.Client(TaskQuery)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestFactoryProfileOverride(t *testing.T) {
	f := NewFactory(FactoryConfig{
		APIKey:   "k",
		Profiles: map[TaskType]Profile{TaskMarkdown: {Model: "custom", Temperature: 0.3, TopP: 0.5}},
	})
	f.newClient = func(c ClientConfig) LLMClient { return &stubClient{cfg: c} }

	md, err := f.Client(TaskMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "custom", md.GetModel())
	assert.Equal(t, 0.3, md.(*stubClient).cfg.Profile.Temperature)
	q, err := f.Client(TaskQuery)
	require.NoError(t, err)
	assert.Equal(t, "gpt-oss-120b", q.GetModel())
}
