package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrMissingAPIKey is returned when no API key was configured
var ErrMissingAPIKey = errors.New("llm api key is not configured")

// FactoryConfig configures the per-task client factory
type FactoryConfig struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Profiles map[TaskType]Profile
	Logger   *slog.Logger
}

// Factory hands out one client per task type, created on first use
type Factory struct {
	apiKey   string
	baseURL  string
	timeout  time.Duration
	profiles map[TaskType]Profile
	logger   *slog.Logger

	mutex   sync.Mutex
	clients map[TaskType]LLMClient
	// newClient is swapped in tests.
	newClient func(ClientConfig) LLMClient
}

// NewFactory creates a factory. Missing profiles fall back to the defaults.
func NewFactory(cfg FactoryConfig) *Factory {
	profiles := DefaultProfiles()
	for task, p := range cfg.Profiles {
		profiles[task] = p
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		apiKey:   cfg.APIKey,
		baseURL:  normalizeBaseURL(cfg.BaseURL),
		timeout:  cfg.Timeout,
		profiles: profiles,
		logger:   logger,
		clients:  make(map[TaskType]LLMClient),
		newClient: func(c ClientConfig) LLMClient {
			return NewOpenAIClient(c)
		},
	}
}

// Client returns the client configured for the task
func (f *Factory) Client(task TaskType) (LLMClient, error) {
	profile, ok := f.profiles[task]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTask, task)
	}
	if f.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if client, ok := f.clients[task]; ok {
		return client, nil
	}

	client := f.newClient(ClientConfig{
		APIKey:  f.apiKey,
		BaseURL: f.baseURL,
		Profile: profile,
		Timeout: f.timeout,
		Logger:  f.logger.With("task", string(task)),
	})
	f.clients[task] = client
	f.logger.Info("llm client created", "task", task, "model", profile.Model, "base_url", f.baseURL)
	return client, nil
}

