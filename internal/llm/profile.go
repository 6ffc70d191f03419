package llm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TaskType selects the model profile for a pipeline step
type TaskType string

const (
	// TaskQuery turns a question into SQL
	TaskQuery TaskType = "query"
	// TaskMarkdown summarizes query results
	TaskMarkdown TaskType = "markdown"
)

// ErrUnsupportedTask is returned for task types without a profile
var ErrUnsupportedTask = errors.New("unsupported task_type")

// Profile holds the model parameters for one task
type Profile struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxRetries  int     `yaml:"max_retries"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DefaultProfiles returns the built-in model parameters per task
func DefaultProfiles() map[TaskType]Profile {
	return map[TaskType]Profile{
		TaskQuery: {
			Model:       "gpt-oss-120b",
			Temperature: 0.7,
			TopP:        0.9,
			MaxRetries:  1,
		},
		TaskMarkdown: {
			Model:       "llama3.1-8b",
			Temperature: 0.8,
			TopP:        0.85,
			MaxRetries:  0,
		},
	}
}

// ParseTaskType validates a task name
func ParseTaskType(s string) (TaskType, error) {
	switch t := TaskType(strings.ToLower(strings.TrimSpace(s))); t {
	case TaskQuery, TaskMarkdown:
		return t, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedTask, s)
}

// LoadProfiles reads profile overrides from a YAML file on top of the
// defaults. Fields left out of the file keep their default value.
//
//	profiles:
//	  query:
//	    model: gpt-oss-120b
//	    temperature: 0.2
func LoadProfiles(path string) (map[TaskType]Profile, error) {
	profiles := DefaultProfiles()
	if strings.TrimSpace(path) == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read llm profiles: %w", err)
	}
	return parseProfiles(data, profiles)
}

func parseProfiles(data []byte, profiles map[TaskType]Profile) (map[TaskType]Profile, error) {
	var raw struct {
		Profiles map[string]yaml.Node `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse llm profiles: %w", err)
	}

	for name, node := range raw.Profiles {
		task, err := ParseTaskType(name)
		if err != nil {
			return nil, err
		}
		p := profiles[task]
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("parse llm profile %s: %w", name, err)
		}
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("llm profile %s: %w", name, err)
		}
		profiles[task] = p
	}
	return profiles, nil
}

func (p Profile) validate() error {
	if strings.TrimSpace(p.Model) == "" {
		return errors.New("model is required")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", p.Temperature)
	}
	if p.TopP < 0 || p.TopP > 1 {
		return fmt.Errorf("top_p %.2f out of range [0, 1]", p.TopP)
	}
	if p.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	return nil
}
