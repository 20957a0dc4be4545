// Package config provides configuration loading and management for
// evaluation runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/evalinstruments/llm"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config represents the complete evaluation configuration
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Prompt     PromptConfig     `yaml:"prompt"`
	NATS       NATSConfig       `yaml:"nats"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ModelConfig configures the grading model
type ModelConfig struct {
	// Provider selects the wire format: openai, ollama or anthropic
	Provider string `yaml:"provider"`
	// Endpoint is the API base URL (empty = provider default)
	Endpoint string `yaml:"endpoint"`
	// Name is the model name sent with each request
	Name string `yaml:"name"`
	// Temperature controls randomness (nil = provider default)
	Temperature *float64 `yaml:"temperature,omitempty"`
	// MaxTokens limits each completion (0 = provider default)
	MaxTokens int `yaml:"max_tokens,omitempty"`
	// Timeout is the maximum time to wait for one completion
	Timeout time.Duration `yaml:"timeout"`
	// Args are extra model arguments forwarded to the complete function
	Args map[string]any `yaml:"args,omitempty"`
}

// EvaluationConfig configures the run loop
type EvaluationConfig struct {
	// Capacity is the total token ceiling for a run
	Capacity int `yaml:"capacity"`
	// LogEnabled turns raw completion logging on or off (nil = on)
	LogEnabled *bool `yaml:"log_enabled,omitempty"`
	// LogDir is the base directory for raw completion logs (empty = temp dir)
	LogDir string `yaml:"log_dir,omitempty"`
}

// DatasetConfig configures dataset loading
type DatasetConfig struct {
	// KeyColumn names the primary key column (empty = row index)
	KeyColumn string `yaml:"key_column,omitempty"`
}

// PromptConfig configures prompt preparation
type PromptConfig struct {
	// System is the system message sent before each prompt
	System string `yaml:"system,omitempty"`
	// Template is an inline prompt pattern with {column} placeholders
	Template string `yaml:"template,omitempty"`
	// TemplateFile is read when Template is empty
	TemplateFile string `yaml:"template_file,omitempty"`
	// Rubrics is the rubric library substituted for {RUBRIC_SET}
	Rubrics map[string]string `yaml:"rubrics,omitempty"`
	// RubricKeys selects rubrics in order (empty = all)
	RubricKeys []string `yaml:"rubric_keys,omitempty"`
	// JSONColumn names a column whose value is a JSON document to side-load
	JSONColumn string `yaml:"json_column,omitempty"`
	// JSONDir is the directory holding side-loaded JSON documents
	JSONDir string `yaml:"json_dir,omitempty"`
}

// NATSConfig configures publishing raw completions to NATS
type NATSConfig struct {
	// URL is the NATS server URL (empty = do not publish)
	URL string `yaml:"url,omitempty"`
	// Subject is the subject prefix for raw completions
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig configures metrics output
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after a run (empty = off)
	Textfile string `yaml:"textfile,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider: "ollama",
			Endpoint: "http://localhost:11434/v1",
			Name:     "qwen2.5:14b",
			Timeout:  3 * time.Minute,
		},
		Evaluation: EvaluationConfig{
			Capacity: 10000,
		},
		NATS: NATSConfig{
			Subject: "evaluation.raw",
		},
	}
}

// Validate checks that the configuration is valid and reports every
// problem found.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.Model.Provider == "" {
		errs = multierror.Append(errs, errors.New("model.provider is required"))
	}
	if c.Model.Name == "" {
		errs = multierror.Append(errs, errors.New("model.name is required"))
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = multierror.Append(errs, errors.New("model.temperature must be between 0 and 2"))
	}
	if c.Model.MaxTokens < 0 {
		errs = multierror.Append(errs, errors.New("model.max_tokens must not be negative"))
	}
	if c.Model.Timeout < 0 {
		errs = multierror.Append(errs, errors.New("model.timeout must not be negative"))
	}
	if c.Evaluation.Capacity <= 0 {
		errs = multierror.Append(errs, errors.New("evaluation.capacity must be positive"))
	}
	if c.Prompt.Template != "" && c.Prompt.TemplateFile != "" {
		errs = multierror.Append(errs, errors.New("prompt.template and prompt.template_file are mutually exclusive"))
	}
	if c.Prompt.JSONDir != "" && c.Prompt.JSONColumn == "" {
		errs = multierror.Append(errs, errors.New("prompt.json_dir requires prompt.json_column"))
	}

	return errs.ErrorOrNil()
}

// LogEnabled reports whether raw completion logging is on.
func (c *Config) LogEnabled() bool {
	return c.Evaluation.LogEnabled == nil || *c.Evaluation.LogEnabled
}

// Endpoint returns the model endpoint for the llm client.
func (c *Config) Endpoint() llm.Endpoint {
	return llm.Endpoint{
		Provider: c.Model.Provider,
		URL:      c.Model.Endpoint,
		Model:    c.Model.Name,
	}
}

// ModelArgs returns the arguments forwarded to the complete function:
// Args plus model, temperature and max_tokens when set.
func (c *Config) ModelArgs() map[string]any {
	args := make(map[string]any, len(c.Model.Args)+3)
	for k, v := range c.Model.Args {
		args[k] = v
	}
	if c.Model.Name != "" {
		args["model"] = c.Model.Name
	}
	if c.Model.Temperature != nil {
		args["temperature"] = *c.Model.Temperature
	}
	if c.Model.MaxTokens > 0 {
		args["max_tokens"] = c.Model.MaxTokens
	}
	return args
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// decodeFile unmarshals a YAML file into config.
func decodeFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.Temperature != nil {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.MaxTokens != 0 {
		c.Model.MaxTokens = other.Model.MaxTokens
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}
	if len(other.Model.Args) > 0 {
		if c.Model.Args == nil {
			c.Model.Args = make(map[string]any, len(other.Model.Args))
		}
		for k, v := range other.Model.Args {
			c.Model.Args[k] = v
		}
	}

	// Evaluation
	if other.Evaluation.Capacity != 0 {
		c.Evaluation.Capacity = other.Evaluation.Capacity
	}
	if other.Evaluation.LogEnabled != nil {
		c.Evaluation.LogEnabled = other.Evaluation.LogEnabled
	}
	if other.Evaluation.LogDir != "" {
		c.Evaluation.LogDir = other.Evaluation.LogDir
	}

	// Dataset
	if other.Dataset.KeyColumn != "" {
		c.Dataset.KeyColumn = other.Dataset.KeyColumn
	}

	// Prompt
	if other.Prompt.System != "" {
		c.Prompt.System = other.Prompt.System
	}
	if other.Prompt.Template != "" || other.Prompt.TemplateFile != "" {
		c.Prompt.Template = other.Prompt.Template
		c.Prompt.TemplateFile = other.Prompt.TemplateFile
	}
	if len(other.Prompt.Rubrics) > 0 {
		c.Prompt.Rubrics = other.Prompt.Rubrics
	}
	if len(other.Prompt.RubricKeys) > 0 {
		c.Prompt.RubricKeys = other.Prompt.RubricKeys
	}
	if other.Prompt.JSONColumn != "" {
		c.Prompt.JSONColumn = other.Prompt.JSONColumn
	}
	if other.Prompt.JSONDir != "" {
		c.Prompt.JSONDir = other.Prompt.JSONDir
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}

	// Metrics
	if other.Metrics.Textfile != "" {
		c.Metrics.Textfile = other.Metrics.Textfile
	}
}
