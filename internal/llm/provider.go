// Package llm wraps the chat models used for decomposition, synthesis and
// keyword extraction. Sampling temperature travels with each request and is
// never stored on a shared client.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// ErrNoResponse is returned when a model answers with no text
var ErrNoResponse = errors.New("no response from model")

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs a single-turn completion
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one completion call
type Request struct {
	Prompt string
	System string

	// Temperature is applied to this call only
	Temperature float64

	// MaxTokens limits the response length; 0 uses the provider default
	MaxTokens int
}

// Response is the model output for one Request
type Response struct {
	Text       string
	Model      string
	TokensUsed int
}

// Params are per-call overrides passed alongside a question
type Params struct {
	// Temperature overrides the engine default when non-nil
	Temperature *float64
}

// WithTemperature returns Params pinning the sampling temperature
func WithTemperature(t float64) Params {
	return Params{Temperature: &t}
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "gemini", "ollama"
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	HTTP model.HTTPConfig
}

// ConfigFromModel converts the file/env configuration into provider config
func ConfigFromModel(cfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   time.Duration(cfg.Timeout) * time.Second,
		MaxTokens: cfg.MaxTokens,
		HTTP:      httpCfg,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return fallback
}

func (c Config) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1000
}
