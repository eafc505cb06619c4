// Package analyzer provides the secondary models consulted for coordination
// and stall analysis.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names a secondary model provider.
type Backend string

const (
	BackendAnthropic Backend = "anthropic"
	BackendOllama    Backend = "ollama"
	// BackendNone disables the secondary model.
	BackendNone Backend = "none"
)

// ErrDisabled is returned by New for BackendNone.
var ErrDisabled = errors.New("analyzer disabled")

// Analyzer sends a single prompt and returns the complete text response.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	// Name identifies the backend and model in logs and the UI.
	Name() string
}

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	// Model overrides the backend default.
	Model string
	// Endpoint is the Ollama base URL.
	Endpoint string
	// APIKey is the Anthropic API key. Required unless UseAWSBedrock is set.
	APIKey string
	// UseAWSBedrock routes Anthropic calls through AWS Bedrock.
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
	// MaxTokens bounds the response length.
	MaxTokens int64
}

// New builds the analyzer selected by cfg.Backend.
func New(cfg Config) (Analyzer, error) {
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendNone:
		return nil, ErrDisabled
	case BackendOllama:
		return NewOllama(OllamaConfig{Endpoint: cfg.Endpoint, Model: cfg.Model}), nil
	case BackendAnthropic, "":
		return NewAnthropic(AnthropicConfig{
			Model:         cfg.Model,
			APIKey:        cfg.APIKey,
			UseAWSBedrock: cfg.UseAWSBedrock,
			AWSRegion:     cfg.AWSRegion,
			AWSProfile:    cfg.AWSProfile,
			MaxTokens:     cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown analyzer backend %q", cfg.Backend)
	}
}
