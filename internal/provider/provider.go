// Package provider wraps the supported text-generation vendors behind one interface and
// dispatches calls with key rotation and a single failover attempt.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/ubuygold/contentmill/internal/config"
	"github.com/ubuygold/contentmill/internal/model"
)

// Tag identifies a vendor. The set is closed.
type Tag string

const (
	Gemini Tag = "gemini"
	OpenAI Tag = "openai"
	Claude Tag = "claude"
)

// Priority is the order in which providers are considered when none is requested.
var Priority = []Tag{Gemini, OpenAI, Claude}

// ParseTag validates a provider name.
func ParseTag(s string) (Tag, error) {
	tag := Tag(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Priority {
		if tag == known {
			return tag, nil
		}
	}
	return "", fmt.Errorf("%w: unknown provider %q", model.ErrConfiguration, s)
}

// Request is a single generation call.
type Request struct {
	Prompt string
	System string
	// Structured asks the vendor for a JSON object when it supports a JSON mode.
	Structured bool
	// MaxTokens overrides the configured output limit when positive.
	MaxTokens int
}

// Provider performs one generation call with the given secret.
type Provider interface {
	Generate(ctx context.Context, secret string, req Request) (string, error)
}

// Registry maps each tag to its implementation. It is built once at startup.
type Registry map[Tag]Provider

// NewRegistry builds the vendor implementations from configuration.
func NewRegistry(cfg config.ProvidersConfig) Registry {
	return Registry{
		Gemini: NewGeminiProvider(cfg.GeminiModel, cfg.MaxTokens),
		OpenAI: NewOpenAIProvider(cfg.OpenAIModel, cfg.MaxTokens),
		Claude: NewClaudeProvider(cfg.ClaudeModel, cfg.MaxTokens),
	}
}

// Probe sends a minimal request with a secret. It is used to revive disabled keys.
func (r Registry) Probe(ctx context.Context, provider, secret string) error {
	tag, err := ParseTag(provider)
	if err != nil {
		return err
	}
	impl, ok := r[tag]
	if !ok {
		return fmt.Errorf("provider %s is not registered", tag)
	}
	_, err = impl.Generate(ctx, secret, Request{Prompt: "Reply with the single word OK.", MaxTokens: 16})
	return err
}

func maxTokens(req Request, fallback int) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, secret string, req Request) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, secret string, req Request) (string, error) {
	return f(ctx, secret, req)
}
