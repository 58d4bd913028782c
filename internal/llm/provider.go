// Package llm defines the narrow "duck-typed LLM provider" capability
// (spec.md §9: is_available, generate, close) and a factory that
// constructs concrete providers from config. Grounded on
// _examples/kraklabs-cie/pkg/llm/provider.go's Provider shape, adapted from
// multi-method Generate/Chat to the narrower is_available/generate/close
// surface spec.md names, and wired to github.com/anthropics/anthropic-sdk-go
// instead of raw net/http.
package llm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kbengine/personalkb/internal/logx"
)

// Provider is the capability every caller (Graph Enricher, Ingestion
// Pipeline, Query Planner) depends on.
type Provider interface {
	// IsAvailable reports whether the provider is currently usable. Only
	// success is cached; any failure clears the cache (spec.md §5
	// "Availability state machine").
	IsAvailable(ctx context.Context) bool

	// Generate runs one completion. Returns "", false on any failure or
	// unavailability — callers degrade, they never receive an error.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, bool)

	Close() error
}

// Config selects and configures a concrete provider (SPEC_FULL.md §A.2).
type Config struct {
	Type      string // "anthropic" | "mock"
	APIKey    string
	Model     string
	Timeout   time.Duration
}

// New is the provider factory (spec.md §9: "construction is guarded by a
// factory that returns None when the underlying client library is
// unavailable"). Returns nil when cfg cannot produce a usable provider.
func New(cfg Config) Provider {
	switch cfg.Type {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil
		}
		return newAnthropicProvider(cfg)
	case "mock":
		return &MockProvider{}
	default:
		return nil
	}
}

type anthropicProvider struct {
	client    anthropic.Client
	model     string
	timeout   time.Duration
	available atomic.Bool
}

func newAnthropicProvider(cfg Config) *anthropicProvider {
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &anthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   model,
		timeout: timeout,
	}
}

func (p *anthropicProvider) IsAvailable(ctx context.Context) bool {
	// The SDK has no cheap health check; we treat "constructed with a key"
	// as available and let Generate clear the cache on failure, matching
	// the "only success cached, failure clears it" state machine with
	// Generate itself as the probe.
	return true
}

func (p *anthropicProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		logx.Component("llm").Warn().Err(err).Msg("anthropic generate failed")
		p.available.Store(false)
		return "", false
	}
	if len(msg.Content) == 0 {
		return "", false
	}
	return msg.Content[0].Text, true
}

func (p *anthropicProvider) Close() error { return nil }

// MockProvider is a test double with overridable behavior, grounded on
// kraklabs-cie's MockProvider used throughout its llm package tests.
type MockProvider struct {
	GenerateFunc  func(ctx context.Context, systemPrompt, userPrompt string) (string, bool)
	AvailableFunc func(ctx context.Context) bool
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	if m.AvailableFunc != nil {
		return m.AvailableFunc(ctx)
	}
	return true
}

func (m *MockProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, bool) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemPrompt, userPrompt)
	}
	return "", false
}

func (m *MockProvider) Close() error { return nil }
