package llm

import (
	"context"
	"testing"
)

func TestNewAnthropicWithoutAPIKeyReturnsNil(t *testing.T) {
	p := New(Config{Type: "anthropic"})
	if p != nil {
		t.Error("New(anthropic, no key) should return nil")
	}
}

func TestNewAnthropicWithAPIKey(t *testing.T) {
	p := New(Config{Type: "anthropic", APIKey: "sk-test"})
	if p == nil {
		t.Fatal("New(anthropic, with key) should return a provider")
	}
	defer p.Close()
	if !p.IsAvailable(context.Background()) {
		t.Error("anthropicProvider.IsAvailable should be true once constructed")
	}
}

func TestNewMock(t *testing.T) {
	p := New(Config{Type: "mock"})
	if p == nil {
		t.Fatal("New(mock) should return a provider")
	}
}

func TestNewUnknownTypeReturnsNil(t *testing.T) {
	if p := New(Config{Type: "bogus"}); p != nil {
		t.Error("New(bogus) should return nil")
	}
}

func TestMockProviderDefaults(t *testing.T) {
	m := &MockProvider{}
	if !m.IsAvailable(context.Background()) {
		t.Error("MockProvider default IsAvailable should be true")
	}
	text, ok := m.Generate(context.Background(), "sys", "user")
	if ok || text != "" {
		t.Errorf("MockProvider default Generate = (%q, %v), want (\"\", false)", text, ok)
	}
	if err := m.Close(); err != nil {
		t.Errorf("MockProvider.Close() = %v, want nil", err)
	}
}

func TestMockProviderOverrides(t *testing.T) {
	m := &MockProvider{
		GenerateFunc: func(ctx context.Context, sys, user string) (string, bool) {
			return "canned response", true
		},
		AvailableFunc: func(ctx context.Context) bool { return false },
	}
	if m.IsAvailable(context.Background()) {
		t.Error("MockProvider should use AvailableFunc override")
	}
	text, ok := m.Generate(context.Background(), "sys", "user")
	if !ok || text != "canned response" {
		t.Errorf("MockProvider.Generate() = (%q, %v), want (\"canned response\", true)", text, ok)
	}
}
