package ingest

import (
	"context"
	"testing"

	"github.com/kbengine/personalkb/internal/llm"
)

func TestSummarizeFileUnavailableProvider(t *testing.T) {
	summary, ok := SummarizeFile(context.Background(), nil, "notes.md", "content")
	if ok || summary != "" {
		t.Errorf("SummarizeFile(nil provider) = (%q, %v), want (\"\", false)", summary, ok)
	}
}

func TestSummarizeFileReturnsGeneration(t *testing.T) {
	mock := &llm.MockProvider{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, bool) {
			return "This file documents the deploy runbook.", true
		},
	}
	summary, ok := SummarizeFile(context.Background(), mock, "runbook.md", "content")
	if !ok || summary != "This file documents the deploy runbook." {
		t.Errorf("SummarizeFile() = (%q, %v), want the mock's generation", summary, ok)
	}
}

func TestExtractEntriesUnavailableProviderReturnsNil(t *testing.T) {
	if got := ExtractEntries(context.Background(), nil, "notes.md", "content"); got != nil {
		t.Errorf("ExtractEntries(nil provider) = %v, want nil", got)
	}
}

func TestExtractEntriesParsesValidJSON(t *testing.T) {
	mock := &llm.MockProvider{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, bool) {
			return `[{"short_title":"use context deadlines","long_title":"always set a deadline on outbound calls",
				"knowledge_details":"propagate context.Context with WithTimeout","entry_type":"lesson_learned","tags":["Go","HTTP"]}]`, true
		},
	}
	got := ExtractEntries(context.Background(), mock, "notes.md", "content")
	if len(got) != 1 {
		t.Fatalf("ExtractEntries() returned %d entries, want 1", len(got))
	}
	if got[0].EntryType != "lesson_learned" {
		t.Errorf("ExtractEntries()[0].EntryType = %q, want lesson_learned", got[0].EntryType)
	}
	if got[0].Tags[0] != "go" || got[0].Tags[1] != "http" {
		t.Errorf("ExtractEntries()[0].Tags = %v, want lowercased", got[0].Tags)
	}
}

func TestExtractEntriesSkipsInvalidEntryType(t *testing.T) {
	mock := &llm.MockProvider{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, bool) {
			return `[{"short_title":"a","long_title":"a","knowledge_details":"a","entry_type":"not_a_real_type","tags":[]}]`, true
		},
	}
	got := ExtractEntries(context.Background(), mock, "notes.md", "content")
	if len(got) != 0 {
		t.Errorf("ExtractEntries() with invalid entry_type = %v, want empty", got)
	}
}

func TestExtractEntriesMalformedResponseReturnsNil(t *testing.T) {
	mock := &llm.MockProvider{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, bool) {
			return "I cannot extract anything from this.", true
		},
	}
	if got := ExtractEntries(context.Background(), mock, "notes.md", "content"); got != nil {
		t.Errorf("ExtractEntries(malformed) = %v, want nil", got)
	}
}

func TestExtractEntriesCapsAtMaxEntriesPerFile(t *testing.T) {
	raw := `[`
	for i := 0; i < 15; i++ {
		if i > 0 {
			raw += ","
		}
		raw += `{"short_title":"a","long_title":"a","knowledge_details":"a","entry_type":"decision","tags":[]}`
	}
	raw += `]`
	mock := &llm.MockProvider{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, bool) { return raw, true },
	}
	got := ExtractEntries(context.Background(), mock, "notes.md", "content")
	if len(got) != maxEntriesPerFile {
		t.Errorf("ExtractEntries() returned %d entries, want capped at %d", len(got), maxEntriesPerFile)
	}
}
