package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/tools"
)

func TestKBIngestWithoutLLMReturnsError(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBIngest(context.Background(), "somewhere", "", false, false)
	require.Contains(t, got, "No LLM available")
}

func TestKBIngestSingleFile(t *testing.T) {
	calls := 0
	mock := &llm.MockProvider{
		GenerateFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, bool) {
			calls++
			if calls%2 == 1 {
				return "A summary of the file.", true
			}
			return `[{"short_title":"t","long_title":"t","knowledge_details":"d","entry_type":"decision","tags":[]}]`, true
		},
	}
	srv, _, _, _ := newTestServer(t, config.Config{}, mock)

	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("some notes worth keeping"), 0o644))

	got := srv.KBIngest(context.Background(), path, "kitt", false, false)
	require.Contains(t, got, "ingested")
	require.Contains(t, got, "1 entries")
}

func TestKBIngestNonexistentPathReturnsError(t *testing.T) {
	mock := &llm.MockProvider{}
	srv, _, _, _ := newTestServer(t, config.Config{}, mock)
	got := srv.KBIngest(context.Background(), "/no/such/path/at/all", "", false, false)
	require.Contains(t, got, "does not exist")
}
