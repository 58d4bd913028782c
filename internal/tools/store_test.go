package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/tools"
)

func TestKBStoreCreatesEntry(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBStore(context.Background(), tools.StoreParams{
		ShortTitle: "context deadlines", LongTitle: "always set a deadline",
		KnowledgeDetails: "propagate context.Context with WithTimeout", EntryType: "lesson_learned",
	})
	require.Contains(t, got, "Created entry")
	require.Contains(t, got, "context deadlines")
}

func TestKBStoreDefaultsEntryTypeAndConfidence(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBStore(context.Background(), tools.StoreParams{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d",
	})
	require.Contains(t, got, "factual_reference")
}

func TestKBStoreRejectsMissingRequiredFields(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBStore(context.Background(), tools.StoreParams{ShortTitle: "t"})
	require.Contains(t, got, "Error:")
}

func TestKBStoreUpdateBumpsVersion(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	ctx := context.Background()

	created := srv.KBStore(ctx, tools.StoreParams{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: "decision",
	})
	id := extractEntryID(t, created)

	updated := srv.KBStore(ctx, tools.StoreParams{UpdateEntryID: id, KnowledgeDetails: "revised details", ChangeReason: "correction"})
	require.Contains(t, updated, "Updated entry")
	require.Contains(t, updated, "(v2)")
}

func TestKBStoreUpdateUnknownEntryReturnsError(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBStore(context.Background(), tools.StoreParams{UpdateEntryID: "kb-99999", KnowledgeDetails: "x"})
	require.Contains(t, got, "not found")
}

func TestKBStoreDeactivate(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	ctx := context.Background()

	created := srv.KBStore(ctx, tools.StoreParams{ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d"})
	id := extractEntryID(t, created)

	got := srv.KBStore(ctx, tools.StoreParams{DeactivateEntryID: id})
	require.Contains(t, got, "Deactivated entry "+id)
}

func TestKBStoreBatchCreatesMultipleEntries(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBStoreBatch(context.Background(), []tools.BatchEntryInput{
		{ShortTitle: "a", LongTitle: "a", KnowledgeDetails: "a", EntryType: "decision"},
		{ShortTitle: "b", LongTitle: "b", KnowledgeDetails: "b", EntryType: "decision"},
	})
	require.Contains(t, got, "2 entries created")
}

func TestKBStoreBatchEmptyReturnsError(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBStoreBatch(context.Background(), nil)
	require.Contains(t, got, "Error: entries list is empty")
}

func TestKBStoreBatchOverLimitReturnsError(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	entries := make([]tools.BatchEntryInput, 11)
	for i := range entries {
		entries[i] = tools.BatchEntryInput{ShortTitle: "a", LongTitle: "a", KnowledgeDetails: "a"}
	}
	got := srv.KBStoreBatch(context.Background(), entries)
	require.Contains(t, got, "Maximum 10 entries per batch")
}

func TestKBStoreBatchValidatesRequiredFields(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBStoreBatch(context.Background(), []tools.BatchEntryInput{{ShortTitle: "a"}})
	require.Contains(t, got, "missing required fields")
}

func extractEntryID(t *testing.T, rendered string) string {
	t.Helper()
	start := -1
	for i := 0; i+3 <= len(rendered); i++ {
		if rendered[i:i+3] == "kb-" {
			start = i
			break
		}
	}
	require.NotEqual(t, -1, start, "no kb- id found in %q", rendered)
	end := start
	for end < len(rendered) && rendered[end] != ' ' && rendered[end] != '\n' && rendered[end] != '(' {
		end++
	}
	return rendered[start:end]
}
