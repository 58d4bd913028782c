package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/tools"
)

func TestKBSearchFindsMatch(t *testing.T) {
	srv, entries, _, _ := newTestServer(t, config.Config{}, nil)
	ctx := context.Background()

	_, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "context deadlines", LongTitle: "context deadlines",
		KnowledgeDetails: "always propagate context.Context with a deadline", EntryType: entrystore.LessonLearned,
	})
	require.NoError(t, err)

	got := srv.KBSearch(ctx, tools.SearchParams{Query: "context deadlines", Limit: 10})
	require.Contains(t, got, "context deadlines")
	require.Contains(t, got, "FTS-only")
}

func TestKBSearchNoResults(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{}, nil)
	got := srv.KBSearch(context.Background(), tools.SearchParams{Query: "nothing matches this at all", Limit: 10})
	require.Equal(t, "No results found.", got)
}

func TestKBSearchAppendsGraphHintsWhenResultsAreThin(t *testing.T) {
	srv, entries, g, _ := newTestServer(t, config.Config{}, nil)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "sqlite migration", LongTitle: "sqlite migration",
		KnowledgeDetails: "we migrated off sqlite", EntryType: entrystore.Decision, Tags: []string{"database"},
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, e))

	got := srv.KBSearch(ctx, tools.SearchParams{Query: "sqlite migration", Limit: 10})
	require.Contains(t, got, "sqlite migration")
	require.Contains(t, got, "Related entries via graph")
}
