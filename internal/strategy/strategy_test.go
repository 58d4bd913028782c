package strategy_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/dbbackend/sqlitebackend"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/strategy"
)

func newTestExecutor(t *testing.T) (*strategy.Executor, *entrystore.Store, *graph.Store) {
	t.Helper()
	backend, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	ctx := context.Background()
	require.NoError(t, backend.ApplySchema(ctx, 8))

	entries := entrystore.New(backend)
	g := graph.NewStore(backend)
	return strategy.New(backend, entries, g, nil, nil), entries, g
}

func TestValidStrategy(t *testing.T) {
	require.True(t, strategy.ValidStrategy("auto"))
	require.True(t, strategy.ValidStrategy("connection"))
	require.False(t, strategy.ValidStrategy("nonsense"))
}

func TestAskUnknownStrategyReturnsMessage(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	got, err := x.Ask(context.Background(), "q", "nonsense", "", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "Unknown strategy")
}

func TestAskAutoFindsEntryViaFTS(t *testing.T) {
	x, entries, _ := newTestExecutor(t)
	ctx := context.Background()

	_, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "context deadlines", LongTitle: "context deadlines",
		KnowledgeDetails: "always propagate context.Context with a deadline", EntryType: entrystore.LessonLearned,
	})
	require.NoError(t, err)

	got, err := x.Ask(ctx, "context deadlines", "auto", "", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "context deadlines")
}

func TestTimelineRequiresScope(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	got, err := x.Ask(context.Background(), "", "timeline", "", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "requires a scope")
}

func TestTimelineListsEntriesForProjectScope(t *testing.T) {
	x, entries, g := newTestExecutor(t)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision, ProjectRef: "kitt",
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, e))

	got, err := x.Ask(ctx, "", "timeline", "project:kitt", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, e.ID)
}

func TestRelatedRequiresScope(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	got, err := x.Ask(context.Background(), "", "related", "", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "requires a scope")
}

func TestRelatedFindsDirectlyConnectedEntry(t *testing.T) {
	x, entries, g := newTestExecutor(t)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision, Tags: []string{"golang"},
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, e))

	got, err := x.Ask(ctx, "", "related", "tag:golang", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, e.ID)
	require.Contains(t, got, "directly connected")
}

func TestConnectionRequiresScopeAndTarget(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	got, err := x.Ask(context.Background(), "", "connection", "kb-00001", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "requires both scope and target")
}

func TestConnectionFindsPathBetweenTwoEntries(t *testing.T) {
	x, entries, g := newTestExecutor(t)
	ctx := context.Background()

	e1, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "a", LongTitle: "a", KnowledgeDetails: "d", EntryType: entrystore.Decision, Tags: []string{"golang"},
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, e1))

	e2, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "b", LongTitle: "b", KnowledgeDetails: "d", EntryType: entrystore.Decision, Tags: []string{"golang"},
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, e2))

	got, err := x.Ask(ctx, "", "connection", e1.ID, e2.ID, false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "Connection:")
	require.True(t, strings.Contains(got, e1.ID) && strings.Contains(got, e2.ID))
}

func TestDecisionTraceNoMatchesReturnsMessage(t *testing.T) {
	x, _, _ := newTestExecutor(t)
	got, err := x.Ask(context.Background(), "unrelated question", "decision_trace", "", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "No decision entries found")
}

func TestDecisionTraceFollowsSupersedesChain(t *testing.T) {
	x, entries, g := newTestExecutor(t)
	ctx := context.Background()

	original, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "switch to sqlite", LongTitle: "switch to sqlite",
		KnowledgeDetails: "we chose sqlite for simplicity", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, original))

	replacement, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "switch to postgres", LongTitle: "switch to postgres",
		KnowledgeDetails: "we moved off sqlite to postgres for scale", EntryType: entrystore.Decision,
		Hints: map[string]any{"supersedes": []string{original.ID}},
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, replacement))

	got, err := x.Ask(ctx, "sqlite", "decision_trace", "", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, original.ID)
	require.Contains(t, got, replacement.ID)
	require.Contains(t, got, "original decision")
}

func TestAutoSearchBypassesPlanner(t *testing.T) {
	x, entries, _ := newTestExecutor(t)
	ctx := context.Background()

	_, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "widgets", LongTitle: "widgets", KnowledgeDetails: "widgets are useful", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	got, err := x.AutoSearch(ctx, "widgets", "", false, 10)
	require.NoError(t, err)
	require.Contains(t, got, "widgets")
}
