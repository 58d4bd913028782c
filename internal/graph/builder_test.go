package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/dbbackend/sqlitebackend"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
)

func newTestGraph(t *testing.T) (*graph.Store, *entrystore.Store) {
	t.Helper()
	backend, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	ctx := context.Background()
	require.NoError(t, backend.ApplySchema(ctx, 8))

	return graph.NewStore(backend), entrystore.New(backend)
}

func TestBuildForEntryCreatesTagAndProjectEdges(t *testing.T) {
	g, entries := newTestGraph(t)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d",
		EntryType: entrystore.Decision, ProjectRef: "kitt", Tags: []string{"golang", "testing"},
	})
	require.NoError(t, err)

	require.NoError(t, g.BuildForEntry(ctx, e))

	neighbors, err := g.GetNeighbors(ctx, e.ID, nil, "outgoing", 10)
	require.NoError(t, err)

	var gotTag, gotProject bool
	for _, n := range neighbors {
		if n.EdgeType == "has_tag" {
			gotTag = true
		}
		if n.EdgeType == "in_project" && n.NodeID == "project:kitt" {
			gotProject = true
		}
	}
	require.True(t, gotTag, "expected a has_tag edge")
	require.True(t, gotProject, "expected an in_project edge to project:kitt")
}

func TestBuildForEntryIsIdempotent(t *testing.T) {
	g, entries := newTestGraph(t)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d",
		EntryType: entrystore.Decision, Tags: []string{"golang"},
	})
	require.NoError(t, err)

	require.NoError(t, g.BuildForEntry(ctx, e))
	first, err := g.CountEdges(ctx)
	require.NoError(t, err)

	require.NoError(t, g.BuildForEntry(ctx, e))
	second, err := g.CountEdges(ctx)
	require.NoError(t, err)

	require.Equal(t, first, second, "rebuilding the same entry twice should not duplicate edges")
}

func TestBuildForEntryReferencesKBIDsInKnowledgeDetails(t *testing.T) {
	g, entries := newTestGraph(t)
	ctx := context.Background()

	target, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "target", LongTitle: "target", KnowledgeDetails: "d", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	referring, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "ref", LongTitle: "ref",
		KnowledgeDetails: "see " + target.ID + " for context", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	require.NoError(t, g.BuildForEntry(ctx, referring))

	neighbors, err := g.GetNeighbors(ctx, referring.ID, []string{"references"}, "outgoing", 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	require.Equal(t, target.ID, neighbors[0].NodeID)
}

func TestDeterministicMentionsFindsKnownEntity(t *testing.T) {
	g, entries := newTestGraph(t)
	ctx := context.Background()

	seed, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "seed", LongTitle: "seed", KnowledgeDetails: "about Ada Lovelace",
		EntryType: entrystore.FactualReference, Hints: map[string]any{"person": []string{"Ada Lovelace"}},
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, seed))

	mentioning, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "mentioning", LongTitle: "mentioning",
		KnowledgeDetails: "Ada Lovelace wrote the first algorithm.", EntryType: entrystore.FactualReference,
	})
	require.NoError(t, err)

	added, err := g.DeterministicMentions(ctx, mentioning)
	require.NoError(t, err)
	require.Equal(t, 1, added)

	neighbors, err := g.GetNeighbors(ctx, mentioning.ID, []string{"mentions"}, "outgoing", 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	require.Equal(t, "person:ada lovelace", neighbors[0].NodeID)
}

func TestDeterministicMentionsNoKnownEntitiesYieldsZero(t *testing.T) {
	g, entries := newTestGraph(t)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "nothing notable here",
		EntryType: entrystore.FactualReference,
	})
	require.NoError(t, err)

	added, err := g.DeterministicMentions(ctx, e)
	require.NoError(t, err)
	require.Equal(t, 0, added)
}
