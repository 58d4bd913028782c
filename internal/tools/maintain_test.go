package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/tools"
)

func TestKBMaintainRequiresManagerMode(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{ManagerMode: false}, nil)
	got := srv.KBMaintain(context.Background(), tools.MaintainParams{Action: "stats"})
	require.Contains(t, got, "requires manager mode")
}

func TestKBMaintainUnknownAction(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	got := srv.KBMaintain(context.Background(), tools.MaintainParams{Action: "nonsense"})
	require.Contains(t, got, "Unknown action")
}

func TestKBMaintainStats(t *testing.T) {
	srv, entries, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	ctx := context.Background()

	_, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	got := srv.KBMaintain(ctx, tools.MaintainParams{Action: "stats"})
	require.Contains(t, got, "Knowledge Base Statistics")
	require.Contains(t, got, "1 total")
}

func TestKBMaintainDeactivateRequiresEntryID(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	got := srv.KBMaintain(context.Background(), tools.MaintainParams{Action: "deactivate"})
	require.Contains(t, got, "entry_id is required")
}

func TestKBMaintainDeactivateAndReactivate(t *testing.T) {
	srv, entries, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	got := srv.KBMaintain(ctx, tools.MaintainParams{Action: "deactivate", EntryID: e.ID})
	require.Contains(t, got, "Deactivated entry "+e.ID)

	got = srv.KBMaintain(ctx, tools.MaintainParams{Action: "reactivate", EntryID: e.ID})
	require.Contains(t, got, "Reactivated entry "+e.ID)
}

func TestKBMaintainRebuildEmbeddingsWithoutEmbedClient(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	got := srv.KBMaintain(context.Background(), tools.MaintainParams{Action: "rebuild_embeddings"})
	require.Contains(t, got, "not available")
}

func TestKBMaintainRebuildGraph(t *testing.T) {
	srv, entries, g, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision, Tags: []string{"golang"},
	})
	require.NoError(t, err)
	require.NoError(t, g.BuildForEntry(ctx, e))

	got := srv.KBMaintain(ctx, tools.MaintainParams{Action: "rebuild_graph"})
	require.Contains(t, got, "Graph rebuilt")
	require.Contains(t, got, "1 entries processed")
}

func TestKBMaintainPurgeInactiveRequiresConfirm(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	got := srv.KBMaintain(context.Background(), tools.MaintainParams{Action: "purge_inactive"})
	require.Contains(t, got, "requires confirm=True")
}

func TestKBMaintainVacuum(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	got := srv.KBMaintain(context.Background(), tools.MaintainParams{Action: "vacuum"})
	require.Equal(t, "Vacuum complete.", got)
}

func TestKBMaintainEntryVersionsUnknownEntry(t *testing.T) {
	srv, _, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	got := srv.KBMaintain(context.Background(), tools.MaintainParams{Action: "entry_versions", EntryID: "kb-99999"})
	require.Contains(t, got, "not found")
}

func TestKBMaintainEntryVersionsShowsHistory(t *testing.T) {
	srv, entries, _, _ := newTestServer(t, config.Config{ManagerMode: true}, nil)
	ctx := context.Background()

	e, err := entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	conf := 0.8
	_, err = entries.UpdateEntry(ctx, e.ID, entrystore.UpdateFields{KnowledgeDetails: "revised", ConfidenceLevel: &conf, ChangeReason: "correction"})
	require.NoError(t, err)

	got := srv.KBMaintain(ctx, tools.MaintainParams{Action: "entry_versions", EntryID: e.ID})
	require.Contains(t, got, "Version history for "+e.ID)
	require.Contains(t, got, "correction")
}
