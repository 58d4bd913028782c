package entrystore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/dbbackend/sqlitebackend"
	"github.com/kbengine/personalkb/internal/entrystore"
)

func newTestStore(t *testing.T) *entrystore.Store {
	t.Helper()
	backend, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	ctx := context.Background()
	require.NoError(t, backend.ApplySchema(ctx, 8))

	return entrystore.New(backend)
}

func TestCreateEntryAssignsSequentialIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "first", LongTitle: "First entry", KnowledgeDetails: "details",
		EntryType: entrystore.FactualReference,
	})
	require.NoError(t, err)
	require.Equal(t, "kb-00001", first.ID)

	second, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "second", LongTitle: "Second entry", KnowledgeDetails: "details",
		EntryType: entrystore.Decision,
	})
	require.NoError(t, err)
	require.Equal(t, "kb-00002", second.ID)
}

func TestCreateEntryValidatesRequiredFields(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEntry(context.Background(), entrystore.CreateFields{ShortTitle: "only"})
	require.ErrorIs(t, err, entrystore.ErrValidation)
}

func TestCreateEntryDefaultsConfidence(t *testing.T) {
	store := newTestStore(t)
	e, err := store.CreateEntry(context.Background(), entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)
	require.Equal(t, 0.9, e.ConfidenceLevel)
}

func TestUpdateEntryBumpsVersionAndRecordsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "v1", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	updated, err := store.UpdateEntry(ctx, e.ID, entrystore.UpdateFields{
		KnowledgeDetails: "v2", ChangeReason: "correction",
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, "v2", updated.KnowledgeDetails)
	require.False(t, updated.HasEmbedding)

	versions, err := store.GetVersions(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "correction", versions[1].ChangeReason)
}

func TestUpdateEntryMergesHintsShallow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision,
		Hints: map[string]any{"person": "Ada"},
	})
	require.NoError(t, err)

	updated, err := store.UpdateEntry(ctx, e.ID, entrystore.UpdateFields{
		Hints: map[string]any{"tool": "compiler"},
	})
	require.NoError(t, err)
	require.Equal(t, "Ada", updated.Hints["person"])
	require.Equal(t, "compiler", updated.Hints["tool"])
}

func TestUpdateEntryRejectsInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)
	_, err = store.DeactivateEntry(ctx, e.ID)
	require.NoError(t, err)

	_, err = store.UpdateEntry(ctx, e.ID, entrystore.UpdateFields{KnowledgeDetails: "x"})
	require.ErrorIs(t, err, entrystore.ErrInactive)
}

func TestDeactivateAndReactivateEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "t", LongTitle: "t", KnowledgeDetails: "d", EntryType: entrystore.Decision,
	})
	require.NoError(t, err)

	deactivated, err := store.DeactivateEntry(ctx, e.ID)
	require.NoError(t, err)
	require.False(t, deactivated.IsActive)

	_, err = store.DeactivateEntry(ctx, e.ID)
	require.ErrorIs(t, err, entrystore.ErrInactive)

	reactivated, err := store.ReactivateEntry(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, reactivated.IsActive)
}

func TestGetEntryNotFoundReturnsNilNil(t *testing.T) {
	store := newTestStore(t)
	e, err := store.GetEntry(context.Background(), "kb-99999")
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "a", LongTitle: "a", KnowledgeDetails: "d", EntryType: entrystore.Decision,
		ProjectRef: "proj-a",
	})
	require.NoError(t, err)
	e2, err := store.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle: "b", LongTitle: "b", KnowledgeDetails: "d", EntryType: entrystore.FactualReference,
		ProjectRef: "proj-a",
	})
	require.NoError(t, err)
	_, err = store.DeactivateEntry(ctx, e2.ID)
	require.NoError(t, err)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalEntries)
	require.Equal(t, 1, stats.ActiveEntries)
	require.Equal(t, 1, stats.InactiveEntries)
	require.Equal(t, 1, stats.ByType["decision"])
}

func TestTouchAccessedNoOpOnEmpty(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.TouchAccessed(context.Background(), nil))
}
