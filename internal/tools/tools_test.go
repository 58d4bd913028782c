package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/dbbackend/sqlitebackend"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/ingest"
	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/planner"
	"github.com/kbengine/personalkb/internal/strategy"
	"github.com/kbengine/personalkb/internal/tools"
)

// newTestServer wires a fully in-memory tools.Server: real SQLite backend,
// entrystore, graph, strategy and planner, with no embedding client and a
// caller-supplied (possibly nil) LLM provider standing in for both the
// query LLM and the enricher/ingester's LLM.
func newTestServer(t *testing.T, cfg config.Config, queryLLM llm.Provider) (*tools.Server, *entrystore.Store, *graph.Store, dbbackend.Backend) {
	t.Helper()
	backend, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	ctx := context.Background()
	require.NoError(t, backend.ApplySchema(ctx, 8))

	entries := entrystore.New(backend)
	g := graph.NewStore(backend)
	p := planner.New(entries, g, queryLLM)
	exec := strategy.New(backend, entries, g, nil, p)
	ing := ingest.New(backend, entries, nil, g, nil, queryLLM, 0)

	srv := tools.New(cfg, backend, entries, nil, g, nil, ing, exec, p, queryLLM)
	return srv, entries, g, backend
}
