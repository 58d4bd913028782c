// Package tools implements the eight MCP tool handlers of spec.md §6
// (kb_store, kb_store_batch, kb_search, kb_get, kb_ask, kb_summarize,
// kb_ingest, kb_maintain), grounded on the per-tool files under
// _examples/original_source/src/personal_kb/tools/. Every handler returns
// plain text: errors are rendered as "Error: ..." lines rather than
// propagated, matching spec.md §7's tool-boundary propagation policy.
package tools

import (
	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/embedclient"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/ingest"
	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/logx"
	"github.com/kbengine/personalkb/internal/planner"
	"github.com/kbengine/personalkb/internal/strategy"
)

var log = logx.Component("tools")

// Server bundles every component the tool handlers dispatch to. One Server
// lives for the process lifetime (spec.md §5 "one logical writer owns the
// DB backend").
type Server struct {
	cfg      config.Config
	backend  dbbackend.Backend
	entries  *entrystore.Store
	embed    *embedclient.Client
	graph    *graph.Store
	enricher *graph.Enricher
	ingester *ingest.Ingester
	strategy *strategy.Executor
	planner  *planner.Planner
	queryLLM llm.Provider
}

// New wires every already-constructed component into a Server. Any of
// embed, enricher, planner, queryLLM may be nil — dependent tools degrade
// per spec.md §7's Unavailable handling.
func New(
	cfg config.Config,
	backend dbbackend.Backend,
	entries *entrystore.Store,
	embed *embedclient.Client,
	graphStore *graph.Store,
	enricher *graph.Enricher,
	ingester *ingest.Ingester,
	strategyExec *strategy.Executor,
	plannerInst *planner.Planner,
	queryLLM llm.Provider,
) *Server {
	return &Server{
		cfg:      cfg,
		backend:  backend,
		entries:  entries,
		embed:    embed,
		graph:    graphStore,
		enricher: enricher,
		ingester: ingester,
		strategy: strategyExec,
		planner:  plannerInst,
		queryLLM: queryLLM,
	}
}
