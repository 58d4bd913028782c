// Package strategy implements kb_ask's query strategies (spec.md §4.10),
// grounded on
// _examples/original_source/src/personal_kb/tools/kb_ask.py.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kbengine/personalkb/internal/confidence"
	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/embedclient"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/planner"
	"github.com/kbengine/personalkb/internal/ranker"
	"github.com/kbengine/personalkb/internal/search"
)

var validStrategies = map[string]bool{
	"auto": true, "decision_trace": true, "timeline": true, "related": true, "connection": true,
}

// ValidStrategy reports whether name is a recognized strategy.
func ValidStrategy(name string) bool { return validStrategies[name] }

// Executor runs kb_ask's strategies against the store.
type Executor struct {
	backend dbbackend.Backend
	entries *entrystore.Store
	graph   *graph.Store
	embed   *embedclient.Client
	planner *planner.Planner
}

func New(backend dbbackend.Backend, entries *entrystore.Store, graphStore *graph.Store, embed *embedclient.Client, p *planner.Planner) *Executor {
	return &Executor{backend: backend, entries: entries, graph: graphStore, embed: embed, planner: p}
}

// entryContext pairs an entry with the human-readable reason it was
// included in a result set.
type entryContext struct {
	entry   *entrystore.Entry
	context string
}

// Ask dispatches question to the named strategy (or, for "auto", consults
// the Query Planner first — spec.md §4.10, SPEC_FULL.md §C "kb_ask
// auto-strategy planner consultation").
func (x *Executor) Ask(ctx context.Context, question, strategyName, scope, target string, includeGraphContext bool, limit int) (string, error) {
	if !ValidStrategy(strategyName) {
		return fmt.Sprintf("Unknown strategy '%s'. Use: auto, connection, decision_trace, related, timeline", strategyName), nil
	}

	switch strategyName {
	case "auto":
		return x.autoWithPlanner(ctx, question, scope, includeGraphContext, limit)
	case "decision_trace":
		return x.decisionTrace(ctx, question, scope, limit)
	case "timeline":
		return x.timeline(ctx, scope, limit)
	case "related":
		return x.related(ctx, scope, limit)
	case "connection":
		return x.connection(ctx, scope, target)
	}
	return "Strategy not implemented.", nil
}

// AutoSearch runs the auto strategy directly, without consulting the
// planner — used by kb_summarize, which always retrieves via plain hybrid
// search + graph expansion before handing results to the synthesis LLM
// (_examples/original_source/src/personal_kb/tools/kb_summarize.py calls
// `_strategy_auto` directly, bypassing the planner-consulting wrapper).
func (x *Executor) AutoSearch(ctx context.Context, question, scope string, includeGraphContext bool, limit int) (string, error) {
	return x.auto(ctx, question, scope, includeGraphContext, limit)
}

func (x *Executor) autoWithPlanner(ctx context.Context, question, scope string, includeGraphContext bool, limit int) (string, error) {
	var plan *planner.Plan
	if x.planner != nil {
		p, err := x.planner.Plan(ctx, question)
		if err == nil {
			plan = p
		}
	}

	if plan != nil && plan.Strategy != "auto" {
		header := fmt.Sprintf("[Planned: %s]", plan.Strategy)
		if plan.Reasoning != "" {
			header += " " + plan.Reasoning
		}
		header += "\n\n"

		planScope := firstNonEmpty(plan.Scope, scope)
		var result string
		var err error
		switch plan.Strategy {
		case "decision_trace":
			result, err = x.decisionTrace(ctx, firstNonEmpty(plan.SearchQuery, question), planScope, limit)
		case "timeline":
			result, err = x.timeline(ctx, planScope, limit)
		case "related":
			result, err = x.related(ctx, planScope, limit)
		case "connection":
			result, err = x.connection(ctx, planScope, plan.Target)
		default:
			result, err = x.auto(ctx, firstNonEmpty(plan.SearchQuery, question), scope, includeGraphContext, limit)
		}
		if err != nil {
			return "", err
		}
		return header + result, nil
	}

	searchQuery := question
	if plan != nil && plan.SearchQuery != "" {
		searchQuery = plan.SearchQuery
	}
	return x.auto(ctx, searchQuery, scope, includeGraphContext, limit)
}

func (x *Executor) auto(ctx context.Context, question, scope string, includeGraphContext bool, limit int) (string, error) {
	results, err := ranker.Search(ctx, x.backend, x.entries, x.embed, ranker.Query{Text: question, Limit: limit, IncludeStale: false})
	if err != nil {
		return "", err
	}

	seen := map[string]bool{}
	var entries []entryContext
	for _, r := range results {
		seen[r.Entry.ID] = true
		entries = append(entries, entryContext{entry: r.Entry, context: fmt.Sprintf("search match (score: %.4f)", r.Score)})
	}

	if includeGraphContext && len(results) > 0 {
	outer:
		for _, r := range results {
			neighbors, err := x.graph.GetNeighbors(ctx, r.Entry.ID, nil, "both", 10)
			if err != nil {
				return "", err
			}
			for _, n := range neighbors {
				if seen[n.NodeID] || !strings.HasPrefix(n.NodeID, "kb-") {
					continue
				}
				e, err := x.entries.GetEntry(ctx, n.NodeID)
				if err != nil {
					return "", err
				}
				if e == nil || !e.IsActive {
					continue
				}
				seen[n.NodeID] = true
				var ctxStr string
				if n.Direction == "outgoing" {
					ctxStr = fmt.Sprintf("linked from %s via %s", r.Entry.ID, n.EdgeType)
				} else {
					ctxStr = fmt.Sprintf("links to %s via %s", r.Entry.ID, n.EdgeType)
				}
				entries = append(entries, entryContext{entry: e, context: ctxStr})
				if len(entries) >= limit {
					break outer
				}
			}
			if len(entries) >= limit {
				break
			}
		}
	}

	if len(entries) == 0 {
		return "No results found.", nil
	}
	return formatEntries(entries, fmt.Sprintf("Auto search: %s", question)), nil
}

func (x *Executor) decisionTrace(ctx context.Context, question, scope string, limit int) (string, error) {
	ftsHits := search.FTS(ctx, x.backend, question, dbbackend.FTSFilter{EntryType: string(entrystore.Decision)}, limit)
	ids := make([]string, 0, len(ftsHits))
	for _, h := range ftsHits {
		ids = append(ids, h.EntryID)
	}

	if len(ids) == 0 && scope != "" {
		scoped, err := x.graph.EntriesForScope(ctx, scope, string(entrystore.Decision), "created_at")
		if err != nil {
			return "", err
		}
		if len(scoped) > limit {
			scoped = scoped[:limit]
		}
		ids = scoped
	}

	if len(ids) == 0 {
		return "No decision entries found matching the query.", nil
	}

	seenChains := map[string]bool{}
	var entries []entryContext

	for _, id := range ids {
		if seenChains[id] {
			continue
		}
		chain, err := x.graph.SupersedesChain(ctx, id)
		if err != nil {
			return "", err
		}
		for _, cid := range chain {
			seenChains[cid] = true
		}

		for i, cid := range chain {
			e, err := x.entries.GetEntry(ctx, cid)
			if err != nil {
				return "", err
			}
			if e == nil {
				continue
			}
			var ctxStr string
			switch {
			case len(chain) == 1:
				ctxStr = "current decision"
			case i == 0:
				ctxStr = "original decision"
			case i == len(chain)-1:
				ctxStr = fmt.Sprintf("current (supersedes %s)", chain[i-1])
			default:
				ctxStr = fmt.Sprintf("supersedes %s", chain[i-1])
			}
			entries = append(entries, entryContext{entry: e, context: ctxStr})
			if len(entries) >= limit {
				break
			}
		}
		if len(entries) >= limit {
			break
		}
	}

	if len(entries) == 0 {
		return "No decision entries found matching the query.", nil
	}
	return formatEntries(entries, fmt.Sprintf("Decision trace: %s", question)), nil
}

func (x *Executor) timeline(ctx context.Context, scope string, limit int) (string, error) {
	if scope == "" {
		return "Timeline strategy requires a scope (e.g. project:X, tag:Y, decision).", nil
	}

	ids, err := x.graph.EntriesForScope(ctx, scope, "", "created_at")
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return fmt.Sprintf("No entries found for scope: %s", scope), nil
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	var entries []entryContext
	for _, id := range ids {
		e, err := x.entries.GetEntry(ctx, id)
		if err != nil {
			return "", err
		}
		if e == nil || !e.IsActive {
			continue
		}
		entries = append(entries, entryContext{entry: e, context: fmt.Sprintf("created %s", e.CreatedAt.Format("2006-01-02"))})
	}

	if len(entries) == 0 {
		return fmt.Sprintf("No active entries found for scope: %s", scope), nil
	}
	return formatEntries(entries, fmt.Sprintf("Timeline: %s", scope)), nil
}

func (x *Executor) related(ctx context.Context, scope string, limit int) (string, error) {
	if scope == "" {
		return "Related strategy requires a scope (entry ID or node ID like tag:python).", nil
	}

	hits, err := x.graph.BFSEntries(ctx, scope, 2, nil, limit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No related entries found from: %s", scope), nil
	}

	var entries []entryContext
	for _, h := range hits {
		e, err := x.entries.GetEntry(ctx, h.EntryID)
		if err != nil {
			return "", err
		}
		if e == nil || !e.IsActive {
			continue
		}
		var ctxStr string
		if h.Depth == 1 {
			ctxStr = "directly connected"
		} else {
			var intermediates []string
			if len(h.Path) > 2 {
				for _, n := range h.Path[1 : len(h.Path)-1] {
					if !strings.HasPrefix(n, "kb-") {
						intermediates = append(intermediates, n)
					}
				}
			}
			if len(intermediates) > 0 {
				ctxStr = fmt.Sprintf("connected via %s", strings.Join(intermediates, ", "))
			} else {
				ctxStr = fmt.Sprintf("connected (depth %d)", h.Depth)
			}
		}
		entries = append(entries, entryContext{entry: e, context: ctxStr})
	}

	if len(entries) == 0 {
		return fmt.Sprintf("No related entries found from: %s", scope), nil
	}
	return formatEntries(entries, fmt.Sprintf("Related to: %s", scope)), nil
}

func (x *Executor) connection(ctx context.Context, scope, target string) (string, error) {
	if scope == "" || target == "" {
		return "Connection strategy requires both scope and target parameters.", nil
	}

	path, err := x.graph.FindPath(ctx, scope, target, 4)
	if err != nil {
		return "", err
	}
	if path == nil {
		return fmt.Sprintf("No connection found between %s and %s (max depth: 4).", scope, target), nil
	}
	if len(path) == 0 {
		return fmt.Sprintf("%s and %s are the same node.", scope, target), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Connection: %s -> %s\n\n", scope, target)
	b.WriteString("Path:\n")
	for i, step := range path {
		fmt.Fprintf(&b, "  %d. %s --[%s]--> %s\n", i+1, step.Node, step.EdgeType, step.Next)
	}

	entryIDSet := map[string]bool{}
	for _, step := range path {
		if strings.HasPrefix(step.Node, "kb-") {
			entryIDSet[step.Node] = true
		}
		if strings.HasPrefix(step.Next, "kb-") {
			entryIDSet[step.Next] = true
		}
	}

	if len(entryIDSet) > 0 {
		ids := make([]string, 0, len(entryIDSet))
		for id := range entryIDSet {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		b.WriteString("\nEntries along the path:\n")
		now := time.Now().UTC()
		for _, id := range ids {
			e, err := x.entries.GetEntry(ctx, id)
			if err != nil {
				return "", err
			}
			if e == nil {
				continue
			}
			eff := confidence.EffectiveConfidence(e.ConfidenceLevel, e.EntryType, e.DecayAnchor(), now)
			fmt.Fprintf(&b, "  [%s] %s: %s (%.0f%%)\n", e.ID, e.EntryType, e.ShortTitle, eff*100)
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func formatEntries(entries []entryContext, header string) string {
	now := time.Now().UTC()
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nFound %d result(s):\n\n", header, len(entries))

	for _, ec := range entries {
		e := ec.entry
		eff := confidence.EffectiveConfidence(e.ConfidenceLevel, e.EntryType, e.DecayAnchor(), now)
		warning := confidence.StalenessWarning(eff, e.EntryType)

		fmt.Fprintf(&b, "[%s] %s: %s (%.0f%%)\n", e.ID, e.EntryType, e.ShortTitle, eff*100)
		fmt.Fprintf(&b, "  ↳ %s\n", ec.context)
		if len(e.Tags) > 0 {
			fmt.Fprintf(&b, "  Tags: %s\n", strings.Join(e.Tags, ", "))
		}
		if warning != "" {
			fmt.Fprintf(&b, "  WARNING: %s\n", warning)
		}
		fmt.Fprintf(&b, "  %s\n\n", e.KnowledgeDetails)
	}

	return strings.TrimRight(b.String(), "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
