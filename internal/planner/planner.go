// Package planner translates a natural-language question into a structured
// graph query plan (spec.md §4.9), grounded on
// _examples/original_source/src/personal_kb/graph/planner.py.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/llmjson"
	"github.com/kbengine/personalkb/internal/logx"
)

var log = logx.Component("planner")

var validStrategies = map[string]bool{
	"auto": true, "decision_trace": true, "timeline": true, "related": true, "connection": true,
}

const systemPrompt = `You are a knowledge graph query planner. Given a natural language question and a graph vocabulary, choose the best query strategy and resolve entity references.

Available strategies:
- auto: Hybrid search + graph expansion. Best for general questions or when unsure.
- decision_trace: Follow supersedes chains for decision history. Use when the question asks about WHY something was decided or how a decision evolved.
- timeline: Chronological entries for a scope. Use when the question asks about history, progression, or "what happened" in a specific area.
- related: BFS from a starting node. Use when the question asks "what relates to X" or "what else uses X".
- connection: Find paths between two nodes. Use when the question asks how two things are connected.

Node ID formats:
- tag:X (e.g., tag:python, tag:sqlite)
- project:X (e.g., project:personal-kb)
- person:X (e.g., person:jason)
- tool:X (e.g., tool:aiosqlite)
- concept:X (e.g., concept:async-io)
- technology:X (e.g., technology:fastapi)
- kb-XXXXX (entry IDs)

Output a single JSON object:
{
  "strategy": "auto|decision_trace|timeline|related|connection",
  "scope": "resolved node ID or null",
  "target": "second node ID (connection only) or null",
  "search_query": "refined search terms or null",
  "reasoning": "brief explanation of your choice"
}

Rules:
- Choose ONE strategy. When in doubt, use "auto".
- Resolve mentions to exact node IDs from the vocabulary provided.
- For "auto", provide a refined search_query if the original question is verbose.
- For "related" and "timeline", scope is required.
- For "connection", both scope and target are required.
- If you can't resolve a mention to a known node, use "auto" instead.`

// Plan is the result of Plan: a structured graph query strategy selection.
type Plan struct {
	Strategy    string
	Scope       string
	Target      string
	SearchQuery string
	Reasoning   string
}

// Planner translates natural language questions into structured query
// plans using graph stats/vocabulary context and an LLM.
type Planner struct {
	entries *entrystore.Store
	graph   *graph.Store
	llm     llm.Provider
}

func New(entries *entrystore.Store, graphStore *graph.Store, provider llm.Provider) *Planner {
	return &Planner{entries: entries, graph: graphStore, llm: provider}
}

// Plan generates a query plan for question. Returns nil, nil on any
// unavailability or parse failure — callers fall back to the "auto"
// strategy (spec.md §4.9).
func (p *Planner) Plan(ctx context.Context, question string) (*Plan, error) {
	if p.llm == nil || !p.llm.IsAvailable(ctx) {
		return nil, nil
	}

	context_, err := p.buildContext(ctx, question)
	if err != nil {
		return nil, err
	}

	raw, ok := p.llm.Generate(ctx, systemPrompt, context_)
	if !ok {
		return nil, nil
	}

	return parsePlan(raw), nil
}

func (p *Planner) buildContext(ctx context.Context, question string) (string, error) {
	var b strings.Builder

	nodesByType, err := p.graph.CountsByNodeType(ctx)
	if err != nil {
		return "", fmt.Errorf("planner: node counts: %w", err)
	}
	edgesByType, err := p.graph.CountsByEdgeType(ctx)
	if err != nil {
		return "", fmt.Errorf("planner: edge counts: %w", err)
	}
	activeCount, err := p.entries.CountActive(ctx)
	if err != nil {
		return "", fmt.Errorf("planner: active count: %w", err)
	}

	nodesJSON, _ := json.Marshal(nodesByType)
	edgesJSON, _ := json.Marshal(edgesByType)

	fmt.Fprintln(&b, "Graph stats:")
	fmt.Fprintf(&b, "  Nodes by type: %s\n", nodesJSON)
	fmt.Fprintf(&b, "  Edges by type: %s\n", edgesJSON)
	fmt.Fprintf(&b, "  Active entries: %d\n", activeCount)

	vocab, err := p.graph.GetGraphVocabulary(ctx, 200)
	if err != nil {
		return "", fmt.Errorf("planner: vocabulary: %w", err)
	}
	if len(vocab) > 0 {
		fmt.Fprintln(&b, "\nGraph vocabulary (available node names by type):")
		types := make([]string, 0, len(vocab))
		for t := range vocab {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&b, "  %s: %s\n", t, strings.Join(vocab[t], ", "))
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s", question)
	return b.String(), nil
}

func parsePlan(raw string) *Plan {
	cleaned := llmjson.Clean(raw)
	span := llmjson.ExtractObject(cleaned)
	if span == "" {
		log.Warn().Msg("no JSON object found in planner response")
		return nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(span), &data); err != nil {
		log.Warn().Err(err).Msg("malformed JSON in planner response")
		return nil
	}

	strategy, _ := data["strategy"].(string)
	if strategy == "" {
		strategy = "auto"
	}
	if !validStrategies[strategy] {
		log.Warn().Str("strategy", strategy).Msg("invalid strategy from planner, falling back to auto")
		strategy = "auto"
	}

	asStr := func(key string) string {
		s, _ := data[key].(string)
		return s
	}

	return &Plan{
		Strategy:    strategy,
		Scope:       asStr("scope"),
		Target:      asStr("target"),
		SearchQuery: asStr("search_query"),
		Reasoning:   asStr("reasoning"),
	}
}
