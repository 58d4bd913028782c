// Package graph implements spec.md §4.6-4.8: deterministic graph building,
// LLM-driven enrichment with entity dedup, and traversal queries.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kbengine/personalkb/internal/dbbackend"
)

// NodeType is one of the recognized graph_nodes.node_type values
// (spec.md §3).
type NodeType string

const (
	NodeEntry      NodeType = "entry"
	NodeTag        NodeType = "tag"
	NodeProject    NodeType = "project"
	NodePerson     NodeType = "person"
	NodeTool       NodeType = "tool"
	NodeConcept    NodeType = "concept"
	NodeTechnology NodeType = "technology"
	NodeNote       NodeType = "note"
)

// Node is a graph_nodes row.
type Node struct {
	ID         string
	Type       NodeType
	Properties map[string]any
	CreatedAt  time.Time
}

// Edge is a graph_edges row.
type Edge struct {
	Source     string
	Target     string
	EdgeType   string
	Properties map[string]any
	CreatedAt  time.Time
}

// Store wraps a Backend with node/edge primitives shared by Builder,
// Enricher and Queries.
type Store struct {
	db dbbackend.Backend
}

func NewStore(db dbbackend.Backend) *Store { return &Store{db: db} }

// ensureNode upserts a node, overwriting its properties (used by the
// deterministic builder — spec.md §4.6 step 2).
func (s *Store) ensureNode(ctx context.Context, nodeID string, nodeType NodeType, properties map[string]any) error {
	propsJSON := "{}"
	if len(properties) > 0 {
		if b, err := json.Marshal(properties); err == nil {
			propsJSON = string(b)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Execute(ctx, `
		INSERT INTO graph_nodes (node_id, node_type, properties, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET properties = excluded.properties`,
		nodeID, string(nodeType), propsJSON, now)
	return err
}

// ensureNodePreserve inserts a node only if absent, leaving existing
// properties untouched (used by the enricher — spec.md §4.7 "without
// overwriting existing properties").
func (s *Store) ensureNodePreserve(ctx context.Context, nodeID string, nodeType NodeType) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Execute(ctx, `
		INSERT OR IGNORE INTO graph_nodes (node_id, node_type, properties, created_at)
		VALUES (?, ?, '{}', ?)`, nodeID, string(nodeType), now)
	return err
}

func (s *Store) addEdge(ctx context.Context, source, target, edgeType string, properties map[string]any) error {
	propsJSON := "{}"
	if len(properties) > 0 {
		if b, err := json.Marshal(properties); err == nil {
			propsJSON = string(b)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Execute(ctx, `
		INSERT OR IGNORE INTO graph_edges (source, target, edge_type, properties, created_at)
		VALUES (?, ?, ?, ?, ?)`, source, target, edgeType, propsJSON, now)
	return err
}

func (s *Store) clearOutgoingEdges(ctx context.Context, source string) error {
	_, err := s.db.Execute(ctx, `DELETE FROM graph_edges WHERE source = ?`, source)
	return err
}

// ClearOutgoingEdges removes every edge sourced from entryID (used by
// kb_maintain's deactivate action, SPEC_FULL.md §C).
func (s *Store) ClearOutgoingEdges(ctx context.Context, entryID string) error {
	return s.clearOutgoingEdges(ctx, entryID)
}

// ResetAll deletes every graph node and edge (used by kb_maintain's
// rebuild_graph action before reconstructing from scratch).
func (s *Store) ResetAll(ctx context.Context) error {
	if _, err := s.db.Execute(ctx, `DELETE FROM graph_edges`); err != nil {
		return err
	}
	if _, err := s.db.Execute(ctx, `DELETE FROM graph_nodes`); err != nil {
		return err
	}
	return nil
}

// CountNodes and CountEdges report the total graph size (used by
// rebuild_graph's summary line).
func (s *Store) CountNodes(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT COUNT(*) FROM graph_nodes`)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return int(toInt(rows[0][0])), nil
}

func (s *Store) CountEdges(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT COUNT(*) FROM graph_edges`)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return int(toInt(rows[0][0])), nil
}

// EnsureNodeFor upserts an entry's graph node without touching its edges
// (used by kb_search's low-result graph-hint fallback, which only needs
// neighbor lookups, not a full rebuild).
func (s *Store) NodeExists(ctx context.Context, nodeID string) (bool, error) {
	rows, err := s.db.Query(ctx, `SELECT 1 FROM graph_nodes WHERE node_id = ?`, nodeID)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// CountsByNodeType returns node counts grouped by type (used by the Query
// Planner's context prompt, spec.md §4.9).
func (s *Store) CountsByNodeType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `SELECT node_type, COUNT(*) FROM graph_nodes GROUP BY node_type`)
	if err != nil {
		return nil, fmt.Errorf("graph: counts by node type: %w", err)
	}
	out := map[string]int{}
	for _, r := range rows {
		out[fmt.Sprint(r[0])] = int(toInt(r[1]))
	}
	return out, nil
}

// CountsByEdgeType returns edge counts grouped by type.
func (s *Store) CountsByEdgeType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx, `SELECT edge_type, COUNT(*) FROM graph_edges GROUP BY edge_type`)
	if err != nil {
		return nil, fmt.Errorf("graph: counts by edge type: %w", err)
	}
	out := map[string]int{}
	for _, r := range rows {
		out[fmt.Sprint(r[0])] = int(toInt(r[1]))
	}
	return out, nil
}

func toInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
