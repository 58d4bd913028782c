package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kbengine/personalkb/internal/entrystore"
)

// kbIDExact matches a full entry id, anchored (spec.md §4.8, _KB_ID_RE).
var kbIDExact = regexp.MustCompile(`^kb-\d{5,}$`)

// Neighbor is one hop from GetNeighbors: (neighbor node id, edge type,
// direction the edge was traversed in).
type Neighbor struct {
	NodeID    string
	EdgeType  string
	Direction string // "outgoing" | "incoming"
}

// GetNeighbors returns up to limit neighbors of nodeID, optionally filtered
// to edgeTypes, in the requested direction ("both", "outgoing", "incoming").
// Grounded on _examples/original_source/src/personal_kb/graph/queries.py
// get_neighbors.
func (s *Store) GetNeighbors(ctx context.Context, nodeID string, edgeTypes []string, direction string, limit int) ([]Neighbor, error) {
	var results []Neighbor

	if direction == "both" || direction == "outgoing" {
		rows, err := s.queryEdges(ctx, "target, edge_type", "source", nodeID, edgeTypes, limit)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			results = append(results, Neighbor{NodeID: toString(r[0]), EdgeType: toString(r[1]), Direction: "outgoing"})
		}
	}

	if direction == "both" || direction == "incoming" {
		remaining := limit - len(results)
		if remaining <= 0 {
			return results, nil
		}
		rows, err := s.queryEdges(ctx, "source, edge_type", "target", nodeID, edgeTypes, remaining)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			results = append(results, Neighbor{NodeID: toString(r[0]), EdgeType: toString(r[1]), Direction: "incoming"})
		}
	}

	return results, nil
}

func (s *Store) queryEdges(ctx context.Context, selectCols, whereCol, nodeID string, edgeTypes []string, limit int) ([][]any, error) {
	query := fmt.Sprintf("SELECT %s FROM graph_edges WHERE %s = ?", selectCols, whereCol)
	args := []any{nodeID}
	if len(edgeTypes) > 0 {
		placeholders := make([]string, len(edgeTypes))
		for i, et := range edgeTypes {
			placeholders[i] = "?"
			args = append(args, et)
		}
		query += fmt.Sprintf(" AND edge_type IN (%s)", strings.Join(placeholders, ","))
	}
	query += " LIMIT ?"
	args = append(args, limit)
	return s.db.Query(ctx, query, args...)
}

// BFSHit is one result from BFSEntries: an entry node reached at depth via
// path (the list of node ids from start to this entry, inclusive).
type BFSHit struct {
	EntryID string
	Depth   int
	Path    []string
}

// BFSEntries breadth-first-searches from startNode, collecting entry nodes
// reached within maxDepth. Grounded on queries.py bfs_entries.
func (s *Store) BFSEntries(ctx context.Context, startNode string, maxDepth int, edgeTypes []string, limit int) ([]BFSHit, error) {
	visited := map[string]bool{startNode: true}
	type queueItem struct {
		node  string
		depth int
		path  []string
	}
	queue := []queueItem{{node: startNode, depth: 0, path: []string{startNode}}}
	var results []BFSHit

	for len(queue) > 0 && len(results) < limit {
		item := queue[0]
		queue = queue[1:]

		if item.depth > 0 && kbIDExact.MatchString(item.node) {
			results = append(results, BFSHit{EntryID: item.node, Depth: item.depth, Path: item.path})
			if len(results) >= limit {
				break
			}
		}

		if item.depth >= maxDepth {
			continue
		}

		neighbors, err := s.GetNeighbors(ctx, item.node, edgeTypes, "both", 50)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n.NodeID] {
				continue
			}
			visited[n.NodeID] = true
			path := append(append([]string{}, item.path...), n.NodeID)
			queue = append(queue, queueItem{node: n.NodeID, depth: item.depth + 1, path: path})
		}
	}

	return results, nil
}

// PathStep is one (node, edge_type, next_node) triple in a path returned by
// FindPath.
type PathStep struct {
	Node     string
	EdgeType string
	Next     string
}

// FindPath finds the shortest path between source and target via
// bidirectional-at-each-step BFS (both outgoing and incoming edges
// considered at every hop, matching get_neighbors — SPEC_FULL.md §C "find_path
// is bidirectional"). Returns nil with no error if no path exists within
// maxDepth. Grounded on queries.py find_path.
func (s *Store) FindPath(ctx context.Context, source, target string, maxDepth int) ([]PathStep, error) {
	if source == target {
		return []PathStep{}, nil
	}

	type queueItem struct {
		node string
		path []PathStep
	}
	visited := map[string]bool{source: true}
	queue := []queueItem{{node: source, path: nil}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if len(item.path) >= maxDepth {
			continue
		}

		neighbors, err := s.GetNeighbors(ctx, item.node, nil, "both", 50)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if visited[n.NodeID] {
				continue
			}
			visited[n.NodeID] = true

			var step PathStep
			if n.Direction == "outgoing" {
				step = PathStep{Node: item.node, EdgeType: n.EdgeType, Next: n.NodeID}
			} else {
				step = PathStep{Node: n.NodeID, EdgeType: n.EdgeType, Next: item.node}
			}
			newPath := append(append([]PathStep{}, item.path...), step)

			if n.NodeID == target {
				return newPath, nil
			}
			queue = append(queue, queueItem{node: n.NodeID, path: newPath})
		}
	}

	return nil, nil
}

// ScopeKind classifies a parsed scope string (spec.md §4.8 _parse_scope).
type ScopeKind string

const (
	ScopeEntry     ScopeKind = "entry"
	ScopeEntryType ScopeKind = "entry_type"
	ScopeProject   ScopeKind = "project"
	ScopeTag       ScopeKind = "tag"
	ScopePerson    ScopeKind = "person"
	ScopeTool      ScopeKind = "tool"
	ScopeNode      ScopeKind = "node"
)

var scopePrefixes = []struct {
	prefix string
	kind   ScopeKind
}{
	{"project:", ScopeProject},
	{"tag:", ScopeTag},
	{"person:", ScopePerson},
	{"tool:", ScopeTool},
}

// ParseScope classifies a scope string into (kind, value), matching
// queries.py _parse_scope.
func ParseScope(scope string) (ScopeKind, string) {
	if kbIDExact.MatchString(scope) {
		return ScopeEntry, scope
	}
	for _, sp := range scopePrefixes {
		if strings.HasPrefix(scope, sp.prefix) {
			return sp.kind, scope[len(sp.prefix):]
		}
	}
	if entrystore.ValidEntryType(scope) {
		return ScopeEntryType, scope
	}
	return ScopeNode, scope
}

var allowedOrderColumns = map[string]bool{
	"created_at": true, "updated_at": true, "confidence_level": true, "short_title": true,
}

func safeOrder(orderBy string) string {
	if allowedOrderColumns[orderBy] {
		return orderBy
	}
	return "created_at"
}

// EntriesForScope resolves a scope string (project:/tag:/person:/tool:/a
// bare entry id/a bare entry_type/a generic node id) to the matching active
// entry ids, optionally filtered further by entryType and ordered by
// orderBy. Grounded on queries.py entries_for_scope.
func (s *Store) EntriesForScope(ctx context.Context, scope, entryType, orderBy string) ([]string, error) {
	kind, value := ParseScope(scope)
	order := safeOrder(orderBy)

	switch kind {
	case ScopeEntry:
		return []string{value}, nil

	case ScopeEntryType:
		query := fmt.Sprintf("SELECT id FROM entries WHERE entry_type = ? AND is_active = 1 ORDER BY %s", order)
		args := []any{value}
		if entryType != "" {
			query = fmt.Sprintf("SELECT id FROM entries WHERE entry_type = ? AND is_active = 1 AND entry_type = ? ORDER BY %s", order)
			args = append(args, entryType)
		}
		return s.queryEntryIDs(ctx, query, args...)

	case ScopeProject:
		query := fmt.Sprintf("SELECT id FROM entries WHERE project_ref = ? AND is_active = 1 ORDER BY %s", order)
		args := []any{value}
		if entryType != "" {
			query = fmt.Sprintf("SELECT id FROM entries WHERE project_ref = ? AND is_active = 1 AND entry_type = ? ORDER BY %s", order)
			args = append(args, entryType)
		}
		return s.queryEntryIDs(ctx, query, args...)
	}

	var nodeID, edgeType string
	switch kind {
	case ScopeTag:
		nodeID, edgeType = "tag:"+value, "has_tag"
	case ScopePerson:
		nodeID, edgeType = "person:"+value, "mentions_person"
	case ScopeTool:
		nodeID, edgeType = "tool:"+value, "uses_tool"
	default:
		nodeID = value
	}

	query := "SELECT source FROM graph_edges WHERE target = ?"
	args := []any{nodeID}
	if edgeType != "" {
		query += " AND edge_type = ?"
		args = append(args, edgeType)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: entries for scope: %w", err)
	}

	var entryIDs []string
	for _, r := range rows {
		id := toString(r[0])
		if kbIDExact.MatchString(id) {
			entryIDs = append(entryIDs, id)
		}
	}
	if len(entryIDs) == 0 {
		return entryIDs, nil
	}
	return s.sortEntries(ctx, entryIDs, entryType, order)
}

func (s *Store) queryEntryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("graph: query entry ids: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, toString(r[0]))
	}
	return ids, nil
}

func (s *Store) sortEntries(ctx context.Context, entryIDs []string, entryType, order string) ([]string, error) {
	placeholders := make([]string, len(entryIDs))
	args := make([]any, 0, len(entryIDs)+1)
	for i, id := range entryIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf("SELECT id FROM entries WHERE id IN (%s) AND is_active = 1", strings.Join(placeholders, ","))
	if entryType != "" {
		query += " AND entry_type = ?"
		args = append(args, entryType)
	}
	query += " ORDER BY " + order
	return s.queryEntryIDs(ctx, query, args...)
}

// SupersedesChain returns the full supersedes chain containing entryID,
// oldest first, following supersedes edges in both directions. Grounded on
// queries.py supersedes_chain.
func (s *Store) SupersedesChain(ctx context.Context, entryID string) ([]string, error) {
	chainSet := map[string]bool{entryID: true}
	chain := []string{entryID}

	current := entryID
	for {
		rows, err := s.db.Query(ctx, `SELECT target FROM graph_edges WHERE source = ? AND edge_type = 'supersedes'`, current)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		target := toString(rows[0][0])
		if chainSet[target] {
			break
		}
		chainSet[target] = true
		chain = append([]string{target}, chain...)
		current = target
	}

	current = entryID
	for {
		rows, err := s.db.Query(ctx, `SELECT source FROM graph_edges WHERE target = ? AND edge_type = 'supersedes'`, current)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		source := toString(rows[0][0])
		if chainSet[source] {
			break
		}
		chainSet[source] = true
		chain = append(chain, source)
		current = source
	}

	return chain, nil
}

// GetGraphVocabulary returns non-entry node ids grouped by type, names
// stripped of their type prefix, ordered by connection count descending and
// capped at maxNodes total. Used by the Query Planner's context prompt.
// Grounded on queries.py get_graph_vocabulary.
func (s *Store) GetGraphVocabulary(ctx context.Context, maxNodes int) (map[string][]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT n.node_id, n.node_type,
		       (SELECT COUNT(*) FROM graph_edges WHERE source = n.node_id OR target = n.node_id) AS conn_count
		FROM graph_nodes n
		WHERE n.node_type != 'entry'
		ORDER BY conn_count DESC
		LIMIT ?`, maxNodes)
	if err != nil {
		return nil, fmt.Errorf("graph: vocabulary: %w", err)
	}

	vocab := map[string][]string{}
	for _, r := range rows {
		nodeID := toString(r[0])
		nodeType := toString(r[1])
		prefix := nodeType + ":"
		name := nodeID
		if strings.HasPrefix(nodeID, prefix) {
			name = nodeID[len(prefix):]
		}
		vocab[nodeType] = append(vocab[nodeType], name)
	}
	return vocab, nil
}
