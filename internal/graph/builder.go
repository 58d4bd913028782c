package graph

import (
	"context"
	"regexp"
	"strings"

	"github.com/kbengine/personalkb/internal/entrystore"
)

// kbIDPattern matches entry-id text references inside knowledge_details
// (spec.md §4.6 step 7).
var kbIDPattern = regexp.MustCompile(`kb-\d{5}`)

// BuildForEntry deterministically rebuilds every outgoing edge from an
// entry's node — explicit hints first, then a dictionary scan
// (DeterministicMentions) over already-known graph entities. Grounded on
// _examples/original_source/src/personal_kb/graph/builder.py, generalized
// from the teacher's Note/Entity/Edge shape to entry/node/edge. Idempotent:
// building twice yields the same edge set (spec.md §4.6).
func (s *Store) BuildForEntry(ctx context.Context, e *entrystore.Entry) error {
	if err := s.clearOutgoingEdges(ctx, e.ID); err != nil {
		return err
	}

	if err := s.ensureNode(ctx, e.ID, NodeEntry, map[string]any{
		"short_title": e.ShortTitle,
		"entry_type":  string(e.EntryType),
	}); err != nil {
		return err
	}

	for _, tag := range e.Tags {
		nodeID := "tag:" + tag
		if err := s.ensureNode(ctx, nodeID, NodeTag, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.ID, nodeID, "has_tag", nil); err != nil {
			return err
		}
	}

	if e.ProjectRef != "" {
		nodeID := "project:" + e.ProjectRef
		if err := s.ensureNode(ctx, nodeID, NodeProject, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.ID, nodeID, "in_project", nil); err != nil {
			return err
		}
	}

	hints := e.Hints

	for _, target := range asStringList(hints["supersedes"]) {
		if target == "" {
			continue
		}
		if err := s.ensureNode(ctx, target, NodeEntry, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.ID, target, "supersedes", nil); err != nil {
			return err
		}
	}

	if e.SupersededBy != "" {
		if err := s.ensureNode(ctx, e.SupersededBy, NodeEntry, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.SupersededBy, e.ID, "supersedes", nil); err != nil {
			return err
		}
	}

	seen := map[string]bool{}
	for _, ref := range kbIDPattern.FindAllString(e.KnowledgeDetails, -1) {
		if ref == e.ID || seen[ref] {
			continue
		}
		seen[ref] = true
		if err := s.ensureNode(ctx, ref, NodeEntry, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.ID, ref, "references", nil); err != nil {
			return err
		}
	}

	for _, rel := range asRelatedEntities(hints["related_entities"]) {
		if rel.target == "" {
			continue
		}
		if err := s.ensureNode(ctx, rel.target, NodeEntry, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.ID, rel.target, rel.edgeType, nil); err != nil {
			return err
		}
	}

	for _, person := range asStringList(hints["person"]) {
		if person == "" {
			continue
		}
		nodeID := "person:" + strings.ToLower(person)
		if err := s.ensureNode(ctx, nodeID, NodePerson, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.ID, nodeID, "mentions_person", nil); err != nil {
			return err
		}
	}

	for _, tool := range asStringList(hints["tool"]) {
		if tool == "" {
			continue
		}
		nodeID := "tool:" + strings.ToLower(tool)
		if err := s.ensureNode(ctx, nodeID, NodeTool, nil); err != nil {
			return err
		}
		if err := s.addEdge(ctx, e.ID, nodeID, "uses_tool", nil); err != nil {
			return err
		}
	}

	if _, err := s.DeterministicMentions(ctx, e); err != nil {
		return err
	}

	return nil
}

// asStringList coerces hint values to []string: a bare string becomes a
// single-element list, a []any keeps only its string elements, anything
// else (an int, a nested object) is ignored — malformed shapes contribute no
// edges (spec.md §4.6 step 8).
func asStringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

type relatedEntity struct {
	target   string
	edgeType string
}

// asRelatedEntities parses hints["related_entities"]: either a bare string
// (related_to the named entry), or a list mixing strings and
// {id|target, edge_type|type} objects. Malformed entries are skipped.
func asRelatedEntities(v any) []relatedEntity {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		items = []any{t}
	case []any:
		items = t
	default:
		return nil
	}

	out := make([]relatedEntity, 0, len(items))
	for _, item := range items {
		switch rel := item.(type) {
		case string:
			if rel != "" {
				out = append(out, relatedEntity{target: rel, edgeType: "related_to"})
			}
		case map[string]any:
			target, _ := firstString(rel, "id", "target")
			edgeType, ok := firstString(rel, "edge_type", "type")
			if !ok {
				edgeType = "related_to"
			}
			if target != "" {
				out = append(out, relatedEntity{target: target, edgeType: edgeType})
			}
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
