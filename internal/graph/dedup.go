package graph

import (
	"context"
	"strings"

	"github.com/antzucaro/matchr"
)

// DedupThreshold is the normalized-similarity cutoff above which a
// candidate entity resolves to an existing vocabulary entry rather than
// minting a new node (spec.md §4.7.1).
const DedupThreshold = 0.85

// VocabularyCache is the per-enrichment-call cache of node_type → [name],
// seeded from the graph and grown as candidates resolve to new nodes within
// the same call (spec.md §4.7.1, §5 "no lock required" — it is owned by one
// call chain). Adapted from the teacher's pkg/docstore.Store shape
// (map + accessor methods), repurposed from an id→Document cache to a
// type→names vocabulary and stripped of its mutex per spec.md §5.
type VocabularyCache struct {
	byType map[string][]string
}

// NewVocabularyCache seeds the cache from every non-entry node currently in
// the graph.
func NewVocabularyCache(ctx context.Context, s *Store) (*VocabularyCache, error) {
	rows, err := s.db.Query(ctx, `SELECT node_id, node_type FROM graph_nodes WHERE node_type != 'entry'`)
	if err != nil {
		return nil, err
	}
	c := &VocabularyCache{byType: map[string][]string{}}
	for _, r := range rows {
		nodeID := toString(r[0])
		nodeType := toString(r[1])
		if _, name, ok := splitNodeID(nodeID); ok {
			c.byType[nodeType] = append(c.byType[nodeType], name)
		}
	}
	return c, nil
}

// Resolve computes the resolved node id for candidate (entity, entityType)
// per spec.md §4.7.1: normalize, compare against every name across every
// non-entry node_type, and if the best match exceeds DedupThreshold, reuse
// that node (cross-type merges allowed). Otherwise mint entityType:key and
// add it to the cache.
func (c *VocabularyCache) Resolve(entity, entityType string) string {
	key := normalizeKey(entity)

	bestType, bestName, bestScore := "", "", -1.0
	for nodeType, names := range c.byType {
		for _, name := range names {
			score := matchr.JaroWinkler(key, name, true)
			if score > bestScore {
				bestType, bestName, bestScore = nodeType, name, score
			}
		}
	}

	if bestScore >= DedupThreshold {
		return bestType + ":" + bestName
	}

	c.byType[entityType] = append(c.byType[entityType], key)
	return entityType + ":" + key
}

// normalizeKey lowercases and replaces spaces with hyphens (spec.md §4.7.1
// step 1).
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "-")
}

// splitNodeID splits "type:name" into its parts.
func splitNodeID(nodeID string) (nodeType, name string, ok bool) {
	idx := strings.IndexByte(nodeID, ':')
	if idx < 0 {
		return "", "", false
	}
	return nodeID[:idx], nodeID[idx+1:], true
}
