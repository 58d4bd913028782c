package graph

import (
	"context"
	"fmt"

	"github.com/kbengine/personalkb/internal/entrystore"
	implicitmatcher "github.com/kbengine/personalkb/pkg/implicit-matcher"
)

// maxVocabularyNodes bounds how many known entity nodes the deterministic
// scanner loads per call — mirrors the Query Planner's vocabulary cap.
const maxVocabularyNodes = 2000

// mentionableTypes are the node types eligible for deterministic mention
// detection — the same four kinds the LLM enricher extracts.
var mentionableTypes = map[string]bool{
	string(NodePerson): true, string(NodeTool): true,
	string(NodeConcept): true, string(NodeTechnology): true,
}

// buildMentionDictionary compiles a RuntimeDictionary from every known
// person/tool/concept/technology node currently in the graph.
func (s *Store) buildMentionDictionary(ctx context.Context) (*implicitmatcher.RuntimeDictionary, error) {
	vocab, err := s.GetGraphVocabulary(ctx, maxVocabularyNodes)
	if err != nil {
		return nil, err
	}

	var entities []implicitmatcher.RegisteredEntity
	for nodeType, names := range vocab {
		if !mentionableTypes[nodeType] {
			continue
		}
		for _, name := range names {
			entities = append(entities, implicitmatcher.RegisteredEntity{
				ID:    nodeType + ":" + name,
				Label: name,
				Kind:  nodeType,
			})
		}
	}

	return implicitmatcher.Compile(entities)
}

// DeterministicMentions scans e's text for verbatim mentions of already
// -known graph entities and adds a "mentions" edge for each one found,
// without any LLM call. Run ahead of the LLM enricher so repeat references
// to people/tools/concepts/technologies already in the graph are captured
// for free; the LLM pass then only has to find genuinely new entities.
// Returns the number of mention edges added.
func (s *Store) DeterministicMentions(ctx context.Context, e *entrystore.Entry) (int, error) {
	dict, err := s.buildMentionDictionary(ctx)
	if err != nil {
		return 0, fmt.Errorf("graph: mention dictionary: %w", err)
	}

	matches := dict.Scan(e.EmbeddingText())
	if len(matches) == 0 {
		return 0, nil
	}

	seen := map[string]bool{}
	added := 0
	for _, m := range matches {
		entities := dict.EntitiesFor(m)
		best := dict.SelectBest(idsOf(entities))
		if best == nil || seen[best.ID] {
			continue
		}
		seen[best.ID] = true

		if err := s.addEdge(ctx, e.ID, best.ID, "mentions", map[string]any{
			"source": "deterministic",
			"text":   m.MatchedText,
		}); err != nil {
			return added, fmt.Errorf("graph: add mention edge: %w", err)
		}
		added++
	}

	return added, nil
}

func idsOf(entities []*implicitmatcher.EntityInfo) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}
