package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/llmjson"
	"github.com/kbengine/personalkb/internal/logx"
)

var enricherLog = logx.Component("graph.enricher")

var validEntityTypes = map[string]bool{"person": true, "tool": true, "concept": true, "technology": true}

const maxRelationships = 8

const enrichSystemPrompt = `You are a knowledge graph builder. Given a knowledge entry, extract entities and their relationships to this entry.

Return ONLY a JSON array. Each object has:
- "entity": entity name (lowercase, hyphens for spaces)
- "entity_type": one of: person, tool, concept, technology
- "relationship": how the entry relates to the entity

Rules:
- Extract 2-6 entities. Return [] if the entry is too generic.
- Skip tags and project references (already captured separately).
- entity_type MUST be one of: person, tool, concept, technology.`

const batchEnrichSystemPrompt = `You are a knowledge graph builder. Given multiple knowledge entries, extract entities and their relationships for EACH entry.

Return ONLY a JSON object keyed by entry ID. Each value is an array of relationship objects with "entity", "entity_type", "relationship" as in the single-entry case.`

type rawRelationship struct {
	Entity       string `json:"entity"`
	EntityType   string `json:"entity_type"`
	Relationship string `json:"relationship"`
}

// Enricher adds typed entities from an LLM over an entry's text (spec.md §4.7).
type Enricher struct {
	store *Store
	llm   llm.Provider
}

func NewEnricher(store *Store, provider llm.Provider) *Enricher {
	return &Enricher{store: store, llm: provider}
}

// EnrichEntry extracts relationships for one entry and replaces its prior
// LLM-provenance edges. Returns the number of edges added; never raises.
func (en *Enricher) EnrichEntry(ctx context.Context, e *entrystore.Entry) (int, error) {
	if en.llm == nil || !en.llm.IsAvailable(ctx) {
		return 0, nil
	}

	raw, ok := en.llm.Generate(ctx, enrichSystemPrompt, buildEntryPrompt(e))
	if !ok {
		return 0, nil
	}

	rels := parseRelationships(raw)

	vocab, err := NewVocabularyCache(ctx, en.store)
	if err != nil {
		return 0, err
	}

	if err := en.store.ensureNodePreserve(ctx, e.ID, NodeEntry); err != nil {
		return 0, err
	}
	if err := en.store.db.DeleteLLMEdges(ctx, e.ID); err != nil {
		return 0, err
	}

	added := 0
	for _, rel := range rels {
		if en.addEnrichmentEdge(ctx, vocab, e.ID, rel) {
			added++
		}
	}
	return added, nil
}

// EnrichBatch enriches multiple entries with a single LLM call, falling
// back to per-entry enrichment if the batch response fails to parse
// (spec.md §4.7 "enrich_batch").
func (en *Enricher) EnrichBatch(ctx context.Context, entries []*entrystore.Entry) (int, error) {
	if len(entries) == 0 || en.llm == nil || !en.llm.IsAvailable(ctx) {
		return 0, nil
	}

	raw, ok := en.llm.Generate(ctx, batchEnrichSystemPrompt, buildBatchPrompt(entries))
	if !ok {
		return 0, nil
	}

	byID, ok := parseBatchRelationships(raw, entries)
	if !ok {
		enricherLog.Warn().Msg("batch parse failed, falling back to per-entry enrichment")
		total := 0
		for _, e := range entries {
			n, _ := en.EnrichEntry(ctx, e)
			total += n
		}
		return total, nil
	}

	vocab, err := NewVocabularyCache(ctx, en.store)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, e := range entries {
		if err := en.store.ensureNodePreserve(ctx, e.ID, NodeEntry); err != nil {
			return total, err
		}
		if err := en.store.db.DeleteLLMEdges(ctx, e.ID); err != nil {
			return total, err
		}
		for _, rel := range byID[e.ID] {
			if en.addEnrichmentEdge(ctx, vocab, e.ID, rel) {
				total++
			}
		}
	}
	return total, nil
}

func (en *Enricher) addEnrichmentEdge(ctx context.Context, vocab *VocabularyCache, entryID string, rel rawRelationship) bool {
	nodeID := vocab.Resolve(rel.Entity, rel.EntityType)
	nodeType, _, _ := splitNodeID(nodeID)

	if err := en.store.ensureNodePreserve(ctx, nodeID, NodeType(nodeType)); err != nil {
		enricherLog.Warn().Err(err).Msg("failed to ensure enrichment node")
		return false
	}

	if err := en.store.addEdge(ctx, entryID, nodeID, rel.Relationship, map[string]any{"source": "llm"}); err != nil {
		enricherLog.Warn().Err(err).Msg("failed to add enrichment edge")
		return false
	}
	return true
}

func buildEntryPrompt(e *entrystore.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", e.ShortTitle)
	fmt.Fprintf(&b, "Full title: %s\n", e.LongTitle)
	fmt.Fprintf(&b, "Type: %s\n", e.EntryType)
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(e.Tags, ", "))
	}
	if e.ProjectRef != "" {
		fmt.Fprintf(&b, "Project: %s\n", e.ProjectRef)
	}
	fmt.Fprintf(&b, "\nContent:\n%s", e.KnowledgeDetails)
	return b.String()
}

const maxBatchContent = 500

func buildBatchPrompt(entries []*entrystore.Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		content := e.KnowledgeDetails
		if len(content) > maxBatchContent {
			content = content[:maxBatchContent]
		}
		parts = append(parts, fmt.Sprintf("[%s] %s (%s): %s", e.ID, e.ShortTitle, e.EntryType, content))
	}
	return strings.Join(parts, "\n\n")
}

// parseRelationships implements spec.md §9's LLM JSON robustness rules,
// validating field types and capping at maxRelationships.
func parseRelationships(raw string) []rawRelationship {
	cleaned := llmjson.Clean(raw)
	span := llmjson.ExtractArray(cleaned)
	if span == "" {
		enricherLog.Warn().Msg("no JSON array found in enrichment response")
		return nil
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(span), &items); err != nil {
		enricherLog.Warn().Err(err).Msg("malformed JSON in enrichment response")
		return nil
	}

	out := make([]rawRelationship, 0, len(items))
	for _, item := range items {
		entity, _ := item["entity"].(string)
		entityType, _ := item["entity_type"].(string)
		relationship, _ := item["relationship"].(string)
		if entity == "" || relationship == "" || !validEntityTypes[entityType] {
			continue
		}
		out = append(out, rawRelationship{Entity: entity, EntityType: entityType, Relationship: relationship})
		if len(out) >= maxRelationships {
			break
		}
	}
	return out
}

func parseBatchRelationships(raw string, entries []*entrystore.Entry) (map[string][]rawRelationship, bool) {
	cleaned := llmjson.Clean(raw)
	span := llmjson.ExtractObject(cleaned)
	if span == "" {
		return nil, false
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &data); err != nil {
		return nil, false
	}

	valid := map[string]bool{}
	for _, e := range entries {
		valid[e.ID] = true
	}

	out := map[string][]rawRelationship{}
	for id, rawRels := range data {
		if !valid[id] {
			continue
		}
		out[id] = parseRelationships(string(rawRels))
	}
	return out, true
}
