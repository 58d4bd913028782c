package tools

import (
	"context"
	"fmt"

	"github.com/kbengine/personalkb/internal/confidence"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/format"
)

const maxBatchEntries = 10

// BatchEntryInput is one element of kb_store_batch's entries list.
type BatchEntryInput struct {
	ShortTitle       string
	LongTitle        string
	KnowledgeDetails string
	EntryType        string
	ProjectRef       string
	SourceContext    string
	ConfidenceLevel  float64
	Tags             []string
	Hints            map[string]any
}

// KBStoreBatch creates N entries with a single batch LLM enrichment call,
// grounded on
// _examples/original_source/src/personal_kb/tools/kb_store_batch.py.
func (s *Server) KBStoreBatch(ctx context.Context, entries []BatchEntryInput) string {
	if len(entries) > maxBatchEntries {
		return fmt.Sprintf("Error: Maximum %d entries per batch (got %d).", maxBatchEntries, len(entries))
	}
	if len(entries) == 0 {
		return "Error: entries list is empty."
	}
	for i, e := range entries {
		if e.ShortTitle == "" || e.LongTitle == "" || e.KnowledgeDetails == "" {
			return fmt.Sprintf("Error: entry %d missing required fields: short_title, long_title, knowledge_details", i)
		}
	}

	created := make([]*entrystore.Entry, 0, len(entries))
	for _, in := range entries {
		entryType := in.EntryType
		if entryType == "" {
			entryType = string(entrystore.FactualReference)
		}
		confidenceLevel := in.ConfidenceLevel
		if confidenceLevel == 0 {
			confidenceLevel = 0.9
		}

		e, err := s.entries.CreateEntry(ctx, entrystore.CreateFields{
			ShortTitle:       in.ShortTitle,
			LongTitle:        in.LongTitle,
			KnowledgeDetails: in.KnowledgeDetails,
			EntryType:        entrystore.EntryType(entryType),
			ProjectRef:       in.ProjectRef,
			SourceContext:    in.SourceContext,
			ConfidenceLevel:  confidenceLevel,
			Tags:             in.Tags,
			Hints:            in.Hints,
		})
		if err != nil {
			log.Warn().Err(err).Msg("batch: failed to create entry")
			continue
		}

		s.embedEntry(ctx, e)

		if err := s.graph.BuildForEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("batch: failed to build graph")
		}

		created = append(created, e)
	}

	if s.enricher != nil && len(created) > 0 {
		if _, err := s.enricher.EnrichBatch(ctx, created); err != nil {
			log.Warn().Err(err).Msg("batch enrichment failed")
		}
	}

	formatted := make([]string, 0, len(created))
	for _, e := range created {
		refreshed, err := s.entries.GetEntry(ctx, e.ID)
		if err != nil || refreshed == nil {
			refreshed = e
		}
		eff := confidence.EffectiveConfidence(refreshed.ConfidenceLevel, refreshed.EntryType, refreshed.DecayAnchor(), refreshed.UpdatedAt)
		formatted = append(formatted, fmt.Sprintf("Created %s (v%d)\n%s",
			refreshed.ID, refreshed.Version, format.EntryCompact(refreshed, eff, confidence.StalenessWarning(eff, refreshed.EntryType))))
	}

	return format.ResultList(formatted, fmt.Sprintf("Batch: %d entries created", len(created)), "")
}
