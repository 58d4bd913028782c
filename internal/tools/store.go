package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kbengine/personalkb/internal/entrystore"
)

// StoreParams mirrors spec.md §6's kb_store row.
type StoreParams struct {
	ShortTitle        string
	LongTitle         string
	KnowledgeDetails  string
	EntryType         string
	ProjectRef        string
	SourceContext     string
	ConfidenceLevel   float64
	Tags              []string
	Hints             map[string]any
	UpdateEntryID     string
	DeactivateEntryID string
	ChangeReason      string
}

// KBStore creates, updates, or deactivates an entry, grounded on
// _examples/original_source/src/personal_kb/tools/kb_store.py.
func (s *Server) KBStore(ctx context.Context, p StoreParams) string {
	if p.DeactivateEntryID != "" {
		return s.storeDeactivate(ctx, p.DeactivateEntryID)
	}
	if p.UpdateEntryID != "" {
		return s.storeUpdate(ctx, p)
	}
	return s.storeCreate(ctx, p)
}

func (s *Server) storeDeactivate(ctx context.Context, id string) string {
	e, err := s.entries.DeactivateEntry(ctx, id)
	if err != nil {
		return fmt.Sprintf("Error: %s", entrystoreErrMsg(err, id))
	}
	if err := s.graph.ClearOutgoingEdges(ctx, id); err != nil {
		log.Warn().Err(err).Str("entry_id", id).Msg("failed to clear edges on deactivate")
	}
	return fmt.Sprintf("Deactivated entry %s: %s", e.ID, e.ShortTitle)
}

func (s *Server) storeUpdate(ctx context.Context, p StoreParams) string {
	var confidence *float64
	if p.ConfidenceLevel > 0 {
		c := p.ConfidenceLevel
		confidence = &c
	}
	e, err := s.entries.UpdateEntry(ctx, p.UpdateEntryID, entrystore.UpdateFields{
		KnowledgeDetails: p.KnowledgeDetails,
		ChangeReason:     p.ChangeReason,
		ConfidenceLevel:  confidence,
		Tags:             p.Tags,
		Hints:            p.Hints,
	})
	if err != nil {
		return fmt.Sprintf("Error: %s", entrystoreErrMsg(err, p.UpdateEntryID))
	}

	s.embedEntry(ctx, e)
	if err := s.graph.BuildForEntry(ctx, e); err != nil {
		log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to rebuild graph")
	}
	if s.enricher != nil {
		if _, err := s.enricher.EnrichEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to enrich graph")
		}
	}

	refreshed, err := s.entries.GetEntry(ctx, e.ID)
	if err == nil && refreshed != nil {
		e = refreshed
	}
	return formatStoreResult(e, true)
}

func (s *Server) storeCreate(ctx context.Context, p StoreParams) string {
	entryType := p.EntryType
	if entryType == "" {
		entryType = string(entrystore.FactualReference)
	}
	confidence := p.ConfidenceLevel
	if confidence == 0 {
		confidence = 0.9
	}

	e, err := s.entries.CreateEntry(ctx, entrystore.CreateFields{
		ShortTitle:       p.ShortTitle,
		LongTitle:        p.LongTitle,
		KnowledgeDetails: p.KnowledgeDetails,
		EntryType:        entrystore.EntryType(entryType),
		ProjectRef:       p.ProjectRef,
		SourceContext:    p.SourceContext,
		ConfidenceLevel:  confidence,
		Tags:             p.Tags,
		Hints:            p.Hints,
	})
	if err != nil {
		return fmt.Sprintf("Error: %s", err)
	}

	s.embedEntry(ctx, e)
	if err := s.graph.BuildForEntry(ctx, e); err != nil {
		log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to build graph")
	}
	if s.enricher != nil {
		if _, err := s.enricher.EnrichEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to enrich graph")
		}
	}

	refreshed, err := s.entries.GetEntry(ctx, e.ID)
	if err == nil && refreshed != nil {
		e = refreshed
	}
	return formatStoreResult(e, false)
}

// embedEntry attempts to embed and store the vector for e, logging on
// failure without raising — matches kb_store.py's _embed_entry.
func (s *Server) embedEntry(ctx context.Context, e *entrystore.Entry) {
	if s.embed == nil {
		return
	}
	v := s.embed.Embed(ctx, e.EmbeddingText())
	if v == nil {
		return
	}
	if err := s.embed.StoreEmbedding(ctx, e.ID, v); err != nil {
		log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to store embedding")
		return
	}
	if err := s.entries.MarkEmbedding(ctx, e.ID, true); err != nil {
		log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to mark embedding")
	}
}

func formatStoreResult(e *entrystore.Entry, isUpdate bool) string {
	action := "Created"
	if isUpdate {
		action = "Updated"
	}
	lines := []string{
		fmt.Sprintf("%s entry %s (v%d)", action, e.ID, e.Version),
		fmt.Sprintf("  Title: %s", e.ShortTitle),
		fmt.Sprintf("  Type: %s", e.EntryType),
	}
	if e.ProjectRef != "" {
		lines = append(lines, fmt.Sprintf("  Project: %s", e.ProjectRef))
	}
	if len(e.Tags) > 0 {
		lines = append(lines, fmt.Sprintf("  Tags: %s", strings.Join(e.Tags, ", ")))
	}
	if !e.HasEmbedding {
		lines = append(lines, "  Note: Entry will be embedded when the embedding service is available")
	}
	return strings.Join(lines, "\n")
}

func entrystoreErrMsg(err error, id string) string {
	switch {
	case errors.Is(err, entrystore.ErrNotFound):
		return fmt.Sprintf("Entry %s not found", id)
	case errors.Is(err, entrystore.ErrInactive):
		return fmt.Sprintf("Entry %s is already inactive", id)
	default:
		return err.Error()
	}
}
