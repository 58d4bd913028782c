package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kbengine/personalkb/internal/entrystore"
)

var maintainActions = map[string]bool{
	"stats": true, "deactivate": true, "reactivate": true,
	"rebuild_embeddings": true, "rebuild_graph": true,
	"purge_inactive": true, "vacuum": true, "entry_versions": true,
}

// MaintainParams mirrors spec.md §6's kb_maintain row.
type MaintainParams struct {
	Action       string
	EntryID      string
	DaysInactive int
	Force        bool
	Confirm      bool
}

// KBMaintain dispatches an administrative action, gated by manager mode,
// grounded on
// _examples/original_source/src/personal_kb/tools/kb_maintain.py.
func (s *Server) KBMaintain(ctx context.Context, p MaintainParams) string {
	if !s.cfg.ManagerMode {
		return "Error: kb_maintain requires manager mode. Set manager_mode (KB_MANAGER_MODE=true)."
	}
	if !maintainActions[p.Action] {
		names := make([]string, 0, len(maintainActions))
		for a := range maintainActions {
			names = append(names, a)
		}
		sort.Strings(names)
		return fmt.Sprintf("Unknown action '%s'. Use: %s", p.Action, strings.Join(names, ", "))
	}

	switch p.Action {
	case "stats":
		return s.maintainStats(ctx)
	case "deactivate":
		return s.maintainDeactivate(ctx, p.EntryID)
	case "reactivate":
		return s.maintainReactivate(ctx, p.EntryID)
	case "rebuild_embeddings":
		return s.maintainRebuildEmbeddings(ctx, p.Force)
	case "rebuild_graph":
		return s.maintainRebuildGraph(ctx)
	case "purge_inactive":
		return s.maintainPurgeInactive(ctx, p.DaysInactive, p.Confirm)
	case "vacuum":
		return s.maintainVacuum(ctx)
	case "entry_versions":
		return s.maintainEntryVersions(ctx, p.EntryID)
	}
	return "Action not implemented."
}

func (s *Server) maintainStats(ctx context.Context) string {
	stats, err := s.entries.GetStats(ctx)
	if err != nil {
		return "Error: " + err.Error()
	}

	lines := []string{"Knowledge Base Statistics\n"}
	lines = append(lines, fmt.Sprintf("Entries: %d total (%d active, %d inactive)",
		stats.TotalEntries, stats.ActiveEntries, stats.InactiveEntries))

	if len(stats.ByType) > 0 {
		lines = append(lines, "\nActive entries by type:")
		for _, t := range sortedKeys(stats.ByType) {
			lines = append(lines, fmt.Sprintf("  %s: %d", t, stats.ByType[t]))
		}
	}
	if len(stats.ByProject) > 0 {
		lines = append(lines, "\nActive entries by project:")
		for _, p := range sortedByValueDesc(stats.ByProject) {
			lines = append(lines, fmt.Sprintf("  %s: %d", p, stats.ByProject[p]))
		}
	}
	lines = append(lines, fmt.Sprintf("\nEmbeddings: %d with, %d without", stats.WithEmbeddings, stats.WithoutEmbeddings))

	nodesByType, err := s.graph.CountsByNodeType(ctx)
	if err == nil && len(nodesByType) > 0 {
		total := 0
		for _, c := range nodesByType {
			total += c
		}
		lines = append(lines, fmt.Sprintf("\nGraph nodes: %d", total))
		for _, t := range sortedKeys(nodesByType) {
			lines = append(lines, fmt.Sprintf("  %s: %d", t, nodesByType[t]))
		}
	}

	edgesByType, err := s.graph.CountsByEdgeType(ctx)
	if err == nil && len(edgesByType) > 0 {
		total := 0
		for _, c := range edgesByType {
			total += c
		}
		lines = append(lines, fmt.Sprintf("\nGraph edges: %d", total))
		for _, t := range sortedKeys(edgesByType) {
			lines = append(lines, fmt.Sprintf("  %s: %d", t, edgesByType[t]))
		}
	}

	return strings.Join(lines, "\n")
}

func (s *Server) maintainDeactivate(ctx context.Context, entryID string) string {
	if entryID == "" {
		return "Error: entry_id is required for deactivate action."
	}
	e, err := s.entries.DeactivateEntry(ctx, entryID)
	if err != nil {
		return "Error: " + entrystoreErrMsg(err, entryID)
	}
	if err := s.graph.ClearOutgoingEdges(ctx, entryID); err != nil {
		log.Warn().Err(err).Str("entry_id", entryID).Msg("failed to clear edges on deactivate")
	}
	return fmt.Sprintf("Deactivated entry %s: %s", e.ID, e.ShortTitle)
}

func (s *Server) maintainReactivate(ctx context.Context, entryID string) string {
	if entryID == "" {
		return "Error: entry_id is required for reactivate action."
	}
	e, err := s.entries.ReactivateEntry(ctx, entryID)
	if err != nil {
		return "Error: " + entrystoreErrMsg(err, entryID)
	}
	if err := s.graph.BuildForEntry(ctx, e); err != nil {
		log.Warn().Err(err).Str("entry_id", entryID).Msg("failed to rebuild graph on reactivate")
	}
	if s.enricher != nil {
		if _, err := s.enricher.EnrichEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry_id", entryID).Msg("failed to enrich graph on reactivate")
		}
	}
	return fmt.Sprintf("Reactivated entry %s: %s", e.ID, e.ShortTitle)
}

func (s *Server) maintainRebuildEmbeddings(ctx context.Context, force bool) string {
	if s.embed == nil || !s.embed.IsAvailable(ctx) {
		return "Embedding service is not available. Cannot rebuild embeddings."
	}

	var ids []string
	var err error
	if force {
		ids, err = s.entries.GetAllActiveIDs(ctx)
	} else {
		ids, err = s.entries.GetEntriesWithoutEmbeddings(ctx, 10_000)
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(ids) == 0 {
		return "No entries need embedding."
	}

	succeeded, failed := 0, 0
	for _, id := range ids {
		e, err := s.entries.GetEntry(ctx, id)
		if err != nil || e == nil {
			failed++
			continue
		}
		v := s.embed.Embed(ctx, e.EmbeddingText())
		if v == nil {
			failed++
			continue
		}
		if err := s.embed.StoreEmbedding(ctx, id, v); err != nil {
			failed++
			continue
		}
		_ = s.entries.MarkEmbedding(ctx, id, true)
		succeeded++
	}

	mode := "entries without embeddings"
	if force {
		mode = "all entries"
	}
	return fmt.Sprintf("Rebuild embeddings (%s): %d processed, %d succeeded, %d failed", mode, len(ids), succeeded, failed)
}

func (s *Server) maintainRebuildGraph(ctx context.Context) string {
	if err := s.graph.ResetAll(ctx); err != nil {
		return "Error: " + err.Error()
	}

	ids, err := s.entries.GetAllActiveIDs(ctx)
	if err != nil {
		return "Error: " + err.Error()
	}

	var rebuilt []*entrystore.Entry
	processed := 0
	for _, id := range ids {
		e, err := s.entries.GetEntry(ctx, id)
		if err != nil || e == nil {
			continue
		}
		if err := s.graph.BuildForEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry_id", id).Msg("failed to build graph during rebuild")
			continue
		}
		rebuilt = append(rebuilt, e)
		processed++
	}

	enriched := 0
	if s.enricher != nil {
		for _, e := range rebuilt {
			if _, err := s.enricher.EnrichEntry(ctx, e); err != nil {
				log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to enrich graph during rebuild")
				continue
			}
			enriched++
		}
	}

	nodeCount, _ := s.graph.CountNodes(ctx)
	edgeCount, _ := s.graph.CountEdges(ctx)

	result := fmt.Sprintf("Graph rebuilt: %d entries processed, %d nodes, %d edges", processed, nodeCount, edgeCount)
	if enriched > 0 {
		result += fmt.Sprintf(" (%d enriched via LLM)", enriched)
	}
	return result
}

func (s *Server) maintainPurgeInactive(ctx context.Context, daysInactive int, confirm bool) string {
	if !confirm {
		return "Error: purge_inactive requires confirm=True. This permanently deletes data."
	}
	if daysInactive <= 0 {
		daysInactive = 90
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -daysInactive)
	ids, err := s.entries.InactiveOlderThan(ctx, cutoff)
	if err != nil {
		return "Error: " + err.Error()
	}
	if len(ids) == 0 {
		return fmt.Sprintf("No inactive entries older than %d days to purge.", daysInactive)
	}

	for _, id := range ids {
		if err := s.entries.DeleteEntryCascade(ctx, id); err != nil {
			log.Warn().Err(err).Str("entry_id", id).Msg("failed to purge entry")
		}
	}
	return fmt.Sprintf("Purged %d inactive entries (older than %d days).", len(ids), daysInactive)
}

func (s *Server) maintainVacuum(ctx context.Context) string {
	if err := s.backend.Vacuum(ctx); err != nil {
		return "Error: " + err.Error()
	}
	return "Vacuum complete."
}

func (s *Server) maintainEntryVersions(ctx context.Context, entryID string) string {
	if entryID == "" {
		return "Error: entry_id is required for entry_versions action."
	}
	e, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		return "Error: " + err.Error()
	}
	if e == nil {
		return fmt.Sprintf("Error: Entry %s not found.", entryID)
	}

	versions, err := s.entries.GetVersions(ctx, entryID)
	if err != nil {
		return "Error: " + err.Error()
	}

	status := "active"
	if !e.IsActive {
		status = "inactive"
	}
	lines := []string{
		fmt.Sprintf("Version history for %s: %s", entryID, e.ShortTitle),
		fmt.Sprintf("Status: %s | Current version: %d | Confidence: %.0f%%\n", status, e.Version, e.ConfidenceLevel*100),
	}

	if len(versions) == 0 {
		lines = append(lines, "No version records found.")
	} else {
		for _, v := range versions {
			dateStr := "unknown"
			if !v.CreatedAt.IsZero() {
				dateStr = v.CreatedAt.Format("2006-01-02T15:04:05")
			}
			reason := v.ChangeReason
			if reason == "" {
				reason = "(no reason)"
			}
			lines = append(lines, fmt.Sprintf("  v%d (%s) — %s [%.0f%%]", v.VersionNumber, dateStr, reason, v.ConfidenceLevel*100))
		}
	}

	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedByValueDesc(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] > m[keys[j]] })
	return keys
}
