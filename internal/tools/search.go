package tools

import (
	"context"

	"github.com/kbengine/personalkb/internal/format"
	"github.com/kbengine/personalkb/internal/ranker"
)

const graphHintLookback = 3

// SearchParams mirrors spec.md §6's kb_search row.
type SearchParams struct {
	Query        string
	ProjectRef   string
	EntryType    string
	Tags         []string
	Limit        int
	IncludeStale bool
}

// KBSearch runs the Hybrid Ranker and, when fewer than 3 results come back,
// appends up to 3 graph-neighbor hints of the top hit (spec.md §6: "If
// results < 3, append up to 3 graph hints"), grounded on
// _examples/original_source/src/personal_kb/tools/kb_search.py.
func (s *Server) KBSearch(ctx context.Context, p SearchParams) string {
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	results, err := ranker.Search(ctx, s.backend, s.entries, s.embed, ranker.Query{
		Text:         p.Query,
		ProjectRef:   p.ProjectRef,
		EntryType:    p.EntryType,
		Tags:         p.Tags,
		Limit:        limit,
		IncludeStale: p.IncludeStale,
	})
	if err != nil {
		log.Warn().Err(err).Msg("search failed")
	}

	entries := make([]string, 0, len(results))
	for _, r := range results {
		entries = append(entries, format.EntryCompact(r.Entry, r.EffectiveConfidence, r.StalenessWarning))
	}

	note := ""
	if s.embed == nil || !s.embed.IsAvailable(ctx) {
		note = "Vector search unavailable (embedding service offline). Results are FTS-only."
	}

	if len(results) < graphHintLookback && len(results) > 0 {
		if hints := s.graphHints(ctx, results[0].Entry.ID); hints != "" {
			if note != "" {
				note += " "
			}
			note += hints
		}
	}

	return format.ResultList(entries, "", note)
}

// graphHints renders up to graphHintLookback neighbor entries of topID as a
// trailing note, giving the caller somewhere to look when keyword/vector
// search comes up thin.
func (s *Server) graphHints(ctx context.Context, topID string) string {
	neighbors, err := s.graph.GetNeighbors(ctx, topID, nil, "both", graphHintLookback)
	if err != nil || len(neighbors) == 0 {
		return ""
	}
	var hints []string
	for _, n := range neighbors {
		if len(hints) >= graphHintLookback {
			break
		}
		hints = append(hints, n.NodeID)
	}
	if len(hints) == 0 {
		return ""
	}
	return "Related entries via graph: " + joinComma(hints)
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
