// Package search provides thin FTS + vector adapters (spec.md §4.4): empty
// or whitespace queries return empty, and failures are caught and logged —
// retrieval never raises.
package search

import (
	"context"
	"strings"

	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/logx"
)

var log = logx.Component("search")

// FTS runs a full-text search through backend, returning (entry_id, score)
// pairs in rank order.
func FTS(ctx context.Context, backend dbbackend.Backend, q string, filter dbbackend.FTSFilter, k int) []dbbackend.FTSHit {
	if strings.TrimSpace(q) == "" {
		return nil
	}
	hits, err := backend.FTSSearch(ctx, q, filter, k)
	if err != nil {
		log.Warn().Err(err).Str("query", q).Msg("fts search failed")
		return nil
	}
	return hits
}

// Vector runs a vector KNN search through backend.
func Vector(ctx context.Context, backend dbbackend.Backend, embedding []float32, k int) []dbbackend.VectorHit {
	if len(embedding) == 0 {
		return nil
	}
	hits, err := backend.VectorSearch(ctx, embedding, k)
	if err != nil {
		log.Warn().Err(err).Msg("vector search failed")
		return nil
	}
	return hits
}
