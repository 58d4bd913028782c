// Package ranker implements the Hybrid Ranker (spec.md §4.5): RRF fusion of
// FTS and vector rankings, staleness filtering, and last-accessed touches.
package ranker

import (
	"context"
	"sort"
	"time"

	"github.com/kbengine/personalkb/internal/confidence"
	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/embedclient"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/search"
)

// RRFConstant is K in the Reciprocal Rank Fusion formula Σ 1/(K + rank)
// (Glossary "RRF").
const RRFConstant = 60

// Query is spec.md §4.5's SearchQuery.
type Query struct {
	Text          string
	ProjectRef    string
	EntryType     string
	Tags          []string
	Limit         int
	IncludeStale  bool
}

// Result is spec.md §4.5's SearchResult.
type Result struct {
	Entry               *entrystore.Entry
	Score                float64
	EffectiveConfidence  float64
	StalenessWarning     string
	MatchSource          string // "fts" or "hybrid"
}

// Search runs the full hybrid-ranking algorithm of spec.md §4.5.
func Search(ctx context.Context, backend dbbackend.Backend, entries *entrystore.Store, embed *embedclient.Client, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	fetch := 3 * limit

	filter := dbbackend.FTSFilter{ProjectRef: q.ProjectRef, EntryType: q.EntryType, Tags: q.Tags}
	ftsRanked := search.FTS(ctx, backend, q.Text, filter, fetch)

	matchSource := "fts"
	var vecRanked []dbbackend.VectorHit
	if embed != nil && embed.IsAvailable(ctx) {
		if v := embed.Embed(ctx, q.Text); v != nil {
			vecRanked = search.Vector(ctx, backend, v, fetch)
			if len(vecRanked) > 0 {
				matchSource = "hybrid"
			}
		}
	}

	type scored struct {
		id    string
		score float64
	}
	scores := map[string]float64{}
	for rank, hit := range ftsRanked {
		scores[hit.EntryID] += 1.0 / float64(RRFConstant+rank+1)
	}
	for rank, hit := range vecRanked {
		scores[hit.EntryID] += 1.0 / float64(RRFConstant+rank+1)
	}

	ordered := make([]scored, 0, len(scores))
	for id, sc := range scores {
		ordered = append(ordered, scored{id, sc})
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].score > ordered[j].score })

	now := time.Now().UTC()
	results := make([]Result, 0, limit)
	touched := make([]string, 0, limit)

	for _, sc := range ordered {
		if len(results) >= limit {
			break
		}
		e, err := entries.GetEntry(ctx, sc.id)
		if err != nil || e == nil {
			continue
		}
		effective := confidence.EffectiveConfidence(e.ConfidenceLevel, e.EntryType, e.DecayAnchor(), now)
		if !q.IncludeStale && effective < confidence.HybridSearchFilterThreshold {
			continue
		}
		results = append(results, Result{
			Entry:               e,
			Score:               sc.score,
			EffectiveConfidence: effective,
			StalenessWarning:    confidence.StalenessWarning(effective, e.EntryType),
			MatchSource:         sourceFor(sc.id, ftsRanked, vecRanked, matchSource),
		})
		touched = append(touched, sc.id)
	}

	if len(touched) > 0 {
		_ = entries.TouchAccessed(ctx, touched)
	}

	return results, nil
}

func sourceFor(id string, fts []dbbackend.FTSHit, vec []dbbackend.VectorHit, overall string) string {
	if overall == "fts" {
		return "fts"
	}
	inFTS, inVec := false, false
	for _, h := range fts {
		if h.EntryID == id {
			inFTS = true
			break
		}
	}
	for _, h := range vec {
		if h.EntryID == id {
			inVec = true
			break
		}
	}
	switch {
	case inFTS && inVec:
		return "hybrid"
	case inVec:
		return "hybrid"
	default:
		return "fts"
	}
}
