// Package confidence implements time-based confidence decay by entry type
// (spec.md §4.10, Glossary "Effective confidence"). Grounded on
// _examples/original_source/src/personal_kb/confidence/decay.py.
package confidence

import (
	"fmt"
	"math"
	"time"

	"github.com/kbengine/personalkb/internal/entrystore"
)

// HalfLives maps entry type to its decay half-life in days.
var HalfLives = map[entrystore.EntryType]float64{
	entrystore.FactualReference:  90.0,
	entrystore.Decision:          365.0,
	entrystore.PatternConvention: 730.0,
	entrystore.LessonLearned:     1825.0,
}

// StalenessThreshold is the effective-confidence cutoff below which a
// staleness warning is attached.
const StalenessThreshold = 0.5

// HybridSearchFilterThreshold is the cutoff below which hybrid search drops
// a result unless include_stale is set (spec.md §4.5 step 6).
const HybridSearchFilterThreshold = 0.3

// EffectiveConfidence computes confidence after exponential decay:
// effective = base * 2^(-age_days / half_life). age_days <= 0 returns base
// unchanged (spec.md §4.10, Testable Properties "anchor, now=anchor").
func EffectiveConfidence(base float64, entryType entrystore.EntryType, anchor, now time.Time) float64 {
	ageDays := now.Sub(anchor).Hours() / 24.0
	if ageDays <= 0 {
		return base
	}
	halfLife, ok := HalfLives[entryType]
	if !ok {
		halfLife = HalfLives[entrystore.FactualReference]
	}
	decay := math.Pow(2, -ageDays/halfLife)
	return math.Round(base*decay*10000) / 10000
}

// StalenessWarning returns a human-readable warning when effective is below
// StalenessThreshold, else "".
func StalenessWarning(effective float64, entryType entrystore.EntryType) string {
	if effective >= StalenessThreshold {
		return ""
	}
	return fmt.Sprintf(
		"Stale %s entry (confidence: %.0f%%). Consider verifying this information is still current.",
		entryType, effective*100,
	)
}
