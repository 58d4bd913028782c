// Package format renders compact text output for MCP tool responses
// (spec.md §4.13), grounded on
// _examples/original_source/src/personal_kb/tools/formatters.py, using the
// teacher's pkg/pool strings.Builder pool for the multi-entry responses
// kb_search/kb_ask/kb_maintain return.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbengine/personalkb/internal/confidence"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/pkg/pool"
)

// EntryHeader formats "[kb-00082] lesson_learned | Title (90%)".
func EntryHeader(e *entrystore.Entry, effectiveConfidence float64) string {
	return fmt.Sprintf("[%s] %s | %s (%.0f%%)", e.ID, e.EntryType, e.ShortTitle, effectiveConfidence*100)
}

// EntryMeta formats "#tag1 #tag2 | project  [STALE]".
func EntryMeta(e *entrystore.Entry, staleWarning string) string {
	var parts []string
	if len(e.Tags) > 0 {
		tagged := make([]string, len(e.Tags))
		for i, t := range e.Tags {
			tagged[i] = "#" + t
		}
		parts = append(parts, strings.Join(tagged, " "))
	}
	if e.ProjectRef != "" {
		parts = append(parts, e.ProjectRef)
	}
	line := strings.Join(parts, " | ")
	if staleWarning != "" {
		if line != "" {
			line += "  [STALE]"
		} else {
			line = "[STALE]"
		}
	}
	return line
}

// EntryCompact is header + meta, no details — used by kb_search and
// kb_store.
func EntryCompact(e *entrystore.Entry, effectiveConfidence float64, staleWarning string) string {
	header := EntryHeader(e, effectiveConfidence)
	meta := EntryMeta(e, staleWarning)
	if meta != "" {
		return header + "\n  " + meta
	}
	return header
}

// EntryFullOptions lets the caller override the computed effective
// confidence/staleness (e.g. to match a specific anchor time), leaving
// either field zero/"" to compute from the entry's own decay anchor.
type EntryFullOptions struct {
	Context              string
	EffectiveConfidence  *float64
	StaleWarningOverride *string
}

// EntryFull is header + meta + optional context + knowledge_details — used
// by kb_get and kb_ask.
func EntryFull(e *entrystore.Entry, opts EntryFullOptions) string {
	now := time.Now().UTC()
	effective := confidence.EffectiveConfidence(e.ConfidenceLevel, e.EntryType, e.DecayAnchor(), now)
	if opts.EffectiveConfidence != nil {
		effective = *opts.EffectiveConfidence
	}
	warning := confidence.StalenessWarning(effective, e.EntryType)
	if opts.StaleWarningOverride != nil {
		warning = *opts.StaleWarningOverride
	}

	b := pool.GetBuilder()
	defer pool.PutBuilder(b)

	b.WriteString(EntryHeader(e, effective))
	if meta := EntryMeta(e, warning); meta != "" {
		b.WriteString("\n  ")
		b.WriteString(meta)
	}
	if opts.Context != "" {
		b.WriteString("\n  ↳ ")
		b.WriteString(opts.Context)
	}
	b.WriteString("\n  ")
	b.WriteString(e.KnowledgeDetails)

	return b.String()
}

// ResultList joins pre-formatted entry strings with a count header and
// optional note, matching format_result_list.
func ResultList(formattedEntries []string, header, note string) string {
	if len(formattedEntries) == 0 {
		return "No results found."
	}

	b := pool.GetBuilder()
	defer pool.PutBuilder(b)

	if header != "" {
		b.WriteString(header)
		b.WriteByte('\n')
	}
	fmt.Fprintf(b, "%d result(s)\n", len(formattedEntries))
	if note != "" {
		b.WriteString("Note: ")
		b.WriteString(note)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(strings.Join(formattedEntries, "\n\n"))

	return b.String()
}
