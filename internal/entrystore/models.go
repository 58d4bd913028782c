// Package entrystore implements spec.md §4.2: CRUD on entries, monotonic
// IDs, version history, soft/hard deletes, access-tracking.
package entrystore

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// EntryType is one of the four coarse categories controlling decay
// half-life (spec.md §3, Glossary).
type EntryType string

const (
	FactualReference  EntryType = "factual_reference"
	Decision          EntryType = "decision"
	PatternConvention EntryType = "pattern_convention"
	LessonLearned     EntryType = "lesson_learned"
)

// ValidEntryType reports whether t is one of the four recognized values.
func ValidEntryType(t string) bool {
	switch EntryType(t) {
	case FactualReference, Decision, PatternConvention, LessonLearned:
		return true
	default:
		return false
	}
}

// Entry is spec.md §3's Entry record.
type Entry struct {
	ID               string
	ProjectRef       string
	ShortTitle       string
	LongTitle        string
	KnowledgeDetails string
	EntryType        EntryType
	SourceContext    string
	ConfidenceLevel  float64
	Tags             []string
	Hints            map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastAccessed     *time.Time
	SupersededBy     string
	IsActive         bool
	HasEmbedding     bool
	Version          int
}

// DecayAnchor is the timestamp effective-confidence decay is computed from:
// last_accessed if present, else updated_at, else created_at (spec.md §4.5
// step 6, Glossary "Effective confidence").
func (e *Entry) DecayAnchor() time.Time {
	if e.LastAccessed != nil {
		return *e.LastAccessed
	}
	if !e.UpdatedAt.IsZero() {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

// TagsText joins Tags with whitespace for FTS storage (spec.md §3 "stored as
// whitespace-joined text for FTS").
func (e *Entry) TagsText() string {
	return strings.Join(e.Tags, " ")
}

// EmbeddingText is the text embedded for vector search (spec.md §4.3).
func (e *Entry) EmbeddingText() string {
	return e.ShortTitle + " " + e.LongTitle + " " + e.KnowledgeDetails
}

// Version is spec.md §3's Version record.
type Version struct {
	EntryID          string
	VersionNumber    int
	KnowledgeDetails string
	ChangeReason     string
	ConfidenceLevel  float64
	CreatedAt        time.Time
}

// Errors returned by entrystore operations (SPEC_FULL.md §A.3).
var (
	ErrNotFound   = errors.New("entrystore: not found")
	ErrInactive   = errors.New("entrystore: inactive")
	ErrValidation = errors.New("entrystore: validation failed")
)

func marshalHints(h map[string]any) string {
	if len(h) == 0 {
		return "{}"
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalHints(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var h map[string]any
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return map[string]any{}
	}
	return h
}

func timeFmt(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
