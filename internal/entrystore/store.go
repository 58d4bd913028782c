package entrystore

import (
	"context"
	"fmt"
	"time"

	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/idgen"
)

// Store wraps a dbbackend.Backend with entry CRUD + versioning, the way the
// teacher's service packages wrap a Storer with higher-level behavior
// (pkg/chat.ChatService).
type Store struct {
	db dbbackend.Backend
}

func New(db dbbackend.Backend) *Store {
	return &Store{db: db}
}

// nextEntryID allocates the next id atomically in the same statement as the
// increment (spec.md §3 "ID counter"), via UPDATE ... RETURNING.
func (s *Store) nextEntryID(ctx context.Context) (string, error) {
	rows, err := s.db.Query(ctx, `UPDATE entry_id_seq SET next_id = next_id + 1 RETURNING next_id - 1`)
	if err != nil {
		return "", fmt.Errorf("entrystore: allocate id: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("entrystore: entry_id_seq missing row")
	}
	n, _ := rows[0][0].(int64)
	return idgen.FormatEntryID(n), nil
}

// CreateFields are the inputs to CreateEntry.
type CreateFields struct {
	ProjectRef       string
	ShortTitle       string
	LongTitle        string
	KnowledgeDetails string
	EntryType        EntryType
	SourceContext    string
	ConfidenceLevel  float64
	Tags             []string
	Hints            map[string]any
}

// CreateEntry allocates the next id, inserts the entry row, and writes the
// initial version with reason "Initial creation" (spec.md §4.2).
func (s *Store) CreateEntry(ctx context.Context, f CreateFields) (*Entry, error) {
	if f.ShortTitle == "" || f.LongTitle == "" || f.KnowledgeDetails == "" || !ValidEntryType(string(f.EntryType)) {
		return nil, fmt.Errorf("%w: short_title, long_title, knowledge_details and a valid entry_type are required", ErrValidation)
	}
	if f.ConfidenceLevel == 0 {
		f.ConfidenceLevel = 0.9
	}

	id, err := s.nextEntryID(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	e := &Entry{
		ID:               id,
		ProjectRef:       f.ProjectRef,
		ShortTitle:       f.ShortTitle,
		LongTitle:        f.LongTitle,
		KnowledgeDetails: f.KnowledgeDetails,
		EntryType:        f.EntryType,
		SourceContext:    f.SourceContext,
		ConfidenceLevel:  f.ConfidenceLevel,
		Tags:             f.Tags,
		Hints:            f.Hints,
		CreatedAt:        now,
		UpdatedAt:        now,
		IsActive:         true,
		Version:          1,
	}

	_, err = s.db.Execute(ctx, `
		INSERT INTO entries (id, project_ref, short_title, long_title, knowledge_details,
			entry_type, source_context, confidence_level, tags, hints, created_at, updated_at,
			is_active, has_embedding, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0, 1)`,
		e.ID, nullable(e.ProjectRef), e.ShortTitle, e.LongTitle, e.KnowledgeDetails,
		string(e.EntryType), nullable(e.SourceContext), e.ConfidenceLevel, e.TagsText(),
		marshalHints(e.Hints), timeFmt(now), timeFmt(now))
	if err != nil {
		return nil, fmt.Errorf("entrystore: create entry: %w", err)
	}

	_, err = s.db.Execute(ctx, `
		INSERT INTO entry_versions (entry_id, version_number, knowledge_details, change_reason, confidence_level, created_at)
		VALUES (?, 1, ?, 'Initial creation', ?, ?)`,
		e.ID, e.KnowledgeDetails, e.ConfidenceLevel, timeFmt(now))
	if err != nil {
		return nil, fmt.Errorf("entrystore: create initial version: %w", err)
	}

	return e, nil
}

// UpdateFields are the inputs to UpdateEntry. Nil slices/maps mean "leave
// unchanged"; a non-nil empty slice/map means "clear".
type UpdateFields struct {
	KnowledgeDetails string
	ChangeReason     string
	ConfidenceLevel  *float64
	Tags             []string
	Hints            map[string]any
}

// UpdateEntry merges hints (shallow; new keys overwrite), bumps version
// unconditionally, resets has_embedding, and writes a version row (spec.md
// §4.2; version bump on tags/hints-only changes confirmed unconditional by
// SPEC_FULL.md §C).
func (s *Store) UpdateEntry(ctx context.Context, id string, f UpdateFields) (*Entry, error) {
	existing, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !existing.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrInactive, id)
	}

	now := time.Now().UTC()
	newVersion := existing.Version + 1
	confidence := existing.ConfidenceLevel
	if f.ConfidenceLevel != nil {
		confidence = *f.ConfidenceLevel
	}

	details := f.KnowledgeDetails
	if details == "" {
		details = existing.KnowledgeDetails
	}

	tags := existing.Tags
	if f.Tags != nil {
		tags = f.Tags
	}

	mergedHints := map[string]any{}
	for k, v := range existing.Hints {
		mergedHints[k] = v
	}
	for k, v := range f.Hints {
		mergedHints[k] = v
	}

	_, err = s.db.Execute(ctx, `
		UPDATE entries SET knowledge_details = ?, confidence_level = ?, tags = ?, hints = ?,
			updated_at = ?, version = ?, has_embedding = 0
		WHERE id = ?`,
		details, confidence, joinTags(tags), marshalHints(mergedHints), timeFmt(now), newVersion, id)
	if err != nil {
		return nil, fmt.Errorf("entrystore: update entry: %w", err)
	}

	_, err = s.db.Execute(ctx, `
		INSERT INTO entry_versions (entry_id, version_number, knowledge_details, change_reason, confidence_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, newVersion, details, nullable(f.ChangeReason), confidence, timeFmt(now))
	if err != nil {
		return nil, fmt.Errorf("entrystore: insert version: %w", err)
	}

	existing.KnowledgeDetails = details
	existing.ConfidenceLevel = confidence
	existing.Tags = tags
	existing.Hints = mergedHints
	existing.UpdatedAt = now
	existing.Version = newVersion
	existing.HasEmbedding = false
	return existing, nil
}

// GetEntry returns nil, nil if the entry does not exist (spec.md §7 NotFound).
func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, error) {
	rows, err := s.db.Query(ctx, entrySelectSQL+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("entrystore: get entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return scanEntry(rows[0]), nil
}

// DeactivateEntry toggles is_active off. Fails if already inactive.
func (s *Store) DeactivateEntry(ctx context.Context, id string) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !e.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrInactive, id)
	}
	now := timeFmt(time.Now().UTC())
	if _, err := s.db.Execute(ctx, `UPDATE entries SET is_active = 0, updated_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("entrystore: deactivate: %w", err)
	}
	e.IsActive = false
	return e, nil
}

// ReactivateEntry toggles is_active on. Does not re-embed (SPEC_FULL.md §C).
func (s *Store) ReactivateEntry(ctx context.Context, id string) (*Entry, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := timeFmt(time.Now().UTC())
	if _, err := s.db.Execute(ctx, `UPDATE entries SET is_active = 1, updated_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("entrystore: reactivate: %w", err)
	}
	e.IsActive = true
	return e, nil
}

func (s *Store) MarkEmbedding(ctx context.Context, id string, has bool) error {
	v := 0
	if has {
		v = 1
	}
	_, err := s.db.Execute(ctx, `UPDATE entries SET has_embedding = ? WHERE id = ?`, v, id)
	return err
}

func (s *Store) GetEntriesWithoutEmbeddings(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM entries WHERE has_embedding = 0 AND is_active = 1 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		id, _ := r[0].(string)
		ids = append(ids, id)
	}
	return ids, nil
}

// TouchAccessed batch sets last_accessed := now for ids (spec.md §4.2,
// called from search read paths and explicit get).
func (s *Store) TouchAccessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := timeFmt(time.Now().UTC())
	argsList := make([][]any, len(ids))
	for i, id := range ids {
		argsList[i] = []any{now, id}
	}
	return s.db.ExecuteMany(ctx, `UPDATE entries SET last_accessed = ? WHERE id = ?`, argsList)
}

// GetVersions returns every version row for entry_id, ordered by version
// number (used by kb_maintain's entry_versions action, SPEC_FULL.md §C).
func (s *Store) GetVersions(ctx context.Context, entryID string) ([]Version, error) {
	rows, err := s.db.Query(ctx, `
		SELECT entry_id, version_number, knowledge_details, change_reason, confidence_level, created_at
		FROM entry_versions WHERE entry_id = ? ORDER BY version_number`, entryID)
	if err != nil {
		return nil, err
	}
	out := make([]Version, 0, len(rows))
	for _, r := range rows {
		reason, _ := r[3].(string)
		createdStr, _ := r[5].(string)
		out = append(out, Version{
			EntryID:          asString(r[0]),
			VersionNumber:    int(asInt(r[1])),
			KnowledgeDetails: asString(r[2]),
			ChangeReason:     reason,
			ConfidenceLevel:  asFloat(r[4]),
			CreatedAt:        parseTime(createdStr),
		})
	}
	return out, nil
}

// CountActive returns the number of active entries (used by the Query
// Planner's context prompt, spec.md §4.9).
func (s *Store) CountActive(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `SELECT COUNT(*) FROM entries WHERE is_active = 1`)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(asInt(rows[0][0])), nil
}

// Stats is the aggregate overview kb_maintain's "stats" action renders,
// grounded on _examples/original_source/src/personal_kb/db/queries.py's
// get_db_stats.
type Stats struct {
	TotalEntries      int
	ActiveEntries     int
	InactiveEntries   int
	ByType            map[string]int
	ByProject         map[string]int
	WithEmbeddings    int
	WithoutEmbeddings int
}

// GetStats computes Stats in five grouped queries.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var out Stats
	out.ByType = map[string]int{}
	out.ByProject = map[string]int{}

	rows, err := s.db.Query(ctx, `SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM entries`)
	if err != nil {
		return out, fmt.Errorf("entrystore: stats totals: %w", err)
	}
	if len(rows) > 0 {
		total := int(asInt(rows[0][0]))
		active := int(asInt(rows[0][1]))
		out.TotalEntries = total
		out.ActiveEntries = active
		out.InactiveEntries = total - active
	}

	typeRows, err := s.db.Query(ctx, `
		SELECT entry_type, COUNT(*) FROM entries WHERE is_active = 1
		GROUP BY entry_type ORDER BY entry_type`)
	if err != nil {
		return out, fmt.Errorf("entrystore: stats by type: %w", err)
	}
	for _, r := range typeRows {
		out.ByType[asString(r[0])] = int(asInt(r[1]))
	}

	projRows, err := s.db.Query(ctx, `
		SELECT COALESCE(project_ref, '(none)'), COUNT(*) FROM entries WHERE is_active = 1
		GROUP BY project_ref ORDER BY COUNT(*) DESC`)
	if err != nil {
		return out, fmt.Errorf("entrystore: stats by project: %w", err)
	}
	for _, r := range projRows {
		out.ByProject[asString(r[0])] = int(asInt(r[1]))
	}

	embRows, err := s.db.Query(ctx, `
		SELECT COALESCE(SUM(has_embedding), 0), COUNT(*) - COALESCE(SUM(has_embedding), 0)
		FROM entries WHERE is_active = 1`)
	if err != nil {
		return out, fmt.Errorf("entrystore: stats embeddings: %w", err)
	}
	if len(embRows) > 0 {
		out.WithEmbeddings = int(asInt(embRows[0][0]))
		out.WithoutEmbeddings = int(asInt(embRows[0][1]))
	}

	return out, nil
}

// GetAllActiveIDs returns every active entry id (used by rebuild_embeddings
// with force=true and rebuild_graph).
func (s *Store) GetAllActiveIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM entries WHERE is_active = 1`)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, asString(r[0]))
	}
	return ids, nil
}

// InactiveOlderThan returns ids of entries deactivated (updated_at) before
// cutoff and currently inactive (used by purge_inactive).
func (s *Store) InactiveOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM entries WHERE is_active = 0 AND updated_at < ?`, timeFmt(cutoff))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, asString(r[0]))
	}
	return ids, nil
}

// DeleteEntryCascade hard-deletes an entry and its versions (used by
// purge_inactive).
func (s *Store) DeleteEntryCascade(ctx context.Context, id string) error {
	if _, err := s.db.Execute(ctx, `DELETE FROM entry_versions WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("entrystore: delete versions: %w", err)
	}
	if _, err := s.db.Execute(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("entrystore: delete entry: %w", err)
	}
	return nil
}

const entrySelectSQL = `
SELECT id, project_ref, short_title, long_title, knowledge_details, entry_type,
	source_context, confidence_level, tags, hints, created_at, updated_at,
	last_accessed, superseded_by, is_active, has_embedding, version
FROM entries`

func scanEntry(r []any) *Entry {
	e := &Entry{
		ID:               asString(r[0]),
		ProjectRef:       asString(r[1]),
		ShortTitle:       asString(r[2]),
		LongTitle:        asString(r[3]),
		KnowledgeDetails: asString(r[4]),
		EntryType:        EntryType(asString(r[5])),
		SourceContext:    asString(r[6]),
		ConfidenceLevel:  asFloat(r[7]),
		Tags:             splitTags(asString(r[8])),
		Hints:            unmarshalHints(asString(r[9])),
		CreatedAt:        parseTime(asString(r[10])),
		UpdatedAt:        parseTime(asString(r[11])),
		SupersededBy:     asString(r[13]),
		IsActive:         asInt(r[14]) != 0,
		HasEmbedding:     asInt(r[15]) != 0,
		Version:          int(asInt(r[16])),
	}
	if la := asString(r[12]); la != "" {
		t := parseTime(la)
		e.LastAccessed = &t
	}
	return e
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range splitWS(s) {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func splitWS(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func joinTags(tags []string) string {
	e := &Entry{Tags: tags}
	return e.TagsText()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		return 0
	}
}
