// Package ingest implements the Ingestion Pipeline (spec.md §4.11):
// per-file safety gating, LLM summarization/extraction, storage through the
// full kb_store pipeline, and a directory-level walk. Grounded on
// _examples/original_source/src/personal_kb/ingest/ingester.py.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/embedclient"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/ingest/safety"
	"github.com/kbengine/personalkb/internal/llm"
	"github.com/kbengine/personalkb/internal/logx"
)

var log = logx.Component("ingest")

var allowedExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true, ".rst": true, ".org": true, ".adoc": true, ".tex": true,
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true, ".rb": true, ".go": true, ".rs": true,
	".java": true, ".kt": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true, ".cs": true, ".swift": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true, ".conf": true,
	".json": true, ".xml": true, ".html": true, ".css": true, ".scss": true, ".sql": true,
	".r": true, ".jl": true, ".lua": true, ".vim": true, ".el": true, ".clj": true,
	".ex": true, ".exs": true, ".erl": true, ".hs": true, ".ml": true, ".nix": true, ".tf": true,
}

var allowedNames = map[string]bool{
	"Dockerfile": true, "Makefile": true, "Rakefile": true, "Gemfile": true, "Procfile": true,
	"README": true, "CHANGELOG": true, "LICENSE": true, "NOTES": true,
}

func isAllowedFile(path string) bool {
	name := filepath.Base(path)
	if allowedNames[name] {
		return true
	}
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// FileResult is the outcome of ingesting a single file.
type FileResult struct {
	Path       string
	Action     string // "ingested" | "skipped" | "flagged" | "error" | "unchanged" | "dry_run"
	Reason     string
	EntryCount int
	EntryIDs   []string
	Summary    string
}

// DirectoryResult is the outcome of ingesting a directory.
type DirectoryResult struct {
	TotalFiles     int
	Ingested       int
	Skipped        int
	Flagged        int
	Errors         int
	Unchanged      int
	EntriesCreated int
	FileResults    []FileResult
}

// Ingester orchestrates file ingestion: safety checks, LLM extraction, and
// storage.
type Ingester struct {
	backend  dbbackend.Backend
	entries  *entrystore.Store
	embed    *embedclient.Client
	builder  *graph.Store
	enricher *graph.Enricher
	llm      llm.Provider
	maxSize  int64
}

func New(backend dbbackend.Backend, entries *entrystore.Store, embed *embedclient.Client, graphStore *graph.Store, enricher *graph.Enricher, provider llm.Provider, maxFileSizeBytes int64) *Ingester {
	return &Ingester{
		backend:  backend,
		entries:  entries,
		embed:    embed,
		builder:  graphStore,
		enricher: enricher,
		llm:      provider,
		maxSize:  maxFileSizeBytes,
	}
}

type ingestedFileRecord struct {
	relativePath string
	contentHash  string
	noteNodeID   string
	entryIDs     []string
	isActive     bool
}

// IngestFile runs the full pipeline on one file (spec.md §4.11 steps 1-11).
func (ing *Ingester) IngestFile(ctx context.Context, path, baseDir, projectRef string, dryRun bool) FileResult {
	relPath := path
	if baseDir != "" {
		if r, err := filepath.Rel(baseDir, path); err == nil {
			relPath = r
		}
	} else {
		relPath = filepath.Base(path)
	}

	if denied := safety.CheckDenyList(path); denied != "" {
		return FileResult{Path: relPath, Action: "skipped", Reason: "Matches deny-list pattern: " + denied}
	}

	if !isAllowedFile(path) {
		ext := filepath.Ext(path)
		if ext == "" {
			ext = filepath.Base(path)
		}
		return FileResult{Path: relPath, Action: "skipped", Reason: "Unsupported file type: " + ext}
	}

	info, err := os.Stat(path)
	if err != nil {
		return FileResult{Path: relPath, Action: "error", Reason: err.Error()}
	}
	fileSize := info.Size()
	if ing.maxSize > 0 && fileSize > ing.maxSize {
		return FileResult{Path: relPath, Action: "skipped", Reason: fmt.Sprintf("File too large: %d bytes (max %d)", fileSize, ing.maxSize)}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Path: relPath, Action: "error", Reason: err.Error()}
	}
	content := string(raw)

	sum := sha256.Sum256([]byte(content))
	contentHash := hex.EncodeToString(sum[:])

	existing, err := ing.getIngestedFile(ctx, relPath)
	if err != nil {
		return FileResult{Path: relPath, Action: "error", Reason: err.Error()}
	}
	if existing != nil && existing.contentHash == contentHash && existing.isActive {
		return FileResult{Path: relPath, Action: "unchanged"}
	}

	result := safety.Run(path, content)
	if result.Action == safety.Skip {
		return FileResult{Path: relPath, Action: "skipped", Reason: result.Reason}
	}
	if result.Action == safety.Flag {
		return FileResult{Path: relPath, Action: "flagged", Reason: result.Reason}
	}
	content = result.Content

	if dryRun {
		summary, _ := SummarizeFile(ctx, ing.llm, relPath, content)
		entries := ExtractEntries(ctx, ing.llm, relPath, content)
		return FileResult{Path: relPath, Action: "dry_run", EntryCount: len(entries), Summary: summary}
	}

	if existing != nil {
		if err := ing.deactivateOldEntries(ctx, existing); err != nil {
			return FileResult{Path: relPath, Action: "error", Reason: err.Error()}
		}
	}

	summary, ok := SummarizeFile(ctx, ing.llm, relPath, content)
	if !ok {
		return FileResult{Path: relPath, Action: "error", Reason: "LLM unavailable for summarization"}
	}

	extracted := ExtractEntries(ctx, ing.llm, relPath, content)

	var entryIDs []string
	for _, ext := range extracted {
		e := ing.storeExtractedEntry(ctx, ext, projectRef, relPath)
		if e != nil {
			entryIDs = append(entryIDs, e.ID)
		}
	}

	noteNodeID := "note:" + relPath
	if err := ing.createNoteNode(ctx, noteNodeID, relPath, summary); err != nil {
		return FileResult{Path: relPath, Action: "error", Reason: err.Error()}
	}
	for _, eid := range entryIDs {
		_ = ing.addExtractedFromEdge(ctx, eid, noteNodeID)
	}

	if err := ing.recordIngestedFile(ctx, relPath, contentHash, noteNodeID, entryIDs, summary, fileSize, filepath.Ext(path), projectRef, result.Redactions, existing != nil); err != nil {
		return FileResult{Path: relPath, Action: "error", Reason: err.Error()}
	}

	return FileResult{Path: relPath, Action: "ingested", EntryCount: len(entryIDs), EntryIDs: entryIDs, Summary: summary}
}

// IngestDirectory walks dirPath (recursively unless recursive is false) and
// ingests every eligible file, in lexical order.
func (ing *Ingester) IngestDirectory(ctx context.Context, dirPath, projectRef string, recursive, dryRun bool) DirectoryResult {
	var result DirectoryResult

	info, err := os.Stat(dirPath)
	if err != nil || !info.IsDir() {
		result.Errors = 1
		result.FileResults = append(result.FileResults, FileResult{Path: dirPath, Action: "error", Reason: "Not a directory"})
		return result
	}

	var files []string
	if recursive {
		_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			files = append(files, p)
			return nil
		})
	} else {
		entries, _ := os.ReadDir(dirPath)
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(dirPath, e.Name()))
			}
		}
	}
	sort.Strings(files)

	for _, f := range files {
		result.TotalFiles++
		fr := ing.IngestFile(ctx, f, dirPath, projectRef, dryRun)
		result.FileResults = append(result.FileResults, fr)

		switch fr.Action {
		case "ingested":
			result.Ingested++
			result.EntriesCreated += fr.EntryCount
		case "skipped":
			result.Skipped++
		case "flagged":
			result.Flagged++
		case "error":
			result.Errors++
		case "unchanged":
			result.Unchanged++
		case "dry_run":
			result.Ingested++
			result.EntriesCreated += fr.EntryCount
		}
	}

	return result
}

func (ing *Ingester) getIngestedFile(ctx context.Context, relPath string) (*ingestedFileRecord, error) {
	rows, err := ing.backend.Query(ctx, `
		SELECT relative_path, content_hash, note_node_id, entry_ids, is_active
		FROM ingested_files WHERE relative_path = ?`, relPath)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	var ids []string
	if s, ok := r[3].(string); ok && s != "" {
		_ = json.Unmarshal([]byte(s), &ids)
	}
	active := false
	switch v := r[4].(type) {
	case int64:
		active = v != 0
	case bool:
		active = v
	}
	return &ingestedFileRecord{
		relativePath: asStr(r[0]),
		contentHash:  asStr(r[1]),
		noteNodeID:   asStr(r[2]),
		entryIDs:     ids,
		isActive:     active,
	}, nil
}

func (ing *Ingester) deactivateOldEntries(ctx context.Context, rec *ingestedFileRecord) error {
	for _, eid := range rec.entryIDs {
		if _, err := ing.entries.DeactivateEntry(ctx, eid); err != nil {
			log.Warn().Err(err).Str("entry_id", eid).Msg("could not deactivate old entry")
			continue
		}
		if _, err := ing.backend.Execute(ctx, `DELETE FROM graph_edges WHERE source = ?`, eid); err != nil {
			return err
		}
	}
	if rec.noteNodeID != "" {
		if _, err := ing.backend.Execute(ctx, `DELETE FROM graph_edges WHERE source = ? OR target = ?`, rec.noteNodeID, rec.noteNodeID); err != nil {
			return err
		}
	}
	return nil
}

func (ing *Ingester) storeExtractedEntry(ctx context.Context, ext ExtractedEntry, projectRef, sourcePath string) *entrystore.Entry {
	entryType := entrystore.EntryType(ext.EntryType)
	if !entrystore.ValidEntryType(string(entryType)) {
		entryType = entrystore.FactualReference
	}

	e, err := ing.entries.CreateEntry(ctx, entrystore.CreateFields{
		ProjectRef:       projectRef,
		ShortTitle:       ext.ShortTitle,
		LongTitle:        ext.LongTitle,
		KnowledgeDetails: ext.KnowledgeDetails,
		EntryType:        entryType,
		SourceContext:    "Ingested from " + sourcePath,
		Tags:             ext.Tags,
	})
	if err != nil {
		log.Warn().Err(err).Str("source", sourcePath).Msg("failed to create entry from ingested file")
		return nil
	}

	if ing.embed != nil {
		if v := ing.embed.Embed(ctx, e.EmbeddingText()); v != nil {
			if err := ing.embed.StoreEmbedding(ctx, e.ID, v); err == nil {
				_ = ing.entries.MarkEmbedding(ctx, e.ID, true)
			}
		}
	}

	if ing.builder != nil {
		if err := ing.builder.BuildForEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to build graph")
		}
	}

	if ing.enricher != nil {
		if _, err := ing.enricher.EnrichEntry(ctx, e); err != nil {
			log.Warn().Err(err).Str("entry_id", e.ID).Msg("failed to enrich graph")
		}
	}

	return e
}

func (ing *Ingester) createNoteNode(ctx context.Context, nodeID, relPath, summary string) error {
	props, _ := json.Marshal(map[string]string{"path": relPath, "summary": summary})
	_, err := ing.backend.Execute(ctx, `
		INSERT INTO graph_nodes (node_id, node_type, properties, created_at)
		VALUES (?, 'note', ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET properties = excluded.properties`,
		nodeID, string(props), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (ing *Ingester) addExtractedFromEdge(ctx context.Context, entryID, noteNodeID string) error {
	_, err := ing.backend.Execute(ctx, `
		INSERT OR IGNORE INTO graph_edges (source, target, edge_type, properties, created_at)
		VALUES (?, ?, 'extracted_from', '{}', ?)`,
		entryID, noteNodeID, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (ing *Ingester) recordIngestedFile(ctx context.Context, relPath, contentHash, noteNodeID string, entryIDs []string, summary string, fileSize int64, fileExt, projectRef string, redactions []string, isUpdate bool) error {
	idsJSON, _ := json.Marshal(entryIDs)
	redactionsJSON, _ := json.Marshal(redactions)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	if isUpdate {
		_, err := ing.backend.Execute(ctx, `
			UPDATE ingested_files SET content_hash = ?, note_node_id = ?, entry_ids = ?,
				summary = ?, file_size = ?, file_extension = ?, project_ref = ?,
				redactions = ?, updated_at = ?, is_active = 1
			WHERE relative_path = ?`,
			contentHash, noteNodeID, string(idsJSON), summary, fileSize, fileExt, nullable(projectRef), string(redactionsJSON), now, relPath)
		return err
	}

	_, err := ing.backend.Execute(ctx, `
		INSERT INTO ingested_files
			(relative_path, content_hash, note_node_id, entry_ids, summary, file_size,
			 file_extension, project_ref, redactions, ingested_at, updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		relPath, contentHash, noteNodeID, string(idsJSON), summary, fileSize, fileExt, nullable(projectRef), string(redactionsJSON), now, now)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func asStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
