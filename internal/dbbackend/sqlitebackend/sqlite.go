// Package sqlitebackend implements dbbackend.Backend over an embedded
// single-file SQLite database, using ncruces/go-sqlite3 (a database/sql
// driver, as in the teacher's internal/store package) plus the sqlite-vec
// extension for vector KNN and FTS5 for full text.
package sqlitebackend

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/logx"
)

const schemaVersion = 1

// schemaSQL mirrors the Python source's db/schema.py, translated to the
// engine's own table/column names (spec.md §3).
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    project_ref TEXT,
    short_title TEXT NOT NULL,
    long_title TEXT NOT NULL,
    knowledge_details TEXT NOT NULL,
    entry_type TEXT NOT NULL,
    source_context TEXT,
    confidence_level REAL NOT NULL DEFAULT 0.9,
    tags TEXT NOT NULL DEFAULT '',
    hints TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_accessed TEXT,
    superseded_by TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    has_embedding INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_entries_project ON entries(project_ref);
CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(entry_type);
CREATE INDEX IF NOT EXISTS idx_entries_active ON entries(is_active);

CREATE TABLE IF NOT EXISTS entry_versions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id TEXT NOT NULL REFERENCES entries(id),
    version_number INTEGER NOT NULL,
    knowledge_details TEXT NOT NULL,
    change_reason TEXT,
    confidence_level REAL NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(entry_id, version_number)
);

CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    short_title,
    long_title,
    knowledge_details,
    tags,
    content='entries',
    content_rowid='rowid',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS entries_fts_ai AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, short_title, long_title, knowledge_details, tags)
    VALUES (new.rowid, new.short_title, new.long_title, new.knowledge_details, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS entries_fts_ad AFTER DELETE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, short_title, long_title, knowledge_details, tags)
    VALUES ('delete', old.rowid, old.short_title, old.long_title, old.knowledge_details, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS entries_fts_au AFTER UPDATE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, short_title, long_title, knowledge_details, tags)
    VALUES ('delete', old.rowid, old.short_title, old.long_title, old.knowledge_details, old.tags);
    INSERT INTO entries_fts(rowid, short_title, long_title, knowledge_details, tags)
    VALUES (new.rowid, new.short_title, new.long_title, new.knowledge_details, new.tags);
END;

CREATE TABLE IF NOT EXISTS entry_id_seq (
    next_id INTEGER NOT NULL DEFAULT 1
);
INSERT INTO entry_id_seq (next_id)
SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM entry_id_seq);

CREATE TABLE IF NOT EXISTS graph_nodes (
    node_id TEXT PRIMARY KEY,
    node_type TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON graph_nodes(node_type);

CREATE TABLE IF NOT EXISTS graph_edges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL REFERENCES graph_nodes(node_id),
    target TEXT NOT NULL REFERENCES graph_nodes(node_id),
    edge_type TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    UNIQUE(source, target, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON graph_edges(source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON graph_edges(target);
CREATE INDEX IF NOT EXISTS idx_edges_type ON graph_edges(edge_type);

CREATE TABLE IF NOT EXISTS ingested_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    relative_path TEXT NOT NULL UNIQUE,
    content_hash TEXT NOT NULL,
    note_node_id TEXT NOT NULL,
    entry_ids TEXT NOT NULL DEFAULT '[]',
    summary TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    file_extension TEXT NOT NULL,
    project_ref TEXT,
    redactions TEXT NOT NULL DEFAULT '[]',
    ingested_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1
);
`

// Backend is the embedded, single-file SQLite implementation of
// dbbackend.Backend. Thread-safe: a single RWMutex serializes writers the
// way the teacher's SQLiteStore does.
type Backend struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open creates or opens a SQLite database at dsn ("" or ":memory:" for an
// in-memory instance).
func Open(dsn string) (*Backend, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer system; WAL still allows concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		logx.Component("sqlitebackend").Warn().Err(err).Msg("failed to enable WAL mode")
	}
	return &Backend{db: db}, nil
}

var _ dbbackend.Backend = (*Backend)(nil)

func (b *Backend) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (b *Backend) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (b *Backend) ExecuteMany(ctx context.Context, query string, argsList [][]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, args := range argsList {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (b *Backend) ExecuteScript(ctx context.Context, script string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.db.ExecContext(ctx, script)
	return err
}

func (b *Backend) Commit(ctx context.Context) error { return nil }

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}

func (b *Backend) ApplySchema(ctx context.Context, embeddingDim int) error {
	if err := b.ExecuteScript(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlitebackend: apply schema: %w", err)
	}

	rows, err := b.Query(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		if _, err := b.Execute(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return err
		}
	}

	vecSQL := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS entries_vec USING vec0(
		entry_id TEXT PRIMARY KEY,
		embedding FLOAT[%d] distance_metric=cosine
	);`, embeddingDim)
	if err := b.ExecuteScript(ctx, vecSQL); err != nil {
		return fmt.Errorf("sqlitebackend: apply vec schema: %w", err)
	}
	return nil
}

func (b *Backend) FTSSearch(ctx context.Context, q string, filter dbbackend.FTSFilter, k int) ([]dbbackend.FTSHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}

	query := `
		SELECT e.id, bm25(entries_fts, 3.0, 2.0, 1.0, 0.5) AS score
		FROM entries_fts
		JOIN entries e ON e.rowid = entries_fts.rowid
		WHERE entries_fts MATCH ? AND e.is_active = 1`
	args := []any{escapeFTSQuery(q)}

	if filter.ProjectRef != "" {
		query += " AND e.project_ref = ?"
		args = append(args, filter.ProjectRef)
	}
	if filter.EntryType != "" {
		query += " AND e.entry_type = ?"
		args = append(args, filter.EntryType)
	}
	for _, tag := range filter.Tags {
		query += " AND e.tags LIKE ?"
		args = append(args, "%"+tag+"%")
	}
	query += " ORDER BY score LIMIT ?"
	args = append(args, k)

	rows, err := b.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: fts search: %w", err)
	}

	hits := make([]dbbackend.FTSHit, 0, len(rows))
	for _, r := range rows {
		id, _ := r[0].(string)
		score := toFloat(r[1])
		hits = append(hits, dbbackend.FTSHit{EntryID: id, Score: score})
	}
	return hits, nil
}

// escapeFTSQuery defuses FTS5 query-syntax characters by quoting the whole
// query as a single phrase, per spec.md §4.1 "Token escaping must defuse any
// syntax characters".
func escapeFTSQuery(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

func (b *Backend) VectorStore(ctx context.Context, entryID string, embedding []float32) error {
	if _, err := b.Execute(ctx, "DELETE FROM entries_vec WHERE entry_id = ?", entryID); err != nil {
		return fmt.Errorf("sqlitebackend: vector store delete: %w", err)
	}
	blob := packFloat32LE(embedding)
	if _, err := b.Execute(ctx, "INSERT INTO entries_vec(entry_id, embedding) VALUES (?, ?)", entryID, blob); err != nil {
		return fmt.Errorf("sqlitebackend: vector store insert: %w", err)
	}
	return nil
}

func (b *Backend) VectorSearch(ctx context.Context, embedding []float32, k int) ([]dbbackend.VectorHit, error) {
	blob := packFloat32LE(embedding)
	rows, err := b.Query(ctx, `
		SELECT entry_id, distance FROM entries_vec
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, blob, k)
	if err != nil {
		return nil, fmt.Errorf("sqlitebackend: vector search: %w", err)
	}
	hits := make([]dbbackend.VectorHit, 0, len(rows))
	for _, r := range rows {
		id, _ := r[0].(string)
		hits = append(hits, dbbackend.VectorHit{EntryID: id, Distance: toFloat(r[1])})
	}
	return hits, nil
}

func (b *Backend) VectorDelete(ctx context.Context, entryID string) error {
	_, err := b.Execute(ctx, "DELETE FROM entries_vec WHERE entry_id = ?", entryID)
	return err
}

func (b *Backend) DeleteLLMEdges(ctx context.Context, source string) error {
	_, err := b.Execute(ctx, `
		DELETE FROM graph_edges
		WHERE source = ? AND json_extract(properties, '$.source') = 'llm'`, source)
	return err
}

func (b *Backend) Vacuum(ctx context.Context) error {
	_, err := b.Execute(ctx, "VACUUM")
	return err
}

func packFloat32LE(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
