// Package pgbackend implements dbbackend.Backend over a remote PostgreSQL
// database via pgx/v5, using pgvector for KNN and a tsvector+GIN column for
// full text (spec.md §9 "dialect translation", "FTS synchronization").
package pgbackend

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kbengine/personalkb/internal/dbbackend"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS entries (
    id TEXT PRIMARY KEY,
    project_ref TEXT,
    short_title TEXT NOT NULL,
    long_title TEXT NOT NULL,
    knowledge_details TEXT NOT NULL,
    entry_type TEXT NOT NULL,
    source_context TEXT,
    confidence_level DOUBLE PRECISION NOT NULL DEFAULT 0.9,
    tags TEXT NOT NULL DEFAULT '',
    hints TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_accessed TEXT,
    superseded_by TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    has_embedding INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 1,
    fts_doc tsvector
);
CREATE INDEX IF NOT EXISTS idx_entries_project ON entries(project_ref);
CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(entry_type);
CREATE INDEX IF NOT EXISTS idx_entries_active ON entries(is_active);
CREATE INDEX IF NOT EXISTS idx_entries_fts ON entries USING GIN(fts_doc);

CREATE OR REPLACE FUNCTION entries_fts_update() RETURNS trigger AS $$
BEGIN
    new.fts_doc :=
        setweight(to_tsvector('english', coalesce(new.short_title, '')), 'A') ||
        setweight(to_tsvector('english', coalesce(new.long_title, '')), 'B') ||
        setweight(to_tsvector('english', coalesce(new.knowledge_details, '')), 'C') ||
        setweight(to_tsvector('english', coalesce(new.tags, '')), 'D');
    RETURN new;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS entries_fts_trigger ON entries;
CREATE TRIGGER entries_fts_trigger BEFORE INSERT OR UPDATE ON entries
    FOR EACH ROW EXECUTE FUNCTION entries_fts_update();

CREATE TABLE IF NOT EXISTS entry_versions (
    id SERIAL PRIMARY KEY,
    entry_id TEXT NOT NULL REFERENCES entries(id),
    version_number INTEGER NOT NULL,
    knowledge_details TEXT NOT NULL,
    change_reason TEXT,
    confidence_level DOUBLE PRECISION NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(entry_id, version_number)
);

CREATE TABLE IF NOT EXISTS entry_id_seq (next_id BIGINT NOT NULL DEFAULT 1);
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
    id SERIAL PRIMARY KEY,
    source TEXT NOT NULL REFERENCES graph_nodes(node_id),
    target TEXT NOT NULL REFERENCES graph_nodes(node_id),
    edge_type TEXT NOT NULL,
    properties TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    UNIQUE(source, target, edge_type)
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON graph_edges(source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON graph_edges(target);

CREATE TABLE IF NOT EXISTS ingested_files (
    id SERIAL PRIMARY KEY,
    relative_path TEXT NOT NULL UNIQUE,
    content_hash TEXT NOT NULL,
    note_node_id TEXT NOT NULL,
    entry_ids TEXT NOT NULL DEFAULT '[]',
    summary TEXT NOT NULL,
    file_size BIGINT NOT NULL,
    file_extension TEXT NOT NULL,
    project_ref TEXT,
    redactions TEXT NOT NULL DEFAULT '[]',
    ingested_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1
);
`

// Backend is the remote relational implementation of dbbackend.Backend,
// backed by a pgxpool connection pool (spec.md §5 "relational backends use
// a small connection pool").
type Backend struct {
	pool *pgxpool.Pool
	dim  int
}

var _ dbbackend.Backend = (*Backend)(nil)

// Open connects to a PostgreSQL instance reachable at connString.
func Open(ctx context.Context, connString string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("pgbackend: connect: %w", err)
	}
	return &Backend{pool: pool}, nil
}

func vecSchemaSQL(dim string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS entries_vec (
    entry_id TEXT PRIMARY KEY REFERENCES entries(id),
    embedding vector(%s)
);
CREATE INDEX IF NOT EXISTS idx_entries_vec_ann
    ON entries_vec USING ivfflat (embedding vector_cosine_ops);
`, dim)
}

func (b *Backend) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := b.pool.Exec(ctx, dbbackend.RewritePositional(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (b *Backend) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := b.pool.Query(ctx, dbbackend.RewritePositional(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (b *Backend) ExecuteMany(ctx context.Context, query string, argsList [][]any) error {
	batch := &pgx.Batch{}
	rewritten := dbbackend.RewritePositional(query)
	for _, args := range argsList {
		batch.Queue(rewritten, args...)
	}
	br := b.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range argsList {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) ExecuteScript(ctx context.Context, script string) error {
	_, err := b.pool.Exec(ctx, script)
	return err
}

func (b *Backend) Commit(ctx context.Context) error { return nil }

func (b *Backend) Close() error {
	b.pool.Close()
	return nil
}

func (b *Backend) ApplySchema(ctx context.Context, embeddingDim int) error {
	if err := b.ExecuteScript(ctx, schemaSQL); err != nil {
		return fmt.Errorf("pgbackend: apply schema: %w", err)
	}
	b.dim = embeddingDim
	dim := fmt.Sprintf("%d", embeddingDim)
	if err := b.ExecuteScript(ctx, vecSchemaSQL(dim)); err != nil {
		return fmt.Errorf("pgbackend: apply vec schema: %w", err)
	}
	return nil
}

func (b *Backend) FTSSearch(ctx context.Context, q string, filter dbbackend.FTSFilter, k int) ([]dbbackend.FTSHit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}

	query := `
		SELECT id, -ts_rank(fts_doc, plainto_tsquery('english', ?)) AS score
		FROM entries
		WHERE fts_doc @@ plainto_tsquery('english', ?) AND is_active = 1`
	args := []any{q, q}

	if filter.ProjectRef != "" {
		query += " AND project_ref = ?"
		args = append(args, filter.ProjectRef)
	}
	if filter.EntryType != "" {
		query += " AND entry_type = ?"
		args = append(args, filter.EntryType)
	}
	for _, tag := range filter.Tags {
		query += " AND tags LIKE ?"
		args = append(args, "%"+tag+"%")
	}
	query += " ORDER BY score LIMIT ?"
	args = append(args, k)

	rows, err := b.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgbackend: fts search: %w", err)
	}
	hits := make([]dbbackend.FTSHit, 0, len(rows))
	for _, r := range rows {
		id, _ := r[0].(string)
		score, _ := r[1].(float64)
		hits = append(hits, dbbackend.FTSHit{EntryID: id, Score: score})
	}
	return hits, nil
}

func (b *Backend) VectorStore(ctx context.Context, entryID string, embedding []float32) error {
	v := pgvector.NewVector(embedding)
	_, err := b.Execute(ctx, `
		INSERT INTO entries_vec (entry_id, embedding) VALUES (?, ?)
		ON CONFLICT (entry_id) DO UPDATE SET embedding = excluded.embedding`, entryID, v)
	return err
}

func (b *Backend) VectorSearch(ctx context.Context, embedding []float32, k int) ([]dbbackend.VectorHit, error) {
	v := pgvector.NewVector(embedding)
	rows, err := b.Query(ctx, `
		SELECT entry_id, embedding <=> ? AS distance FROM entries_vec
		ORDER BY distance LIMIT ?`, v, k)
	if err != nil {
		return nil, fmt.Errorf("pgbackend: vector search: %w", err)
	}
	hits := make([]dbbackend.VectorHit, 0, len(rows))
	for _, r := range rows {
		id, _ := r[0].(string)
		dist, _ := r[1].(float64)
		hits = append(hits, dbbackend.VectorHit{EntryID: id, Distance: dist})
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
		WHERE source = ? AND properties::jsonb ->> 'source' = 'llm'`, source)
	return err
}

func (b *Backend) Vacuum(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, "VACUUM")
	return err
}
