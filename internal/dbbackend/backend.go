// Package dbbackend defines the narrow storage capability the rest of the
// engine is built on (spec.md §4.1, §9 "duck-typed DB backend"). Two
// concrete implementations exist: sqlitebackend (embedded, single file) and
// pgbackend (remote, relational). Application code only ever talks to the
// Backend interface.
package dbbackend

import "context"

// FTSFilter narrows a full-text search to entries matching the given
// optional fields. Zero values mean "no filter".
type FTSFilter struct {
	ProjectRef string
	EntryType  string
	Tags       []string
}

// FTSHit is one full-text match. Score is negative; more negative is better,
// matching both SQLite FTS5's bm25() convention and the negated score the
// relational backend must produce to preserve "lower is better" (spec.md §4.1).
type FTSHit struct {
	EntryID string
	Score   float64
}

// VectorHit is one nearest-neighbor match. Distance is non-negative; lower
// is better.
type VectorHit struct {
	EntryID  string
	Distance float64
}

// Backend is the uniform store every higher-level component is written
// against: parameterized statements, FTS query, vector upsert/KNN,
// maintenance. Every mutation method commits before returning (spec.md §4.1:
// "this is a single-writer system"); Query does not begin an explicit
// transaction.
type Backend interface {
	// Execute runs one statement (insert/update/delete/ddl) and returns the
	// number of rows affected.
	Execute(ctx context.Context, query string, args ...any) (int64, error)

	// Query runs one statement and returns every result row, each row being
	// the ordered column values.
	Query(ctx context.Context, query string, args ...any) ([][]any, error)

	// ExecuteMany applies query once per entry in argsList, in order.
	ExecuteMany(ctx context.Context, query string, argsList [][]any) error

	// ExecuteScript runs a multi-statement script (schema DDL, fixtures).
	ExecuteScript(ctx context.Context, script string) error

	// Commit is a no-op for backends that commit per-statement; present so a
	// future multi-statement-transaction backend can implement it without
	// changing the interface.
	Commit(ctx context.Context) error

	Close() error

	// ApplySchema creates every table/index the engine needs, including the
	// embedding-dimension-sized vector column. Idempotent.
	ApplySchema(ctx context.Context, embeddingDim int) error

	// FTSSearch returns the top k entries matching q and filter, active only.
	FTSSearch(ctx context.Context, q string, filter FTSFilter, k int) ([]FTSHit, error)

	// VectorStore upserts the embedding for entryID (overwrite in place).
	VectorStore(ctx context.Context, entryID string, embedding []float32) error

	// VectorSearch returns the k nearest entries to embedding, across all
	// entries regardless of filters (spec.md §4.5 step 3).
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]VectorHit, error)

	// VectorDelete removes entryID's vector row, if any.
	VectorDelete(ctx context.Context, entryID string) error

	// DeleteLLMEdges removes every graph_edges row with source = source and
	// properties.source == "llm" (used by re-enrichment, spec.md §4.7).
	DeleteLLMEdges(ctx context.Context, source string) error

	// Vacuum reclaims space / updates statistics; a no-op is acceptable for
	// backends without an equivalent operation.
	Vacuum(ctx context.Context) error
}
