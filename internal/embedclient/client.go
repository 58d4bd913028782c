// Package embedclient wraps a remote embedding service and persists vectors
// through the DB Backend (spec.md §4.3). Grounded on
// _examples/original_source/src/personal_kb/search/embeddings.py, an
// Ollama-shaped /api/embed HTTP client, adapted to Go's net/http with an
// explicit per-call deadline (spec.md §5 "Cancellation and timeouts").
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kbengine/personalkb/internal/dbbackend"
	"github.com/kbengine/personalkb/internal/logx"
)

// Client is the Embedding Client of spec.md §4.3. is_available is
// optimistically cached on success and cleared on any failure (spec.md §5
// "Availability state machine").
type Client struct {
	db        dbbackend.Backend
	http      *http.Client
	baseURL   string
	model     string
	dimension int
	timeout   time.Duration

	available atomic.Bool
	probed    atomic.Bool
}

func New(db dbbackend.Backend, baseURL, model string, dimension int, timeout time.Duration) *Client {
	return &Client{
		db:        db,
		http:      &http.Client{},
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		timeout:   timeout,
	}
}

// IsAvailable checks reachability. Only success is cached; failure clears
// the cache so the next call re-probes.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if c.available.Load() {
		return true
	}
	if c.baseURL == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logx.Component("embedclient").Warn().Err(err).Msg("embedding service not available")
		c.available.Store(false)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		c.available.Store(false)
		return false
	}
	c.available.Store(true)
	return true
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding for text, or returns nil if unavailable.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if !c.IsAvailable(ctx) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logx.Component("embedclient").Warn().Err(err).Msg("embedding generation failed")
		c.available.Store(false)
		return nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode >= 400 {
		c.available.Store(false)
		return nil
	}

	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Embeddings) == 0 {
		c.available.Store(false)
		return nil
	}
	return out.Embeddings[0]
}

// StoreEmbedding writes through to the DB Backend's vector_store.
func (c *Client) StoreEmbedding(ctx context.Context, entryID string, v []float32) error {
	if err := c.db.VectorStore(ctx, entryID, v); err != nil {
		return fmt.Errorf("embedclient: store embedding: %w", err)
	}
	return nil
}

// SearchSimilar delegates to vector_search.
func (c *Client) SearchSimilar(ctx context.Context, v []float32, limit int) ([]dbbackend.VectorHit, error) {
	return c.db.VectorSearch(ctx, v, limit)
}

func (c *Client) Close() error { return nil }
