package search

import (
	"context"
	"errors"
	"testing"

	"github.com/kbengine/personalkb/internal/dbbackend"
)

type stubBackend struct {
	dbbackend.Backend
	ftsHits   []dbbackend.FTSHit
	ftsErr    error
	vecHits   []dbbackend.VectorHit
	vecErr    error
	lastQuery string
}

func (s *stubBackend) FTSSearch(ctx context.Context, q string, filter dbbackend.FTSFilter, k int) ([]dbbackend.FTSHit, error) {
	s.lastQuery = q
	return s.ftsHits, s.ftsErr
}

func (s *stubBackend) VectorSearch(ctx context.Context, embedding []float32, k int) ([]dbbackend.VectorHit, error) {
	return s.vecHits, s.vecErr
}

func TestFTSBlankQueryReturnsNilWithoutCallingBackend(t *testing.T) {
	b := &stubBackend{ftsHits: []dbbackend.FTSHit{{EntryID: "kb-00001"}}}
	got := FTS(context.Background(), b, "   ", dbbackend.FTSFilter{}, 10)
	if got != nil {
		t.Errorf("FTS(blank) = %v, want nil", got)
	}
	if b.lastQuery != "" {
		t.Error("FTS(blank) should not call backend.FTSSearch")
	}
}

func TestFTSDelegatesToBackend(t *testing.T) {
	b := &stubBackend{ftsHits: []dbbackend.FTSHit{{EntryID: "kb-00001", Score: -1.2}}}
	got := FTS(context.Background(), b, "context deadline", dbbackend.FTSFilter{}, 10)
	if len(got) != 1 || got[0].EntryID != "kb-00001" {
		t.Errorf("FTS() = %v, want the backend's hit", got)
	}
}

func TestFTSErrorReturnsNil(t *testing.T) {
	b := &stubBackend{ftsErr: errors.New("boom")}
	got := FTS(context.Background(), b, "query", dbbackend.FTSFilter{}, 10)
	if got != nil {
		t.Errorf("FTS() on backend error = %v, want nil", got)
	}
}

func TestVectorEmptyEmbeddingReturnsNil(t *testing.T) {
	b := &stubBackend{vecHits: []dbbackend.VectorHit{{EntryID: "kb-00001"}}}
	got := Vector(context.Background(), b, nil, 10)
	if got != nil {
		t.Errorf("Vector(nil embedding) = %v, want nil", got)
	}
}

func TestVectorDelegatesToBackend(t *testing.T) {
	b := &stubBackend{vecHits: []dbbackend.VectorHit{{EntryID: "kb-00002", Distance: 0.05}}}
	got := Vector(context.Background(), b, []float32{0.1, 0.2}, 10)
	if len(got) != 1 || got[0].EntryID != "kb-00002" {
		t.Errorf("Vector() = %v, want the backend's hit", got)
	}
}

func TestVectorErrorReturnsNil(t *testing.T) {
	b := &stubBackend{vecErr: errors.New("boom")}
	got := Vector(context.Background(), b, []float32{0.1}, 10)
	if got != nil {
		t.Errorf("Vector() on backend error = %v, want nil", got)
	}
}
