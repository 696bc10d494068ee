package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/finadvisor/internal/contracts"
)

// ErrEmptyIndex is returned when an index is built from no documents
var ErrEmptyIndex = errors.New("no documents to index")

// MemoryIndex is an in-memory cosine similarity index over document contents
type MemoryIndex struct {
	embedder contracts.Embedder
	docs     []contracts.Document
	vectors  [][]float32
}

// MemoryIndexBuilder builds a MemoryIndex per call
type MemoryIndexBuilder struct {
	Embedder contracts.Embedder
}

// FromDocuments embeds every document content and returns the index
func (b MemoryIndexBuilder) FromDocuments(ctx context.Context, docs []contracts.Document) (contracts.VectorIndex, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyIndex
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	vectors, err := b.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(docs))
	}

	return &MemoryIndex{embedder: b.Embedder, docs: docs, vectors: vectors}, nil
}

// SimilaritySearch returns the k documents closest to the query, most similar first
func (m *MemoryIndex) SimilaritySearch(ctx context.Context, query string, k int) ([]contracts.Document, error) {
	if k <= 0 {
		return nil, nil
	}

	qv, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(qv))
	}

	type hit struct {
		idx   int
		score float64
	}
	hits := make([]hit, len(m.docs))
	for i, v := range m.vectors {
		hits[i] = hit{idx: i, score: cosine(qv[0], v)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]contracts.Document, k)
	for i := 0; i < k; i++ {
		out[i] = m.docs[hits[i].idx].Clone()
	}
	return out, nil
}

// Len reports how many documents are indexed
func (m *MemoryIndex) Len() int {
	return len(m.docs)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) {
		return 0
	}
	return s
}
