// Package rerank scores, filters and reorders evidence with a cross-encoder.
package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/metrics"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

// Scored pairs a document with its relevance score
type Scored struct {
	Document contracts.Document
	Score    float64
}

// Ranker applies cross-encoder relevance to candidate documents.
// When the scorer is missing, disabled or failing, every call degrades to
// pass-through with score 1.0 and never returns an error.
type Ranker struct {
	scorer  contracts.Scorer
	cfg     config.CrossEncoderConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// New creates a ranker. scorer may be nil.
func New(scorer contracts.Scorer, cfg config.CrossEncoderConfig, log *logger.Logger, m *metrics.Metrics) *Ranker {
	if log == nil {
		log = logger.Nop()
	}
	return &Ranker{
		scorer:  scorer,
		cfg:     cfg,
		logger:  log.WithField("component", "rerank"),
		metrics: m,
	}
}

// Available reports whether scores come from the cross-encoder
func (r *Ranker) Available() bool {
	return r.scorer != nil && r.cfg.Enabled
}

// Score returns a score per document in input order
func (r *Ranker) Score(ctx context.Context, query string, docs []contracts.Document) []Scored {
	if !r.Available() || len(docs) == 0 {
		return passThrough(docs, len(docs))
	}

	scores, err := r.predict(ctx, query, docs)
	if err != nil {
		r.fallback("score", err)
		return passThrough(docs, len(docs))
	}

	out := make([]Scored, len(docs))
	for i, doc := range docs {
		out[i] = Scored{Document: doc, Score: scores[i]}
	}
	return out
}

// ScoreOne returns the relevance of a single document, 1.0 when unavailable
func (r *Ranker) ScoreOne(ctx context.Context, query string, doc contracts.Document) float64 {
	return r.Score(ctx, query, []contracts.Document{doc})[0].Score
}

// Filter keeps documents scoring at or above threshold, in input order.
// Kept documents carry their score under relevance_score.
// Without a scorer the input is returned unchanged.
func (r *Ranker) Filter(ctx context.Context, query string, docs []contracts.Document, threshold float64) []contracts.Document {
	if !r.Available() || len(docs) == 0 {
		return docs
	}

	scores, err := r.predict(ctx, query, docs)
	if err != nil {
		r.fallback("filter", err)
		return docs
	}

	var kept []contracts.Document
	for i, doc := range docs {
		if scores[i] >= threshold {
			kept = append(kept, doc.With(contracts.MetaRelevanceScore, scores[i]))
		}
	}

	if len(kept) == 0 {
		r.logger.WithField("threshold", threshold).Warn("No documents above relevance threshold")
	} else {
		r.logger.WithFields(map[string]interface{}{
			"in":        len(docs),
			"out":       len(kept),
			"threshold": threshold,
		}).Debug("Filtered documents by relevance")
	}
	return kept
}

// Rerank sorts by score descending (stable on ties), drops scores strictly
// below threshold and truncates to topK. topK <= 0 uses the configured value.
func (r *Ranker) Rerank(ctx context.Context, query string, docs []contracts.Document, topK int, threshold float64) []Scored {
	if topK <= 0 {
		topK = r.cfg.RerankTopK
	}
	if !r.Available() || len(docs) == 0 {
		return passThrough(docs, topK)
	}

	scores, err := r.predict(ctx, query, docs)
	if err != nil {
		r.fallback("rerank", err)
		return passThrough(docs, topK)
	}

	ranked := make([]Scored, len(docs))
	for i, doc := range docs {
		ranked[i] = Scored{Document: doc, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	kept := make([]Scored, 0, len(ranked))
	for _, s := range ranked {
		if s.Score >= threshold {
			kept = append(kept, s)
		}
	}
	filtered := len(kept)
	if len(kept) > topK {
		kept = kept[:topK]
	}

	if len(kept) == 0 {
		r.logger.WithField("threshold", threshold).Warn("No documents above relevance threshold")
	} else {
		r.logger.WithFields(map[string]interface{}{
			"in":       len(docs),
			"filtered": filtered,
			"out":      len(kept),
		}).Info("Reranked documents")
	}
	return kept
}

// RerankDefault reranks with the configured top-k and threshold
func (r *Ranker) RerankDefault(ctx context.Context, query string, docs []contracts.Document) []Scored {
	return r.Rerank(ctx, query, docs, r.cfg.RerankTopK, r.cfg.RelevanceThreshold)
}

// predict scores every document. NaN scores are mapped to -Inf so they sort
// last and never pass a threshold.
func (r *Ranker) predict(ctx context.Context, query string, docs []contracts.Document) ([]float64, error) {
	pairs := make([]contracts.Pair, len(docs))
	for i, doc := range docs {
		pairs[i] = contracts.Pair{Query: query, Text: doc.Content}
	}

	scores, err := r.scorer.Predict(ctx, pairs)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(docs) {
		return nil, fmt.Errorf("scorer returned %d scores for %d documents", len(scores), len(docs))
	}

	for i, s := range scores {
		if math.IsNaN(s) {
			scores[i] = math.Inf(-1)
		}
	}
	return scores, nil
}

func (r *Ranker) fallback(op string, err error) {
	r.logger.WithError(err).WithField("op", op).Error("Cross-encoder scoring failed, using pass-through")
	r.metrics.RankerFallback(op)
}

func passThrough(docs []contracts.Document, topK int) []Scored {
	if topK > len(docs) {
		topK = len(docs)
	}
	out := make([]Scored, topK)
	for i := 0; i < topK; i++ {
		out[i] = Scored{Document: docs[i], Score: 1.0}
	}
	return out
}

// Documents annotates each scored document with relevance_score and a
// 1-based rank, in the given order. rank is a float64 like every numeric
// metadata value, so it reads back unchanged after persistence.
func Documents(scored []Scored) []contracts.Document {
	out := make([]contracts.Document, len(scored))
	for i, s := range scored {
		out[i] = s.Document.
			With(contracts.MetaRelevanceScore, s.Score).
			With(contracts.MetaRank, float64(i+1))
	}
	return out
}

// Info describes the ranker configuration and availability
type Info struct {
	ModelName     string  `json:"model_name"`
	Available     bool    `json:"is_available"`
	Enabled       bool    `json:"is_enabled"`
	Loaded        bool    `json:"is_loaded"`
	Threshold     float64 `json:"threshold"`
	MaxDocuments  int     `json:"max_docs"`
	TopK          int     `json:"top_k"`
	CacheModels   bool    `json:"caching_enabled"`
	ScorerBackend string  `json:"scorer_backend,omitempty"`
}

// Info returns the model info and stats exposed by the API
func (r *Ranker) Info() Info {
	return Info{
		ModelName:     r.cfg.ModelName,
		Available:     r.Available(),
		Enabled:       r.cfg.Enabled,
		Loaded:        r.scorer != nil,
		Threshold:     r.cfg.RelevanceThreshold,
		MaxDocuments:  r.cfg.MaxDocuments,
		TopK:          r.cfg.RerankTopK,
		CacheModels:   r.cfg.CacheModels,
		ScorerBackend: r.cfg.URL,
	}
}

// Config returns the ranker configuration
func (r *Ranker) Config() config.CrossEncoderConfig {
	return r.cfg
}
