package crossencoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/httputil"
	"github.com/wonny/finadvisor/pkg/logger"
)

// Client scores (query, text) pairs against a cross-encoder rerank server
// that speaks the text-embeddings-inference /rerank protocol
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	model      string
}

// NewClient creates a new cross-encoder client
func NewClient(httpClient *httputil.Client, baseURL, model string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Predict returns one score per pair in input order. Pairs sharing a query
// are sent in one request.
func (c *Client) Predict(ctx context.Context, pairs []contracts.Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	if len(pairs) == 0 {
		return scores, nil
	}

	// query → 원래 위치 목록 (입력 순서 유지)
	var queries []string
	positions := make(map[string][]int)
	for i, p := range pairs {
		if _, ok := positions[p.Query]; !ok {
			queries = append(queries, p.Query)
		}
		positions[p.Query] = append(positions[p.Query], i)
	}

	for _, q := range queries {
		idx := positions[q]
		texts := make([]string, len(idx))
		for j, pos := range idx {
			texts[j] = pairs[pos].Text
		}

		var resp []rerankScore
		req := rerankRequest{Model: c.model, Query: q, Texts: texts, RawScores: false}
		if err := c.httpClient.PostJSONInto(ctx, c.baseURL+"/rerank", req, &resp); err != nil {
			return nil, fmt.Errorf("rerank request failed: %w", err)
		}
		if len(resp) != len(texts) {
			return nil, fmt.Errorf("rerank returned %d scores for %d texts", len(resp), len(texts))
		}

		for _, s := range resp {
			if s.Index < 0 || s.Index >= len(idx) {
				return nil, fmt.Errorf("rerank returned out of range index %d", s.Index)
			}
			scores[idx[s.Index]] = s.Score
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"pairs":   len(pairs),
		"queries": len(queries),
	}).Debug("Cross-encoder scored pairs")
	return scores, nil
}
