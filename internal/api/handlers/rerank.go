package handlers

import (
	"net/http"

	"github.com/wonny/finadvisor/internal/rerank"
)

// RerankInfoProvider reports relevance ranker status
type RerankInfoProvider interface {
	Info() rerank.Info
}

// RerankHandler exposes ranker status
type RerankHandler struct {
	ranker RerankInfoProvider
}

// NewRerankHandler creates a new rerank handler
func NewRerankHandler(ranker RerankInfoProvider) *RerankHandler {
	return &RerankHandler{ranker: ranker}
}

// Info returns the cross-encoder model info and thresholds
// GET /api/rerank/info
func (h *RerankHandler) Info(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ranker.Info())
}
