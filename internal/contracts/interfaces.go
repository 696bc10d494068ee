package contracts

import (
	"context"
	"time"
)

// Capability interfaces consumed by the pipeline core.
// Provider packages under internal/external implement them.

// ChatModel generates text from a role-tagged message list
type ChatModel interface {
	Invoke(ctx context.Context, messages []Message) (string, error)
}

// StructuredChatModel additionally returns a JSON object reply
type StructuredChatModel interface {
	ChatModel
	InvokeJSON(ctx context.Context, messages []Message) (string, error)
}

// Embedder turns texts into vectors, one per input in order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pair is one (query, text) input to a cross-encoder
type Pair struct {
	Query string
	Text  string
}

// Scorer predicts a relevance score per pair, in input order
type Scorer interface {
	Predict(ctx context.Context, pairs []Pair) ([]float64, error)
}

// Bar is one period of price data. Missing values are NaN.
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	Close float64   `json:"close"`
}

// PriceTable holds bars per symbol in ascending date order.
// A symbol the provider knows nothing about is absent.
type PriceTable map[string][]Bar

// MarketDataProvider fetches quotes
type MarketDataProvider interface {
	Download(ctx context.Context, symbols []string, period, interval string) (PriceTable, error)
	Info(ctx context.Context, symbol string) (string, error)
}

// SearchResult is one web search hit
type SearchResult struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// SearchOptions narrows a web search
type SearchOptions struct {
	Region     string
	SafeSearch string
	TimeLimit  string
	MaxResults int
}

// WebSearcher runs one query against a search provider
type WebSearcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// VectorIndex answers similarity queries over indexed documents
type VectorIndex interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]Document, error)
}

// IndexBuilder builds a VectorIndex from documents
type IndexBuilder interface {
	FromDocuments(ctx context.Context, docs []Document) (VectorIndex, error)
}
