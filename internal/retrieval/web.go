package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

// QueryCount is how many search queries the model is asked to write
const QueryCount = 3

const querySystemPrompt = "You are an expert financial search query designer. " +
	"Your job is to craft concise, high-signal queries that surface reliable and up-to-date " +
	"financial market/news data. Adhere strictly to the output rules. Do not add explanations."

// WebRetriever turns a profile into search queries and search hits into documents
type WebRetriever struct {
	model    contracts.ChatModel
	searcher contracts.WebSearcher
	cfg      config.SearchConfig
	logger   *logger.Logger
}

// NewWebRetriever creates a new web retriever
func NewWebRetriever(model contracts.ChatModel, searcher contracts.WebSearcher, cfg config.SearchConfig, log *logger.Logger) *WebRetriever {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &WebRetriever{model: model, searcher: searcher, cfg: cfg, logger: log}
}

// Queries asks the model for short search queries
func (r *WebRetriever) Queries(ctx context.Context, profile contracts.ChatProfile) ([]string, error) {
	user := fmt.Sprintf(
		"For the topic '%s', considering capital %s (KRW, 만원 unit) "+
			"and risk level %d (1=conservative, 5=aggressive), "+
			"propose exactly 3 high-signal web search queries to retrieve timely and reliable "+
			"financial news/reports.\n"+
			"Constraints:\n"+
			"- Each query must be <= 25 characters (including spaces).\n"+
			"- Return a single line with 3 queries, comma-separated. Do NOT add any explanation or extra text.\n"+
			"- Prefer authoritative sources and recent information (last 90 days) where possible.\n"+
			"- Use English keywords; include relevant tickers/indexes when appropriate (e.g., NVDA, ^GSPC, 005930.KS, USDKRW=X).\n"+
			"- Exclude low-signal Korean portals/forums using operators: "+
			"-site:blog.naver.com -site:stock.naver.com -site:cafe.naver.com -site:naver.com -site:dcinside.com\n"+
			"- Consider helpful operators when relevant: quotes, AND/OR, site:, intitle:, filetype:pdf.\n"+
			"Output format (exactly one line): <query1>, <query2>, <query3>",
		profile.Topic, profile.CapitalText(), profile.RiskLevel,
	)

	reply, err := r.model.Invoke(ctx, []contracts.Message{
		contracts.SystemMessage(querySystemPrompt),
		contracts.HumanMessage(user),
	})
	if err != nil {
		return nil, fmt.Errorf("generate search queries: %w", err)
	}

	queries := splitList(reply, QueryCount)
	r.logger.WithFields(map[string]interface{}{
		"topic":   profile.Topic,
		"queries": queries,
	}).Info("Generated search queries")
	return queries, nil
}

// Documents runs every query and wraps hits with enough body text.
// A failing query is logged and skipped.
func (r *WebRetriever) Documents(ctx context.Context, queries []string) []contracts.Document {
	opts := contracts.SearchOptions{
		Region:     r.cfg.Region,
		SafeSearch: r.cfg.SafeSearch,
		TimeLimit:  r.cfg.TimeLimit,
		MaxResults: r.cfg.MaxResults,
	}

	var docs []contracts.Document
	for _, q := range queries {
		results, err := r.searcher.Search(ctx, q, opts)
		if err != nil {
			r.logger.WithError(err).WithField("query", q).Warn("Search failed")
			continue
		}

		for _, res := range results {
			body := strings.TrimSpace(res.Body)
			if body == "" || utf8.RuneCountInString(body) < r.cfg.MinContentLength {
				continue
			}
			docs = append(docs, contracts.Document{
				Content: body,
				Metadata: map[string]any{
					contracts.MetaSource:  res.URL,
					contracts.MetaSection: "content",
					"topic":               res.Title,
					"query":               q,
				},
			})
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"queries":   len(queries),
		"documents": len(docs),
	}).Debug("Collected web documents")
	return docs
}
