package retrieval

import (
	"context"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/evidence"
	"github.com/wonny/finadvisor/internal/rerank"
	"github.com/wonny/finadvisor/pkg/logger"
)

// fallbackHits is how many similarity hits survive when the ranker keeps nothing
const fallbackHits = 5

// TopicSearcher is the Retrieve stage evidence path:
// queries → web documents → vector index → similarity → source priority → rerank
type TopicSearcher struct {
	web       *WebRetriever
	builder   contracts.IndexBuilder
	ranker    *rerank.Ranker
	k         int
	preferred []string
	logger    *logger.Logger
}

// NewTopicSearcher creates a topic searcher. k is the similarity search depth.
func NewTopicSearcher(web *WebRetriever, builder contracts.IndexBuilder, ranker *rerank.Ranker, k int, preferred []string, log *logger.Logger) *TopicSearcher {
	if k <= 0 {
		k = fallbackHits
	}
	return &TopicSearcher{web: web, builder: builder, ranker: ranker, k: k, preferred: preferred, logger: log}
}

// Search returns ranked evidence for the profile topic. Only query generation
// can fail; index and similarity failures yield an empty list.
func (s *TopicSearcher) Search(ctx context.Context, profile contracts.ChatProfile) ([]contracts.Document, error) {
	queries, err := s.web.Queries(ctx, profile)
	if err != nil {
		return nil, err
	}

	docs := s.web.Documents(ctx, queries)

	index, err := s.builder.FromDocuments(ctx, docs)
	if err != nil {
		s.logger.WithError(err).WithField("documents", len(docs)).Warn("Vector index build failed")
		return []contracts.Document{}, nil
	}

	hits, err := index.SimilaritySearch(ctx, profile.Topic, s.k)
	if err != nil {
		s.logger.WithError(err).Warn("Similarity search failed")
		return []contracts.Document{}, nil
	}

	hits = evidence.PrioritizeSources(hits, s.preferred)

	scored := s.ranker.RerankDefault(ctx, profile.Topic, hits)
	if len(scored) == 0 {
		s.logger.WithField("hits", len(hits)).Info("Nothing passed the relevance threshold, keeping top similarity hits")
		if len(hits) > fallbackHits {
			hits = hits[:fallbackHits]
		}
		return hits, nil
	}

	return rerank.Documents(scored), nil
}
