package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/finadvisor/internal/brain"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/conversation"
	"github.com/wonny/finadvisor/internal/external/crossencoder"
	"github.com/wonny/finadvisor/internal/external/duckduckgo"
	"github.com/wonny/finadvisor/internal/external/openai"
	"github.com/wonny/finadvisor/internal/external/yahoo"
	"github.com/wonny/finadvisor/internal/metrics"
	"github.com/wonny/finadvisor/internal/promptconfig"
	"github.com/wonny/finadvisor/internal/rerank"
	"github.com/wonny/finadvisor/internal/retrieval"
	"github.com/wonny/finadvisor/internal/session"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/database"
	"github.com/wonny/finadvisor/pkg/httputil"
	"github.com/wonny/finadvisor/pkg/logger"
	"github.com/wonny/finadvisor/pkg/redis"
)

// app holds the wired components shared by commands
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	redis   *redis.Client
	db      *database.DB

	market       *retrieval.MarketRetriever
	ranker       *rerank.Ranker
	orchestrator *brain.Orchestrator
	conversation *conversation.Service
}

// appOptions selects which parts a command needs
type appOptions struct {
	database bool // open the pgx pool and build the conversation service
	pipeline bool // build model clients and the orchestrator
}

// newApp loads config and wires the requested components
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	a := &app{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	// 3. Redis (disabled client when REDIS_ENABLED=false)
	a.redis, err = redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		a.redis = redis.Disabled()
	}

	if opts.pipeline {
		if err := a.wirePipeline(); err != nil {
			a.close()
			return nil, err
		}
	}

	if opts.database {
		a.db, err = database.New(ctx, cfg)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		log.Info("Connected to database")

		var runner conversation.Runner
		if a.orchestrator != nil {
			runner = a.orchestrator
		}
		a.conversation = conversation.NewService(
			session.NewUserRepository(a.db.Pool),
			session.NewSessionRepository(a.db.Pool),
			runner,
			log,
		)
	}

	return a, nil
}

// wirePipeline builds providers, retrievers, the ranker and the orchestrator
func (a *app) wirePipeline() error {
	cfg, log := a.cfg, a.log

	cache := redis.NewCache(a.redis, "advisor")
	limiter := redis.NewRateLimiter(a.redis, "advisor")

	// Model
	model, err := openai.New(cfg.LLM, limiter, log)
	if err != nil {
		return fmt.Errorf("create model client: %w", err)
	}

	// Providers
	marketHTTP := httputil.New(log, 30*time.Second)
	quotes := yahoo.NewClient(marketHTTP, cache, cfg.Market.BaseURL, cfg.Market.CacheTTL, log)

	searchHTTP := httputil.New(log, 30*time.Second).WithThrottle(cfg.Search.RatePerSecond)
	search := duckduckgo.NewClient(searchHTTP, cache, cfg.Search.BaseURL, cfg.Search.CacheTTL, log)

	var scorer contracts.Scorer
	if cfg.CrossEncoder.Enabled && cfg.CrossEncoder.URL != "" {
		scorerHTTP := httputil.New(log, 20*time.Second).WithRetry(1, 200*time.Millisecond)
		scorer = crossencoder.NewClient(scorerHTTP, cfg.CrossEncoder.URL, cfg.CrossEncoder.ModelName, log)
	} else {
		log.Info("Cross-encoder scorer not configured, reranking passes documents through")
	}
	a.ranker = rerank.New(scorer, cfg.CrossEncoder, log, a.metrics)

	// Retrievers
	a.market = retrieval.NewMarketRetriever(model, quotes, cfg.Market, log)
	web := retrieval.NewWebRetriever(model, search, cfg.Search, log)
	topic := retrieval.NewTopicSearcher(
		web,
		retrieval.MemoryIndexBuilder{Embedder: model},
		a.ranker,
		cfg.CrossEncoder.MaxDocuments,
		cfg.Search.PreferredSources,
		log,
	)

	prompts, err := loadPrompts(cfg.Pipeline.PromptsFile, log)
	if err != nil {
		return err
	}

	// Orchestrator
	a.orchestrator = brain.NewOrchestrator(brain.DefaultStages{
		Model:    model,
		Market:   a.market.Retrieve,
		Topic:    topic.Search,
		Pipeline: cfg.Pipeline,
		Prompts:  prompts,
		Logger:   log,
		Metrics:  a.metrics,
	}, log, a.metrics)

	return nil
}

// loadPrompts reads the optional prompt set; an empty path keeps built-in prompts
func loadPrompts(path string, log *logger.Logger) (*promptconfig.Config, error) {
	if path == "" {
		return nil, nil
	}

	prompts, _, err := promptconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load prompt set %s: %w", path, err)
	}
	for _, w := range promptconfig.Warn(prompts) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	snap, err := promptconfig.NewSnapshot(prompts)
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{
		"prompt_set": snap.PromptSetID,
		"version":    snap.Version,
		"hash":       snap.ConfigHash,
	}).Info("Loaded prompt set")

	return prompts, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
