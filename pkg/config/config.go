package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the advisor
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	Database     DatabaseConfig
	Redis        RedisConfig
	LLM          LLMConfig
	CrossEncoder CrossEncoderConfig
	Search       SearchConfig
	Market       MarketConfig
	Pipeline     PipelineConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool

	// WarmupSchedule is a six-field cron expression for the macro quote warm-up job.
	WarmupSchedule string

	// Warnings collects values that were invalid and replaced by defaults.
	Warnings []string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// LLM providers
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

// LLMConfig holds generative and embedding model configuration
type LLMConfig struct {
	Provider       string // azure, openai
	APIKey         string
	BaseURL        string // azure endpoint or openai-compatible base URL
	APIVersion     string
	Model          string // chat deployment / model name
	EmbeddingModel string
	Temperature    float64
	Timeout        time.Duration
	// RequestsPerMinute bounds outbound model calls across processes (0 = unlimited)
	RequestsPerMinute int
}

// CrossEncoderConfig holds relevance ranker configuration
type CrossEncoderConfig struct {
	ModelName          string
	URL                string
	RelevanceThreshold float64
	MaxDocuments       int
	RerankTopK         int
	Enabled            bool
	CacheModels        bool
}

// SearchConfig holds web search configuration
type SearchConfig struct {
	BaseURL          string
	Region           string
	SafeSearch       string
	TimeLimit        string
	MaxResults       int
	MinContentLength int
	RatePerSecond    float64
	PreferredSources []string
	CacheTTL         time.Duration
}

// MarketConfig holds market data provider configuration
type MarketConfig struct {
	BaseURL  string
	Period   string
	Interval string
	CacheTTL time.Duration
}

// PipelineConfig holds orchestration configuration
type PipelineConfig struct {
	// PlanStages lists stage names that run under plan-and-execute
	PlanStages        []string
	MaxPlanIterations int
	RAGEnabled        bool
	// PromptsFile optionally points at a YAML prompt set overriding stage system prompts
	PromptsFile string
}

// Cross-encoder defaults
const (
	DefaultCrossEncoderModel     = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	DefaultRelevanceThreshold    = 0.8
	FallbackRelevanceThreshold   = 0.6
	DefaultCrossEncoderMaxDocs   = 15
	DefaultCrossEncoderTopK      = 5
	DefaultMaxPlanIterations     = 20
	DefaultSearchMinContentChars = 20
)

// crossEncoderModels maps short aliases to model names
var crossEncoderModels = map[string]string{
	"default":      DefaultCrossEncoderModel,
	"multilingual": "cross-encoder/mmarco-mMiniLMv2-L12-H384-v1",
	"fast":         "cross-encoder/ms-marco-TinyBERT-L-2-v2",
	"accurate":     "cross-encoder/ms-marco-MiniLM-L-12-v2",
}

// ResolveCrossEncoderModel returns the model name for an alias, or name itself
func ResolveCrossEncoderModel(name string) string {
	if m, ok := crossEncoderModels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m
	}
	return name
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("API_PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		LLM: LLMConfig{
			Provider:          strings.ToLower(getEnv("LLM_PROVIDER", ProviderAzure)),
			APIKey:            getEnv("AOAI_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL:           getEnv("AOAI_ENDPOINT", getEnv("OPENAI_BASE_URL", "")),
			APIVersion:        getEnv("AOAI_API_VERSION", "2024-02-01"),
			Model:             getEnv("AOAI_DEPLOY_GPT5_MINI", getEnv("LLM_MODEL", "gpt-4o-mini")),
			EmbeddingModel:    getEnv("AOAI_DEPLOY_EMBED_3_SMALL", getEnv("EMBEDDING_MODEL", "text-embedding-3-small")),
			Temperature:       getEnvAsFloat("LLM_TEMPERATURE", 0.7),
			Timeout:           getEnvAsDuration("LLM_TIMEOUT", "120s"),
			RequestsPerMinute: getEnvAsInt("LLM_REQUESTS_PER_MINUTE", 0),
		},

		CrossEncoder: CrossEncoderConfig{
			ModelName:          ResolveCrossEncoderModel(getEnv("CROSS_ENCODER_MODEL", DefaultCrossEncoderModel)),
			URL:                getEnv("CROSS_ENCODER_URL", ""),
			RelevanceThreshold: getEnvAsFloat("CROSS_ENCODER_THRESHOLD", DefaultRelevanceThreshold),
			MaxDocuments:       getEnvAsInt("CROSS_ENCODER_MAX_DOCS", DefaultCrossEncoderMaxDocs),
			RerankTopK:         getEnvAsInt("CROSS_ENCODER_TOP_K", DefaultCrossEncoderTopK),
			Enabled:            getEnvAsBool("USE_CROSS_ENCODER", true),
			CacheModels:        getEnvAsBool("CACHE_CROSS_ENCODER_MODELS", true),
		},

		Search: SearchConfig{
			BaseURL:          getEnv("SEARCH_BASE_URL", "https://html.duckduckgo.com"),
			Region:           getEnv("SEARCH_REGION", "ko"),
			SafeSearch:       getEnv("SEARCH_SAFESEARCH", "moderate"),
			TimeLimit:        getEnv("SEARCH_TIMELIMIT", "y"),
			MaxResults:       getEnvAsInt("SEARCH_MAX_RESULTS", 5),
			MinContentLength: getEnvAsInt("SEARCH_MIN_CONTENT_LENGTH", DefaultSearchMinContentChars),
			RatePerSecond:    getEnvAsFloat("SEARCH_RATE_PER_SEC", 1),
			PreferredSources: getEnvAsList("SEARCH_PREFERRED_SOURCES",
				"reuters.com,bloomberg.com,wsj.com,ft.com,cnbc.com,hankyung.com,mk.co.kr,yna.co.kr"),
			CacheTTL: getEnvAsDuration("SEARCH_CACHE_TTL", "30m"),
		},

		Market: MarketConfig{
			BaseURL:  getEnv("MARKET_BASE_URL", "https://query1.finance.yahoo.com"),
			Period:   getEnv("MARKET_PERIOD", "2mo"),
			Interval: getEnv("MARKET_INTERVAL", "1d"),
			CacheTTL: getEnvAsDuration("MARKET_CACHE_TTL", "5m"),
		},

		Pipeline: PipelineConfig{
			PlanStages:        getEnvAsList("PLAN_STAGES", ""),
			MaxPlanIterations: getEnvAsInt("PLAN_MAX_ITERATIONS", DefaultMaxPlanIterations),
			RAGEnabled:        getEnvAsBool("RAG_ENABLED", true),
			PromptsFile:       getEnv("PROMPTS_FILE", ""),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		WarmupSchedule: getEnv("WARMUP_SCHEDULE", "0 */10 * * * *"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate rejects unusable values and replaces out-of-range tuning values with defaults
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.LLM.Provider != ProviderAzure && c.LLM.Provider != ProviderOpenAI {
		return fmt.Errorf("LLM_PROVIDER must be one of: %s, %s", ProviderAzure, ProviderOpenAI)
	}

	c.CrossEncoder.normalize(c)

	if c.Pipeline.MaxPlanIterations <= 0 {
		c.warn("PLAN_MAX_ITERATIONS must be positive, using %d", DefaultMaxPlanIterations)
		c.Pipeline.MaxPlanIterations = DefaultMaxPlanIterations
	}
	if c.Search.MaxResults <= 0 {
		c.warn("SEARCH_MAX_RESULTS must be positive, using 5")
		c.Search.MaxResults = 5
	}
	if c.Search.MinContentLength < 0 {
		c.Search.MinContentLength = 0
	}

	return nil
}

func (cc *CrossEncoderConfig) normalize(c *Config) {
	if cc.RelevanceThreshold < 0 || cc.RelevanceThreshold > 1 {
		c.warn("CROSS_ENCODER_THRESHOLD %.2f out of range [0,1], using %.1f",
			cc.RelevanceThreshold, FallbackRelevanceThreshold)
		cc.RelevanceThreshold = FallbackRelevanceThreshold
	}
	if cc.MaxDocuments <= 0 {
		c.warn("CROSS_ENCODER_MAX_DOCS must be positive, using %d", DefaultCrossEncoderMaxDocs)
		cc.MaxDocuments = DefaultCrossEncoderMaxDocs
	}
	if cc.RerankTopK <= 0 {
		c.warn("CROSS_ENCODER_TOP_K must be positive, using %d", DefaultCrossEncoderTopK)
		cc.RerankTopK = DefaultCrossEncoderTopK
	}
	if cc.ModelName == "" {
		cc.ModelName = DefaultCrossEncoderModel
	}
}

func (c *Config) warn(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// PlanEnabled reports whether the named stage runs under plan-and-execute
func (c *Config) PlanEnabled(stage string) bool {
	return c.Pipeline.PlanEnabled(stage)
}

// PlanEnabled reports whether the named stage is listed in PlanStages
func (p PipelineConfig) PlanEnabled(stage string) bool {
	for _, s := range p.PlanStages {
		if strings.EqualFold(strings.TrimSpace(s), stage) {
			return true
		}
	}
	return false
}

// Addr returns host:port for the redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
