package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	go_openai "github.com/sashabaranov/go-openai"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
	"github.com/wonny/finadvisor/pkg/redis"
)

// ErrEmptyReply is returned when the model answers without any choice
var ErrEmptyReply = errors.New("model returned no choices")

// Client wraps the chat completion and embedding endpoints
// ⭐ SSOT: 생성 모델 / 임베딩 모델 호출은 이 클라이언트에서만
type Client struct {
	api            *go_openai.Client
	model          string
	embeddingModel string
	temperature    float32
	limiter        *redis.RateLimiter
	rateLimit      redis.RateLimitConfig
	logger         *logger.Logger
}

// New creates a model client for an Azure deployment or an OpenAI-compatible endpoint.
// limiter may be nil.
func New(cfg config.LLMConfig, limiter *redis.RateLimiter, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}

	clientCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		api:            go_openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    float32(cfg.Temperature),
		limiter:        limiter,
		rateLimit:      redis.LLMRateLimit(cfg.RequestsPerMinute),
		logger:         log,
	}, nil
}

func clientConfig(cfg config.LLMConfig) (go_openai.ClientConfig, error) {
	var clientCfg go_openai.ClientConfig

	switch cfg.Provider {
	case config.ProviderAzure:
		if cfg.BaseURL == "" {
			return clientCfg, fmt.Errorf("openai: azure endpoint is required")
		}
		clientCfg = go_openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		// 배포 이름을 그대로 사용
		clientCfg.AzureModelMapperFunc = func(model string) string { return model }
	case config.ProviderOpenAI, "":
		clientCfg = go_openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
	default:
		return clientCfg, fmt.Errorf("openai: unsupported provider %q", cfg.Provider)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return clientCfg, nil
}

// Invoke sends the messages and returns the reply text
func (c *Client) Invoke(ctx context.Context, messages []contracts.Message) (string, error) {
	return c.complete(ctx, messages, nil)
}

// InvokeJSON asks for a JSON object reply and returns its raw text
func (c *Client) InvokeJSON(ctx context.Context, messages []contracts.Message) (string, error) {
	return c.complete(ctx, messages, &go_openai.ChatCompletionResponseFormat{
		Type: go_openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (c *Client) complete(ctx context.Context, messages []contracts.Message, format *go_openai.ChatCompletionResponseFormat) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       toOpenAIMessages(messages),
		Temperature:    c.temperature,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}

	c.logger.WithFields(map[string]interface{}{
		"model":             c.model,
		"messages":          len(messages),
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Debug("Chat completion")

	return resp.Choices[0].Message.Content, nil
}

// Embed returns one vector per input text, in input order
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateEmbeddings(ctx, go_openai.EmbeddingRequest{
		Input: texts,
		Model: go_openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, c.rateLimit); err != nil {
		return fmt.Errorf("llm rate limit: %w", err)
	}
	return nil
}

func toOpenAIMessages(messages []contracts.Message) []go_openai.ChatCompletionMessage {
	out := make([]go_openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = go_openai.ChatCompletionMessage{Role: roleOf(m.Role), Content: m.Content}
	}
	return out
}

func roleOf(r contracts.Role) string {
	switch r {
	case contracts.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	case contracts.RoleAI:
		return go_openai.ChatMessageRoleAssistant
	default:
		return go_openai.ChatMessageRoleUser
	}
}
