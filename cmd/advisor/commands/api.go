package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/finadvisor/internal/api"
	"github.com/wonny/finadvisor/internal/api/handlers"
	"github.com/wonny/finadvisor/internal/session"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET    /health                          - Health check
  GET    /metrics                         - Prometheus metrics
  POST   /api/users                       - 사용자 생성/수정
  GET    /api/users?name=                 - 사용자 조회
  POST   /api/conversations               - 대화 시작
  GET    /api/conversations/{id}/stream   - 단계별 결과 (WebSocket)
  GET    /api/users/{id}/sessions         - 대화 이력
  GET    /api/sessions/{id}               - 저장된 최종 상태
  DELETE /api/sessions/{id}               - 대화 삭제
  GET    /api/rerank/info                 - 재순위 모델 정보

Example:
  go run ./cmd/advisor api
  go run ./cmd/advisor api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default API_PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== finadvisor API Server ===")

	ctx := context.Background()

	a, err := newApp(ctx, appOptions{pipeline: true, database: true})
	if err != nil {
		return err
	}
	defer a.close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	if err := session.EnsureSchema(ctx, a.db.Pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	h := api.Handlers{
		Conversation: handlers.NewConversationHandler(a.conversation, a.cfg.Pipeline.RAGEnabled, a.log),
		Rerank:       handlers.NewRerankHandler(a.ranker),
	}
	if a.metrics != nil {
		h.Metrics = a.metrics.Handler()
	}

	h.Health = map[string]api.HealthFunc{
		"database": a.db.Ping,
		"redis":    a.redis.Ping,
	}

	server := api.New(a.cfg.Port, a.log, api.NewRouter(h, a.log))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	return server.Run(ctx)
}
