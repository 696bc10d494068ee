package commands

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/finadvisor/internal/brain"
	"github.com/wonny/finadvisor/internal/contracts"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "파이프라인 1회 실행",
	Long: `투자 주제에 대해 4단계 파이프라인을 실행하고 단계별 결과를 출력합니다.

프로필 지정 방법:
  --name            저장된 사용자의 자본금/위험성향 사용 (DB 필요)
  --capital --risk  직접 지정

--save 는 --name 과 함께 사용하며 세션과 최종 상태를 DB에 저장합니다.

Example:
  go run ./cmd/advisor run --topic "반도체 산업 전망" --capital 1000 --risk 3
  go run ./cmd/advisor run --topic "2차전지" --name kim --save
  go run ./cmd/advisor run --topic "금리 인하" --capital 500 --risk 1 --no-rag`,
	RunE: runPipeline,
}

var (
	runTopic   string
	runName    string
	runCapital float64
	runRisk    int
	runNoRAG   bool
	runSave    bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runTopic, "topic", "", "투자 주제 (required)")
	runCmd.Flags().StringVar(&runName, "name", "", "저장된 사용자 이름")
	runCmd.Flags().Float64Var(&runCapital, "capital", 0, "자본금 (만원)")
	runCmd.Flags().IntVar(&runRisk, "risk", 0, "위험성향 1-5")
	runCmd.Flags().BoolVar(&runNoRAG, "no-rag", false, "외부 근거 검색 비활성화")
	runCmd.Flags().BoolVar(&runSave, "save", false, "세션과 결과를 DB에 저장")
	_ = runCmd.MarkFlagRequired("topic")
	runCmd.MarkFlagsMutuallyExclusive("name", "capital")
	runCmd.MarkFlagsMutuallyExclusive("name", "risk")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if runSave && runName == "" {
		return errors.New("--save requires --name")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{pipeline: true, database: runName != ""})
	if err != nil {
		return err
	}
	defer a.close()

	augment := a.cfg.Pipeline.RAGEnabled && !runNoRAG

	var (
		profile contracts.ChatProfile
		updates iter.Seq2[brain.Update, error]
	)

	switch {
	case runSave:
		sess, p, err := a.conversation.Start(ctx, runName, runTopic)
		if err != nil {
			return err
		}
		profile = p
		updates = a.conversation.Stream(ctx, sess, profile, augment)
		fmt.Printf("Session #%d\n", sess.ID)

	case runName != "":
		user, err := a.conversation.LoadUser(ctx, runName)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		profile = user.Profile(runTopic)
		updates = a.orchestrator.Run(ctx, brain.RunConfig{Profile: profile, Augment: augment})

	default:
		profile = contracts.ChatProfile{Topic: runTopic, Capital: runCapital, RiskLevel: runRisk}
		if err := profile.Validate(); err != nil {
			return err
		}
		updates = a.orchestrator.Run(ctx, brain.RunConfig{Profile: profile, Augment: augment})
	}

	PrintRunHeader(profile, augment)

	start := time.Now()
	runID := ""
	completed := 0
	for update, err := range updates {
		if err != nil {
			PrintError(update.Stage, err)
			return err
		}
		runID = update.RunID
		completed++
		PrintStage(update)
	}

	PrintCompletion(runID, completed, time.Since(start))
	return nil
}
