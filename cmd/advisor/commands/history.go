package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "대화 이력 관리",
	Long: `저장된 대화 이력을 조회하거나 삭제합니다.

Subcommands:
  list   [user_id]     - 사용자의 세션 목록
  show   [session_id]  - 저장된 최종 상태 출력
  delete [session_id]  - 세션과 상세 삭제

Example:
  go run ./cmd/advisor history list 1
  go run ./cmd/advisor history show 12`,
}

var (
	historyListCmd = &cobra.Command{
		Use:   "list [user_id]",
		Short: "세션 목록",
		Args:  cobra.ExactArgs(1),
		RunE:  listHistory,
	}

	historyShowCmd = &cobra.Command{
		Use:   "show [session_id]",
		Short: "세션 상세",
		Args:  cobra.ExactArgs(1),
		RunE:  showHistory,
	}

	historyDeleteCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "세션 삭제",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteHistory,
	}
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func listHistory(cmd *cobra.Command, args []string) error {
	userID, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := a.conversation.History(ctx, userID)
	if err != nil {
		return err
	}

	PrintSessions(sessions)
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	sessionID, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.conversation.Detail(ctx, sessionID)
	if err != nil {
		return err
	}

	PrintState(st)
	return nil
}

func deleteHistory(cmd *cobra.Command, args []string) error {
	sessionID, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.close()

	deleted, err := a.conversation.Delete(ctx, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		fmt.Printf("Session #%d not found\n", sessionID)
		return nil
	}

	fmt.Printf("✅ Session #%d deleted\n", sessionID)
	return nil
}
