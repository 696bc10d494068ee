package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// userCmd represents the user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "사용자 관리",
	Long: `사용자 정보를 저장하거나 조회합니다.
이름이 이미 있으면 자본금과 위험성향을 갱신합니다.

Example:
  go run ./cmd/advisor user create --name kim --capital 1000 --risk 3
  go run ./cmd/advisor user update --name kim --capital 2000 --risk 4
  go run ./cmd/advisor user show --name kim`,
}

var (
	userName    string
	userCapital int64
	userRisk    int
)

var (
	userCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "사용자 생성",
		RunE:  saveUser,
	}

	userUpdateCmd = &cobra.Command{
		Use:   "update",
		Short: "자본금/위험성향 갱신",
		RunE:  saveUser,
	}

	userShowCmd = &cobra.Command{
		Use:   "show",
		Short: "사용자 조회",
		RunE:  showUser,
	}
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userUpdateCmd)
	userCmd.AddCommand(userShowCmd)

	userCmd.PersistentFlags().StringVar(&userName, "name", "", "사용자 이름 (required)")
	for _, c := range []*cobra.Command{userCreateCmd, userUpdateCmd} {
		c.Flags().Int64Var(&userCapital, "capital", 0, "자본금 (만원)")
		c.Flags().IntVar(&userRisk, "risk", 0, "위험성향 1-5")
		_ = c.MarkFlagRequired("capital")
		_ = c.MarkFlagRequired("risk")
	}
	_ = userCmd.MarkPersistentFlagRequired("name")
}

func saveUser(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.close()

	user, err := a.conversation.SaveUser(ctx, userName, userCapital, userRisk)
	if err != nil {
		return err
	}

	fmt.Println("✅ User saved")
	PrintUser(user)
	return nil
}

func showUser(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx, appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.close()

	user, err := a.conversation.LoadUser(ctx, userName)
	if err != nil {
		return err
	}

	PrintUser(user)
	return nil
}
