package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/finadvisor/internal/session"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마 생성",
	Long: `users, sessions, session_details 테이블을 생성합니다.
이미 있는 테이블은 그대로 둡니다.

Example:
  go run ./cmd/advisor migrate
  go run ./cmd/advisor migrate --print`,
	RunE: runMigrate,
}

var migratePrint bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "DDL만 출력")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePrint {
		fmt.Println(session.Schema())
		return nil
	}

	ctx := context.Background()
	a, err := newApp(ctx, appOptions{database: true})
	if err != nil {
		return err
	}
	defer a.close()

	if err := session.EnsureSchema(ctx, a.db.Pool); err != nil {
		return err
	}

	a.log.Info("Schema applied")
	fmt.Println("✅ Schema applied")
	return nil
}
