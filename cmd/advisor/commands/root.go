package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "finadvisor - AI 투자 자문 파이프라인",
	Long: `finadvisor Unified CLI

투자 주제에 대해 4단계 에이전트 파이프라인을 실행합니다.
시장 데이터 → 정보 검색 → 분석 → 포트폴리오

Usage:
  go run ./cmd/advisor [command]

Examples:
  go run ./cmd/advisor run --topic "반도체 산업 전망" --capital 1000 --risk 3
  go run ./cmd/advisor api
  go run ./cmd/advisor history list 1
  go run ./cmd/advisor migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs)")
}
