package commands

import (
	"fmt"
	"time"

	"github.com/wonny/finadvisor/internal/brain"
	"github.com/wonny/finadvisor/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	heavyRule = "═══════════════════════════════════════════════════════════"
	lightRule = "───────────────────────────────────────────────────────────"
)

// PrintRunHeader prints the profile a run starts from
func PrintRunHeader(profile contracts.ChatProfile, augment bool) {
	fmt.Println()
	fmt.Println(heavyRule)
	fmt.Printf("  %s\n", profile.Topic)
	fmt.Println(lightRule)
	if profile.UserName != "" {
		fmt.Printf("  User      : %s\n", profile.UserName)
	}
	fmt.Printf("  Capital   : %s만원\n", profile.CapitalText())
	fmt.Printf("  Risk      : %d (1=보수적, 5=공격적)\n", profile.RiskLevel)
	fmt.Printf("  RAG       : %t\n", augment)
	fmt.Println(heavyRule)
}

// PrintStage prints one completed stage result
func PrintStage(u brain.Update) {
	fmt.Println()
	fmt.Printf("[%s] %s\n", u.Stage.DisplayName(), u.Stage.String())
	fmt.Println(lightRule)
	if u.State != nil {
		fmt.Println(u.State.Result(u.Stage))
	}
}

// PrintState prints all four result slots of a decoded state
func PrintState(st *contracts.PipelineState) {
	PrintRunHeader(st.Chat, len(st.MarketDataDocs)+len(st.RetrieveDocs) > 0)
	for _, stage := range contracts.AllStages() {
		PrintStage(brain.Update{Stage: stage, State: st})
	}
	fmt.Println()
	fmt.Printf("  Evidence  : 시장 데이터 %d건, 검색 결과 %d건\n", len(st.MarketDataDocs), len(st.RetrieveDocs))
}

// PrintCompletion prints the run footer
func PrintCompletion(runID string, stages int, duration time.Duration) {
	fmt.Println()
	fmt.Println(heavyRule)
	fmt.Printf("✅ Run %s completed: %d stages in %.2fs\n", runID, stages, duration.Seconds())
}

// PrintError prints error message
func PrintError(stage contracts.Stage, err error) {
	fmt.Println()
	fmt.Printf("❌ %s: %v\n", stage.DisplayName(), err)
}

// PrintSessions prints a session list
func PrintSessions(sessions []contracts.Session) {
	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return
	}
	fmt.Printf("%-8s %-20s %-10s %-5s %s\n", "ID", "AUDIT", "CAPITAL", "RISK", "TOPIC")
	for _, s := range sessions {
		fmt.Printf("%-8d %-20s %-10d %-5d %s\n",
			s.ID, s.AuditAt.Format("2006-01-02 15:04:05"), s.Capital, s.RiskLevel, s.Topic)
	}
}

// PrintUser prints a user record
func PrintUser(u *contracts.User) {
	fmt.Printf("  ID        : %d\n", u.ID)
	fmt.Printf("  Name      : %s\n", u.Name)
	fmt.Printf("  Capital   : %d만원\n", u.Capital)
	fmt.Printf("  Risk      : %d\n", u.RiskLevel)
}
