package contracts

import (
	"fmt"
	"strings"
)

// Pipeline Stage 정의 (SSOT)
// 모든 로그, 스트림 이벤트, 직렬화된 상태에서 이 상수를 사용해야 함
//
// 파이프라인 흐름:
//   MarketData → Retrieve → Analysis → Portfolio

// Stage identifies one of the four fixed pipeline stages.
// The numeric value is persisted as agent_id.
type Stage int

const (
	// StageUnset 아직 어떤 스테이지도 실행되지 않음
	StageUnset Stage = iota

	// StageMarketData 1: 시세/거시지표 요약
	// 위치: internal/agent/stages.go
	StageMarketData

	// StageRetrieve 2: 뉴스/리포트 검색 요약
	// 위치: internal/agent/stages.go
	StageRetrieve

	// StageAnalysis 3: 시장 데이터 + 검색 결과 종합 분석
	// 위치: internal/agent/stages.go
	StageAnalysis

	// StagePortfolio 4: 시나리오별 자산배분
	// 위치: internal/agent/stages.go
	StagePortfolio
)

// String returns the stage name used in config and logs
func (s Stage) String() string {
	switch s {
	case StageMarketData:
		return "market_data"
	case StageRetrieve:
		return "retrieve"
	case StageAnalysis:
		return "analysis"
	case StagePortfolio:
		return "portfolio"
	case StageUnset:
		return "unset"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// DisplayName returns the Korean label shown to users
func (s Stage) DisplayName() string {
	switch s {
	case StageMarketData:
		return "시장 데이터"
	case StageRetrieve:
		return "정보 검색"
	case StageAnalysis:
		return "분석"
	case StagePortfolio:
		return "포트폴리오"
	default:
		return "알 수 없음"
	}
}

// AgentName returns the role name used when addressing the model
func (s Stage) AgentName() string {
	switch s {
	case StageMarketData:
		return "MarketDataAgent"
	case StageRetrieve:
		return "RetrieveAgent"
	case StageAnalysis:
		return "AnalysisAgent"
	case StagePortfolio:
		return "PortfolioAgent"
	default:
		return "Agent"
	}
}

// Valid reports whether s is one of the four pipeline stages
func (s Stage) Valid() bool {
	return s >= StageMarketData && s <= StagePortfolio
}

// Slot returns the result slot owned by this stage, or nil for an invalid stage
func (s Stage) Slot(st *PipelineState) *string {
	switch s {
	case StageMarketData:
		return &st.MarketDataResponse
	case StageRetrieve:
		return &st.RetrieveResponse
	case StageAnalysis:
		return &st.AnalysisResponse
	case StagePortfolio:
		return &st.PortfolioResponse
	default:
		return nil
	}
}

// ParseStage accepts a stage name such as "market_data" or "MarketData"
func ParseStage(name string) (Stage, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "-", "_"))
	switch normalized {
	case "market_data", "marketdata":
		return StageMarketData, nil
	case "retrieve":
		return StageRetrieve, nil
	case "analysis":
		return StageAnalysis, nil
	case "portfolio":
		return StagePortfolio, nil
	default:
		return StageUnset, fmt.Errorf("unknown stage %q", name)
	}
}

// AllStages returns all pipeline stages in execution order
func AllStages() []Stage {
	return []Stage{
		StageMarketData,
		StageRetrieve,
		StageAnalysis,
		StagePortfolio,
	}
}
