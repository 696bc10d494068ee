package agent

import (
	"context"
	"fmt"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/evidence"
)

// profileBlock opens every user prompt
func profileBlock(p contracts.ChatProfile) string {
	return fmt.Sprintf("사용자 프로필:\n- 주제: '%s'\n- 자본금: %s만원\n- 위험성향: %d (1=보수적, 5=공격적)\n\n",
		p.Topic, p.CapitalText(), p.RiskLevel)
}

// evidenceContext formats documents fetched by src
func evidenceContext(src EvidenceFunc) func(context.Context, *contracts.PipelineState) (string, []contracts.Document, error) {
	return func(ctx context.Context, st *contracts.PipelineState) (string, []contracts.Document, error) {
		docs, err := src(ctx, st.Chat)
		if err != nil {
			return "", nil, err
		}
		if docs == nil {
			docs = []contracts.Document{}
		}
		return evidence.Format(docs), docs, nil
	}
}

// upstreamContext stitches earlier stage outputs into labelled blocks
func upstreamContext(withAnalysis bool) func(context.Context, *contracts.PipelineState) (string, []contracts.Document, error) {
	return func(_ context.Context, st *contracts.PipelineState) (string, []contracts.Document, error) {
		ctx := ""
		if len(st.MarketDataDocs) > 0 {
			ctx += "[시장 데이터]\n" + evidence.Format(st.MarketDataDocs)
		}
		if len(st.RetrieveDocs) > 0 {
			ctx += "\n[검색 결과]\n" + evidence.Format(st.RetrieveDocs)
		}
		if withAnalysis && st.AnalysisResponse != "" {
			ctx += "\n[분석 결과]\n" + evidence.FormatText(st.AnalysisResponse)
		}
		return ctx, nil, nil
	}
}

const marketDataSystemPrompt = "You are the MarketData Agent in an AI financial advisor system. " +
	"You will be given pre-fetched yfinance-based quotes for stocks/ETFs and macro indicators " +
	"(indices, interest rates, FX, commodities) in the message context. " +
	"Transform that raw context into a concise, investor-ready summary.\n" +
	"Rules:\n" +
	"- Always answer in Korean.\n" +
	"- Use only the provided context; do not invent or assume missing data.\n" +
	"- Keep numbers/currencies/percentages exactly as shown; do not re-annualize or guess dates.\n" +
	"- No URLs, no tables, no code blocks, no extra commentary.\n" +
	"- Be neutral and factual; no predictions.\n" +
	"- In '종목 스냅샷' [section: stock], and in '주요 지표 스냅샷' [section: macro]\n" +
	"- Each snapshot should be like '- metadata.ticker(or metadata.indicator) (metadata.name): metadata.price, metadata.change'\n" +
	"Output format:\n" +
	"1) 종목 스냅샷\n" +
	"2) 주요 지표 스냅샷\n" +
	"3) 핵심 코멘트 (2~4문장)\n"

// MarketData summarizes quotes from the market retriever
func MarketData(src EvidenceFunc) Definition {
	return Definition{
		Stage:        contracts.StageMarketData,
		SystemPrompt: marketDataSystemPrompt,
		BuildContext: evidenceContext(src),
		UserPrompt: func(st *contracts.PipelineState) string {
			return profileBlock(st.Chat) +
				"아래는 yfinance 기반으로 수집된 최근 시세/지표 컨텍스트입니다.:\n\n" +
				st.Context + "\n\n" +
				"작성 지침:\n" +
				"- 위 컨텍스트에 포함된 정보만 사용하세요.\n" +
				"- 숫자·통화 단위·등락률 표기를 그대로 유지하세요.\n" +
				"- 소수점이 있다면 2자리까지 표시하세요\n" +
				"- '종목 스냅샷'에는 [section: stock] 항목을, '주요 지표 스냅샷'에는 [section: macro] 항목을 요약하세요.\n" +
				"- 각 스냅샷 항목은 다음 형식을 따르세요: '- TICKER(또는 INDICATOR) (name): 현재가, 변동률'\n" +
				"- 예시) 'SOXX (iShares Semiconductor ETF): 245.32 USD, 변동률: -1.45%'\n" +
				"- 중복 내용은 한 번만 언급하세요. 예측/투자권유는 금지합니다.\n\n" +
				"- 다음 섹션으로 한국어로만 출력하고 각 세부 항목들은 예시의 형식을 꼭 지켜주세요:\n" +
				"1) 종목 스냅샷\n" +
				"2) 주요 지표 스냅샷\n" +
				"3) 핵심 코멘트 (2~4문장)\n"
		},
	}
}

const retrieveSystemPrompt = "You are the Retrieve Agent in an AI financial advisor system. " +
	"Your role is to analyze retrieved financial news and reports " +
	"based on the user's topic, capital, and risk level, and deliver " +
	"a concise, factual summary in Korean. " +
	"Rules:\n" +
	"- Always answer in Korean.\n" +
	"- Summarize only information supported by the retrieved documents.\n" +
	"- Do not fabricate data. If data is missing, clearly state '정보 없음'.\n" +
	"- Highlight key facts, market context, and investor-relevant insights.\n" +
	"- Keep the output compact, structured, and easy to read for a busy investor."

// Retrieve summarizes ranked web evidence from the topic searcher
func Retrieve(src EvidenceFunc) Definition {
	return Definition{
		Stage:        contracts.StageRetrieve,
		SystemPrompt: retrieveSystemPrompt,
		BuildContext: evidenceContext(src),
		UserPrompt: func(st *contracts.PipelineState) string {
			return profileBlock(st.Chat) +
				"다음은 관련 금융 뉴스·리포트 검색 결과입니다:\n\n" +
				st.Context + "\n\n" +
				"Instructions:\n" +
				"- 위 문서들에 근거하여 한국어로 요약하세요.\n" +
				"- 1) 핵심 요약 (3~5문장)\n" +
				"- 2) 주요 데이터 포인트 (불릿)\n" +
				"- 3) 리스크 및 모니터링 포인트 (불릿)\n" +
				"- 문서에 없는 내용은 추가하지 마세요."
		},
	}
}

const analysisSystemPrompt = "You are the Analysis Agent in an AI financial advisor system. " +
	"Synthesize the MarketData Agent's quantitative data and the Retrieve Agent's news/reports " +
	"into decision-focused insights for a Korean investor.\n" +
	"Rules:\n" +
	"- Always answer in Korean.\n" +
	"- Use only information contained in the provided context; do not fabricate missing data.\n" +
	"- Preserve numbers/units/dates as shown; if dates exist, include them (YYYY-MM-DD).\n" +
	"- No investment advice, recommendations, or price targets. Do not predict specific prices.\n" +
	"- No URLs, no tables, no code blocks.\n" +
	"- Avoid generic summaries; focus on why it matters and what could change.\n"

// Analysis synthesizes the market and retrieve evidence
func Analysis() Definition {
	return Definition{
		Stage:        contracts.StageAnalysis,
		SystemPrompt: analysisSystemPrompt,
		BuildContext: upstreamContext(false),
		UserPrompt: func(st *contracts.PipelineState) string {
			return profileBlock(st.Chat) +
				"컨텍스트(두 블록 모두 참고):\n" +
				st.Context + "\n\n" +
				"작성 지침:\n" +
				"- 아래 컨텍스트에 근거한 사실만 사용하세요. 숫자·단위·날짜 표기를 그대로 유지하세요.\n" +
				"- 일반적인 요약은 하지 말고, 투자자 관점에서 '왜 중요한지'와 '무엇이 변곡점이 되는지'에 집중하세요.\n" +
				"- 주장/사실 옆에 근거가 필요한 경우 [문서 N] 형태로 간단히 표기하세요.\n" +
				"- 확률은 정성적 표현(낮음/보통/높음)만 사용하고, 구체적 가격 목표나 매수/매도 권유는 금지합니다.\n\n" +
				"다음 5개 섹션으로 한국어로만 작성하세요:\n" +
				"1) 핵심 인사이트 (항목 3~6개, 각 한두 문장)\n" +
				"2) 촉매·트리거 (조건/이벤트/지표)\n" +
				"3) 시나리오(기준/상향/하향): 조건 중심, 정성적 가능성(낮음/보통/높음)\n" +
				"4) 모니터링 체크리스트 (추적할 지표·일정)\n" +
				"5) 리스크 관리 관점에서 유의할 점 (행동 지시 아님, 고려사항)"
		},
	}
}

const portfolioSystemPrompt = "You are the Portfolio Agent in an AI financial advisor system. " +
	"Using the MarketData, Retrieve, and Analysis outputs provided in the context, " +
	"propose scenario-based asset allocation plans tailored to the user's capital and risk level.\n" +
	"Rules:\n" +
	"- Always answer in Korean.\n" +
	"- Provide allocations for three scenarios: 보수적, 중립적, 공격적.\n" +
	"- Rows: 국내 주식, 해외 주식, 채권, 대체투자(ETF 등). Columns: 보수적, 중립적, 공격적.\n" +
	"- Percentages in each column must sum to exactly 100 (no units, integers preferred; if needed one decimal).\n" +
	"- Include 2~4 example instruments per asset class (e.g., 삼성전자, QQQ, 미국 10년물 국채, GLD). " +
	"Prefer instruments mentioned in the context; if none, provide representative examples and mark them as 예시.\n" +
	"- Ground your rationale in the provided context; do not invent facts or cite external data. No URLs.\n" +
	"- No investment advice or guarantees; do not give price targets.\n" +
	"- After the table, add a brief one- or two-sentence explanation connecting the allocation to the user's risk level and current market context."

// Portfolio proposes scenario allocations from every earlier output
func Portfolio() Definition {
	return Definition{
		Stage:        contracts.StagePortfolio,
		SystemPrompt: portfolioSystemPrompt,
		BuildContext: upstreamContext(true),
		UserPrompt: func(st *contracts.PipelineState) string {
			return profileBlock(st.Chat) +
				"컨텍스트(시장 데이터, 검색 결과, 분석 결과 포함):\n" +
				st.Context + "\n\n" +
				"작성 지침:\n" +
				"- 아래 형식의 마크다운 표로만 자산배분을 제시하세요.\n" +
				"- 행: 국내 주식, 해외 주식, 채권, 대체투자(ETF 등)\n" +
				"- 열: 보수적 | 중립적 | 공격적\n" +
				"- 각 열의 합계가 정확히 100이 되도록 %를 배분하세요(정수 우선, 필요 시 소수점 한 자리).\n" +
				"- 각 자산군 셀에는 괄호로 2~4개의 세부 종목/ETF 예시를 제시하세요. " +
				"컨텍스트에 등장한 종목을 우선 사용하고, 없으면 대표적 상품을 '예시'로 표기하세요.\n" +
				"- 외부 사실을 새로 만들지 말고, 컨텍스트에서 유도 가능한 수준의 근거로만 작성하세요. URL·코드블록 금지.\n\n" +
				"출력:\n" +
				"1) 자산배분 마크다운 표 (보수적/중립적/공격적 컬럼 포함)\n" +
				"2) 표 아래 한두 문장으로 본 배분이 사용자 위험성향 및 현재 시장 맥락과 어떻게 연결되는지 설명"
		},
	}
}

// Definitions returns the four stage definitions in pipeline order
func Definitions(market, topic EvidenceFunc) []Definition {
	return []Definition{MarketData(market), Retrieve(topic), Analysis(), Portfolio()}
}
