package statecodec

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/rerank"
)

func sampleState() *contracts.PipelineState {
	return &contracts.PipelineState{
		Chat:         contracts.ChatProfile{Topic: "반도체", UserName: "wonny", Capital: 1000, RiskLevel: 3},
		CurrentStage: contracts.StagePortfolio,
		MarketDataDocs: []contracts.Document{
			{Content: "NVDA 종목 현재가: 120.50 USD, 변동률: +1.20%", Metadata: map[string]any{
				"ticker": "NVDA", "name": "NVIDIA Corporation", "section": "stock", "price": 120.5, "change": "+1.20%",
			}},
			{Content: "KOSDAQ 데이터 없음", Metadata: map[string]any{
				"indicator": "KOSDAQ", "section": "macro", "price": nil, "change": "없음",
			}},
		},
		MarketDataResponse: "시장 요약",
		RetrieveDocs: []contracts.Document{
			{Content: "HBM demand rises", Metadata: map[string]any{
				"source": "https://www.reuters.com/x", "section": "content", "relevance_score": 0.91, "rank": 1.0,
			}},
		},
		RetrieveResponse:  "검색 요약",
		AnalysisResponse:  "분석",
		PortfolioResponse: "| 자산 | 보수적 |",
		Context:           "[시장 데이터]\n...",
		Messages: []contracts.Message{
			contracts.SystemMessage("You are the Portfolio Agent"),
			contracts.HumanMessage("사용자 프로필"),
			contracts.AIMessage("응답"),
		},
		Response: "| 자산 | 보수적 |",
	}
}

func TestRoundTrip(t *testing.T) {
	st := sampleState()

	text, err := Encode(st)
	require.NoError(t, err)

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestRoundTrip_EmptyState(t *testing.T) {
	st := contracts.NewPipelineState(contracts.ChatProfile{Topic: "t", Capital: 1, RiskLevel: 1})

	text, err := Encode(st)
	require.NoError(t, err)

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestRoundTrip_PipelineProducedStates(t *testing.T) {
	ranked := rerank.Documents([]rerank.Scored{
		{Document: contracts.Document{Content: "HBM demand rises", Metadata: map[string]any{"source": "https://www.reuters.com/x"}}, Score: 0.91},
		{Document: contracts.Document{Content: "memory prices", Metadata: map[string]any{"source": "https://www.bloomberg.com/y"}}, Score: 0.42},
	})

	tests := []struct {
		name  string
		apply func(st *contracts.PipelineState)
	}{
		{"ranked retrieve docs", func(st *contracts.PipelineState) { st.RetrieveDocs = ranked }},
		{"empty evidence", func(st *contracts.PipelineState) { st.MarketDataDocs = []contracts.Document{} }},
		{"empty messages", func(st *contracts.PipelineState) { st.Messages = []contracts.Message{} }},
		{"nil evidence", func(st *contracts.PipelineState) { st.MarketDataDocs, st.RetrieveDocs = nil, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := sampleState()
			tt.apply(st)

			text, err := Encode(st)
			require.NoError(t, err)

			got, err := Decode(text)
			require.NoError(t, err)
			assert.Equal(t, st, got)
		})
	}
}

func TestEncode_NilAndEmptyListsStayDistinct(t *testing.T) {
	st := contracts.NewPipelineState(contracts.ChatProfile{Topic: "t"})
	st.MarketDataDocs = []contracts.Document{}

	text, err := Encode(st)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(text), &raw))
	assert.Equal(t, "[]", string(raw["market_data_docs"]))
	assert.Equal(t, "null", string(raw["retrieve_docs"]))
}

func TestEncode_StructuredTags(t *testing.T) {
	text, err := Encode(sampleState())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &raw))

	doc := raw["market_data_docs"].([]any)[0].(map[string]any)
	assert.Equal(t, "Document", doc["__type__"])
	msg := raw["messages"].([]any)[2].(map[string]any)
	assert.Equal(t, "Message", msg["__type__"])
	assert.Equal(t, "ai", msg["role"])
	assert.Equal(t, float64(4), raw["agent_id"])
}

func TestEncode_NonFiniteMetadataBecomesNull(t *testing.T) {
	st := sampleState()
	st.MarketDataDocs[0].Metadata["price"] = math.NaN()

	text, err := Encode(st)
	require.NoError(t, err)

	got, err := Decode(text)
	require.NoError(t, err)
	assert.Nil(t, got.MarketDataDocs[0].Metadata["price"])
	assert.True(t, math.IsNaN(st.MarketDataDocs[0].Metadata["price"].(float64)), "input untouched")
}

func TestDecode_LegacyEncodingIsEquivalent(t *testing.T) {
	legacy := `{
		"chat_state": {"topic": "반도체", "name": "wonny", "capital": 1000, "risk_level": 3},
		"agent_id": 4,
		"market_data_docs": [
			"page_content='NVDA 종목 현재가: 120.50 USD, 변동률: +1.20%' metadata={'ticker': 'NVDA', 'name': 'NVIDIA Corporation', 'section': 'stock', 'price': np.float64(120.5), 'change': '+1.20%'}",
			"page_content='KOSDAQ 데이터 없음' metadata={'indicator': 'KOSDAQ', 'section': 'macro', 'price': None, 'change': '없음'}"
		],
		"market_data_response": "시장 요약",
		"retrieve_docs": [
			"page_content='HBM demand rises' metadata={'source': 'https://www.reuters.com/x', 'section': 'content', 'relevance_score': np.float32(0.91), 'rank': np.int64(1)}"
		],
		"retrieve_response": "검색 요약",
		"analysis_response": "분석",
		"portfolio_response": "| 자산 | 보수적 |",
		"context": "[시장 데이터]\n...",
		"messages": [
			"content='You are the Portfolio Agent' additional_kwargs={} response_metadata={}",
			"content='사용자 프로필' additional_kwargs={}",
			"content='응답' additional_kwargs={}"
		],
		"response": "| 자산 | 보수적 |"
	}`

	got, err := Decode(legacy)
	require.NoError(t, err)

	want := sampleState()
	// legacy rows carry no roles
	for i := range want.Messages {
		want.Messages[i].Role = contracts.RoleHuman
	}
	assert.Equal(t, want, got)
}

func TestDecode_InvalidTopLevel(t *testing.T) {
	_, err := Decode("page_content='x' metadata={}")
	assert.Error(t, err)
}

func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want contracts.Document
	}{
		{
			name: "tagged object",
			raw:  `{"__type__":"Document","page_content":"a","metadata":{"source":"s"}}`,
			want: contracts.Document{Content: "a", Metadata: map[string]any{"source": "s"}},
		},
		{
			name: "untagged object with page_content",
			raw:  `{"page_content":"b","metadata":null}`,
			want: contracts.Document{Content: "b", Metadata: map[string]any{}},
		},
		{
			name: "object without content falls back to legacy text",
			raw:  `{"foo":1}`,
			want: contracts.Document{Content: `{"foo":1}`, Metadata: map[string]any{}},
		},
		{
			name: "legacy repr",
			raw:  `"page_content='c' metadata={'section': 'macro', 'ok': True}"`,
			want: contracts.Document{Content: "c", Metadata: map[string]any{"section": "macro", "ok": true}},
		},
		{
			name: "legacy repr unparsable metadata",
			raw:  `"page_content='d' metadata={'source': broken(}"`,
			want: contracts.Document{Content: "d", Metadata: map[string]any{}},
		},
		{
			name: "plain string",
			raw:  `"just text"`,
			want: contracts.Document{Content: "just text", Metadata: map[string]any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeDocument(json.RawMessage(tt.raw)))
		})
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		raw  string
		want contracts.Message
	}{
		{`{"__type__":"Message","role":"system","content":"s"}`, contracts.SystemMessage("s")},
		{`{"__type__":"Message","role":"ai","content":"a"}`, contracts.AIMessage("a")},
		{`{"__type__":"Message","content":"h"}`, contracts.HumanMessage("h")},
		{`{"role":"assistant","content":"x"}`, contracts.AIMessage("x")},
		{`"content='legacy' additional_kwargs={}"`, contracts.HumanMessage("legacy")},
		{`"no pattern here"`, contracts.HumanMessage("no pattern here")},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeMessage(json.RawMessage(tt.raw)))
		})
	}
}
