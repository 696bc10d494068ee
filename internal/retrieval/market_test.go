package retrieval

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/internal/rerank"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

var profile = contracts.ChatProfile{Topic: "반도체", UserName: "wonny", Capital: 1000, RiskLevel: 3}

func bar(open, closeVal float64) contracts.Bar {
	return contracts.Bar{Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Open: open, Close: closeVal}
}

func TestParseTickers(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"one line", "NVDA, 005930.KS, ^GSPC, SOXX, TSM", []string{"NVDA", "005930.KS", "^GSPC", "SOXX", "TSM"}},
		{"more than five", "A,B,C,D,E,F,G", []string{"A", "B", "C", "D", "E"}},
		{"bullets and numbering", "1. NVDA\n- AMD\n* TSM\n\n2) 000660.KS", []string{"NVDA", "AMD", "TSM", "000660.KS"}},
		{"blanks", " , ,NVDA,,", []string{"NVDA"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTickers(tt.reply))
		})
	}
}

func TestSuggestTickers_Prompt(t *testing.T) {
	model := &fakeModel{reply: "NVDA, AMD"}
	r := NewMarketRetriever(model, &fakeProvider{}, config.MarketConfig{}, logger.Nop())

	tickers, err := r.SuggestTickers(t.Context(), profile)
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "AMD"}, tickers)

	require.Len(t, model.calls, 1)
	msgs := model.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, contracts.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "yfinance ticker selector")
	assert.Contains(t, msgs[1].Content, "Topic: '반도체'\nCapital: 1000 (in KRW, 만원 unit)\nRisk level: 3(1=conservative, 5=aggressive)")
}

func TestStockDocuments(t *testing.T) {
	provider := &fakeProvider{
		table: contracts.PriceTable{
			"NVDA": {bar(100, 90), bar(100, 120.5)},
			"BAD":  {bar(100, 101), bar(100, math.NaN())},
			"ZERO": {bar(0, 5)},
		},
		names: map[string]string{"NVDA": "NVIDIA Corporation"},
	}
	r := NewMarketRetriever(&fakeModel{}, provider, config.MarketConfig{}, logger.Nop())

	docs, err := r.StockDocuments(t.Context(), []string{"NVDA", "BAD", "GONE", "ZERO"})
	require.NoError(t, err)
	require.Len(t, docs, 4)

	assert.Equal(t, "NVDA 종목 현재가: 120.50 USD, 변동률: +20.50%", docs[0].Content)
	assert.Equal(t, map[string]any{
		"ticker": "NVDA", "name": "NVIDIA Corporation", "section": "stock", "price": 120.5, "change": "+20.50%",
	}, docs[0].Metadata)

	for i, ticker := range []string{"BAD", "GONE", "ZERO"} {
		doc := docs[i+1]
		assert.Equal(t, ticker+" 종목: 데이터 없음", doc.Content)
		assert.Nil(t, doc.Metadata["price"])
		assert.Equal(t, "없음", doc.Metadata["change"])
		assert.Equal(t, "stock", doc.Section())
	}
}

func TestStockDocuments_NameFallsBackToTicker(t *testing.T) {
	provider := &fakeProvider{table: contracts.PriceTable{"AMD": {bar(10, 9)}}}
	r := NewMarketRetriever(&fakeModel{}, provider, config.MarketConfig{}, logger.Nop())

	docs, err := r.StockDocuments(t.Context(), []string{"AMD"})
	require.NoError(t, err)
	assert.Equal(t, "AMD", docs[0].Metadata["name"])
	assert.Equal(t, "-10.00%", docs[0].Metadata["change"])
}

func TestMacroDocuments(t *testing.T) {
	provider := &fakeProvider{table: contracts.PriceTable{
		"^GSPC":    {bar(5000, 5050), bar(math.NaN(), math.NaN())},
		"^KS11":    {bar(math.NaN(), math.NaN())},
		"USDKRW=X": {bar(1400, 1386)},
	}}
	r := NewMarketRetriever(&fakeModel{}, provider, config.MarketConfig{}, logger.Nop())

	docs, err := r.MacroDocuments(t.Context())
	require.NoError(t, err)

	require.Len(t, docs, 3, "unknown indicators are skipped")
	assert.Equal(t, "S&P500 현재가: 5050.00, 변동률: +1.00%", docs[0].Content)
	assert.Equal(t, "S&P500", docs[0].Metadata["indicator"])
	assert.Equal(t, "KOSPI 데이터 없음", docs[1].Content)
	assert.Nil(t, docs[1].Metadata["price"])
	assert.Equal(t, "USD/KRW 현재가: 1386.00, 변동률: -1.00%", docs[2].Content)
	assert.Equal(t, "macro", docs[2].Section())

	require.Len(t, provider.requests, 1)
	assert.Len(t, provider.requests[0], len(MacroIndicators))
}

func TestRetrieve(t *testing.T) {
	provider := &fakeProvider{table: contracts.PriceTable{
		"NVDA":  {bar(100, 110)},
		"^GSPC": {bar(5000, 5050)},
	}}
	r := NewMarketRetriever(&fakeModel{reply: "NVDA"}, provider, config.MarketConfig{}, logger.Nop())

	docs, err := r.Retrieve(t.Context(), profile)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "stock", docs[0].Section())
	assert.Equal(t, "macro", docs[1].Section())
}

func TestRetrieve_Errors(t *testing.T) {
	t.Run("model failure", func(t *testing.T) {
		r := NewMarketRetriever(&fakeModel{err: errors.New("401")}, &fakeProvider{}, config.MarketConfig{}, logger.Nop())
		_, err := r.Retrieve(t.Context(), profile)
		assert.Error(t, err)
	})

	t.Run("provider failure", func(t *testing.T) {
		r := NewMarketRetriever(&fakeModel{reply: "NVDA"}, &fakeProvider{err: errors.New("down")}, config.MarketConfig{}, logger.Nop())
		_, err := r.Retrieve(t.Context(), profile)
		assert.Error(t, err)
	})
}

// A NaN close becomes a placeholder, and the ranker handles it like any other document.
func TestNaNQuoteFlowsThroughRanking(t *testing.T) {
	provider := &fakeProvider{table: contracts.PriceTable{"NVDA": {bar(100, math.NaN())}}}
	r := NewMarketRetriever(&fakeModel{}, provider, config.MarketConfig{}, logger.Nop())

	docs, err := r.StockDocuments(t.Context(), []string{"NVDA"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Nil(t, docs[0].Metadata["price"])
	assert.Contains(t, docs[0].Content, "데이터 없음")

	ranker := rerank.New(textScorer{docs[0].Content: 0.1}, config.CrossEncoderConfig{
		Enabled: true, RerankTopK: 5, RelevanceThreshold: 0,
	}, logger.Nop(), nil)
	scored := ranker.RerankDefault(t.Context(), "NVDA", docs)
	require.Len(t, scored, 1)
	assert.InDelta(t, 0.1, scored[0].Score, 1e-9)
}
