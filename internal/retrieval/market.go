package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/config"
	"github.com/wonny/finadvisor/pkg/logger"
)

// TickerCount is how many instruments the model is asked to suggest
const TickerCount = 5

// Indicator is one fixed macro series
type Indicator struct {
	Name   string
	Symbol string
}

// MacroIndicators are fetched on every market retrieval, in this order
var MacroIndicators = []Indicator{
	{"S&P500", "^GSPC"},
	{"NASDAQ", "^IXIC"},
	{"KOSPI", "^KS11"},
	{"KOSDAQ", "^KQ11"},
	{"USD/KRW", "USDKRW=X"},
	{"10Y Treasury", "^TNX"},
	{"WTI 원유", "CL=F"},
}

const noData = "없음"

const tickerSystemPrompt = `Role: You are a "yfinance ticker selector".
Your job is to select exactly 5 valid yfinance tickers strictly following the rules.

Forbidden:
- Any explanation, description, reasoning, or commentary
- Extra whitespace, line breaks, bullets, or numbering
- Company names without tickers, ISINs, or other identifiers

Required:
- Exactly 5 tickers
- Output in one single line, separated by commas
- Must be valid yfinance format(e.g., 005930.KS, NVDA, ^GSPC, BTC-USD, CL=F)

Risk rules:
- Risk level 1–2: Focus on indexes/ETFs(2–3), large-cap defensive stocks(1–2), optional hedge(0–1)
- Risk level 3: Balanced between indexes/ETFs(2), mega-cap leaders(2), growth/sector theme(1)
- Risk level 4–5: Growth and sector leaders(3–4), indexes/hedge(1–2)

Regional suffix hints:
- Korea KOSPI: .KS, KOSDAQ: .KQ
- Japan: .T, UK: .L, Hong Kong: .HK, Shanghai: .SS
- Index: ^GSPC(S&P 500), ^IXIC(NASDAQ), ^KS11(KOSPI)
- Commodities: CL=F(WTI), GC=F(Gold)
- FX: USDKRW=X
- Crypto: BTC-USD, ETH-USD

Output language:
- Output tickers only(no explanation).`

// MarketRetriever collects stock and macro quote documents for a profile
type MarketRetriever struct {
	model    contracts.ChatModel
	provider contracts.MarketDataProvider
	cfg      config.MarketConfig
	logger   *logger.Logger
}

// NewMarketRetriever creates a new market retriever
func NewMarketRetriever(model contracts.ChatModel, provider contracts.MarketDataProvider, cfg config.MarketConfig, log *logger.Logger) *MarketRetriever {
	if cfg.Period == "" {
		cfg.Period = "2mo"
	}
	if cfg.Interval == "" {
		cfg.Interval = "1d"
	}
	return &MarketRetriever{model: model, provider: provider, cfg: cfg, logger: log}
}

// Retrieve returns stock documents for the suggested tickers followed by macro documents
func (r *MarketRetriever) Retrieve(ctx context.Context, profile contracts.ChatProfile) ([]contracts.Document, error) {
	tickers, err := r.SuggestTickers(ctx, profile)
	if err != nil {
		return nil, err
	}

	stocks, err := r.StockDocuments(ctx, tickers)
	if err != nil {
		return nil, err
	}

	macro, err := r.MacroDocuments(ctx)
	if err != nil {
		return nil, err
	}

	return append(stocks, macro...), nil
}

// SuggestTickers asks the model for related instruments
func (r *MarketRetriever) SuggestTickers(ctx context.Context, profile contracts.ChatProfile) ([]string, error) {
	human := fmt.Sprintf(
		"Topic: '%s'\nCapital: %s (in KRW, 만원 unit)\nRisk level: %d(1=conservative, 5=aggressive)\n\n"+
			"Task:\nReturn exactly 5 related yfinance tickers in one line, separated by commas.\nDo not explain.",
		profile.Topic, profile.CapitalText(), profile.RiskLevel,
	)

	reply, err := r.model.Invoke(ctx, []contracts.Message{
		contracts.SystemMessage(tickerSystemPrompt),
		contracts.HumanMessage(human),
	})
	if err != nil {
		return nil, fmt.Errorf("suggest tickers: %w", err)
	}

	tickers := ParseTickers(reply)
	r.logger.WithFields(map[string]interface{}{
		"topic":   profile.Topic,
		"tickers": tickers,
	}).Info("Suggested tickers")
	return tickers, nil
}

// ParseTickers splits a model reply into at most TickerCount identifiers
func ParseTickers(reply string) []string {
	return splitList(reply, TickerCount)
}

// StockDocuments builds one document per ticker from its latest bar.
// A ticker without data, or whose latest bar is not finite, gets a placeholder.
func (r *MarketRetriever) StockDocuments(ctx context.Context, tickers []string) ([]contracts.Document, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	table, err := r.provider.Download(ctx, tickers, r.cfg.Period, r.cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("download stock quotes: %w", err)
	}

	docs := make([]contracts.Document, 0, len(tickers))
	for _, t := range tickers {
		bars := table[t]
		if len(bars) == 0 {
			docs = append(docs, stockPlaceholder(t))
			continue
		}

		last := bars[len(bars)-1]
		change, ok := changePct(last.Open, last.Close)
		if !ok {
			docs = append(docs, stockPlaceholder(t))
			continue
		}

		name, err := r.provider.Info(ctx, t)
		if err != nil || name == "" {
			r.logger.WithError(err).WithField("ticker", t).Warn("Failed to fetch instrument name")
			name = t
		}

		changeText := fmt.Sprintf("%+.2f%%", change)
		docs = append(docs, contracts.Document{
			Content: fmt.Sprintf("%s 종목 현재가: %.2f USD, 변동률: %s", t, last.Close, changeText),
			Metadata: map[string]any{
				"ticker":              t,
				"name":                name,
				contracts.MetaSection: "stock",
				"price":               last.Close,
				"change":              changeText,
			},
		})
	}
	return docs, nil
}

func stockPlaceholder(ticker string) contracts.Document {
	return contracts.Document{
		Content: fmt.Sprintf("%s 종목: 데이터 없음", ticker),
		Metadata: map[string]any{
			"ticker":              ticker,
			contracts.MetaSection: "stock",
			"price":               nil,
			"change":              noData,
		},
	}
}

// MacroDocuments builds one document per macro indicator from its last finite
// open and close. An indicator the provider does not know is skipped.
func (r *MarketRetriever) MacroDocuments(ctx context.Context) ([]contracts.Document, error) {
	symbols := make([]string, len(MacroIndicators))
	for i, ind := range MacroIndicators {
		symbols[i] = ind.Symbol
	}

	table, err := r.provider.Download(ctx, symbols, r.cfg.Period, r.cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("download macro quotes: %w", err)
	}

	docs := make([]contracts.Document, 0, len(MacroIndicators))
	for _, ind := range MacroIndicators {
		bars, ok := table[ind.Symbol]
		if !ok {
			continue
		}

		open, okOpen := lastFinite(bars, func(b contracts.Bar) float64 { return b.Open })
		closeVal, okClose := lastFinite(bars, func(b contracts.Bar) float64 { return b.Close })
		var change float64
		if okOpen && okClose {
			change, okClose = changePct(open, closeVal)
		}
		if !okOpen || !okClose {
			docs = append(docs, contracts.Document{
				Content: fmt.Sprintf("%s 데이터 없음", ind.Name),
				Metadata: map[string]any{
					"indicator":           ind.Name,
					contracts.MetaSection: "macro",
					"price":               nil,
					"change":              noData,
				},
			})
			continue
		}

		changeText := fmt.Sprintf("%+.2f%%", change)
		docs = append(docs, contracts.Document{
			Content: fmt.Sprintf("%s 현재가: %.2f, 변동률: %s", ind.Name, closeVal, changeText),
			Metadata: map[string]any{
				"indicator":           ind.Name,
				contracts.MetaSection: "macro",
				"price":               closeVal,
				"change":              changeText,
			},
		})
	}
	return docs, nil
}

// changePct is the intraday change of one bar; false when any value is not finite
func changePct(open, closeVal float64) (float64, bool) {
	if !finite(open) || !finite(closeVal) || open == 0 {
		return 0, false
	}
	return (closeVal - open) / open * 100, true
}

func lastFinite(bars []contracts.Bar, field func(contracts.Bar) float64) (float64, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if v := field(bars[i]); finite(v) {
			return v, true
		}
	}
	return 0, false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// splitList splits on newlines and commas, strips bullets and numbering,
// and keeps at most limit non-empty items
func splitList(reply string, limit int) []string {
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		for _, item := range strings.Split(line, ",") {
			item = strings.TrimSpace(item)
			item = strings.TrimLeft(item, "-*•· ")
			item = trimNumbering(item)
			item = strings.Trim(strings.TrimSpace(item), "`\"'")
			if item == "" {
				continue
			}
			out = append(out, item)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// trimNumbering drops a leading "1." or "2)" list marker
func trimNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') && (i+1 == len(s) || s[i+1] == ' ') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
