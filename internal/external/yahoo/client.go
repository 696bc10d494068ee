package yahoo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/httputil"
	"github.com/wonny/finadvisor/pkg/logger"
	"github.com/wonny/finadvisor/pkg/redis"
)

// Client fetches bar history and display names from the Yahoo chart API
// ⭐ SSOT: 시세 데이터 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	cacheTTL   time.Duration
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Yahoo Finance client. cache may be built on a
// disabled redis client, in which case every call goes upstream.
func NewClient(httpClient *httputil.Client, cache *redis.Cache, baseURL string, cacheTTL time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	if cacheTTL <= 0 {
		cacheTTL = redis.TTLQuote
	}
	return &Client{
		httpClient: httpClient,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// chartResponse is the subset of /v8/finance/chart we read
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		Currency  string `json:"currency"`
		ShortName string `json:"shortName"`
		LongName  string `json:"longName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open  []*float64 `json:"open"`
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// cachedBars stores bars with missing values as null, since JSON has no NaN
type cachedBar struct {
	Date  time.Time `json:"date"`
	Open  *float64  `json:"open"`
	Close *float64  `json:"close"`
}

// errUnknownSymbol marks a symbol the provider has no data for
var errUnknownSymbol = errors.New("unknown symbol")

// Download fetches bars for every symbol. A symbol the provider does not know
// is absent from the table; only a failure for every symbol is an error.
func (c *Client) Download(ctx context.Context, symbols []string, period, interval string) (contracts.PriceTable, error) {
	table := make(contracts.PriceTable, len(symbols))
	var lastErr error

	for _, symbol := range symbols {
		bars, err := c.bars(ctx, symbol, period, interval)
		if errors.Is(err, errUnknownSymbol) {
			c.logger.WithField("symbol", symbol).Debug("Symbol has no chart data")
			continue
		}
		if err != nil {
			lastErr = err
			c.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to fetch chart")
			continue
		}
		table[symbol] = bars
	}

	if len(table) == 0 && lastErr != nil {
		return nil, fmt.Errorf("download chart data: %w", lastErr)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"fetched": len(table),
	}).Debug("Downloaded market data")
	return table, nil
}

func (c *Client) bars(ctx context.Context, symbol, period, interval string) ([]contracts.Bar, error) {
	cached, err := redis.GetOrSet(ctx, c.cache, redis.QuoteKey(symbol, period, interval), c.cacheTTL, func() ([]cachedBar, error) {
		res, err := c.chart(ctx, symbol, period, interval)
		if err != nil {
			return nil, err
		}
		return barsFromChart(res), nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]contracts.Bar, len(cached))
	for i, b := range cached {
		out[i] = contracts.Bar{Date: b.Date, Open: orNaN(b.Open), Close: orNaN(b.Close)}
	}
	return out, nil
}

func (c *Client) chart(ctx context.Context, symbol, period, interval string) (*chartResult, error) {
	params := url.Values{}
	if period != "" {
		params.Set("range", period)
	}
	if interval != "" {
		params.Set("interval", interval)
	}
	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	var resp chartResponse
	err := c.httpClient.GetJSON(ctx, fullURL, &resp)

	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, errUnknownSymbol
	}
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		return nil, errUnknownSymbol
	}
	return &resp.Chart.Result[0], nil
}

// barsFromChart zips timestamps with quote columns
func barsFromChart(res *chartResult) []cachedBar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	q := res.Indicators.Quote[0]

	bars := make([]cachedBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		bars = append(bars, cachedBar{
			Date:  time.Unix(ts, 0).UTC(),
			Open:  at(q.Open, i),
			Close: at(q.Close, i),
		})
	}
	return bars
}

// Info returns the display name of a symbol, falling back to the symbol itself
func (c *Client) Info(ctx context.Context, symbol string) (string, error) {
	return redis.GetOrSet(ctx, c.cache, redis.QuoteInfoKey(symbol), redis.TTLInfo, func() (string, error) {
		res, err := c.chart(ctx, symbol, "5d", "1d")
		if errors.Is(err, errUnknownSymbol) {
			return symbol, nil
		}
		if err != nil {
			return "", err
		}
		switch {
		case res.Meta.LongName != "":
			return res.Meta.LongName, nil
		case res.Meta.ShortName != "":
			return res.Meta.ShortName, nil
		default:
			return symbol, nil
		}
	})
}

func at(col []*float64, i int) *float64 {
	if i >= len(col) {
		return nil
	}
	return col[i]
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
