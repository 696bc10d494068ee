package duckduckgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/httputil"
	"github.com/wonny/finadvisor/pkg/logger"
	"github.com/wonny/finadvisor/pkg/redis"
)

// Client runs web searches against the DuckDuckGo HTML endpoint
// ⭐ SSOT: 웹 검색 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	cache      *redis.Cache
	cacheTTL   time.Duration
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new DuckDuckGo client
func NewClient(httpClient *httputil.Client, cache *redis.Cache, baseURL string, cacheTTL time.Duration, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://html.duckduckgo.com"
	}
	if cacheTTL <= 0 {
		cacheTTL = redis.TTLSearch
	}
	return &Client{
		httpClient: httpClient,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Search runs one query and returns at most opts.MaxResults hits
func (c *Client) Search(ctx context.Context, query string, opts contracts.SearchOptions) ([]contracts.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	region := regionCode(opts.Region)
	key := redis.SearchKey(query, region, opts.MaxResults)

	return redis.GetOrSet(ctx, c.cache, key, c.cacheTTL, func() ([]contracts.SearchResult, error) {
		return c.search(ctx, query, region, opts)
	})
}

func (c *Client) search(ctx context.Context, query, region string, opts contracts.SearchOptions) ([]contracts.SearchResult, error) {
	form := url.Values{}
	form.Set("q", query)
	form.Set("kl", region)
	if kp := safeSearchCode(opts.SafeSearch); kp != "" {
		form.Set("kp", kp)
	}
	if df := timeLimitCode(opts.TimeLimit); df != "" {
		form.Set("df", df)
	}

	resp, err := c.httpClient.PostForm(ctx, c.baseURL+"/html/", form)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	results, err := parseResults(resp.Body, opts.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("parse results failed: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"query":   query,
		"region":  region,
		"results": len(results),
	}).Debug("Web search completed")
	return results, nil
}

// parseResults reads organic hits from the HTML result page
func parseResults(r io.Reader, limit int) ([]contracts.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var results []contracts.SearchResult
	seen := make(map[string]bool)

	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}

		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := resolveLink(href)
		if target == "" || seen[target] {
			return true
		}
		seen[target] = true

		results = append(results, contracts.SearchResult{
			Title: collapse(link.Text()),
			Body:  collapse(s.Find(".result__snippet").First().Text()),
			URL:   target,
		})
		return limit <= 0 || len(results) < limit
	})

	return results, nil
}

// resolveLink unwraps the //duckduckgo.com/l/?uddg=<target> redirect
func resolveLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// regionCode maps a short language code to a DuckDuckGo region
func regionCode(region string) string {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "", "wt", "wt-wt":
		return "wt-wt"
	case "ko", "kr":
		return "kr-kr"
	case "en", "us":
		return "us-en"
	default:
		return strings.ToLower(region)
	}
}

func safeSearchCode(level string) string {
	switch strings.ToLower(level) {
	case "on", "strict":
		return "1"
	case "off":
		return "-2"
	case "moderate":
		return "-1"
	default:
		return ""
	}
}

func timeLimitCode(limit string) string {
	switch strings.ToLower(limit) {
	case "d", "w", "m", "y":
		return strings.ToLower(limit)
	default:
		return ""
	}
}
