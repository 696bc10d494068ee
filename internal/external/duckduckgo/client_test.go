package duckduckgo

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/finadvisor/internal/contracts"
	"github.com/wonny/finadvisor/pkg/httputil"
	"github.com/wonny/finadvisor/pkg/logger"
	"github.com/wonny/finadvisor/pkg/redis"
)

const resultPage = `<html><body>
<div class="result results_links result--ad">
  <a class="result__a" href="https://ads.example.com">Ad</a>
  <a class="result__snippet">buy now</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.reuters.com%2Ftech%2Fhbm&amp;rut=abc">HBM   demand
  rises</a></h2>
  <a class="result__snippet">SK hynix and Samsung expand <b>HBM</b> lines.</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://www.bloomberg.com/chips">Chip stocks</a>
  <div class="result__snippet">Semiconductor index hits record.</div>
</div>
<div class="result results_links">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.reuters.com%2Ftech%2Fhbm">duplicate</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://example.com/third">Third</a>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := parseResults(strings.NewReader(resultPage), 0)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, contracts.SearchResult{
		Title: "HBM demand rises",
		Body:  "SK hynix and Samsung expand HBM lines.",
		URL:   "https://www.reuters.com/tech/hbm",
	}, results[0])
	assert.Equal(t, "https://www.bloomberg.com/chips", results[1].URL)
	assert.Equal(t, "Semiconductor index hits record.", results[1].Body)
	assert.Equal(t, "", results[2].Body)
}

func TestParseResults_Limit(t *testing.T) {
	results, err := parseResults(strings.NewReader(resultPage), 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/html/", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"q": r.PostForm.Get("q"), "kl": r.PostForm.Get("kl"),
			"kp": r.PostForm.Get("kp"), "df": r.PostForm.Get("df"),
		}
		_, _ = w.Write([]byte(resultPage))
	}))
	defer srv.Close()

	log := logger.Nop()
	c := NewClient(httputil.New(log, 0).DisableRetry(), redis.NewCache(redis.Disabled(), "test"), srv.URL, 0, log)

	results, err := c.Search(t.Context(), " HBM outlook ", contracts.SearchOptions{
		Region: "ko", SafeSearch: "moderate", TimeLimit: "y", MaxResults: 5,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, map[string]string{"q": "HBM outlook", "kl": "kr-kr", "kp": "-1", "df": "y"}, form)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	log := logger.Nop()
	c := NewClient(httputil.New(log, 0).DisableRetry(), redis.NewCache(redis.Disabled(), "test"), srv.URL, 0, log)

	_, err := c.Search(t.Context(), "q", contracts.SearchOptions{})
	assert.Error(t, err)
}

func TestCodes(t *testing.T) {
	tests := []struct {
		fn   func(string) string
		in   string
		want string
	}{
		{regionCode, "", "wt-wt"},
		{regionCode, "ko", "kr-kr"},
		{regionCode, "JP-JP", "jp-jp"},
		{safeSearchCode, "off", "-2"},
		{safeSearchCode, "strict", "1"},
		{safeSearchCode, "bogus", ""},
		{timeLimitCode, "W", "w"},
		{timeLimitCode, "decade", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fn(tt.in))
		})
	}
}

func TestResolveLink(t *testing.T) {
	assert.Equal(t, "https://a.com/x", resolveLink("//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.com%2Fx"))
	assert.Equal(t, "https://b.com", resolveLink("https://b.com"))
	assert.Equal(t, "", resolveLink("javascript:void(0)"))
}
