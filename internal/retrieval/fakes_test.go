package retrieval

import (
	"context"
	"errors"
	"strings"

	"github.com/wonny/finadvisor/internal/contracts"
)

type fakeModel struct {
	reply string
	err   error
	calls [][]contracts.Message
}

func (m *fakeModel) Invoke(_ context.Context, msgs []contracts.Message) (string, error) {
	m.calls = append(m.calls, msgs)
	return m.reply, m.err
}

type fakeProvider struct {
	table    contracts.PriceTable
	names    map[string]string
	err      error
	requests [][]string
}

func (p *fakeProvider) Download(_ context.Context, symbols []string, _, _ string) (contracts.PriceTable, error) {
	p.requests = append(p.requests, symbols)
	if p.err != nil {
		return nil, p.err
	}
	out := contracts.PriceTable{}
	for _, s := range symbols {
		if bars, ok := p.table[s]; ok {
			out[s] = bars
		}
	}
	return out, nil
}

func (p *fakeProvider) Info(_ context.Context, symbol string) (string, error) {
	if name, ok := p.names[symbol]; ok {
		return name, nil
	}
	return "", errors.New("no info")
}

type fakeSearcher struct {
	results map[string][]contracts.SearchResult
	fail    map[string]bool
}

func (s *fakeSearcher) Search(_ context.Context, query string, _ contracts.SearchOptions) ([]contracts.SearchResult, error) {
	if s.fail[query] {
		return nil, errors.New("blocked")
	}
	return s.results[query], nil
}

// keywordEmbedder maps text onto a fixed vocabulary, one dimension per word
type keywordEmbedder struct {
	vocab []string
	err   error
}

func (e keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(e.vocab))
		lower := strings.ToLower(t)
		for j, w := range e.vocab {
			v[j] = float32(strings.Count(lower, w))
		}
		out[i] = v
	}
	return out, nil
}

type textScorer map[string]float64

func (s textScorer) Predict(_ context.Context, pairs []contracts.Pair) ([]float64, error) {
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = s[p.Text]
	}
	return out, nil
}
