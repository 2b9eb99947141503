package rag

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"sync"

	"finchat/models"
)

// keywordEmbedder maps texts onto a tiny vector space keyed by a few words so
// nearest-neighbour results are predictable.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int
	fail  error
}

var embedKeywords = [][]string{
	{"revenue", "sales"},
	{"cash", "liquidity"},
	{"debt"},
	{"equity"},
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.texts += len(texts)
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(embedKeywords)+1)
		v[len(embedKeywords)] = 0.1
		lower := strings.ToLower(t)
		for j, words := range embedKeywords {
			for _, w := range words {
				if strings.Contains(lower, w) {
					v[j] = 1
				}
			}
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		n := float32(math.Sqrt(norm))
		for j := range v {
			v[j] /= n
		}
		out[i] = v
	}
	return out, nil
}

// queryEmbedder embeds like keywordEmbedder but records questions that went
// through EmbedQuery.
type queryEmbedder struct {
	keywordEmbedder
	queries []string
}

func (e *queryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	e.mu.Unlock()
	v, err := e.keywordEmbedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []Prompt
	reply   string
	fail    error
}

func (g *recordingGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	if g.fail != nil {
		return "", g.fail
	}
	return g.reply, nil
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type staticFacts map[uint][]models.FinancialFact

func (s staticFacts) Facts(_ context.Context, companyID uint) ([]models.FinancialFact, error) {
	if f, ok := s[companyID]; ok {
		return f, nil
	}
	return nil, nil
}

type statusError struct{ code int }

func (e statusError) Error() string   { return http.StatusText(e.code) }
func (e statusError) StatusCode() int { return e.code }

var errBoom = errors.New("boom")
