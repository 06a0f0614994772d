package rag

import (
	"context"
	"strings"
	"sync"

	"github.com/mwiater/docchat/internal/svcerr"
)

// keywordEmbedder maps text onto a small bag-of-keywords space so similarity
// follows topical overlap.
type keywordEmbedder struct {
	mu       sync.Mutex
	keywords []string
	calls    []string
	failOn   string
}

func newKeywordEmbedder(keywords ...string) *keywordEmbedder {
	return &keywordEmbedder{keywords: keywords}
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls = append(e.calls, text)
	e.mu.Unlock()
	if e.failOn != "" && strings.Contains(text, e.failOn) {
		return nil, svcerr.Status(serviceEmbedding, "embed", 500, []byte("boom"))
	}
	lower := strings.ToLower(text)
	vec := make([]float64, len(e.keywords)+1)
	for i, kw := range e.keywords {
		vec[i] = float64(strings.Count(lower, kw))
	}
	vec[len(e.keywords)] = 0.01
	return vec, nil
}

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// fixedEmbedder returns preset vectors by exact text.
type fixedEmbedder map[string][]float64

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := f[text]; ok {
		return v, nil
	}
	return nil, svcerr.Malformed(serviceEmbedding, "embed", "unknown text "+text)
}
