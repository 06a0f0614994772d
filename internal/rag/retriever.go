package rag

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"
)

// Retrieve embeds query and returns the text of the topK most similar chunks in
// ranked order. An empty index returns no chunks without calling the embedder.
func Retrieve(ctx context.Context, emb Embedder, idx *Index, query string, topK int) ([]string, error) {
	scored, err := retrieveScored(ctx, emb, idx, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Text)
	}
	return out, nil
}

func retrieveScored(ctx context.Context, emb Embedder, idx *Index, query string, topK int) ([]ScoredChunk, error) {
	if idx.Len() == 0 || topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	queryVec, err := emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return idx.Query(queryVec, topK), nil
}

// RetrievalResult includes context text and telemetry.
type RetrievalResult struct {
	Context      string
	Chunks       []ScoredChunk
	RetrievalMs  int
	ContextChars int
}

// Retriever bundles the embedder and limits used to turn a query into a context block.
type Retriever struct {
	Embedder Embedder
	TopK     int
	MaxChars int
}

// Context retrieves the best chunks for query and assembles them into a context
// block capped at MaxChars.
func (r Retriever) Context(ctx context.Context, idx *Index, query string) (RetrievalResult, error) {
	start := time.Now()
	scored, err := retrieveScored(ctx, r.Embedder, idx, query, r.TopK)
	if err != nil {
		return RetrievalResult{}, err
	}
	texts := make([]string, 0, len(scored))
	for _, s := range scored {
		texts = append(texts, s.Text)
	}
	assembled := Assemble(texts, r.MaxChars)
	return RetrievalResult{
		Context:      assembled,
		Chunks:       scored,
		RetrievalMs:  int(time.Since(start) / time.Millisecond),
		ContextChars: utf8.RuneCountInString(assembled),
	}, nil
}
