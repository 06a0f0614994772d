package rag

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mwiater/docchat/internal/svcerr"
)

// Index holds chunk texts and their vectors. vectors[i] always belongs to chunks[i].
type Index struct {
	chunks  []string
	vectors [][]float64
}

// ScoredChunk is a chunk plus similarity score and its position in the index.
type ScoredChunk struct {
	Position int
	Text     string
	Score    float64
}

// Build embeds every chunk in order. Any embedding failure fails the whole build
// and no partial index is returned.
func Build(ctx context.Context, emb Embedder, chunks []string) (*Index, error) {
	idx := &Index{
		chunks:  make([]string, 0, len(chunks)),
		vectors: make([][]float64, 0, len(chunks)),
	}
	dims := 0
	for i, text := range chunks {
		vec, err := emb.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if dims == 0 {
			dims = len(vec)
		} else if len(vec) != dims {
			return nil, svcerr.Malformed(serviceEmbedding, "embed", fmt.Sprintf("chunk %d has %d dimensions, expected %d", i, len(vec), dims))
		}
		idx.chunks = append(idx.chunks, text)
		idx.vectors = append(idx.vectors, vec)
	}
	return idx, nil
}

// Len returns the number of indexed chunks. A nil index is empty.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.chunks)
}

// Chunks returns a copy of the indexed chunk texts in index order.
func (idx *Index) Chunks() []string {
	if idx == nil {
		return nil
	}
	return append([]string(nil), idx.chunks...)
}

// Query ranks every chunk by cosine similarity to queryVec, highest first, with
// ties kept in index order, and returns at most topK results.
func (idx *Index) Query(queryVec []float64, topK int) []ScoredChunk {
	n := idx.Len()
	topK = max(0, min(topK, n))
	if topK == 0 {
		return nil
	}

	scored := make([]ScoredChunk, n)
	queryNorm := vectorNorm(queryVec)
	for i := range idx.chunks {
		scored[i] = ScoredChunk{
			Position: i,
			Text:     idx.chunks[i],
			Score:    cosineSimilarity(queryVec, idx.vectors[i], queryNorm),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored[:topK]
}

// CosineSimilarity returns dot(a,b)/(|a|*|b|). A zero vector, mismatched
// dimensions or a non-finite component score 0.
func CosineSimilarity(a, b []float64) float64 {
	return cosineSimilarity(a, b, vectorNorm(a))
}

// cosineSimilarity divides each component by its vector's norm before the dot
// product so very large or very small magnitudes neither overflow nor underflow.
func cosineSimilarity(a, b []float64, normA float64) float64 {
	if len(a) != len(b) || !usableNorm(normA) {
		return 0
	}
	normB := vectorNorm(b)
	if !usableNorm(normB) {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += (a[i] / normA) * (b[i] / normB)
	}
	if math.IsNaN(dot) || math.IsInf(dot, 0) {
		return 0
	}
	return dot
}

func usableNorm(n float64) bool {
	return n > 0 && !math.IsInf(n, 0) && !math.IsNaN(n)
}

// vectorNorm is the Euclidean length of v, scaled by its largest component.
func vectorNorm(v []float64) float64 {
	scale := 0.0
	for _, val := range v {
		scale = max(scale, math.Abs(val))
	}
	if scale == 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return scale
	}
	sum := 0.0
	for _, val := range v {
		r := val / scale
		sum += r * r
	}
	return scale * math.Sqrt(sum)
}
