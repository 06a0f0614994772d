// Package rag implements docchat's retrieval pipeline: chunking documents,
// embedding chunks, ranking them against a query, and assembling the
// retrieved text into a context block for generation.
package rag

import "strings"

// Chunk splits text into consecutive, non-overlapping groups of at most maxSize
// whitespace-separated words. Words are never split and order is preserved.
func Chunk(text string, maxSize int) []string {
	windows := ChunkText(text, maxSize, 0)
	if len(windows) == 0 {
		return nil
	}
	out := make([]string, 0, len(windows))
	for _, w := range windows {
		out = append(out, w.Text)
	}
	return out
}

// ChunkText splits text into overlapping chunks using word counts as a proxy for tokens.
func ChunkText(text string, chunkSize, overlap int) []chunk {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []chunk
	for i := 0; i < len(words); i += step {
		end := min(i+chunkSize, len(words))
		chunks = append(chunks, chunk{
			Offset: i,
			Text:   strings.Join(words[i:end], " "),
			Tokens: end - i,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// chunk is a window of words: its starting word offset, joined text, and word count.
type chunk struct {
	Offset int
	Text   string
	Tokens int
}

// Texts returns the text of each window in order.
func Texts(chunks []chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Text)
	}
	return out
}
