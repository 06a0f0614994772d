package chat

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/ingest"
	"github.com/mwiater/docchat/internal/ocr"
	"github.com/mwiater/docchat/internal/rag"
)

// RunPreviewCommand indexes the given files in memory and prints what retrieval
// would add to a prompt for query, without calling the generation service.
func RunPreviewCommand(ctx context.Context, cfg *appconfig.Config, out io.Writer, query string, paths []string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return fmt.Errorf("query is required")
	}
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if len(paths) == 0 {
		return fmt.Errorf("at least one --file or --dir is required")
	}

	status := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		log.Print(msg)
		fmt.Fprintln(out, msg)
	}

	emb, err := rag.NewEmbedder(cfg)
	if err != nil {
		return err
	}
	if c, ok := emb.(io.Closer); ok {
		defer c.Close()
	}

	var extractor ingest.Extractor
	if client, err := ocr.New(cfg); err == nil {
		extractor.OCR = client
	}

	status("[RAG] Preview query: %s", query)
	status("[RAG] embedding host: %s", cfg.RagEmbeddingHost)
	status("[RAG] embedding model: %s", cfg.RagEmbeddingModel)
	status("[RAG] chunk size: %d words, overlap: %d words", cfg.ChunkSize(), cfg.ChunkOverlap())
	status("[RAG] topK: %d", cfg.TopK())
	status("[RAG] context char limit: %d", cfg.ContextCharLimit())

	files, err := ingest.Expand(paths)
	if err != nil {
		return err
	}
	var corpus []string
	for _, res := range extractor.ExtractAll(ctx, files) {
		if res.Err != nil {
			status("[RAG] skip %s: %v", res.Document.Name, res.Err)
			continue
		}
		chunks := rag.Texts(rag.ChunkText(res.Document.Text, cfg.ChunkSize(), cfg.ChunkOverlap()))
		status("[RAG] %s (%s): %d chunks", res.Document.Name, res.Document.Kind, len(chunks))
		corpus = append(corpus, chunks...)
	}

	idx, err := rag.Build(ctx, emb, corpus)
	if err != nil {
		return err
	}
	status("[RAG] index: %d chunks", idx.Len())

	retriever := rag.Retriever{Embedder: emb, TopK: cfg.TopK(), MaxChars: cfg.ContextCharLimit()}
	result, err := retriever.Context(ctx, idx, query)
	if err != nil {
		return err
	}

	status("[RAG] retrieval_ms: %d", result.RetrievalMs)
	status("[RAG] context_chars: %d", result.ContextChars)
	status("[RAG] chunks: %d", len(result.Chunks))
	for i, chunk := range result.Chunks {
		status("[RAG] chunk %d score=%.6f position=%d", i+1, chunk.Score, chunk.Position)
		status("[RAG] chunk %d text: %s", i+1, chunk.Text)
	}
	if result.Context != "" {
		status("[RAG] context:\n%s", result.Context)
	}
	return nil
}
