package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/providers/openai"
	"github.com/mwiater/docchat/internal/svcerr"
)

const serviceEmbedding = "embedding"

// Embedder maps text to a fixed-dimension vector. Every implementation reports
// transport failures, non-success statuses, and empty or malformed payloads as a
// *svcerr.ServiceError and never retries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// NewEmbedder builds the embedder for the configured ragEmbeddingHost. When
// ragEmbeddingCachePath is set the embedder is wrapped in a persistent cache;
// callers should close it through io.Closer when done.
func NewEmbedder(cfg *appconfig.Config) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	host, model, err := cfg.EmbeddingTarget()
	if err != nil {
		return nil, err
	}

	var emb Embedder
	switch host.Kind() {
	case "ollama":
		emb = NewOllamaEmbedder(host, model, cfg.RequestTimeout())
	case "azure", "openai":
		emb = NewOpenAIEmbedder(host, model, cfg.RequestTimeout())
	default:
		return nil, fmt.Errorf("unsupported embedding host type %q", host.Type)
	}

	if path := strings.TrimSpace(cfg.RagEmbeddingCachePath); path != "" {
		cached, err := NewCachedEmbedder(emb, model, path)
		if err != nil {
			return nil, err
		}
		return cached, nil
	}
	return emb, nil
}

// OllamaEmbedder requests vectors from an Ollama /api/embeddings endpoint.
type OllamaEmbedder struct {
	client  *http.Client
	host    appconfig.Host
	model   string
	timeout time.Duration
}

// NewOllamaEmbedder constructs an OllamaEmbedder for the given host and model.
func NewOllamaEmbedder(host appconfig.Host, model string, timeout time.Duration) *OllamaEmbedder {
	return &OllamaEmbedder{
		client:  &http.Client{Timeout: timeout},
		host:    host,
		model:   model,
		timeout: timeout,
	}
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed requests an embedding vector from the configured embedding model.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(e.model) == "" {
		return nil, svcerr.New(serviceEmbedding, "embed", errors.New("embedding model is empty"))
	}
	payload := map[string]any{
		"model":  e.model,
		"prompt": text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, svcerr.New(serviceEmbedding, "embed", fmt.Errorf("marshal request: %w", err))
	}
	logging.LogRequest("DOCCHAT->EMBED", e.host.Name, e.model, "embed", body)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.host.URL, "/")+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, svcerr.New(serviceEmbedding, "embed", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, svcerr.New(serviceEmbedding, "embed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, svcerr.New(serviceEmbedding, "embed", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, svcerr.Status(serviceEmbedding, "embed", resp.StatusCode, raw)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, svcerr.Malformed(serviceEmbedding, "embed", err.Error())
	}
	if len(parsed.Embedding) == 0 {
		return nil, svcerr.Malformed(serviceEmbedding, "embed", "empty vector")
	}
	return parsed.Embedding, nil
}

// OpenAIEmbedder requests vectors from an Azure OpenAI deployment or an
// OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client  *goopenai.Client
	host    appconfig.Host
	model   string
	timeout time.Duration
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder for the given host and model
// (the deployment name on Azure).
func NewOpenAIEmbedder(host appconfig.Host, model string, timeout time.Duration) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:  openai.ClientFor(host),
		host:    host,
		model:   model,
		timeout: timeout,
	}
}

// Embed requests an embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	logging.LogRequest("DOCCHAT->EMBED", e.host.Name, e.model, "embed", text)
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, openai.WrapError(serviceEmbedding, "embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, svcerr.Malformed(serviceEmbedding, "embed", "empty vector")
	}

	vec := make([]float64, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float64(v)
	}
	return vec, nil
}
