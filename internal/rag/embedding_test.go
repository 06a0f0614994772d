package rag

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/svcerr"
)

func TestOllamaEmbedder(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]string
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		if payload["model"] != "nomic-embed-text" || payload["prompt"] != "hello" {
			t.Errorf("unexpected payload: %v", payload)
		}
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer server.Close()

	emb := NewOllamaEmbedder(appconfig.Host{Name: "local", URL: server.URL}, "nomic-embed-text", 5*time.Second)
	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestOllamaEmbedderErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		status int
		body   string
	}{
		"status":    {http.StatusInternalServerError, `oops`},
		"malformed": {http.StatusOK, `{not json`},
		"empty":     {http.StatusOK, `{"embedding":[]}`},
	}
	for name, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		emb := NewOllamaEmbedder(appconfig.Host{URL: server.URL}, "m", 5*time.Second)
		_, err := emb.Embed(context.Background(), "x")
		server.Close()
		if !svcerr.Is(err) {
			t.Fatalf("%s: expected ServiceError, got %v", name, err)
		}
	}
}

func TestOpenAIEmbedderAzure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/text-embedding-3-small/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],"model":"text-embedding-3-small"}`))
	}))
	defer server.Close()

	host := appconfig.Host{Name: "azure", Type: "azure", URL: server.URL}
	emb := NewOpenAIEmbedder(host, "text-embedding-3-small", 5*time.Second)
	vec, err := emb.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 || vec[1] != 0.25 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestOpenAIEmbedderEmptyData(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	emb := NewOpenAIEmbedder(appconfig.Host{Type: "openai", URL: server.URL + "/v1"}, "m", 5*time.Second)
	if _, err := emb.Embed(context.Background(), "x"); !svcerr.Is(err) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
}

func TestNewEmbedderSelectsByHostType(t *testing.T) {
	cfg := &appconfig.Config{
		Hosts: []appconfig.Host{
			{Name: "local", Type: "ollama", URL: "http://localhost:11434"},
			{Name: "azure", Type: "azure", URL: "https://example.openai.azure.com"},
		},
		RagEmbeddingHost:  "local",
		RagEmbeddingModel: "nomic-embed-text",
	}
	emb, err := NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("NewEmbedder returned error: %v", err)
	}
	if _, ok := emb.(*OllamaEmbedder); !ok {
		t.Fatalf("expected OllamaEmbedder, got %T", emb)
	}

	cfg.RagEmbeddingHost = "azure"
	cfg.RagEmbeddingCachePath = t.TempDir() + "/cache.db"
	emb, err = NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("NewEmbedder returned error: %v", err)
	}
	cached, ok := emb.(*CachedEmbedder)
	if !ok {
		t.Fatalf("expected CachedEmbedder, got %T", emb)
	}
	defer cached.Close()
	if _, ok := cached.inner.(*OpenAIEmbedder); !ok {
		t.Fatalf("expected OpenAIEmbedder inside cache, got %T", cached.inner)
	}

	cfg.RagEmbeddingModel = ""
	if _, err := NewEmbedder(cfg); err == nil {
		t.Fatal("expected error without embedding model")
	}
}

func TestOllamaEmbedderEmptyModel(t *testing.T) {
	emb := NewOllamaEmbedder(appconfig.Host{URL: "http://127.0.0.1:1"}, " ", time.Second)
	_, err := emb.Embed(context.Background(), "x")
	if !svcerr.Is(err) {
		t.Fatalf("expected ServiceError for an empty model, got %v", err)
	}
}
