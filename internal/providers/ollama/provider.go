// internal/providers/ollama/provider.go
// Package ollama provides a ChatProvider backed by Ollama-compatible HTTP endpoints.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/providers"
	"github.com/mwiater/docchat/internal/svcerr"
)

const serviceGeneration = "generation"

// Provider implements the providers.ChatProvider interface using the Ollama /api/chat endpoint.
type Provider struct {
	client  *http.Client
	timeout time.Duration
	debug   bool
}

// New constructs a Provider configured with the application's request timeout.
func New(cfg *appconfig.Config) *Provider {
	timeout := cfg.RequestTimeout()
	return &Provider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		timeout: timeout,
		debug:   cfg.Debug,
	}
}

// streamChunk defines the structure of a single chunk in a streaming response.
type streamChunk struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	TotalDuration   int64 `json:"total_duration"`
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
}

func (c streamChunk) metadata(fallbackModel string) providers.StreamMetadata {
	model := c.Model
	if model == "" {
		model = fallbackModel
	}
	return providers.StreamMetadata{
		Model:            model,
		CreatedAt:        time.Now(),
		Done:             c.Done,
		PromptTokens:     c.PromptEvalCount,
		CompletionTokens: c.EvalCount,
		TotalDuration:    c.TotalDuration,
	}
}

// Stream issues a chat request and forwards output to the provided callbacks.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	streamEnabled := !req.DisableStreaming
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages(),
		"options":  buildOptions(req.Parameters),
		"stream":   streamEnabled,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	logging.LogRequest("DOCCHAT->LLM", req.Host.Name, req.Model, "chat", body)

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, strings.TrimRight(req.Host.URL, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return svcerr.New(serviceGeneration, "chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		logging.LogRequest("LLM->DOCCHAT", req.Host.Name, req.Model, "chat", raw)
		return svcerr.Status(serviceGeneration, "chat", resp.StatusCode, raw)
	}

	if !streamEnabled {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return svcerr.New(serviceGeneration, "chat", err)
		}
		logging.LogRequest("LLM->DOCCHAT", req.Host.Name, req.Model, "chat", raw)
		var result streamChunk
		if err := json.Unmarshal(raw, &result); err != nil {
			return svcerr.Malformed(serviceGeneration, "chat", err.Error())
		}
		if callbacks.OnChunk != nil && result.Message.Content != "" {
			if err := callbacks.OnChunk(providers.ChatMessage{Role: roleOr(result.Message.Role), Content: result.Message.Content}); err != nil {
				return err
			}
		}
		if callbacks.OnComplete != nil {
			meta := result.metadata(req.Model)
			meta.Done = true
			return callbacks.OnComplete(meta)
		}
		return nil
	}

	decoder := json.NewDecoder(resp.Body)
	var final streamChunk
	for {
		var chunk streamChunk
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return svcerr.Malformed(serviceGeneration, "chat stream", err.Error())
		}
		if p.debug {
			logging.LogRequest("LLM->DOCCHAT", req.Host.Name, req.Model, "chunk", chunk.Message.Content)
		}

		if callbacks.OnChunk != nil && chunk.Message.Content != "" {
			if err := callbacks.OnChunk(providers.ChatMessage{Role: roleOr(chunk.Message.Role), Content: chunk.Message.Content}); err != nil {
				return err
			}
		}

		if chunk.Done {
			final = chunk
			break
		}
	}

	if callbacks.OnComplete != nil {
		return callbacks.OnComplete(final.metadata(req.Model))
	}
	return nil
}

func buildOptions(params appconfig.Parameters) map[string]any {
	options := map[string]any{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	return options
}

func roleOr(role string) string {
	if role == "" {
		return providers.RoleAssistant
	}
	return role
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}
