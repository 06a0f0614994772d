// internal/providers/openai/provider.go
// Package openai provides a ChatProvider backed by Azure OpenAI deployments or
// any OpenAI-compatible endpoint, using the go-openai client.
package openai

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/providers"
	"github.com/mwiater/docchat/internal/svcerr"
)

const serviceGeneration = "generation"

// Provider implements providers.ChatProvider over the OpenAI chat completions API.
type Provider struct {
	timeout time.Duration
	debug   bool

	mu      sync.Mutex
	clients map[string]*goopenai.Client
}

// New constructs a Provider configured with the application's request timeout.
func New(cfg *appconfig.Config) *Provider {
	return &Provider{
		timeout: cfg.RequestTimeout(),
		debug:   cfg.Debug,
		clients: make(map[string]*goopenai.Client),
	}
}

// ClientFor builds a go-openai client for host. Azure hosts address deployments
// by model name; other hosts use URL as the OpenAI base URL.
func ClientFor(host appconfig.Host) *goopenai.Client {
	var cfg goopenai.ClientConfig
	if host.Kind() == "azure" {
		cfg = goopenai.DefaultAzureConfig(host.APIKey(), host.URL)
		if v := strings.TrimSpace(host.APIVersion); v != "" {
			cfg.APIVersion = v
		}
		cfg.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		cfg = goopenai.DefaultConfig(host.APIKey())
		if u := strings.TrimSpace(host.URL); u != "" {
			cfg.BaseURL = strings.TrimRight(u, "/")
		}
	}
	return goopenai.NewClientWithConfig(cfg)
}

// WrapError converts a go-openai failure into a ServiceError, keeping the HTTP
// status and message the API reported.
func WrapError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &svcerr.ServiceError{Service: service, Op: op, Status: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &svcerr.ServiceError{Service: service, Op: op, Status: reqErr.HTTPStatusCode, Err: err}
	}
	return svcerr.New(service, op, err)
}

func (p *Provider) client(host appconfig.Host) *goopenai.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := host.Name + "|" + host.URL
	if c, ok := p.clients[key]; ok {
		return c
	}
	c := ClientFor(host)
	p.clients[key] = c
	return c
}

// Stream issues a chat completion request and forwards output to the provided callbacks.
func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	chatReq := goopenai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toMessages(req.Messages()),
	}
	applyParameters(&chatReq, req.Parameters)
	logging.LogRequest("DOCCHAT->LLM", req.Host.Name, req.Model, "chat", chatReq)

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := p.client(req.Host)
	if req.DisableStreaming {
		resp, err := client.CreateChatCompletion(streamCtx, chatReq)
		if err != nil {
			return WrapError(serviceGeneration, "chat", err)
		}
		logging.LogRequest("LLM->DOCCHAT", req.Host.Name, req.Model, "chat", resp)
		if len(resp.Choices) == 0 {
			return svcerr.Malformed(serviceGeneration, "chat", "response has no choices")
		}
		if callbacks.OnChunk != nil {
			if err := callbacks.OnChunk(providers.ChatMessage{Role: providers.RoleAssistant, Content: resp.Choices[0].Message.Content}); err != nil {
				return err
			}
		}
		if callbacks.OnComplete != nil {
			return callbacks.OnComplete(providers.StreamMetadata{
				Model:            modelOr(resp.Model, req.Model),
				CreatedAt:        time.Now(),
				Done:             true,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
			})
		}
		return nil
	}

	chatReq.Stream = true
	stream, err := client.CreateChatCompletionStream(streamCtx, chatReq)
	if err != nil {
		return WrapError(serviceGeneration, "chat stream", err)
	}
	defer stream.Close()

	modelName := req.Model
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return WrapError(serviceGeneration, "chat stream", err)
		}
		if resp.Model != "" {
			modelName = resp.Model
		}
		// Azure emits content-filter frames with no choices.
		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if p.debug {
			logging.LogRequest("LLM->DOCCHAT", req.Host.Name, req.Model, "chunk", content)
		}
		if callbacks.OnChunk != nil {
			if err := callbacks.OnChunk(providers.ChatMessage{Role: providers.RoleAssistant, Content: content}); err != nil {
				return err
			}
		}
	}

	if callbacks.OnComplete != nil {
		return callbacks.OnComplete(providers.StreamMetadata{
			Model:     modelName,
			CreatedAt: time.Now(),
			Done:      true,
		})
	}
	return nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}

func toMessages(msgs []providers.ChatMessage) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func applyParameters(req *goopenai.ChatCompletionRequest, params appconfig.Parameters) {
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
	}
	if params.TopP != nil {
		req.TopP = float32(*params.TopP)
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
