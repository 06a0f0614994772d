// internal/providers/provider.go

// Package providers defines the interface docchat uses to talk to text-generation
// services. A provider receives an ordered, role-tagged message sequence and
// delivers the reply either in one piece or as incremental chunks, regardless of
// the hosted API behind it (Azure OpenAI, OpenAI, Ollama).
package providers

import (
	"context"
	"strings"
	"time"

	"github.com/mwiater/docchat/internal/appconfig"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamMetadata describes a completed generation.
type StreamMetadata struct {
	Model            string
	CreatedAt        time.Time
	Done             bool
	PromptTokens     int
	CompletionTokens int
	TotalDuration    int64
}

// StreamRequest encapsulates all the information needed to request a completion.
type StreamRequest struct {
	Host             appconfig.Host
	Model            string
	History          []ChatMessage
	SystemPrompt     string
	Parameters       appconfig.Parameters
	DisableStreaming bool
}

// Messages returns the outgoing sequence: the system prompt, when set, followed by History.
func (r StreamRequest) Messages() []ChatMessage {
	if strings.TrimSpace(r.SystemPrompt) == "" {
		return append([]ChatMessage(nil), r.History...)
	}
	out := make([]ChatMessage, 0, len(r.History)+1)
	out = append(out, ChatMessage{Role: RoleSystem, Content: r.SystemPrompt})
	return append(out, r.History...)
}

// StreamCallbacks defines the callback functions that are invoked during a chat stream.
// OnChunk is called for each increment received, and OnComplete once the reply is finished.
type StreamCallbacks struct {
	OnChunk    func(ChatMessage) error
	OnComplete func(StreamMetadata) error
}

// ChatProvider is the interface that all generation backends implement.
type ChatProvider interface {
	// Stream sends the request and forwards the reply to the callbacks.
	Stream(ctx context.Context, req StreamRequest, callbacks StreamCallbacks) error
	// Close cleans up any resources used by the provider.
	Close() error
}

// Collect runs a request and concatenates every chunk into the final answer.
// onChunk, when non-nil, observes each increment as it arrives.
func Collect(ctx context.Context, provider ChatProvider, req StreamRequest, onChunk func(string)) (string, StreamMetadata, error) {
	var b strings.Builder
	var meta StreamMetadata
	err := provider.Stream(ctx, req, StreamCallbacks{
		OnChunk: func(msg ChatMessage) error {
			b.WriteString(msg.Content)
			if onChunk != nil && msg.Content != "" {
				onChunk(msg.Content)
			}
			return nil
		},
		OnComplete: func(m StreamMetadata) error {
			meta = m
			return nil
		},
	})
	if err != nil {
		return "", StreamMetadata{}, err
	}
	return b.String(), meta, nil
}
