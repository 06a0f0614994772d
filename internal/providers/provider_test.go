package providers

import (
	"context"
	"errors"
	"testing"
)

type scriptedProvider struct {
	chunks []string
	err    error
}

func (p *scriptedProvider) Stream(ctx context.Context, req StreamRequest, callbacks StreamCallbacks) error {
	for _, c := range p.chunks {
		if err := callbacks.OnChunk(ChatMessage{Role: RoleAssistant, Content: c}); err != nil {
			return err
		}
	}
	if p.err != nil {
		return p.err
	}
	return callbacks.OnComplete(StreamMetadata{Model: req.Model, Done: true})
}

func (p *scriptedProvider) Close() error { return nil }

func TestMessagesPrependsSystemPrompt(t *testing.T) {
	req := StreamRequest{
		SystemPrompt: "be helpful",
		History:      []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}
	msgs := req.Messages()
	if len(msgs) != 2 || msgs[0].Role != RoleSystem || msgs[1].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	req.SystemPrompt = "  "
	if got := req.Messages(); len(got) != 1 {
		t.Fatalf("expected blank system prompt to be omitted, got %+v", got)
	}
}

func TestCollectConcatenatesChunks(t *testing.T) {
	provider := &scriptedProvider{chunks: []string{"Hel", "", "lo"}}
	var seen []string

	text, meta, err := Collect(context.Background(), provider, StreamRequest{Model: "m"}, func(s string) {
		seen = append(seen, s)
	})
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("expected Hello, got %q", text)
	}
	if len(seen) != 2 {
		t.Fatalf("expected empty increments to be skipped, got %v", seen)
	}
	if !meta.Done || meta.Model != "m" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestCollectReturnsError(t *testing.T) {
	boom := errors.New("boom")
	provider := &scriptedProvider{chunks: []string{"partial"}, err: boom}

	text, _, err := Collect(context.Background(), provider, StreamRequest{}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected no partial text on error, got %q", text)
	}
}
