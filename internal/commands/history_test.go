// internal/commands/history_test.go
package docchat

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/store"
	"gopkg.in/yaml.v3"
)

func seededConfig(t *testing.T) (*appconfig.Config, int64) {
	t.Helper()
	cfg := &appconfig.Config{DatabasePath: filepath.Join(t.TempDir(), "chat.db")}
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	c, err := db.CreateChat(ctx, "Quarterly invoices")
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	for _, m := range []struct{ role, typ, content string }{
		{"user", store.TypeImage, "INVOICE 42 total 310 EUR"},
		{"user", store.TypeText, "What is the total?"},
		{"assistant", store.TypeText, "The total is 310 EUR."},
	} {
		if _, err := db.AddMessage(ctx, c.ID, m.role, m.typ, m.content); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}
	return cfg, c.ID
}

func TestListChats(t *testing.T) {
	cfg, _ := seededConfig(t)
	var out bytes.Buffer
	if err := listChats(context.Background(), cfg, &out); err != nil {
		t.Fatalf("listChats: %v", err)
	}
	if !strings.Contains(out.String(), "Quarterly invoices") {
		t.Errorf("expected chat title in %q", out.String())
	}
}

func TestListChatsEmpty(t *testing.T) {
	cfg := &appconfig.Config{DatabasePath: filepath.Join(t.TempDir(), "chat.db")}
	var out bytes.Buffer
	if err := listChats(context.Background(), cfg, &out); err != nil {
		t.Fatalf("listChats: %v", err)
	}
	if !strings.Contains(out.String(), "No chats yet.") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestPrintHistoryText(t *testing.T) {
	cfg, id := seededConfig(t)
	var out bytes.Buffer
	if err := printHistory(context.Background(), cfg, &out, id, false); err != nil {
		t.Fatalf("printHistory: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Quarterly invoices", "(image)", "What is the total?", "The total is 310 EUR."} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in %q", want, text)
		}
	}
	if strings.Index(text, "What is the total?") > strings.Index(text, "The total is 310 EUR.") {
		t.Error("expected messages in insertion order")
	}
}

func TestPrintHistoryYAML(t *testing.T) {
	cfg, id := seededConfig(t)
	var out bytes.Buffer
	if err := printHistory(context.Background(), cfg, &out, id, true); err != nil {
		t.Fatalf("printHistory: %v", err)
	}

	var got transcript
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, out.String())
	}
	if got.Chat.ID != id || got.Chat.Title != "Quarterly invoices" {
		t.Errorf("unexpected chat %+v", got.Chat)
	}
	if len(got.Messages) != 3 || got.Messages[0].Type != store.TypeImage || got.Messages[2].Role != "assistant" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestPrintHistoryUnknownChat(t *testing.T) {
	cfg, _ := seededConfig(t)
	err := printHistory(context.Background(), cfg, &bytes.Buffer{}, 999, false)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenStoreWithoutConfig(t *testing.T) {
	if _, err := openStore(nil); err == nil {
		t.Fatal("expected an error without config")
	}
}
