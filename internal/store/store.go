// Package store persists chats and their messages in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Message types.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// ErrNotFound is returned when a chat does not exist.
var ErrNotFound = errors.New("chat not found")

// Chat is a titled conversation.
type Chat struct {
	ID        int64     `db:"id" json:"id" yaml:"id"`
	Title     string    `db:"title" json:"title" yaml:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
}

// Message is one persisted turn of a chat. Type is "text" for typed turns and
// "image" for text recognized from an uploaded image.
type Message struct {
	ID        int64     `db:"id" json:"id" yaml:"id"`
	ChatID    int64     `db:"chat_id" json:"chat_id" yaml:"chat_id"`
	Role      string    `db:"role" json:"role" yaml:"role"`
	Type      string    `db:"type" json:"type" yaml:"type"`
	Content   string    `db:"content" json:"content" yaml:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at" yaml:"created_at"`
}

// Store is a SQLite-backed chat history.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id    INTEGER NOT NULL REFERENCES chats(id),
	role       TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'text',
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at, id);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateChat inserts a chat with the given title.
func (s *Store) CreateChat(ctx context.Context, title string) (Chat, error) {
	chat := Chat{Title: strings.TrimSpace(title), CreatedAt: s.now()}
	if chat.Title == "" {
		chat.Title = "New Chat"
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO chats (title, created_at) VALUES (?, ?)`, chat.Title, chat.CreatedAt)
	if err != nil {
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}
	if chat.ID, err = res.LastInsertId(); err != nil {
		return Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// Chat returns the chat with id, or ErrNotFound.
func (s *Store) Chat(ctx context.Context, id int64) (Chat, error) {
	var chat Chat
	err := s.db.GetContext(ctx, &chat, `SELECT id, title, created_at FROM chats WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Chat{}, fmt.Errorf("chat %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Chat{}, fmt.Errorf("get chat %d: %w", id, err)
	}
	return chat, nil
}

// ListChats returns every chat, newest first.
func (s *Store) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := s.db.SelectContext(ctx, &chats, `SELECT id, title, created_at FROM chats ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// AddMessage appends a message to a chat.
func (s *Store) AddMessage(ctx context.Context, chatID int64, role, typ, content string) (Message, error) {
	if typ == "" {
		typ = TypeText
	}
	msg := Message{ChatID: chatID, Role: role, Type: typ, Content: content, CreatedAt: s.now()}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO messages (chat_id, role, type, content, created_at)
		 VALUES (:chat_id, :role, :type, :content, :created_at)`, msg)
	if err != nil {
		return Message{}, fmt.Errorf("add message to chat %d: %w", chatID, err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return Message{}, fmt.Errorf("add message to chat %d: %w", chatID, err)
	}
	return msg, nil
}

// Messages returns a chat's messages in insertion order.
func (s *Store) Messages(ctx context.Context, chatID int64) ([]Message, error) {
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs,
		`SELECT id, chat_id, role, type, content, created_at FROM messages
		 WHERE chat_id = ? ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages for chat %d: %w", chatID, err)
	}
	return msgs, nil
}
