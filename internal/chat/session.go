// Package chat holds the conversation session: chat history, the uploaded
// document corpus and its vector index, and the send/ingest operations the
// interactive UI and CLI commands drive.
package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/ingest"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/providers"
	"github.com/mwiater/docchat/internal/rag"
	"github.com/mwiater/docchat/internal/store"
	"github.com/mwiater/docchat/internal/util"
)

// ErrNoEmbedder is returned when documents are ingested without an embedding host configured.
var ErrNoEmbedder = errors.New("document retrieval is not configured (set ragEmbeddingHost and ragEmbeddingModel)")

// ErrNoSpeech is returned when a recording is transcribed without a speech endpoint configured.
var ErrNoSpeech = errors.New("speech recognition is not configured (set speechEndpoint)")

// Synthesizer turns reply text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcriber turns a recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Options control generation and retrieval for a session.
type Options struct {
	Host             appconfig.Host
	Model            string
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	MaxContextChars  int
	DisableStreaming bool
	TTS              bool
}

// OptionsFromConfig resolves session options from the application configuration.
func OptionsFromConfig(cfg *appconfig.Config) (Options, error) {
	host, model, err := cfg.ChatTarget()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Host:             host,
		Model:            model,
		ChunkSize:        cfg.ChunkSize(),
		ChunkOverlap:     cfg.ChunkOverlap(),
		TopK:             cfg.TopK(),
		MaxContextChars:  cfg.ContextCharLimit(),
		DisableStreaming: cfg.DisableStreaming,
		TTS:              cfg.TTSEnabled,
	}, nil
}

// Deps are the services a session calls. Embedder, Speech and Transcriber may be nil.
type Deps struct {
	Provider    providers.ChatProvider
	Store       *store.Store
	Embedder    rag.Embedder
	Extractor   ingest.Extractor
	Speech      Synthesizer
	Transcriber Transcriber
}

// Session is one user's conversation state. Methods are safe to call from the
// UI goroutine and tea commands, but run one at a time.
type Session struct {
	ID string

	mu       sync.Mutex
	opts     Options
	deps     Deps
	chat     *store.Chat
	messages []store.Message
	corpus   []string
	index    *rag.Index
	stale    bool
	// pending holds recognized image text ingested before the chat exists.
	pending []string
}

// NewSession constructs an empty session.
func NewSession(opts Options, deps Deps) *Session {
	return &Session{
		ID:   uuid.NewString(),
		opts: opts,
		deps: deps,
	}
}

// Reply is the outcome of a successful Send.
type Reply struct {
	ChatID    int64
	Content   string
	Retrieval rag.RetrievalResult
	Meta      providers.StreamMetadata
	// Audio is nil when speech is disabled or synthesis failed; AudioErr holds the failure.
	Audio    []byte
	AudioErr error
}

// FileReport describes the outcome of ingesting one file.
type FileReport struct {
	Path   string
	Name   string
	Kind   string
	Chunks int
	Err    error
}

// Status summarizes the report for display.
func (r FileReport) Status() string {
	switch {
	case r.Err == nil && r.Chunks == 0:
		return "empty"
	case r.Err == nil:
		return "ok"
	case errors.Is(r.Err, ingest.ErrUnsupported):
		return "unsupported"
	case r.Kind == ingest.KindImage:
		return "unavailable"
	default:
		return "failed"
	}
}

// IngestReport summarizes an ingestion batch.
type IngestReport struct {
	Files     []FileReport
	Added     int
	IndexSize int
}

// ChatID returns the active chat id, or 0 when no chat is active.
func (s *Session) ChatID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return 0
	}
	return s.chat.ID
}

// Title returns the active chat title, or "" when no chat is active.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chat == nil {
		return ""
	}
	return s.chat.Title
}

// Messages returns a copy of the active chat's messages.
func (s *Session) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Message(nil), s.messages...)
}

// CorpusSize returns the number of chunks uploaded in this session.
func (s *Session) CorpusSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.corpus)
}

// Model returns the host and model used for generation.
func (s *Session) Model() (string, string) {
	return s.opts.Host.Name, s.opts.Model
}

// Chats lists stored chats, newest first.
func (s *Session) Chats(ctx context.Context) ([]store.Chat, error) {
	return s.deps.Store.ListChats(ctx)
}

// Reset starts a new chat: the active chat, its messages, the corpus and the index are dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat = nil
	s.messages = nil
	s.corpus = nil
	s.index = nil
	s.stale = false
	s.pending = nil
	logging.LogEvent("session %s: new chat", s.ID)
}

// SwitchChat makes chat id active. Its messages are loaded and the corpus is
// rebuilt from its recognized-image messages; the index is rebuilt on the next Send.
func (s *Session) SwitchChat(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.deps.Store.Chat(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := s.deps.Store.Messages(ctx, id)
	if err != nil {
		return err
	}

	var corpus []string
	for _, m := range msgs {
		if m.Type == store.TypeImage {
			corpus = append(corpus, s.chunk(m.Content)...)
		}
	}

	s.chat = &chat
	s.messages = msgs
	s.corpus = corpus
	s.index = nil
	s.stale = len(corpus) > 0
	s.pending = nil
	logging.LogEvent("session %s: switched to chat %d (%d messages, %d chunks)", s.ID, id, len(msgs), len(corpus))
	return nil
}

// Ingest extracts each file, chunks the text and rebuilds the index over the
// whole corpus. Files that cannot be read are reported and skipped. When the
// rebuild fails the batch is rolled back and the error is returned.
func (s *Session) Ingest(ctx context.Context, paths ...string) (IngestReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report IngestReport
	var added []string
	var recognized []string
	for _, res := range s.deps.Extractor.ExtractAll(ctx, paths) {
		fr := FileReport{Path: res.Document.Path, Name: res.Document.Name, Kind: res.Document.Kind, Err: res.Err}
		if res.Err == nil {
			chunks := s.chunk(res.Document.Text)
			fr.Chunks = len(chunks)
			added = append(added, chunks...)
			if res.Document.Kind == ingest.KindImage && len(chunks) > 0 {
				recognized = append(recognized, res.Document.Text)
			}
		} else {
			logging.LogEvent("ingest %s: %v", fr.Name, res.Err)
		}
		report.Files = append(report.Files, fr)
	}

	if len(added) == 0 {
		report.IndexSize = s.index.Len()
		return report, nil
	}
	if s.deps.Embedder == nil {
		return report, ErrNoEmbedder
	}

	corpus := append(append([]string(nil), s.corpus...), added...)
	idx, err := rag.Build(ctx, s.deps.Embedder, corpus)
	if err != nil {
		return report, fmt.Errorf("rebuild index: %w", err)
	}
	s.corpus = corpus
	s.index = idx
	s.stale = false
	report.Added = len(added)
	report.IndexSize = idx.Len()

	if s.chat == nil {
		s.pending = append(s.pending, recognized...)
	} else if err := s.persistRecognized(ctx, recognized); err != nil {
		return report, err
	}
	logging.LogEvent("session %s: ingested %d files, +%d chunks, index=%d", s.ID, len(paths), len(added), idx.Len())
	return report, nil
}

// Send answers prompt. A chat is created on the first message, the prompt is
// persisted, document context is retrieved when anything has been uploaded,
// and the reply is generated, persisted and optionally spoken. onChunk observes
// generated text as it arrives.
func (s *Session) Send(ctx context.Context, prompt string, onChunk func(string)) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Reply{}, errors.New("prompt is empty")
	}

	if s.chat == nil {
		chat, err := s.deps.Store.CreateChat(ctx, util.ChatTitle(prompt))
		if err != nil {
			return Reply{}, err
		}
		s.chat = &chat
		logging.LogEvent("session %s: created chat %d %q", s.ID, chat.ID, chat.Title)
		if err := s.persistRecognized(ctx, s.pending); err != nil {
			return Reply{ChatID: chat.ID}, err
		}
		s.pending = nil
	}
	reply := Reply{ChatID: s.chat.ID}

	userMsg, err := s.deps.Store.AddMessage(ctx, s.chat.ID, providers.RoleUser, store.TypeText, prompt)
	if err != nil {
		return reply, err
	}
	s.messages = append(s.messages, userMsg)

	if err := s.ensureIndex(ctx); err != nil {
		return reply, err
	}
	if s.index.Len() > 0 {
		retriever := rag.Retriever{Embedder: s.deps.Embedder, TopK: s.opts.TopK, MaxChars: s.opts.MaxContextChars}
		reply.Retrieval, err = retriever.Context(ctx, s.index, prompt)
		if err != nil {
			return reply, fmt.Errorf("retrieve context: %w", err)
		}
		logging.LogEvent("session %s: retrieved %d chunks (%d chars) in %dms", s.ID, len(reply.Retrieval.Chunks), reply.Retrieval.ContextChars, reply.Retrieval.RetrievalMs)
	}

	history := s.history()
	if msg, ok := rag.ContextMessage(reply.Retrieval.Context); ok {
		history = append(history, msg)
	}

	content, meta, err := providers.Collect(ctx, s.deps.Provider, providers.StreamRequest{
		Host:             s.opts.Host,
		Model:            s.opts.Model,
		History:          history,
		SystemPrompt:     s.opts.Host.Prompt(),
		Parameters:       s.opts.Host.Parameters,
		DisableStreaming: s.opts.DisableStreaming,
	}, onChunk)
	if err != nil {
		return reply, err
	}
	reply.Content = content
	reply.Meta = meta

	assistantMsg, err := s.deps.Store.AddMessage(ctx, s.chat.ID, providers.RoleAssistant, store.TypeText, content)
	if err != nil {
		return reply, err
	}
	s.messages = append(s.messages, assistantMsg)

	if s.opts.TTS && s.deps.Speech != nil && strings.TrimSpace(content) != "" {
		reply.Audio, reply.AudioErr = s.deps.Speech.Synthesize(ctx, content)
		if reply.AudioErr != nil {
			logging.LogEvent("session %s: speech unavailable: %v", s.ID, reply.AudioErr)
			reply.Audio = nil
		}
	}
	return reply, nil
}

// Transcribe converts the recording at path into prompt text.
func (s *Session) Transcribe(ctx context.Context, path string) (string, error) {
	if s.deps.Transcriber == nil {
		return "", ErrNoSpeech
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text, err := s.deps.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no speech recognized in %s", filepath.Base(path))
	}
	logging.LogEvent("session %s: transcribed %s (%d chars)", s.ID, filepath.Base(path), len(text))
	return text, nil
}

// persistRecognized stores recognized image text as image messages of the active chat.
func (s *Session) persistRecognized(ctx context.Context, texts []string) error {
	for _, text := range texts {
		msg, err := s.deps.Store.AddMessage(ctx, s.chat.ID, providers.RoleUser, store.TypeImage, text)
		if err != nil {
			return err
		}
		s.messages = append(s.messages, msg)
	}
	return nil
}

func (s *Session) ensureIndex(ctx context.Context) error {
	if !s.stale {
		return nil
	}
	if s.deps.Embedder == nil {
		s.stale = false
		return nil
	}
	idx, err := rag.Build(ctx, s.deps.Embedder, s.corpus)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	s.index = idx
	s.stale = false
	return nil
}

func (s *Session) history() []providers.ChatMessage {
	out := make([]providers.ChatMessage, 0, len(s.messages)+1)
	for _, m := range s.messages {
		out = append(out, providers.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (s *Session) chunk(text string) []string {
	return rag.Texts(rag.ChunkText(text, s.opts.ChunkSize, s.opts.ChunkOverlap))
}
