package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/ingest"
	"github.com/mwiater/docchat/internal/providers"
	"github.com/mwiater/docchat/internal/store"
	"github.com/mwiater/docchat/internal/svcerr"
)

type recordingProvider struct {
	mu       sync.Mutex
	requests []providers.StreamRequest
	chunks   []string
	err      error
}

func (p *recordingProvider) Stream(ctx context.Context, req providers.StreamRequest, callbacks providers.StreamCallbacks) error {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, c := range p.chunks {
		if err := callbacks.OnChunk(providers.ChatMessage{Role: providers.RoleAssistant, Content: c}); err != nil {
			return err
		}
	}
	return callbacks.OnComplete(providers.StreamMetadata{Model: req.Model, Done: true})
}

func (p *recordingProvider) Close() error { return nil }

func (p *recordingProvider) last() providers.StreamRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

type keywordEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

var topics = []string{"apple", "sky", "ocean", "invoice"}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.failOn != "" && strings.Contains(strings.ToLower(text), e.failOn) {
		return nil, svcerr.Status("embedding", "embed", 503, nil)
	}
	lower := strings.ToLower(text)
	vec := make([]float64, len(topics)+1)
	for i, kw := range topics {
		vec[i] = float64(strings.Count(lower, kw))
	}
	vec[len(topics)] = 0.01
	return vec, nil
}

func (e *keywordEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type stubOCR struct {
	text string
	err  error
}

func (s stubOCR) ReadFile(ctx context.Context, path string) (string, error) { return s.text, s.err }

type stubSpeech struct {
	audio      []byte
	err        error
	texts      []string
	transcript string
	recordings [][]byte
}

func (s *stubSpeech) Transcribe(ctx context.Context, audio []byte) (string, error) {
	s.recordings = append(s.recordings, audio)
	return s.transcript, s.err
}

func (s *stubSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.texts = append(s.texts, text)
	return s.audio, s.err
}

type fixture struct {
	session  *Session
	provider *recordingProvider
	embedder *keywordEmbedder
	store    *store.Store
	dir      string
}

func newFixture(t *testing.T, opts Options, deps Deps) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "chat_history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	provider := &recordingProvider{chunks: []string{"The sky ", "is blue."}}
	embedder := &keywordEmbedder{}
	if deps.Provider == nil {
		deps.Provider = provider
	}
	deps.Store = db
	deps.Embedder = embedder
	if opts.Model == "" {
		opts.Host = appconfig.Host{Name: "azure", Type: "azure", SystemPrompt: "system prompt"}
		opts.Model = "gpt-4o"
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 350
	}
	if opts.TopK == 0 {
		opts.TopK = 1
	}
	if opts.MaxContextChars == 0 {
		opts.MaxContextChars = 3000
	}
	return &fixture{session: NewSession(opts, deps), provider: provider, embedder: embedder, store: db, dir: dir}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSendWithoutDocumentsSkipsRetrieval(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	ctx := context.Background()

	var streamed []string
	reply, err := f.session.Send(ctx, "  Hello there  ", func(c string) { streamed = append(streamed, c) })
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if reply.Content != "The sky is blue." || len(streamed) != 2 {
		t.Fatalf("unexpected reply %q chunks %v", reply.Content, streamed)
	}
	if f.embedder.count() != 0 {
		t.Fatalf("expected no embedding calls, got %d", f.embedder.count())
	}

	req := f.provider.last()
	if req.SystemPrompt != "system prompt" || req.Model != "gpt-4o" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.History) != 1 || req.History[0].Content != "Hello there" {
		t.Fatalf("expected only the user message, got %+v", req.History)
	}

	chat, err := f.store.Chat(ctx, reply.ChatID)
	if err != nil || chat.Title != "Hello there" {
		t.Fatalf("unexpected chat %+v (%v)", chat, err)
	}
	msgs, _ := f.store.Messages(ctx, reply.ChatID)
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" || msgs[1].Content != "The sky is blue." {
		t.Fatalf("unexpected persisted messages: %+v", msgs)
	}
}

func TestSendRetrievesRelevantContext(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	ctx := context.Background()

	report, err := f.session.Ingest(ctx,
		f.write(t, "apples.txt", "Apples are red."),
		f.write(t, "sky.txt", "The sky is blue."),
		f.write(t, "oceans.md", "Oceans are deep."),
	)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if report.Added != 3 || report.IndexSize != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}

	reply, err := f.session.Send(ctx, "What color is the sky?", nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if reply.Retrieval.Context != "The sky is blue." {
		t.Fatalf("unexpected context: %q", reply.Retrieval.Context)
	}

	req := f.provider.last()
	if len(req.History) != 2 {
		t.Fatalf("expected user message and context message, got %+v", req.History)
	}
	ctxMsg := req.History[1]
	if ctxMsg.Role != providers.RoleSystem || !strings.Contains(ctxMsg.Content, "--- CONTEXT FROM DOCUMENTS ---\nThe sky is blue.\n--- END OF CONTEXT ---") {
		t.Fatalf("unexpected context message: %+v", ctxMsg)
	}
}

func TestSendTitleTruncated(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	prompt := strings.Repeat("word ", 20)
	reply, err := f.session.Send(context.Background(), prompt, nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	chat, _ := f.store.Chat(context.Background(), reply.ChatID)
	if got := []rune(strings.TrimSuffix(chat.Title, "…")); len(got) != 40 {
		t.Fatalf("expected 40 rune title, got %q", chat.Title)
	}
}

func TestIngestReportsAndSkips(t *testing.T) {
	f := newFixture(t, Options{}, Deps{Extractor: ingest.Extractor{OCR: stubOCR{err: errors.New("vision down")}}})
	report, err := f.session.Ingest(context.Background(),
		f.write(t, "notes.txt", "Apples are red."),
		f.write(t, "sheet.xlsx", "nope"),
		f.write(t, "scan.png", "png"),
		f.write(t, "blank.txt", "   "),
	)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	statuses := make([]string, len(report.Files))
	for i, fr := range report.Files {
		statuses[i] = fr.Status()
	}
	want := []string{"ok", "unsupported", "unavailable", "empty"}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Fatalf("statuses = %v, want %v", statuses, want)
	}
	if f.session.CorpusSize() != 1 || report.IndexSize != 1 {
		t.Fatalf("expected only readable content indexed, got corpus=%d index=%d", f.session.CorpusSize(), report.IndexSize)
	}
}

func TestIngestRebuildsWholeIndex(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	ctx := context.Background()

	if _, err := f.session.Ingest(ctx, f.write(t, "a.txt", "Apples are red.")); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	before := f.embedder.count()
	report, err := f.session.Ingest(ctx, f.write(t, "b.txt", "The sky is blue."))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if report.IndexSize != 2 || f.embedder.count()-before != 2 {
		t.Fatalf("expected full rebuild of 2 chunks, index=%d calls=%d", report.IndexSize, f.embedder.count()-before)
	}
}

func TestIngestBuildFailureRollsBack(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	ctx := context.Background()

	if _, err := f.session.Ingest(ctx, f.write(t, "a.txt", "Apples are red.")); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	f.embedder.failOn = "ocean"
	_, err := f.session.Ingest(ctx, f.write(t, "b.txt", "Oceans are deep."))
	if !svcerr.Is(err) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if f.session.CorpusSize() != 1 {
		t.Fatalf("expected corpus rollback to 1 chunk, got %d", f.session.CorpusSize())
	}

	f.embedder.failOn = ""
	reply, err := f.session.Send(ctx, "apple color?", nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if reply.Retrieval.Context != "Apples are red." {
		t.Fatalf("expected previous index to survive, got %q", reply.Retrieval.Context)
	}
}

func TestIngestWithoutEmbedder(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	f.session.deps.Embedder = nil
	if _, err := f.session.Ingest(context.Background(), f.write(t, "a.txt", "Apples")); !errors.Is(err, ErrNoEmbedder) {
		t.Fatalf("expected ErrNoEmbedder, got %v", err)
	}
}

func TestImageTextPersistedAndRestoredOnSwitch(t *testing.T) {
	f := newFixture(t, Options{}, Deps{Extractor: ingest.Extractor{OCR: stubOCR{text: "INVOICE 42 total due"}}})
	ctx := context.Background()

	reply, err := f.session.Send(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if _, err := f.session.Ingest(ctx, f.write(t, "scan.jpeg", "jpeg")); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	msgs, _ := f.store.Messages(ctx, reply.ChatID)
	if len(msgs) != 3 || msgs[2].Type != store.TypeImage || msgs[2].Content != "INVOICE 42 total due" {
		t.Fatalf("expected recognized text persisted, got %+v", msgs)
	}

	f.session.Reset()
	if f.session.ChatID() != 0 || f.session.CorpusSize() != 0 || len(f.session.Messages()) != 0 {
		t.Fatal("Reset did not clear the session")
	}

	if err := f.session.SwitchChat(ctx, reply.ChatID); err != nil {
		t.Fatalf("SwitchChat returned error: %v", err)
	}
	if f.session.CorpusSize() != 1 || len(f.session.Messages()) != 3 {
		t.Fatalf("unexpected restored state: corpus=%d messages=%d", f.session.CorpusSize(), len(f.session.Messages()))
	}

	calls := f.embedder.count()
	second, err := f.session.Send(ctx, "what is the invoice number?", nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if second.ChatID != reply.ChatID {
		t.Fatalf("expected message in switched chat, got %d", second.ChatID)
	}
	if f.embedder.count()-calls != 2 {
		t.Fatalf("expected lazy rebuild plus query embedding, got %d calls", f.embedder.count()-calls)
	}
	if second.Retrieval.Context != "INVOICE 42 total due" {
		t.Fatalf("unexpected context: %q", second.Retrieval.Context)
	}
	if got := f.provider.last().History; len(got) != 5 {
		t.Fatalf("expected full history plus context, got %d messages", len(got))
	}
}

func TestImageTextIngestedBeforeFirstMessagePersisted(t *testing.T) {
	f := newFixture(t, Options{}, Deps{Extractor: ingest.Extractor{OCR: stubOCR{text: "INVOICE 42 total due"}}})
	ctx := context.Background()

	if _, err := f.session.Ingest(ctx, f.write(t, "scan.png", "png")); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if f.session.ChatID() != 0 {
		t.Fatal("ingest must not create a chat")
	}

	reply, err := f.session.Send(ctx, "what is the invoice number?", nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	msgs, _ := f.store.Messages(ctx, reply.ChatID)
	if len(msgs) != 3 || msgs[0].Type != store.TypeImage || msgs[0].Content != "INVOICE 42 total due" || msgs[1].Content != "what is the invoice number?" {
		t.Fatalf("expected recognized text stored ahead of the first prompt, got %+v", msgs)
	}

	f.session.Reset()
	if err := f.session.SwitchChat(ctx, reply.ChatID); err != nil {
		t.Fatalf("SwitchChat returned error: %v", err)
	}
	if f.session.CorpusSize() != 1 {
		t.Fatalf("expected corpus rebuilt from the stored image text, got %d chunks", f.session.CorpusSize())
	}
}

func TestResetDropsUnsavedImageText(t *testing.T) {
	f := newFixture(t, Options{}, Deps{Extractor: ingest.Extractor{OCR: stubOCR{text: "receipt"}}})
	ctx := context.Background()

	if _, err := f.session.Ingest(ctx, f.write(t, "scan.png", "png")); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	f.session.Reset()
	reply, err := f.session.Send(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	msgs, _ := f.store.Messages(ctx, reply.ChatID)
	if len(msgs) != 2 || msgs[0].Type != store.TypeText {
		t.Fatalf("expected only the new turn, got %+v", msgs)
	}
}

func TestTranscribe(t *testing.T) {
	sp := &stubSpeech{transcript: "  what is due?  "}
	f := newFixture(t, Options{}, Deps{Transcriber: sp})
	path := f.write(t, "question.wav", "RIFF")

	text, err := f.session.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "what is due?" || len(sp.recordings) != 1 || string(sp.recordings[0]) != "RIFF" {
		t.Fatalf("unexpected transcription: text=%q recordings=%q", text, sp.recordings)
	}

	sp.transcript = " "
	if _, err := f.session.Transcribe(context.Background(), path); err == nil {
		t.Fatal("expected an error when nothing was recognized")
	}

	sp.err = svcerr.Status("speech", "transcribe", 401, nil)
	if _, err := f.session.Transcribe(context.Background(), path); !svcerr.Is(err) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
}

func TestTranscribeWithoutSpeech(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	if _, err := f.session.Transcribe(context.Background(), "missing.wav"); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestSwitchChatUnknown(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	if err := f.session.SwitchChat(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSendGenerationFailure(t *testing.T) {
	failing := &recordingProvider{err: svcerr.Status("generation", "chat", 500, []byte("down"))}
	f := newFixture(t, Options{}, Deps{Provider: failing})
	reply, err := f.session.Send(context.Background(), "hello", nil)
	if !svcerr.Is(err) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	msgs, _ := f.store.Messages(context.Background(), reply.ChatID)
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("expected only the user message persisted, got %+v", msgs)
	}
}

func TestSendEmptyPrompt(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	if _, err := f.session.Send(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if chats, _ := f.session.Chats(context.Background()); len(chats) != 0 {
		t.Fatalf("expected no chat created, got %+v", chats)
	}
}

func TestSendSpeaksReply(t *testing.T) {
	sp := &stubSpeech{audio: []byte("mp3")}
	f := newFixture(t, Options{
		Host:  appconfig.Host{Name: "h"},
		Model: "m",
		TTS:   true,
	}, Deps{Speech: sp})
	reply, err := f.session.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if string(reply.Audio) != "mp3" || len(sp.texts) != 1 || sp.texts[0] != "The sky is blue." {
		t.Fatalf("unexpected speech: audio=%q texts=%v", reply.Audio, sp.texts)
	}

	sp.err = svcerr.Status("speech", "synthesize", 401, nil)
	reply, err = f.session.Send(context.Background(), "again", nil)
	if err != nil {
		t.Fatalf("speech failure should not fail the turn: %v", err)
	}
	if reply.Audio != nil || reply.AudioErr == nil {
		t.Fatalf("expected absent audio with error, got %q %v", reply.Audio, reply.AudioErr)
	}
}

func TestUploadAndIngestCopiesFiles(t *testing.T) {
	f := newFixture(t, Options{}, Deps{})
	uploads := filepath.Join(f.dir, "uploads")
	src := f.write(t, "guide.md", "Apples are red.")

	report, err := UploadAndIngest(context.Background(), f.session, uploads, []string{src, filepath.Join(f.dir, "missing.txt")})
	if err != nil {
		t.Fatalf("UploadAndIngest returned error: %v", err)
	}
	if len(report.Files) != 2 || report.Files[0].Status() != "failed" || report.Files[1].Status() != "ok" {
		t.Fatalf("unexpected report: %+v", report.Files)
	}
	if _, err := os.Stat(filepath.Join(uploads, "guide.md")); err != nil {
		t.Fatalf("expected copy in uploads: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &appconfig.Config{
		Hosts:      []appconfig.Host{{Name: "azure", Type: "azure", Models: []string{"gpt-4o"}}},
		RagTopK:    2,
		TTSEnabled: true,
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig returned error: %v", err)
	}
	if opts.Model != "gpt-4o" || opts.TopK != 2 || opts.ChunkSize != 350 || opts.MaxContextChars != 3000 || !opts.TTS {
		t.Fatalf("unexpected options: %+v", opts)
	}
}
