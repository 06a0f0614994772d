package chat

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/ingest"
	"github.com/mwiater/docchat/internal/logging"
	"github.com/mwiater/docchat/internal/ocr"
	"github.com/mwiater/docchat/internal/providerfactory"
	"github.com/mwiater/docchat/internal/rag"
	"github.com/mwiater/docchat/internal/speech"
	"github.com/mwiater/docchat/internal/store"
)

// NewFromConfig wires a session from configuration. Retrieval, OCR and speech
// are optional and left disabled when their settings are missing. The returned
// close function releases the store, provider and embedding cache.
func NewFromConfig(cfg *appconfig.Config) (*Session, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	provider, err := providerfactory.NewChatProvider(cfg)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	closers := []func() error{db.Close, provider.Close}

	deps := Deps{Provider: provider, Store: db}
	if strings.TrimSpace(cfg.RagEmbeddingHost) != "" {
		emb, err := rag.NewEmbedder(cfg)
		if err != nil {
			closeAll(closers)
			return nil, nil, err
		}
		deps.Embedder = emb
		if c, ok := emb.(io.Closer); ok {
			closers = append(closers, c.Close)
		}
	} else {
		logging.LogEvent("document retrieval disabled: ragEmbeddingHost not set")
	}

	if client, err := ocr.New(cfg); err == nil {
		deps.Extractor.OCR = client
	} else {
		logging.LogEvent("image OCR disabled: %v", err)
	}

	if client, err := speech.New(cfg); err == nil {
		deps.Transcriber = client
		if cfg.TTSEnabled {
			deps.Speech = client
		}
	} else {
		logging.LogEvent("speech disabled: %v", err)
	}

	return NewSession(opts, deps), func() error { return closeAll(closers) }, nil
}

// Run wires a session from configuration and hands it to the chat UI.
func Run(cfg *appconfig.Config, startGUI func(context.Context, *appconfig.Config, *Session, context.CancelFunc) error) error {
	session, closeFn, err := NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logging.LogEvent("close session: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return startGUI(ctx, cfg, session, cancel)
}

// Ingester indexes files already on disk.
type Ingester interface {
	Ingest(ctx context.Context, paths ...string) (IngestReport, error)
}

// UploadAndIngest copies each file, or the supported files under each directory,
// into the upload directory and ingests the copies.
func UploadAndIngest(ctx context.Context, session Ingester, uploadDir string, paths []string) (IngestReport, error) {
	expanded, err := ingest.Expand(paths)
	if err != nil {
		return IngestReport{}, err
	}
	saved := make([]string, 0, len(expanded))
	var failed []FileReport
	for _, p := range expanded {
		dest, err := ingest.SaveUploadFile(uploadDir, p)
		if err != nil {
			failed = append(failed, FileReport{Path: p, Name: p, Kind: ingest.KindOf(p), Err: err})
			continue
		}
		saved = append(saved, dest)
	}
	report, err := session.Ingest(ctx, saved...)
	report.Files = append(failed, report.Files...)
	return report, err
}

func closeAll(closers []func() error) error {
	var firstErr error
	for _, c := range closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
