package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		fmt.Fprintln(out, "  (configuration not loaded)")
		return
	}

	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Timeout:         %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Hosts:           %d\n", len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		fmt.Fprintf(out, "    - %s (%s) %s models=%v\n", host.Name, host.Type, host.URL, host.Models)
	}
	if host, model, err := cfg.ChatTarget(); err == nil {
		fmt.Fprintf(out, "  Chat:            %s on %s (streaming: %v)\n", model, host.Name, !cfg.DisableStreaming)
	} else {
		fmt.Fprintf(out, "  Chat:            unavailable (%v)\n", err)
	}
	fmt.Fprintf(out, "  RAG Embedding Host:  %s\n", cfg.RagEmbeddingHost)
	fmt.Fprintf(out, "  RAG Embedding Model: %s\n", cfg.RagEmbeddingModel)
	fmt.Fprintf(out, "  RAG Embedding Cache: %s\n", valueOrNone(cfg.RagEmbeddingCachePath))
	fmt.Fprintf(out, "  RAG Chunk Size Tokens: %d\n", cfg.ChunkSize())
	fmt.Fprintf(out, "  RAG Chunk Overlap Tokens: %d\n", cfg.ChunkOverlap())
	fmt.Fprintf(out, "  RAG Top K:       %d\n", cfg.TopK())
	fmt.Fprintf(out, "  RAG Context Char Limit: %d\n", cfg.ContextCharLimit())
	fmt.Fprintf(out, "  OCR Endpoint:    %s\n", valueOrNone(cfg.OCREndpoint))
	fmt.Fprintf(out, "  OCR Polling:     %d x %s\n", cfg.OCRAttempts(), cfg.OCRInterval())
	fmt.Fprintf(out, "  Speech Endpoint: %s\n", valueOrNone(cfg.SpeechEndpoint))
	fmt.Fprintf(out, "  Speech Voice:    %s\n", cfg.Voice())
	fmt.Fprintf(out, "  TTS Enabled:     %v\n", cfg.TTSEnabled)
	fmt.Fprintf(out, "  Database:        %s\n", cfg.DBPath())
	fmt.Fprintf(out, "  Upload Dir:      %s\n", cfg.UploadPath())
}

func valueOrNone(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
