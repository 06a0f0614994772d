// Package logging routes the standard logger to stdout and an optional log file
// and formats request/response lines for the external services docchat calls.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// maxPayloadRunes caps logged payloads; embedding vectors and audio bodies are large.
const maxPayloadRunes = 2000

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init sends log output to stdout and, when logPath is set, appends to that file.
func Init(logPath string) error {
	return initWriters(logPath, true)
}

// InitFileOnly sends log output to logPath only. Interactive views use it so log
// lines do not interleave with the rendered screen.
func InitFileOnly(logPath string) error {
	return initWriters(logPath, false)
}

func initWriters(logPath string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if console {
		writers = append(writers, os.Stdout)
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		log.SetOutput(io.Discard)
		return nil
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close restores stderr logging and closes the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// LogEvent writes a formatted event line.
func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogRequest writes one line describing traffic to or from a service.
func LogRequest(direction, service, model, op string, payload any) {
	msg := buildRequestMessage(direction, service, model, op, payload)
	log.Println(msg)
}

func buildRequestMessage(direction, service, model, op string, payload any) string {
	dir := strings.TrimSpace(direction)
	if dir != "" {
		dir = strings.ToUpper(dir)
	}
	serviceValue := strings.TrimSpace(service)
	if serviceValue == "" {
		serviceValue = "unknown"
	}
	modelValue := strings.TrimSpace(model)
	if modelValue == "" {
		modelValue = "unknown"
	}
	parts := []string{fmt.Sprintf("[%s]", dir)}
	parts = append(parts, fmt.Sprintf("service=%s", serviceValue))
	parts = append(parts, fmt.Sprintf("model=%s", modelValue))
	if op = strings.TrimSpace(op); op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", op))
	}
	parts = append(parts, fmt.Sprintf("payload=%s", clip(formatPayload(payload))))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		if !utf8.Valid(v) {
			return fmt.Sprintf("<%d bytes>", len(v))
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxPayloadRunes {
		return s
	}
	runes := []rune(s)
	return fmt.Sprintf("%s…(%d more)", string(runes[:maxPayloadRunes]), len(runes)-maxPayloadRunes)
}
