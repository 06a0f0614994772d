// internal/util/util.go
package util

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// WriteFile writes data to a file with 0o644 permissions, creating parent directories.
func WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// CutRunes returns at most maxRunes runes of text with no marker.
// A non-positive maxRunes leaves text untouched.
func CutRunes(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return string([]rune(text)[:maxRunes])
}

// ChatTitle derives a chat title from the first prompt of a conversation.
func ChatTitle(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	if title == "" {
		return "New Chat"
	}
	return TruncateRunes(title, 40)
}
