package rag

import (
	"strings"

	"github.com/mwiater/docchat/internal/providers"
	"github.com/mwiater/docchat/internal/util"
)

const (
	contextHeader = "--- CONTEXT FROM DOCUMENTS ---"
	contextFooter = "--- END OF CONTEXT ---"
)

// Assemble joins chunks with a blank line and cuts the result to at most maxChars
// characters. maxChars <= 0 means no cap.
func Assemble(chunks []string, maxChars int) string {
	if len(chunks) == 0 {
		return ""
	}
	return util.CutRunes(strings.Join(chunks, "\n\n"), maxChars)
}

// ContextMessage wraps assembled context in the system message sent ahead of the
// user's question. It reports false for blank context so the caller can omit it.
func ContextMessage(context string) (providers.ChatMessage, bool) {
	if strings.TrimSpace(context) == "" {
		return providers.ChatMessage{}, false
	}
	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteString("\n")
	b.WriteString(context)
	b.WriteString("\n")
	b.WriteString(contextFooter)
	return providers.ChatMessage{Role: providers.RoleSystem, Content: b.String()}, true
}
