// internal/commands/output.go
package docchat

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	okText    = color.New(color.FgGreen).SprintFunc()
	warnText  = color.New(color.FgYellow).SprintFunc()
	errText   = color.New(color.FgRed).SprintFunc()
	labelText = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// statusLine prints "label: message" with the label colored by outcome.
func statusLine(out io.Writer, status, message string) {
	var label string
	switch status {
	case "ok":
		label = okText(status)
	case "empty", "unsupported", "unavailable":
		label = warnText(status)
	default:
		label = errText(status)
	}
	fmt.Fprintf(out, "[%s] %s\n", label, message)
}
