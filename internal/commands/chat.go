// internal/commands/chat.go
package docchat

import (
	"github.com/mwiater/docchat/internal/chat"
	"github.com/mwiater/docchat/internal/tui"
	"github.com/spf13/cobra"
)

// startGUI is a function alias to tui.StartGUI for starting the main chat interface.
var startGUI = tui.StartGUI

// chatCmd represents the 'chat' command, which starts an interactive chat session.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a chat session",
	Long: `The 'chat' command starts an interactive chat session. Pick a stored chat or
start a new one, then ask questions. Type "/upload <path...>" to add documents
or images to the conversation, "/voice <file.wav>" to ask by voice and "/new"
to start over.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return chat.Run(GetConfig(), startGUI)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
