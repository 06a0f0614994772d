// internal/commands/rag.go
package docchat

import (
	"errors"
	"strings"

	"github.com/mwiater/docchat/internal/chat"
	"github.com/spf13/cobra"
)

// ragCmd groups retrieval tooling.
var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Document retrieval tools",
}

// ragPreviewCmd shows which chunks retrieval would add to a prompt.
var ragPreviewCmd = &cobra.Command{
	Use:   "preview <query>",
	Short: "Preview retrieval for a query against local documents",
	Long: `Index the given files in memory and print the chunks and context block
retrieval would add to the prompt. No generation request is made.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("config is not loaded")
		}
		files, _ := cmd.Flags().GetStringSlice("file")
		dirs, _ := cmd.Flags().GetStringSlice("dir")
		paths := append(append([]string{}, files...), dirs...)
		return chat.RunPreviewCommand(cmd.Context(), cfg, cmd.OutOrStdout(), strings.Join(args, " "), paths)
	},
}

func init() {
	ragPreviewCmd.Flags().StringSlice("file", nil, "document to index (repeatable)")
	ragPreviewCmd.Flags().StringSlice("dir", nil, "directory of documents to index (repeatable)")
	ragCmd.AddCommand(ragPreviewCmd)
	rootCmd.AddCommand(ragCmd)
}
