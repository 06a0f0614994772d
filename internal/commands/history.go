// internal/commands/history.go
package docchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/mwiater/docchat/internal/store"
	"github.com/mwiater/docchat/internal/util"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// chatsCmd lists stored chats, newest first.
var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List stored chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listChats(cmd.Context(), GetConfig(), cmd.OutOrStdout())
	},
}

// historyCmd prints the messages of one stored chat.
var historyCmd = &cobra.Command{
	Use:   "history <chat-id>",
	Short: "Print the messages of a stored chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat id %q", args[0])
		}
		asYAML, _ := cmd.Flags().GetBool("yaml")
		return printHistory(cmd.Context(), GetConfig(), cmd.OutOrStdout(), id, asYAML)
	},
}

// transcript is the YAML form of a stored chat.
type transcript struct {
	Chat     store.Chat      `yaml:"chat"`
	Messages []store.Message `yaml:"messages"`
}

func openStore(cfg *appconfig.Config) (*store.Store, error) {
	if cfg == nil {
		return nil, errors.New("config is not loaded")
	}
	return store.Open(cfg.DBPath())
}

func listChats(ctx context.Context, cfg *appconfig.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	chats, err := db.ListChats(ctx)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(out, "No chats yet.")
		return nil
	}
	for _, c := range chats {
		fmt.Fprintf(out, "%s  %s  %s\n", labelText(fmt.Sprintf("%4d", c.ID)), c.CreatedAt.Local().Format(time.DateTime), c.Title)
	}
	return nil
}

func printHistory(ctx context.Context, cfg *appconfig.Config, out io.Writer, id int64, asYAML bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := db.Chat(ctx, id)
	if err != nil {
		return err
	}
	messages, err := db.Messages(ctx, id)
	if err != nil {
		return err
	}

	if asYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(transcript{Chat: c, Messages: messages}); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(out, "%s %s\n\n", labelText("Chat:"), c.Title)
	for _, m := range messages {
		role := m.Role
		if m.Type == store.TypeImage {
			role += " (image)"
		}
		fmt.Fprintf(out, "%s %s\n", labelText(role+":"), util.TruncateRunes(m.Content, 2000))
	}
	return nil
}

func init() {
	historyCmd.Flags().Bool("yaml", false, "print the chat as YAML")
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(historyCmd)
}
