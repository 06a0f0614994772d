// internal/commands/media.go
package docchat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mwiater/docchat/internal/ocr"
	"github.com/mwiater/docchat/internal/speech"
	"github.com/mwiater/docchat/internal/util"
	"github.com/spf13/cobra"
)

// ocrCmd extracts the text of an image.
var ocrCmd = &cobra.Command{
	Use:   "ocr <image>",
	Short: "Extract text from an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("config is not loaded")
		}
		client, err := ocr.New(cfg)
		if err != nil {
			return err
		}
		text, err := client.ReadFile(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			statusLine(cmd.ErrOrStderr(), "empty", "no text found in "+args[0])
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

// speakCmd synthesizes speech for a piece of text.
var speakCmd = &cobra.Command{
	Use:   "speak <text>",
	Short: "Synthesize speech to an MP3 file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("config is not loaded")
		}
		client, err := speech.New(cfg)
		if err != nil {
			return err
		}
		audio, err := client.Synthesize(commandContext(cmd), strings.Join(args, " "))
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if err := util.WriteFile(out, audio); err != nil {
			return err
		}
		statusLine(cmd.OutOrStdout(), "ok", fmt.Sprintf("wrote %d bytes to %s", len(audio), out))
		return nil
	},
}

// transcribeCmd converts a short WAV recording into text.
var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio.wav>",
	Short: "Transcribe a short WAV recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("config is not loaded")
		}
		client, err := speech.New(cfg)
		if err != nil {
			return err
		}
		audio, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		text, err := client.Transcribe(commandContext(cmd), audio)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	speakCmd.Flags().String("out", "speech.mp3", "output MP3 path")
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(speakCmd)
	rootCmd.AddCommand(transcribeCmd)
}
