// internal/commands/show_config.go
package docchat

import (
	"github.com/k0kubun/pp"
	"github.com/mwiater/docchat/internal/appconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// showCmd groups inspection commands.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show information about the current setup",
}

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overriden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			pp.Fprintln(cmd.OutOrStdout(), GetConfig())
			return
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), GetConfig())
	},
}

func init() {
	showConfigCmd.Flags().Bool("raw", false, "dump the decoded config struct")
	showCmd.AddCommand(showConfigCmd)
	rootCmd.AddCommand(showCmd)
}
