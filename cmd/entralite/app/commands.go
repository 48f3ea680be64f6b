// Package app provides the entry point for the entralite command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/entralite/entralite/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "entralite",
	DisableAutoGenTag: true,
	Short:             "Entralite signs in to Microsoft Entra ID and manages Graph access tokens",
	Long: `Entralite authenticates against Microsoft Entra ID using the OAuth2
authorization-code flow with PKCE (through the system browser) or the
client-credentials grant (with a client secret), and hands out Microsoft
Graph access tokens for the resulting session.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if viper.GetBool("debug") {
			logger.Initialize()
		}
	},
}

// NewRootCmd creates a new root command for the Entralite CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	AddAuthFlags(rootCmd)

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(newPermissionsCmd())
	rootCmd.AddCommand(newSecretCmd())
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
