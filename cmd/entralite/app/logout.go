package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entralite/entralite/pkg/config"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out of the current session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		service, err := buildService(cmd)
		if err != nil {
			return err
		}
		service.SignOut()
		fmt.Println("Signed out")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear all cached tokens and the stored client secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		service, err := buildService(cmd)
		if err != nil {
			return err
		}
		service.ClearCache(cmd.Context())
		if err := config.DeleteClientSecret(); err != nil {
			return err
		}
		fmt.Println("Token cache and stored client secret cleared")
		return nil
	},
}
