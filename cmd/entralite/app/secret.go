package app

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/entralite/entralite/pkg/config"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the client secret in the OS keyring",
	}
	cmd.AddCommand(secretSetCmd)
	cmd.AddCommand(secretClearCmd)
	return cmd
}

var secretSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the client secret in the OS keyring",
	RunE: func(_ *cobra.Command, _ []string) error {
		fmt.Print("Client secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		if err := config.StoreClientSecret(string(raw)); err != nil {
			return err
		}
		fmt.Println("Client secret stored in keyring")
		return nil
	},
}

var secretClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the client secret from the OS keyring",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := config.DeleteClientSecret(); err != nil {
			return err
		}
		fmt.Println("Client secret removed from keyring")
		return nil
	},
}
