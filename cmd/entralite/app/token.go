package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entralite/entralite/pkg/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Acquire a Graph access token and print it",
	Long: `Acquire a Microsoft Graph access token and print it to stdout.
Interactive mode runs a sign-in through the system browser;
client-credentials mode acquires the token directly.`,
	RunE: tokenCmdFunc,
}

func tokenCmdFunc(cmd *cobra.Command, _ []string) error {
	service, err := buildService(cmd)
	if err != nil {
		return err
	}

	// Client-credentials sessions can serve GetToken straight away; the
	// interactive flow needs a sign-in first.
	record, err := service.GetToken(cmd.Context())
	if err != nil {
		record, err = service.SignIn(cmd.Context(), auth.ChannelSystemBrowser)
		if err != nil {
			return fmt.Errorf("token acquisition failed: %w", err)
		}
	}

	fmt.Println(record.AccessToken)
	return nil
}
