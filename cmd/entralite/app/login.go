package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entralite/entralite/pkg/auth"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Microsoft Entra ID",
	Long: `Sign in to Microsoft Entra ID. Interactive mode opens the system
browser and captures the redirect on a local listener; client-credentials
mode acquires an app-only token with the configured secret.`,
	RunE: loginCmdFunc,
}

func init() {
	loginCmd.Flags().Bool("system-browser", true, "Use the system browser for the interactive flow")
}

func loginCmdFunc(cmd *cobra.Command, _ []string) error {
	service, err := buildService(cmd)
	if err != nil {
		return err
	}

	channel, err := channelFromFlags(cmd)
	if err != nil {
		return err
	}

	record, err := service.SignIn(cmd.Context(), channel)
	if err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	if identity := service.Identity(); identity != nil {
		fmt.Printf("Signed in as %s", identity.Username)
		if identity.DisplayName != "" {
			fmt.Printf(" (%s)", identity.DisplayName)
		}
		fmt.Println()
		if identity.Placeholder {
			fmt.Println("Note: profile details could not be retrieved; the session is authenticated but anonymous.")
		}
	} else {
		fmt.Println("Acquired application token (client-credentials mode)")
	}
	fmt.Printf("Token valid until %s\n", record.Expiry.Format("2006-01-02 15:04:05 MST"))
	return nil
}

// channelFromFlags maps the CLI flags to a sign-in channel. The embedded
// channel needs a host application surface, which a terminal cannot supply.
func channelFromFlags(cmd *cobra.Command) (auth.Channel, error) {
	useSystemBrowser, err := cmd.Flags().GetBool("system-browser")
	if err != nil {
		return "", err
	}
	if !useSystemBrowser {
		return "", errors.New("the embedded channel requires a host application browser surface; only --system-browser is available from the CLI")
	}
	return auth.ChannelSystemBrowser, nil
}
