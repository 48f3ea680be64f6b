package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entralite/entralite/pkg/auth"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the Graph profile of the signed-in user",
	RunE:  whoamiCmdFunc,
}

func whoamiCmdFunc(cmd *cobra.Command, _ []string) error {
	service, err := buildService(cmd)
	if err != nil {
		return err
	}
	if service.Mode() == auth.ModeClientCredentials {
		return errors.New("client-credentials sessions have no user; whoami requires interactive mode")
	}

	if _, err := service.SignIn(cmd.Context(), auth.ChannelSystemBrowser); err != nil {
		return fmt.Errorf("sign-in failed: %w", err)
	}

	profile, err := service.GetCurrentUser(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("ID:                  %s\n", profile.ID)
	fmt.Printf("Display name:        %s\n", profile.DisplayName)
	fmt.Printf("User principal name: %s\n", profile.UserPrincipalName)
	if profile.Mail != "" {
		fmt.Printf("Mail:                %s\n", profile.Mail)
	}
	return nil
}
