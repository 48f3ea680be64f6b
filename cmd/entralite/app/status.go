package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the authentication configuration and session state",
	RunE:  statusCmdFunc,
}

func init() {
	statusCmd.Flags().Bool("permissions", false, "Acquire a token and show the permissions it actually carries")
}

func statusCmdFunc(cmd *cobra.Command, _ []string) error {
	service, err := buildService(cmd)
	if err != nil {
		return err
	}

	withPermissions, err := cmd.Flags().GetBool("permissions")
	if err != nil {
		return err
	}

	info, err := service.Info()
	if withPermissions {
		info, err = service.InfoWithPermissions(cmd.Context())
	}
	if err != nil {
		return err
	}

	fmt.Printf("Mode:          %s\n", info.Mode)
	fmt.Printf("Client ID:     %s\n", info.ClientID)
	fmt.Printf("Tenant ID:     %s\n", info.TenantID)
	fmt.Printf("Scopes:        %s\n", strings.Join(info.Scopes, ", "))
	fmt.Printf("Authenticated: %t\n", info.IsAuthenticated)
	if withPermissions {
		if len(info.Permissions) == 0 {
			fmt.Println("Permissions:   (none)")
		} else {
			fmt.Printf("Permissions:   %s\n", strings.Join(info.Permissions, ", "))
		}
	}
	return nil
}
