package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entralite/entralite/pkg/auth"
	"github.com/entralite/entralite/pkg/auth/claims"
)

func newPermissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect and request token permissions",
	}
	cmd.AddCommand(permissionsRequestCmd)
	return cmd
}

var permissionsRequestCmd = &cobra.Command{
	Use:   "request <scope>...",
	Short: "Request additional delegated scopes and re-run sign-in",
	Args:  cobra.MinimumNArgs(1),
	RunE:  permissionsRequestCmdFunc,
}

func permissionsRequestCmdFunc(cmd *cobra.Command, args []string) error {
	service, err := buildService(cmd)
	if err != nil {
		return err
	}
	if service.Mode() == auth.ModeClientCredentials {
		return fmt.Errorf("application permissions are granted in the app registration; scope requests only apply to interactive mode")
	}

	record, err := service.RequestAdditionalPermissions(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("permission request failed: %w", err)
	}

	fmt.Printf("Granted scopes: %s\n", strings.Join(record.Scopes, ", "))
	if decoded := claims.Permissions(record.AccessToken); len(decoded) > 0 {
		fmt.Printf("Token carries:  %s\n", strings.Join(decoded, ", "))
	}
	return nil
}
