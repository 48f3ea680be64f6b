package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entralite/entralite/pkg/auth"
	"github.com/entralite/entralite/pkg/config"
	"github.com/entralite/entralite/pkg/logger"
)

// AddAuthFlags adds the Entra application flags shared by all commands.
func AddAuthFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("client-id", "", "Entra application (client) ID")
	cmd.PersistentFlags().String("tenant-id", "", "Entra directory (tenant) ID")
	cmd.PersistentFlags().StringSlice("scope", nil, "Delegated scope to request (repeatable)")
	cmd.PersistentFlags().Bool("client-credentials", false, "Use the client-credentials grant instead of interactive login")
	cmd.PersistentFlags().String("client-secret", "", "Client secret for the client-credentials grant")
	cmd.PersistentFlags().String("client-secret-file", "", "Path to a file containing the client secret")
}

// GetStringFlagOrEmpty tries to get the string value of the given flag.
// If the flag doesn't exist or there's an error, it returns an empty string.
func GetStringFlagOrEmpty(cmd *cobra.Command, flagName string) string {
	value, err := cmd.Flags().GetString(flagName)
	if err != nil {
		return ""
	}
	return value
}

// resolveAuthConfig merges the config file, environment and flags into the
// facade configuration. Flags win over the file.
func resolveAuthConfig(cmd *cobra.Command) (*auth.Config, error) {
	fileCfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	cfg := &auth.Config{
		ClientID:             fileCfg.ClientID,
		TenantID:             fileCfg.TenantID,
		Scopes:               fileCfg.Scopes,
		RedirectURL:          fileCfg.RedirectURL,
		UseClientCredentials: fileCfg.UseClientCredentials,
	}

	if v := GetStringFlagOrEmpty(cmd, "client-id"); v != "" {
		cfg.ClientID = v
	}
	if v := GetStringFlagOrEmpty(cmd, "tenant-id"); v != "" {
		cfg.TenantID = v
	}
	if scopes, err := cmd.Flags().GetStringSlice("scope"); err == nil && len(scopes) > 0 {
		cfg.Scopes = scopes
	}
	if useCC, err := cmd.Flags().GetBool("client-credentials"); err == nil && useCC {
		cfg.UseClientCredentials = true
	}

	if cfg.UseClientCredentials {
		secretFile := GetStringFlagOrEmpty(cmd, "client-secret-file")
		if secretFile == "" {
			secretFile = fileCfg.ClientSecretFile
		}
		secret, source, err := config.ResolveClientSecret(GetStringFlagOrEmpty(cmd, "client-secret"), secretFile)
		if err != nil {
			return nil, fmt.Errorf("client-credentials mode: %w", err)
		}
		logger.Debugf("Using client secret from %s", source)
		cfg.ClientSecret = secret
	}

	return cfg, nil
}

// buildService constructs and initializes the authentication facade from
// the resolved configuration.
func buildService(cmd *cobra.Command) (*auth.Service, error) {
	cfg, err := resolveAuthConfig(cmd)
	if err != nil {
		return nil, err
	}

	service := auth.NewService()
	if err := service.Initialize(cfg); err != nil {
		return nil, err
	}
	return service, nil
}
