// Package config loads the application configuration from the XDG config
// file, environment variables and flags, and resolves the client secret
// from its possible sources.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/entralite/entralite/pkg/logger"
)

const (
	appName   = "entralite"
	envPrefix = "ENTRALITE"

	keyringService = "entralite"
	keyringUser    = "client-secret"

	// EnvClientSecret is the environment fallback for the client secret.
	EnvClientSecret = "ENTRALITE_CLIENT_SECRET"
)

// Config is the on-disk application configuration. The client secret is
// deliberately not part of it; see ResolveClientSecret.
type Config struct {
	ClientID             string   `mapstructure:"client_id"`
	TenantID             string   `mapstructure:"tenant_id"`
	Scopes               []string `mapstructure:"scopes"`
	RedirectURL          string   `mapstructure:"redirect_url"`
	UseClientCredentials bool     `mapstructure:"use_client_credentials"`

	// ClientSecretFile points at a file holding the client secret, as an
	// alternative to the keyring or environment.
	ClientSecretFile string `mapstructure:"client_secret_file"`
}

// FilePath returns the config file location under the XDG config home,
// creating parent directories as needed.
func FilePath() (string, error) {
	return xdg.ConfigFile(appName + "/config.yaml")
}

// Load reads the configuration file and applies environment overrides
// (ENTRALITE_ prefix). A missing config file is not an error; the zero
// configuration is returned and the environment still applies.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys must be registered for AutomaticEnv to see them during
	// Unmarshal.
	for _, key := range []string{
		"client_id", "tenant_id", "scopes", "redirect_url",
		"use_client_credentials", "client_secret_file",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment key %s: %w", key, err)
		}
	}

	path, err := FilePath()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config file: %w", err)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
		logger.Debugf("No config file at %s, using environment only", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &cfg, nil
}

// ResolveClientSecret resolves the client secret by priority: explicit flag
// value, secret file, OS keyring, environment variable. Returns the secret
// and the name of the source that provided it.
func ResolveClientSecret(flagValue, secretFile string) (string, string, error) {
	if flagValue != "" {
		return flagValue, "flag", nil
	}

	if secretFile != "" {
		data, err := os.ReadFile(secretFile)
		if err != nil {
			return "", "", fmt.Errorf("failed to read client secret file: %w", err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", "", fmt.Errorf("client secret file %s is empty", secretFile)
		}
		return secret, "file", nil
	}

	secret, err := keyring.Get(keyringService, keyringUser)
	if err == nil && secret != "" {
		return secret, "keyring", nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		logger.Debugf("Keyring lookup failed: %v", err)
	}

	if secret := os.Getenv(EnvClientSecret); secret != "" {
		return secret, "environment", nil
	}

	return "", "", errors.New("no client secret found in flag, file, keyring or environment")
}

// StoreClientSecret saves the client secret in the OS keyring.
func StoreClientSecret(secret string) error {
	if secret == "" {
		return errors.New("client secret cannot be empty")
	}
	if err := keyring.Set(keyringService, keyringUser, secret); err != nil {
		return fmt.Errorf("failed to store client secret in keyring: %w", err)
	}
	return nil
}

// DeleteClientSecret removes the client secret from the OS keyring.
// Deleting an absent secret is not an error.
func DeleteClientSecret() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete client secret from keyring: %w", err)
	}
	return nil
}
