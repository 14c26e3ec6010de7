package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/voxco/winboard/config"
)

// validateCmd validates a config file without contacting the backend.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a winboard configuration file without contacting the backend.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  winboard validate -c config.yaml
  winboard validate --config /etc/winboard/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addConfigFlag(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	backendURL := cfg.BaseURL
	if backendURL == "" {
		backendURL = "(none)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Backend:       %s\n", backendURL)
	fmt.Fprintf(out, "  Auth:          %s\n", cfg.Auth.Mode)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Max retries:   %d\n", *cfg.MaxReconnectAttempts)
	fmt.Fprintf(out, "  Token store:   %s\n", cfg.TokenStore.Type)
	fmt.Fprintf(out, "  Dashboard:     %s\n", net.JoinHostPort(cfg.Dashboard.Host, strconv.Itoa(cfg.Dashboard.Port)))

	return nil
}
