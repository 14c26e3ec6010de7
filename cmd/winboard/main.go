// Package main is the entry point for the winboard CLI.
//
// winboard can be used either as a library or as a standalone binary with
// YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	winboard serve -c config.yaml                      # Start the local dashboard
//	winboard watch -c config.yaml                      # Log live events as JSON
//	winboard service stop VXSQL1 SQLAgent -c config.yaml
//	winboard reboot VXCATI1 -c config.yaml
//	winboard validate -c config.yaml                   # Validate configuration
//	winboard version                                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "winboard",
	Short: "Session and live-update client for the Voxco server dashboard",
	Long: `winboard logs in to the Voxco Windows server dashboard backend, polls
server and service state, and reacts to changes.

Quick start:
  1. Create a config file (winboard.yaml)
  2. Run: winboard serve -c winboard.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  base_url: http://localhost:5001/api
  poll_interval: 10s
  auth:
    username: admin
    password: ${WINBOARD_PASSWORD}`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this winboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "winboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
