package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxco/winboard"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the local dashboard.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	Long: `Start the winboard dashboard.

The server will:
  - Load configuration from the specified YAML file
  - Resume the stored session, or log in with the configured credentials
  - Poll servers and statistics on the configured interval
  - Serve the dashboard UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM. If the
session ends (token expiry or lost connection) the dashboard keeps running
and shows why.

Example:
  winboard serve -c config.yaml
  winboard serve --config /etc/winboard/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addConfigFlag(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	s.logger.Info("starting dashboard",
		"host", s.cfg.Dashboard.Host,
		"port", s.cfg.Dashboard.Port,
		"poll_interval", s.cfg.PollInterval.Duration().String(),
	)

	// serve - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.ctrl.ServeDashboard(ctx, winboard.DashboardOptions{
			Host:  s.cfg.Dashboard.Host,
			Port:  s.cfg.Dashboard.Port,
			Title: s.cfg.Dashboard.Title,
		})
	}()

	return waitForShutdown(ctx, s, errChan)
}

// waitForShutdown waits for the serving goroutine to finish, bounding the
// wait after a signal by shutdownTimeout.
func waitForShutdown(ctx context.Context, s *session, errChan <-chan error) error {
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		s.logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			s.logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			s.logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
