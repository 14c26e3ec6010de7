package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxco/winboard"
	"github.com/voxco/winboard/config"
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// addConfigFlag registers the required --config flag on cmd.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
}

// session bundles what every backend-facing command needs.
type session struct {
	cfg     *config.Config
	ctrl    *winboard.Controller
	logger  *slog.Logger
	cleanup func()
}

func (s *session) Close() {
	_ = s.ctrl.Close()
	s.cleanup()
}

// openSession loads the config named by --config, builds a controller and
// makes sure it is logged in, resuming a stored token when there is one.
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	s, err := newSession(cmd)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLoggedIn(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// newSession loads the config and builds a controller that is not yet
// logged in. Auto-resume is off so callers can subscribe before the first
// poll cycle runs; ensureLoggedIn starts the session.
func newSession(cmd *cobra.Command) (*session, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Level())

	opts, cleanup, err := config.BuildOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build controller options: %w", err)
	}
	opts = append(opts, winboard.WithLogger(logger), winboard.WithAutoResume(false))

	ctrl, err := winboard.New(opts...)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	return &session{cfg: cfg, ctrl: ctrl, logger: logger, cleanup: cleanup}, nil
}

// ensureLoggedIn resumes a stored token if there is one and otherwise logs in
// with the configured credentials.
func (s *session) ensureLoggedIn(ctx context.Context) error {
	resumed, err := s.ctrl.Resume(ctx)
	if err != nil {
		s.logger.Warn("failed to load stored token", "error", err)
	}
	if resumed {
		s.logger.Info("resumed stored session")
		return nil
	}

	if s.cfg.Auth.Username == "" {
		return errors.New("no stored session and auth.username is not configured")
	}

	sess, err := s.ctrl.Login(ctx, s.cfg.Auth.Username, s.cfg.Auth.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	s.logger.Info("logged in", "user", sess.User, "base_url", s.cfg.BaseURL)
	return nil
}
