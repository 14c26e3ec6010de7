package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxco/winboard"
)

// watchCmd logs every controller event until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log live server and session events",
	Long: `Log in, poll the backend and write every event as a structured JSON
log line on stderr.

The command exits when interrupted (Ctrl+C), on SIGTERM, or when the session
ends because the token expired or the backend stayed unreachable.

Example:
  winboard watch -c config.yaml`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addConfigFlag(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	// subscribe first so the first cycle, or an immediate 401 on a stale
	// stored token, is not missed
	ended := make(chan error, 1)
	watchEvents(s, ended)

	if err := s.ensureLoggedIn(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		s.logger.Info("watch stopped")
		return nil
	case err := <-ended:
		return err
	}
}

// watchEvents logs each event kind. ended receives the cause when the
// session ends involuntarily.
func watchEvents(s *session, ended chan<- error) {
	log := s.logger

	_, _ = s.ctrl.OnServerUpdate(func(u winboard.ServerUpdate) {
		log.Info("server update",
			"servers", len(u.Servers),
			"online_services", u.Stats.OnlineServices,
			"warning_services", u.Stats.WarningServices,
			"offline_services", u.Stats.OfflineServices,
			"uptime_percentage", u.Stats.UptimePercentage,
		)
	})
	_, _ = s.ctrl.OnServiceUpdate(func(u winboard.ServiceUpdate) {
		log.Info("service update",
			"server", u.Server,
			"service", u.Service,
			"status", u.Status.String(),
			"user", u.User,
		)
	})
	_, _ = s.ctrl.OnServerReboot(func(r winboard.ServerReboot) {
		log.Info("server reboot", "server", r.Server, "user", r.User)
	})
	_, _ = s.ctrl.OnConnectionStatus(func(e winboard.ConnectionStatusEvent) {
		attrs := []any{"status", e.Status.String(), "connected", e.Connected}
		if e.Err != nil {
			log.Warn("connection status", append(attrs, "attempts", e.Attempts, "error", e.Err.Error())...)
			return
		}
		log.Debug("connection status", attrs...)
	})
	_, _ = s.ctrl.OnAuthChange(func(a winboard.AuthChange) {
		if a.Authenticated {
			log.Info("session started", "user", a.User)
			return
		}
		if a.Err != nil {
			log.Error("session ended", "error", a.Err.Error())
			select {
			case ended <- a.Err:
			default:
			}
			return
		}
		log.Info("session ended")
	})
}
