// Package winboard is a session and live-update controller for the Voxco
// Windows server dashboard backend.
//
// A [Controller] logs in against the backend, keeps the bearer token, and
// while a session exists polls the server list and fleet statistics on a
// fixed interval. Results are fanned out to subscribers as typed events.
// Transient failures are retried up to a bound before the session is torn
// down; a 401 ends the session immediately.
//
// # Quick Start
//
//	c, err := winboard.New(winboard.WithBaseURL("http://localhost:5001/api"))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.OnServerUpdate(func(u winboard.ServerUpdate) {
//	    slog.Info("fleet updated", "servers", len(u.Servers), "uptime", u.Stats.UptimePercentage)
//	})
//	c.OnAuthChange(func(a winboard.AuthChange) {
//	    if !a.Authenticated {
//	        slog.Warn("session ended", "error", a.Err)
//	    }
//	})
//
//	if _, err := c.Login(ctx, "admin", "admin"); err != nil {
//	    return err
//	}
//
// # Configuration
//
// Controllers are configured with functional options:
//
//	tokens, err := tokenstore.NewFile("/var/lib/winboard/token.json", "authToken")
//	if err != nil {
//	    return err
//	}
//	c, err := winboard.New(
//	    winboard.WithBaseURL("http://localhost:5001/api"),
//	    winboard.WithPollingInterval(5*time.Second),
//	    winboard.WithMaxReconnectAttempts(3),
//	    winboard.WithTokenStore(tokens),
//	)
//
// Available options:
//   - [WithBaseURL]: backend API root (required for backend authentication)
//   - [WithPollingInterval]: time between poll cycles (default: 10s)
//   - [WithMaxReconnectAttempts]: failed cycles tolerated before logout (default: 5)
//   - [WithRequestTimeout]: per-request timeout (default: 10s)
//   - [WithAuthenticator], [WithStaticCredentials]: login strategy
//   - [WithTokenStore]: where the token survives restarts (default: memory)
//   - [WithAutoResume]: restore a stored token in [New] (default: on)
//   - [WithHTTPClient], [WithLogger]
//
// # Events
//
// Five event kinds are emitted: auth-change, server-update, service-update,
// server-reboot and connection-status. Handlers run synchronously on the
// emitting goroutine, in registration order; a panicking handler is logged
// and does not affect the others.
//
// # Dashboard
//
// [Controller.ServeDashboard] serves a local browser view of the same events
// over Server-Sent Events, with buttons that call [Controller.ServiceAction]
// and [Controller.RebootServer].
package winboard
