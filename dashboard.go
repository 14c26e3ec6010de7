package winboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/voxco/winboard/dashboard"
	"github.com/voxco/winboard/internal/server"
	"github.com/voxco/winboard/internal/store"
)

// DashboardOptions configures [Controller.ServeDashboard].
type DashboardOptions struct {
	// Host is the interface to listen on. Empty means 127.0.0.1; the action
	// buttons act with the controller's session, so exposing the dashboard
	// beyond the local machine has to be asked for.
	Host string

	// Port is the TCP port to listen on. Zero means 8080.
	Port int

	// Title is shown in the page header and tab. Empty means
	// "Voxco Server Dashboard".
	Title string

	// Ready, if set, is called with the listening address once the
	// dashboard accepts connections.
	Ready func(addr net.Addr)
}

// ServeDashboard serves a local browser dashboard fed by the controller's
// events and blocks until ctx is cancelled.
//
// Every event is recorded in a snapshot keyed by kind (service updates and
// reboots additionally by server and service), so a browser that connects
// late still sees the latest fleet, connection and auth state. Buttons on the
// page call [Controller.ServiceAction] and [Controller.RebootServer].
//
// Returns an error if the port is invalid or cannot be bound.
func (c *Controller) ServeDashboard(ctx context.Context, opts DashboardOptions) error {
	port := opts.Port
	if port == 0 {
		port = defaultDashboardPort
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("dashboard port must be between 1 and 65535, got %d", opts.Port)
	}
	title := opts.Title
	if title == "" {
		title = defaultDashboardTitle
	}

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	snapshot := store.NewMemoryStore()

	subs := make([]Subscription, 0, len(EventKinds()))
	defer func() {
		for _, sub := range subs {
			c.Unsubscribe(sub)
		}
	}()
	for _, kind := range EventKinds() {
		sub, err := c.Subscribe(kind, func(ev Event) {
			snapshot.Update(dashboardEvent(ev, time.Now()))
		})
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	// seed the snapshot so the first page load reflects the current state
	now := time.Now()
	session, ok := c.Session()
	snapshot.Update(dashboardEvent(AuthChange{Authenticated: ok, User: session.User}, now))
	status := c.Status()
	snapshot.Update(dashboardEvent(ConnectionStatusEvent{
		Status:       status,
		Connected:    status.Connected(),
		Reconnecting: status.State == StateReconnecting,
		Attempts:     status.Attempt,
		Err:          status.Err,
	}, now))

	httpServer := server.NewServer(snapshot, dashboardActions{c: c}, opts.Host, port, dashboard.Assets, title, c.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dashboard: %w", err)
	}

	c.logger.Info("dashboard available", "url", "http://"+httpServer.Addr().String())
	if opts.Ready != nil {
		opts.Ready(httpServer.Addr())
	}

	<-httpServer.Done()
	c.logger.Info("dashboard stopped")
	return nil
}

// dashboardEvent converts a controller event into the JSON view the browser
// consumes, keyed so that the snapshot keeps one entry per logical subject.
func dashboardEvent(ev Event, at time.Time) store.Event {
	out := store.Event{Key: ev.Kind().String(), Type: ev.Kind().String(), At: at}

	switch e := ev.(type) {
	case AuthChange:
		out.Data = authView{
			Authenticated: e.Authenticated,
			User:          e.User,
			Error:         errString(e.Err),
		}
	case ServerUpdate:
		servers := e.Servers
		if servers == nil {
			servers = []Server{}
		}
		out.Data = serverUpdateView{Servers: servers, Stats: e.Stats, At: e.At}
	case ServiceUpdate:
		out.Key = fmt.Sprintf("%s:%s/%s", out.Key, e.Server, e.Service)
		out.Data = serviceUpdateView{
			Server:    e.Server,
			Service:   e.Service,
			Status:    e.Status,
			Timestamp: e.Timestamp,
			User:      e.User,
		}
	case ServerReboot:
		out.Key = fmt.Sprintf("%s:%s", out.Key, e.Server)
		out.Data = rebootView{Server: e.Server, Timestamp: e.Timestamp, User: e.User}
	case ConnectionStatusEvent:
		out.Data = connectionView{
			State:        e.Status.State,
			Connected:    e.Connected,
			Reconnecting: e.Reconnecting,
			Attempts:     e.Attempts,
			Error:        errString(e.Err),
		}
	}
	return out
}

type authView struct {
	Authenticated bool   `json:"authenticated"`
	User          string `json:"user,omitempty"`
	Error         string `json:"error,omitempty"`
}

type serverUpdateView struct {
	Servers []Server  `json:"servers"`
	Stats   Stats     `json:"stats"`
	At      time.Time `json:"at"`
}

type serviceUpdateView struct {
	Server    string        `json:"server"`
	Service   string        `json:"service"`
	Status    ServiceStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user,omitempty"`
}

type rebootView struct {
	Server    string    `json:"server"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user,omitempty"`
}

type connectionView struct {
	State        ConnState `json:"state"`
	Connected    bool      `json:"connected"`
	Reconnecting bool      `json:"reconnecting"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// dashboardActions adapts the controller to the dashboard server's command
// interface, classifying errors into the server's sentinels.
type dashboardActions struct {
	c *Controller
}

func (a dashboardActions) ServiceAction(ctx context.Context, action, srv, service string) (string, error) {
	kind, err := ParseServiceAction(action)
	if err != nil {
		return "", classifyDashboardError(err)
	}
	out, err := a.c.ServiceAction(ctx, kind, srv, service)
	if err != nil {
		return "", classifyDashboardError(err)
	}
	if out.Message == "" {
		return fmt.Sprintf("%s %s on %s", kind, service, srv), nil
	}
	return out.Message, nil
}

func (a dashboardActions) RebootServer(ctx context.Context, srv string, force bool) (string, error) {
	out, err := a.c.RebootServer(ctx, srv, force)
	if err != nil {
		return "", classifyDashboardError(err)
	}
	if out.Message == "" {
		return fmt.Sprintf("Server %s is rebooting", srv), nil
	}
	return out.Message, nil
}

func classifyDashboardError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownAction):
		return fmt.Errorf("%w: %w", server.ErrInvalidRequest, err)
	case errors.Is(err, ErrNotAuthenticated), IsTokenExpired(err):
		return fmt.Errorf("%w: %w", server.ErrUnauthenticated, err)
	}
	return err
}
