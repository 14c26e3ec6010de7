package winboard

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxco/winboard/internal/backend"
)

// ServiceActionKind is a service control command.
type ServiceActionKind string

const (
	ActionStart   ServiceActionKind = "start"
	ActionStop    ServiceActionKind = "stop"
	ActionRestart ServiceActionKind = "restart"
)

// ParseServiceAction maps "start", "stop" or "restart" (any case) to a
// [ServiceActionKind]. Anything else wraps [ErrUnknownAction].
func ParseServiceAction(s string) (ServiceActionKind, error) {
	a := ServiceActionKind(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

// Valid reports whether a is start, stop or restart.
func (a ServiceActionKind) Valid() bool {
	switch a {
	case ActionStart, ActionStop, ActionRestart:
		return true
	}
	return false
}

// TerminalStatus is the status a service reports once the action has
// completed: online after start and restart, offline after stop.
func (a ServiceActionKind) TerminalStatus() ServiceStatus {
	if a == ActionStop {
		return ServiceOffline
	}
	return ServiceOnline
}

// String implements fmt.Stringer.
func (a ServiceActionKind) String() string {
	return string(a)
}

type serviceActionRequest struct {
	Server  string `json:"server"`
	Service string `json:"service"`
}

type rebootRequest struct {
	Server string `json:"server"`
	Force  bool   `json:"force"`
}

// commandResponse covers the answer shapes backends use for commands:
// {"message": ...}, {"success": bool, "error": ...}, or both.
type commandResponse struct {
	Message string `json:"message"`
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

func (r commandResponse) failed() bool {
	return r.Success != nil && !*r.Success
}

// ServiceAction starts, stops or restarts a service on a server.
//
// On success it emits one service-update carrying the action's terminal
// status. On failure it returns an [*ActionError] (or a [*NetworkError], or
// an error wrapping [ErrTokenExpired]) and emits nothing.
func (c *Controller) ServiceAction(ctx context.Context, action ServiceActionKind, server, service string) (ActionOutcome, error) {
	op := "service " + action.String()
	if !action.Valid() {
		return ActionOutcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, string(action))
	}
	if server == "" || service == "" {
		return ActionOutcome{}, &ActionError{Op: op, Server: server, Service: service, Message: "server and service are required"}
	}

	session, err := c.currentToken()
	if err != nil {
		return ActionOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	var resp commandResponse
	err = c.call(ctx, op, backend.Request{
		Method: http.MethodPost,
		Path:   "/services/" + string(action),
		Body:   serviceActionRequest{Server: server, Service: service},
	}, &resp)
	if err != nil {
		return ActionOutcome{}, actionFailure(op, server, service, err)
	}
	if resp.failed() {
		return ActionOutcome{}, &ActionError{Op: op, Server: server, Service: service, Message: resp.Error}
	}

	status := action.TerminalStatus()
	c.logger.Info("service action completed",
		"action", action.String(),
		"server", server,
		"service", service,
		"status", status.String(),
	)
	c.bus.emit(ServiceUpdate{
		Server:    server,
		Service:   service,
		Status:    status,
		Timestamp: time.Now(),
		User:      session.User,
	})
	return ActionOutcome{Message: resp.Message, Success: true}, nil
}

// StartService is shorthand for ServiceAction(ctx, ActionStart, server, service).
func (c *Controller) StartService(ctx context.Context, server, service string) (ActionOutcome, error) {
	return c.ServiceAction(ctx, ActionStart, server, service)
}

// StopService is shorthand for ServiceAction(ctx, ActionStop, server, service).
func (c *Controller) StopService(ctx context.Context, server, service string) (ActionOutcome, error) {
	return c.ServiceAction(ctx, ActionStop, server, service)
}

// RestartService is shorthand for ServiceAction(ctx, ActionRestart, server, service).
func (c *Controller) RestartService(ctx context.Context, server, service string) (ActionOutcome, error) {
	return c.ServiceAction(ctx, ActionRestart, server, service)
}

// RebootServer asks the backend to reboot a server. On success it emits a
// server-reboot event; the controller itself does not touch any server data,
// so subscribers decide how to present the reboot.
func (c *Controller) RebootServer(ctx context.Context, server string, force bool) (RebootOutcome, error) {
	const op = "reboot"
	if server == "" {
		return RebootOutcome{}, &ActionError{Op: op, Message: "server is required"}
	}

	session, err := c.currentToken()
	if err != nil {
		return RebootOutcome{}, fmt.Errorf("%s: %w", op, err)
	}

	var resp commandResponse
	err = c.call(ctx, op, backend.Request{
		Method: http.MethodPost,
		Path:   "/server/reboot",
		Body:   rebootRequest{Server: server, Force: force},
	}, &resp)
	if err != nil {
		return RebootOutcome{}, actionFailure(op, server, "", err)
	}
	if resp.failed() {
		return RebootOutcome{}, &ActionError{Op: op, Server: server, Message: resp.Error}
	}

	c.logger.Info("server reboot requested", "server", server, "force", force)
	c.bus.emit(ServerReboot{Server: server, Timestamp: time.Now(), User: session.User})
	return RebootOutcome{Message: resp.Message}, nil
}
