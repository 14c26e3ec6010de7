package winboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/voxco/winboard/internal/backend"
)

// The methods in this file pass requests straight through to the backend.
// Each needs a session; without one they return an error wrapping
// [ErrNotAuthenticated]. Non-2xx answers become [*RequestError], transport
// failures [*NetworkError], and a 401 ends the session and returns an error
// wrapping [ErrTokenExpired].

// Servers lists the fleet, optionally filtered.
func (c *Controller) Servers(ctx context.Context, filter ServerFilter) ([]Server, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status.String())
	}

	var servers []Server
	if err := c.call(ctx, "list servers", backend.Request{Path: "/servers", Query: q}, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// ServerDetails returns one server by name.
func (c *Controller) ServerDetails(ctx context.Context, name string) (Server, error) {
	var server Server
	err := c.call(ctx, "server details", backend.Request{Path: "/servers/" + url.PathEscape(name)}, &server)
	return server, err
}

// Stats returns the fleet-wide summary.
func (c *Controller) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.call(ctx, "stats", backend.Request{Path: "/stats"}, &stats)
	return stats, err
}

// SaveServers replaces the backend's server definitions.
func (c *Controller) SaveServers(ctx context.Context, servers []Server) error {
	return c.call(ctx, "save servers", backend.Request{
		Method: http.MethodPost,
		Path:   "/servers",
		Body:   servers,
	}, nil)
}

// BackendConfig returns the backend's free-form configuration document.
func (c *Controller) BackendConfig(ctx context.Context) (map[string]any, error) {
	var cfg map[string]any
	err := c.call(ctx, "get config", backend.Request{Path: "/config"}, &cfg)
	return cfg, err
}

// SaveBackendConfig replaces the backend's configuration document.
func (c *Controller) SaveBackendConfig(ctx context.Context, cfg map[string]any) error {
	return c.call(ctx, "save config", backend.Request{
		Method: http.MethodPost,
		Path:   "/config",
		Body:   cfg,
	}, nil)
}

// Logs returns backend log lines, newest last.
func (c *Controller) Logs(ctx context.Context, filter LogFilter) ([]string, error) {
	q := url.Values{}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Server != "" {
		q.Set("server", filter.Server)
	}
	if filter.Service != "" {
		q.Set("service", filter.Service)
	}
	if filter.Level != "" {
		q.Set("level", filter.Level)
	}

	var lines []string
	if err := c.call(ctx, "logs", backend.Request{Path: "/logs", Query: q}, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// WinRMConfig returns the backend's WinRM connection settings.
func (c *Controller) WinRMConfig(ctx context.Context) (WinRMConfig, error) {
	var cfg WinRMConfig
	err := c.call(ctx, "winrm config", backend.Request{Path: "/winrm/config"}, &cfg)
	return cfg, err
}

// SaveWinRMConfig updates the backend's WinRM connection settings.
func (c *Controller) SaveWinRMConfig(ctx context.Context, cfg WinRMConfig) error {
	const op = "save winrm config"
	var resp commandResponse
	err := c.call(ctx, op, backend.Request{
		Method: http.MethodPost,
		Path:   "/winrm/config",
		Body:   cfg,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.failed() {
		return &RequestError{Op: op, StatusCode: http.StatusOK, Message: resp.Error}
	}
	return nil
}

// WinRMStatus reports whether WinRM is enabled and configured.
func (c *Controller) WinRMStatus(ctx context.Context) (WinRMStatus, error) {
	var status WinRMStatus
	err := c.call(ctx, "winrm status", backend.Request{Path: "/winrm/status"}, &status)
	return status, err
}

// TestWinRMConnection probes WinRM connectivity to one server. A failed
// probe is reported in the result, not as an error.
func (c *Controller) TestWinRMConnection(ctx context.Context, server string) (ConnectionTest, error) {
	var result ConnectionTest
	err := c.call(ctx, "winrm test", backend.Request{
		Path:  "/winrm/test",
		Query: url.Values{"server": {server}},
	}, &result)
	return result, err
}

// WinRMServerInfo reads static host information over WinRM.
func (c *Controller) WinRMServerInfo(ctx context.Context, ip string) (ServerInfo, error) {
	var info ServerInfo
	err := c.call(ctx, "winrm server info", backend.Request{Path: winrmServerPath(ip, "info")}, &info)
	return info, err
}

// WinRMServerMetrics reads live CPU, memory, disk and uptime over WinRM.
func (c *Controller) WinRMServerMetrics(ctx context.Context, ip string) (ServerMetrics, error) {
	var metrics ServerMetrics
	err := c.call(ctx, "winrm server metrics", backend.Request{Path: winrmServerPath(ip, "metrics")}, &metrics)
	return metrics, err
}

// WinRMServices lists the services on a server over WinRM.
func (c *Controller) WinRMServices(ctx context.Context, ip string) ([]WinRMService, error) {
	var services []WinRMService
	if err := c.call(ctx, "winrm services", backend.Request{Path: winrmServerPath(ip, "services")}, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// WinRMServiceStatus reads one service's state over WinRM.
func (c *Controller) WinRMServiceStatus(ctx context.Context, ip, service string) (WinRMService, error) {
	var svc WinRMService
	err := c.call(ctx, "winrm service status", backend.Request{
		Path: winrmServerPath(ip, "service", service, "status"),
	}, &svc)
	return svc, err
}

// winrmCommandResponse is the {success, data, error} envelope of WinRM
// commands.
type winrmCommandResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// WinRMServiceAction runs a service command directly on a server over WinRM.
// Unlike [Controller.ServiceAction] it emits no event. A command the remote
// host rejects returns an [*ActionError].
func (c *Controller) WinRMServiceAction(ctx context.Context, action ServiceActionKind, ip, service string) (WinRMService, error) {
	op := "winrm service " + action.String()
	if !action.Valid() {
		return WinRMService{}, &ActionError{Op: op, Server: ip, Service: service, Err: ErrUnknownAction}
	}

	var resp winrmCommandResponse
	err := c.call(ctx, op, backend.Request{
		Method: http.MethodPost,
		Path:   winrmServerPath(ip, "service", service, action.String()),
	}, &resp)
	if err != nil {
		return WinRMService{}, actionFailure(op, ip, service, err)
	}
	if !resp.Success {
		return WinRMService{}, &ActionError{Op: op, Server: ip, Service: service, Message: resp.Error}
	}

	var svc WinRMService
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &svc); err != nil {
			return WinRMService{}, &ActionError{Op: op, Server: ip, Service: service, Err: ErrMalformedResponse}
		}
	}
	return svc, nil
}

// WinRMReboot restarts a server directly over WinRM. It emits no event.
func (c *Controller) WinRMReboot(ctx context.Context, ip string) (RebootOutcome, error) {
	const op = "winrm reboot"
	var resp winrmCommandResponse
	err := c.call(ctx, op, backend.Request{
		Method: http.MethodPost,
		Path:   winrmServerPath(ip, "reboot"),
	}, &resp)
	if err != nil {
		return RebootOutcome{}, actionFailure(op, ip, "", err)
	}
	if !resp.Success {
		return RebootOutcome{}, &ActionError{Op: op, Server: ip, Message: resp.Error}
	}
	return RebootOutcome{Message: resp.Message}, nil
}

// winrmServerPath builds /winrm/server/{ip}/{segments...} with each dynamic
// segment escaped.
func winrmServerPath(ip string, segments ...string) string {
	p := "/winrm/server/" + url.PathEscape(ip)
	for _, s := range segments {
		p += "/" + url.PathEscape(s)
	}
	return p
}
