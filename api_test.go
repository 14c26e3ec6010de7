package winboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestPassThrough_Fleet(t *testing.T) {
	_, srv := newMockBackend(t)
	c, _ := loggedIn(t, srv.URL+"/api", WithPollingInterval(time.Hour))
	ctx := context.Background()

	servers, err := c.Servers(ctx, ServerFilter{Search: "cati"})
	if err != nil {
		t.Fatalf("Servers() error = %v", err)
	}
	if len(servers) != 2 {
		t.Errorf("Servers(search=cati) = %d, want 2", len(servers))
	}

	if _, err := c.StopService(ctx, "VXREPORT", "VoxcoReportingService"); err != nil {
		t.Fatalf("StopService() error = %v", err)
	}
	offline, err := c.Servers(ctx, ServerFilter{Status: ServiceOffline})
	if err != nil {
		t.Fatalf("Servers(status) error = %v", err)
	}
	if len(offline) != 1 || offline[0].Name != "VXREPORT" {
		t.Errorf("Servers(status=offline) = %+v", offline)
	}

	details, err := c.ServerDetails(ctx, "VXSQL1")
	if err != nil {
		t.Fatalf("ServerDetails() error = %v", err)
	}
	if details.IP != "172.16.1.150" || details.Uptime != "10 days" {
		t.Errorf("details = %+v", details)
	}

	_, err = c.ServerDetails(ctx, "NOPE")
	var re *RequestError
	if !errors.As(err, &re) || re.StatusCode != http.StatusNotFound {
		t.Errorf("ServerDetails(NOPE) error = %v, want 404 *RequestError", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.OfflineServices != 1 {
		t.Errorf("OfflineServices = %d, want 1", stats.OfflineServices)
	}

	// replacing the fleet shows up on the next read
	if err := c.SaveServers(ctx, servers); err != nil {
		t.Fatalf("SaveServers() error = %v", err)
	}
	all, _ := c.Servers(ctx, ServerFilter{})
	if len(all) != 2 {
		t.Errorf("after SaveServers, Servers() = %d, want 2", len(all))
	}
}

func TestPassThrough_ConfigAndLogs(t *testing.T) {
	_, srv := newMockBackend(t)
	c, _ := loggedIn(t, srv.URL+"/api", WithPollingInterval(time.Hour))
	ctx := context.Background()

	cfg, err := c.BackendConfig(ctx)
	if err != nil {
		t.Fatalf("BackendConfig() error = %v", err)
	}
	if cfg["theme"] != "light" {
		t.Errorf("theme = %v, want light", cfg["theme"])
	}

	cfg["theme"] = "dark"
	if err := c.SaveBackendConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveBackendConfig() error = %v", err)
	}
	cfg, _ = c.BackendConfig(ctx)
	if cfg["theme"] != "dark" {
		t.Errorf("theme after save = %v, want dark", cfg["theme"])
	}

	if _, err := c.RestartService(ctx, "VXSQL1", "SQLAgent"); err != nil {
		t.Fatalf("RestartService() error = %v", err)
	}
	lines, err := c.Logs(ctx, LogFilter{Service: "SQLAgent", Limit: 10})
	if err != nil {
		t.Fatalf("Logs() error = %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "restarted by admin") {
		t.Errorf("Logs() = %q", lines)
	}
}

func TestPassThrough_LogsForbiddenForUsers(t *testing.T) {
	_, srv := newMockBackend(t)
	c := newTestController(t, srv.URL+"/api", WithPollingInterval(time.Hour))
	if _, err := c.Login(context.Background(), "user", "user"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	_, err := c.Logs(context.Background(), LogFilter{})
	var re *RequestError
	if !errors.As(err, &re) || re.StatusCode != http.StatusForbidden {
		t.Errorf("Logs() error = %v, want 403 *RequestError", err)
	}
	if !c.IsAuthenticated() {
		t.Error("a 403 must not end the session")
	}
}

func TestPassThrough_WinRM(t *testing.T) {
	_, srv := newMockBackend(t)
	c, rec := loggedIn(t, srv.URL+"/api", WithPollingInterval(time.Hour))
	ctx := context.Background()
	const ip = "172.16.1.161"

	status, err := c.WinRMStatus(ctx)
	if err != nil || !status.Enabled || !status.Configured {
		t.Fatalf("WinRMStatus() = %+v, %v", status, err)
	}

	info, err := c.WinRMServerInfo(ctx, ip)
	if err != nil {
		t.Fatalf("WinRMServerInfo() error = %v", err)
	}
	if info.Hostname != ip {
		t.Errorf("Hostname = %q, want %q", info.Hostname, ip)
	}

	if _, err := c.WinRMServerMetrics(ctx, ip); err != nil {
		t.Fatalf("WinRMServerMetrics() error = %v", err)
	}

	services, err := c.WinRMServices(ctx, ip)
	if err != nil {
		t.Fatalf("WinRMServices() error = %v", err)
	}
	if len(services) != 6 || services[0].Status != ServiceOnline {
		t.Errorf("WinRMServices() = %+v", services)
	}

	mark := rec.len()
	svc, err := c.WinRMServiceAction(ctx, ActionStop, ip, "DialerManager")
	if err != nil {
		t.Fatalf("WinRMServiceAction() error = %v", err)
	}
	if svc.Status != ServiceOffline {
		t.Errorf("Status = %q, want offline", svc.Status)
	}
	if n := len(rec.since(mark)); n != 0 {
		t.Errorf("WinRM action emitted %d events, want 0", n)
	}

	svc, err = c.WinRMServiceStatus(ctx, ip, "DialerManager")
	if err != nil || svc.Status != ServiceOffline {
		t.Errorf("WinRMServiceStatus() = %+v, %v", svc, err)
	}

	_, err = c.WinRMServiceAction(ctx, ActionStart, ip, "Missing")
	var ae *ActionError
	if !errors.As(err, &ae) || !strings.Contains(ae.Message, "Cannot find any service") {
		t.Errorf("missing service error = %v", err)
	}

	probe, err := c.TestWinRMConnection(ctx, ip)
	if err != nil || !probe.Success {
		t.Errorf("TestWinRMConnection() = %+v, %v", probe, err)
	}

	if _, err := c.WinRMReboot(ctx, ip); err != nil {
		t.Errorf("WinRMReboot() error = %v", err)
	}
}

func TestPassThrough_WinRMConfig(t *testing.T) {
	_, srv := newMockBackend(t)
	c, _ := loggedIn(t, srv.URL+"/api", WithPollingInterval(time.Hour))
	ctx := context.Background()

	want := WinRMConfig{Enabled: true, Username: "svc_winrm", Password: "secret", Host: "dc01", Port: "5986"}
	if err := c.SaveWinRMConfig(ctx, want); err != nil {
		t.Fatalf("SaveWinRMConfig() error = %v", err)
	}

	got, err := c.WinRMConfig(ctx)
	if err != nil {
		t.Fatalf("WinRMConfig() error = %v", err)
	}
	if got.Username != want.Username || got.Host != want.Host || got.Port != want.Port {
		t.Errorf("WinRMConfig() = %+v", got)
	}
	if got.Password != "" {
		t.Error("password must not be returned")
	}
}

func TestPassThrough_RequiresSession(t *testing.T) {
	c := newTestController(t, "http://localhost:1/api")
	ctx := context.Background()

	calls := map[string]func() error{
		"Servers":     func() error { _, err := c.Servers(ctx, ServerFilter{}); return err },
		"Stats":       func() error { _, err := c.Stats(ctx); return err },
		"Logs":        func() error { _, err := c.Logs(ctx, LogFilter{}); return err },
		"WinRMStatus": func() error { _, err := c.WinRMStatus(ctx); return err },
		"WinRMReboot": func() error { _, err := c.WinRMReboot(ctx, "10.0.0.1"); return err },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); !errors.Is(err, ErrNotAuthenticated) {
				t.Errorf("error = %v, want ErrNotAuthenticated", err)
			}
		})
	}
}

func TestWinRMServerPath(t *testing.T) {
	tests := []struct {
		ip       string
		segments []string
		want     string
	}{
		{"10.0.0.1", []string{"info"}, "/winrm/server/10.0.0.1/info"},
		{"10.0.0.1", []string{"service", "Voxco Task Server", "status"}, "/winrm/server/10.0.0.1/service/Voxco%20Task%20Server/status"},
		{"10.0.0.1", []string{"service", "a/b", "stop"}, "/winrm/server/10.0.0.1/service/a%2Fb/stop"},
	}

	for _, tt := range tests {
		if got := winrmServerPath(tt.ip, tt.segments...); got != tt.want {
			t.Errorf("winrmServerPath(%q, %v) = %q, want %q", tt.ip, tt.segments, got, tt.want)
		}
	}
}
