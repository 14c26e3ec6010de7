package winboard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/voxco/winboard/internal/server"
	"github.com/voxco/winboard/internal/store"
)

// freePort asks the kernel for an unused port.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// serveDashboard runs ServeDashboard in the background and returns the
// dashboard's base URL once it is listening.
func serveDashboard(t *testing.T, c *Controller, title string) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	port := freePort(t)

	go func() {
		done <- c.ServeDashboard(ctx, DashboardOptions{
			Port:  port,
			Title: title,
			Ready: func(addr net.Addr) { ready <- addr },
		})
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("ServeDashboard did not return after cancellation")
		}
	})

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("ServeDashboard() error = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard did not start")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func getSnapshot(t *testing.T, base string) map[string]store.Event {
	t.Helper()
	resp, err := http.Get(base + "/api/snapshot")
	if err != nil {
		t.Fatalf("GET /api/snapshot error = %v", err)
	}
	defer resp.Body.Close()

	var events []store.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode snapshot error = %v", err)
	}
	out := make(map[string]store.Event, len(events))
	for _, ev := range events {
		out[ev.Key] = ev
	}
	return out
}

func waitForSnapshotKey(t *testing.T, base, key string) store.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev, ok := getSnapshot(t, base)[key]; ok {
			return ev
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("snapshot never contained %q", key)
	return store.Event{}
}

func TestServeDashboard_InvalidPort(t *testing.T) {
	c := newTestController(t, "http://localhost:5001/api")
	for _, port := range []int{-1, 70000} {
		if err := c.ServeDashboard(context.Background(), DashboardOptions{Port: port}); err == nil {
			t.Errorf("ServeDashboard(port %d) expected error", port)
		}
	}
}

func TestServeDashboard_CancelledContext(t *testing.T) {
	c := newTestController(t, "http://localhost:5001/api")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.ServeDashboard(ctx, DashboardOptions{Port: freePort(t)}); err != nil {
		t.Errorf("ServeDashboard() error = %v, want nil", err)
	}
}

func TestServeDashboard_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	defer ln.Close()

	c := newTestController(t, "http://localhost:5001/api")
	err = c.ServeDashboard(context.Background(), DashboardOptions{Port: ln.Addr().(*net.TCPAddr).Port})
	if err == nil || !strings.Contains(err.Error(), "failed to start dashboard") {
		t.Errorf("ServeDashboard() error = %v, want bind failure", err)
	}
}

func TestServeDashboard_PageTitle(t *testing.T) {
	c := newTestController(t, "http://localhost:5001/api")
	base := serveDashboard(t, c, "")

	resp, err := http.Get(base + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	_, _ = bufio.NewReader(resp.Body).WriteTo(buf)
	if !strings.Contains(buf.String(), "<title>Voxco Server Dashboard</title>") {
		t.Errorf("page does not carry the default title")
	}
}

func TestServeDashboard_SeedsCurrentState(t *testing.T) {
	c := newTestController(t, "http://localhost:5001/api")
	base := serveDashboard(t, c, "Ops")

	snap := getSnapshot(t, base)

	auth, ok := snap["auth-change"]
	if !ok {
		t.Fatal("snapshot missing auth-change")
	}
	if data := auth.Data.(map[string]any); data["authenticated"] != false {
		t.Errorf("auth-change data = %v, want authenticated false", data)
	}

	conn, ok := snap["connection-status"]
	if !ok {
		t.Fatal("snapshot missing connection-status")
	}
	if data := conn.Data.(map[string]any); data["state"] != "disconnected" {
		t.Errorf("connection-status data = %v, want disconnected", data)
	}
}

func TestServeDashboard_RecordsControllerEvents(t *testing.T) {
	_, srv := newMockBackend(t)
	c, _ := loggedIn(t, srv.URL+"/api")
	base := serveDashboard(t, c, "")

	update := waitForSnapshotKey(t, base, "server-update")
	data := update.Data.(map[string]any)
	servers, _ := data["servers"].([]any)
	if len(servers) != 10 {
		t.Errorf("server-update carries %d servers, want 10", len(servers))
	}

	if _, err := c.StopService(context.Background(), "VXDIAL1", "Voxco Telephone Gateway"); err != nil {
		t.Fatalf("StopService() error = %v", err)
	}
	ev := waitForSnapshotKey(t, base, "service-update:VXDIAL1/Voxco Telephone Gateway")
	if ev.Type != "service-update" {
		t.Errorf("Type = %q, want service-update", ev.Type)
	}
	if d := ev.Data.(map[string]any); d["status"] != "offline" || d["user"] != "admin" {
		t.Errorf("service-update data = %v", d)
	}

	auth := getSnapshot(t, base)["auth-change"]
	if d := auth.Data.(map[string]any); d["authenticated"] != true || d["user"] != "admin" {
		t.Errorf("auth-change data = %v, want admin session", d)
	}
}

func TestServeDashboard_SSEReplaysSnapshot(t *testing.T) {
	_, srv := newMockBackend(t)
	c, _ := loggedIn(t, srv.URL+"/api")
	base := serveDashboard(t, c, "")
	waitForSnapshotKey(t, base, "server-update")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/sse error = %v", err)
	}
	defer resp.Body.Close()

	seen := map[string]bool{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			seen[name] = true
		}
		if seen["auth-change"] && seen["connection-status"] && seen["server-update"] {
			return
		}
	}
	t.Errorf("SSE replay saw %v, want auth-change, connection-status and server-update", seen)
}

func TestServeDashboard_ServiceActionEndpoint(t *testing.T) {
	_, srv := newMockBackend(t)
	c, _ := loggedIn(t, srv.URL+"/api")
	base := serveDashboard(t, c, "")

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"stop", "/api/services/stop", `{"server":"VXSQL1","service":"SQLAgent"}`, http.StatusOK},
		{"unknown service", "/api/services/start", `{"server":"VXSQL1","service":"Nope"}`, http.StatusBadGateway},
		{"reboot", "/api/servers/VXCATI1/reboot", `{"force":true}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(base+tt.path, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
		})
	}

	waitForSnapshotKey(t, base, "server-reboot:VXCATI1")
}

func TestServeDashboard_RejectsCrossSiteActions(t *testing.T) {
	b, srv := newMockBackend(t)
	c, rec := loggedIn(t, srv.URL+"/api")
	base := serveDashboard(t, c, "")

	tests := []struct {
		name        string
		contentType string
		origin      string
	}{
		{"text/plain", "text/plain", ""},
		{"foreign origin", "application/json", "https://evil.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPost, base+"/api/servers/VXDIAL1/reboot",
				strings.NewReader(`{"force":true}`))
			if err != nil {
				t.Fatalf("NewRequest error = %v", err)
			}
			req.Header.Set("Content-Type", tt.contentType)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("status = %d, want 403", resp.StatusCode)
			}
		})
	}

	for _, ev := range rec.all() {
		if ev.Kind() == EventServerReboot {
			t.Errorf("unexpected %v event", ev.Kind())
		}
	}
	if _, ok := getSnapshot(t, base)["server-reboot:VXDIAL1"]; ok {
		t.Error("snapshot recorded a reboot for a rejected request")
	}
	target, ok := b.Fleet().Server("VXDIAL1")
	if !ok {
		t.Fatal("VXDIAL1 missing from fleet")
	}
	for _, svc := range target.Services {
		if svc.Status == "offline" {
			t.Errorf("service %s offline, want the server left alone", svc.Name)
		}
	}
}

func TestServeDashboard_ListensOnLoopback(t *testing.T) {
	c := newTestController(t, "http://localhost:5001/api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.ServeDashboard(ctx, DashboardOptions{
			Port:  freePort(t),
			Ready: func(addr net.Addr) { ready <- addr },
		})
	}()

	select {
	case addr := <-ready:
		tcpAddr, ok := addr.(*net.TCPAddr)
		if !ok || !tcpAddr.IP.IsLoopback() {
			t.Errorf("dashboard listening on %v, want a loopback address", addr)
		}
	case err := <-done:
		t.Fatalf("ServeDashboard() error = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard did not start")
	}

	cancel()
	<-done
}

func TestServeDashboard_ActionWithoutSession(t *testing.T) {
	c := newTestController(t, "http://localhost:5001/api")
	base := serveDashboard(t, c, "")

	resp, err := http.Post(base+"/api/services/stop", "application/json",
		strings.NewReader(`{"server":"VXSQL1","service":"SQLAgent"}`))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestClassifyDashboardError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"unknown action", fmt.Errorf("%w: %q", ErrUnknownAction, "pause"), server.ErrInvalidRequest},
		{"no session", fmt.Errorf("reboot: %w", ErrNotAuthenticated), server.ErrUnauthenticated},
		{"expired", fmt.Errorf("service stop: %w", ErrTokenExpired), server.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyDashboardError(tt.in)
			if !errors.Is(got, tt.want) || !errors.Is(got, errors.Unwrap(tt.in)) {
				t.Errorf("classifyDashboardError() = %v", got)
			}
		})
	}

	upstream := &ActionError{Op: "service stop", Message: "Access is denied"}
	if got := classifyDashboardError(upstream); got != error(upstream) {
		t.Errorf("upstream errors should pass through, got %v", got)
	}
}

func TestDashboardEvent_Keys(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		ev   Event
		want string
	}{
		{AuthChange{Authenticated: true, User: "admin"}, "auth-change"},
		{ServerUpdate{}, "server-update"},
		{ConnectionStatusEvent{Status: ConnectionStatus{State: StateConnected}}, "connection-status"},
		{ServiceUpdate{Server: "VXSQL1", Service: "SQLAgent"}, "service-update:VXSQL1/SQLAgent"},
		{ServerReboot{Server: "VXCATI1"}, "server-reboot:VXCATI1"},
	}
	for _, tt := range tests {
		got := dashboardEvent(tt.ev, at)
		if got.Key != tt.want {
			t.Errorf("Key = %q, want %q", got.Key, tt.want)
		}
		if got.Type != tt.ev.Kind().String() {
			t.Errorf("Type = %q, want %q", got.Type, tt.ev.Kind())
		}
		if !got.At.Equal(at) {
			t.Errorf("At = %v, want %v", got.At, at)
		}
	}

	// nil server lists render as an empty array
	b, err := json.Marshal(dashboardEvent(ServerUpdate{}, at).Data)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(b), `"servers":[]`) {
		t.Errorf("data = %s, want empty servers array", b)
	}
}
