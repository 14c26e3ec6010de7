package mockbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL    = time.Hour
	defaultRebootDelay = 5 * time.Second
	maxLogLines        = 1000
	maxRequestBody     = 1 << 20 // 1MB
)

var (
	errServerNotFound  = errors.New("server not found")
	errServiceNotFound = errors.New("service not found")
)

type contextKey int

const claimsKey contextKey = iota

// WinRMConfig is the mock's WinRM settings document.
type WinRMConfig struct {
	Enabled  bool   `json:"enabled"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Host     string `json:"host"`
	Port     string `json:"port"`
}

// backendConfig holds mutable state during Backend construction.
type backendConfig struct {
	users       []User
	secret      []byte
	tokenTTL    time.Duration
	hashCost    int
	servers     []Server
	jitter      bool
	executor    Executor
	rebootDelay time.Duration
	logger      *slog.Logger
}

// Option configures a [Backend].
type Option func(*backendConfig)

// WithUsers replaces the default admin/admin and user/user accounts.
func WithUsers(users ...User) Option {
	return func(cfg *backendConfig) { cfg.users = users }
}

// WithSecret sets the HS256 signing key.
func WithSecret(secret []byte) Option {
	return func(cfg *backendConfig) { cfg.secret = secret }
}

// WithTokenTTL sets how long issued tokens stay valid. Defaults to one hour.
func WithTokenTTL(d time.Duration) Option {
	return func(cfg *backendConfig) { cfg.tokenTTL = d }
}

// WithHashCost sets the bcrypt cost for seeded passwords. Tests use
// bcrypt.MinCost to keep logins fast.
func WithHashCost(cost int) Option {
	return func(cfg *backendConfig) { cfg.hashCost = cost }
}

// WithFleet replaces the default ten-server fleet.
func WithFleet(servers []Server) Option {
	return func(cfg *backendConfig) { cfg.servers = servers }
}

// WithJitter makes resource usage drift on every GET /servers.
func WithJitter(enabled bool) Option {
	return func(cfg *backendConfig) { cfg.jitter = enabled }
}

// WithExecutor sets the WinRM stand-in. Defaults to [HostExecutor].
func WithExecutor(e Executor) Option {
	return func(cfg *backendConfig) { cfg.executor = e }
}

// WithRebootDelay sets how long a rebooted server's services stay offline.
// Defaults to five seconds.
func WithRebootDelay(d time.Duration) Option {
	return func(cfg *backendConfig) { cfg.rebootDelay = d }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *backendConfig) { cfg.logger = logger }
}

// Backend is an in-process fake of the dashboard backend. It implements the
// whole HTTP surface winboard consumes, mounted under /api.
type Backend struct {
	auth        *authenticator
	fleet       *Fleet
	executor    Executor
	rebootDelay time.Duration
	logger      *slog.Logger
	router      *mux.Router

	available atomic.Bool
	requests  atomic.Int64

	mu       sync.Mutex
	config   map[string]any
	winrm    WinRMConfig
	logLines []string
	timers   []*time.Timer
}

// New creates a [Backend].
func New(opts ...Option) (*Backend, error) {
	cfg := &backendConfig{
		users:       DefaultUsers(),
		secret:      []byte("voxco_server_dashboard_secret_key"),
		tokenTTL:    defaultTokenTTL,
		hashCost:    bcrypt.DefaultCost,
		servers:     DefaultFleet(),
		executor:    HostExecutor{},
		rebootDelay: defaultRebootDelay,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	auth, err := newAuthenticator(cfg.users, cfg.secret, cfg.tokenTTL, cfg.hashCost)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		auth:        auth,
		fleet:       NewFleet(cfg.servers, cfg.jitter),
		executor:    cfg.executor,
		rebootDelay: cfg.rebootDelay,
		logger:      cfg.logger,
		config:      map[string]any{"refreshInterval": 10000, "theme": "light"},
		winrm:       WinRMConfig{Enabled: true, Username: "administrator", Host: "localhost", Port: "5985"},
	}
	b.available.Store(true)
	b.router = b.routes()
	return b, nil
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// Fleet exposes the simulated servers for inspection and mutation.
func (b *Backend) Fleet() *Fleet {
	return b.fleet
}

// SetAvailable toggles outage simulation. While unavailable, every route
// except POST /api/login answers 503.
func (b *Backend) SetAvailable(ok bool) {
	b.available.Store(ok)
}

// Requests returns the number of requests received so far.
func (b *Backend) Requests() int64 {
	return b.requests.Load()
}

// IssueToken signs a token for an existing user with a custom lifetime. A
// negative ttl yields an expired token.
func (b *Backend) IssueToken(username string, ttl time.Duration) (string, error) {
	acct, ok := b.auth.accounts[username]
	if !ok {
		return "", fmt.Errorf("unknown user %q", username)
	}
	return b.auth.issue(username, acct.role, ttl)
}

// RevokeTokens rotates the signing key so every outstanding token is
// rejected with 401.
func (b *Backend) RevokeTokens() {
	b.auth.rotate()
}

// Close cancels pending reboot completions.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
}

func (b *Backend) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(b.countRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/login", b.handleLogin).Methods(http.MethodPost)

	data := api.NewRoute().Subrouter()
	data.Use(b.requireAvailable, b.requireToken)

	data.HandleFunc("/servers", b.handleServers).Methods(http.MethodGet)
	data.HandleFunc("/servers", b.handleSaveServers).Methods(http.MethodPost)
	data.HandleFunc("/servers/{name}", b.handleServerDetails).Methods(http.MethodGet)
	data.HandleFunc("/stats", b.handleStats).Methods(http.MethodGet)
	data.HandleFunc("/services/{action:start|stop|restart}", b.handleServiceAction).Methods(http.MethodPost)
	data.HandleFunc("/server/reboot", b.handleReboot).Methods(http.MethodPost)
	data.HandleFunc("/logs", b.handleLogs).Methods(http.MethodGet)
	data.HandleFunc("/config", b.handleGetConfig).Methods(http.MethodGet)
	data.HandleFunc("/config", b.handleSaveConfig).Methods(http.MethodPost)

	data.HandleFunc("/winrm/config", b.handleGetWinRMConfig).Methods(http.MethodGet)
	data.HandleFunc("/winrm/config", b.handleSaveWinRMConfig).Methods(http.MethodPost)
	data.HandleFunc("/winrm/status", b.handleWinRMStatus).Methods(http.MethodGet)
	data.HandleFunc("/winrm/test", b.handleWinRMTest).Methods(http.MethodGet)
	data.HandleFunc("/winrm/server/{ip}/info", b.handleWinRMInfo).Methods(http.MethodGet)
	data.HandleFunc("/winrm/server/{ip}/metrics", b.handleWinRMMetrics).Methods(http.MethodGet)
	data.HandleFunc("/winrm/server/{ip}/services", b.handleWinRMServices).Methods(http.MethodGet)
	data.HandleFunc("/winrm/server/{ip}/service/{service}/status", b.handleWinRMServiceStatus).Methods(http.MethodGet)
	data.HandleFunc("/winrm/server/{ip}/service/{service}/{action:start|stop|restart}", b.handleWinRMServiceAction).Methods(http.MethodPost)
	data.HandleFunc("/winrm/server/{ip}/reboot", b.handleWinRMReboot).Methods(http.MethodPost)

	return r
}

// middleware

func (b *Backend) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireAvailable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.available.Load() {
			writeError(w, http.StatusServiceUnavailable, "backend unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			writeError(w, http.StatusUnauthorized, "Token is missing")
			return
		}

		c, err := b.auth.validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, c)))
	})
}

func currentUser(r *http.Request) *claims {
	c, _ := r.Context().Value(claimsKey).(*claims)
	if c == nil {
		return &claims{}
	}
	return c
}

// auth

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request format"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing username or password"})
		return
	}

	token, err := b.auth.login(req.Username, req.Password)
	if err != nil {
		b.logger.Warn("mock login rejected", "user", req.Username)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}

	b.record("INFO", fmt.Sprintf("User %s logged in successfully", req.Username))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Login successful", "token": token})
}

// fleet

func (b *Backend) handleServers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, b.fleet.Servers(q.Get("search"), q.Get("status")))
}

func (b *Backend) handleSaveServers(w http.ResponseWriter, r *http.Request) {
	var servers []Server
	if err := decodeBody(r, &servers); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid server data format")
		return
	}
	b.fleet.Replace(servers)
	b.record("INFO", fmt.Sprintf("Server definitions replaced by %s (%d servers)", currentUser(r).Username, len(servers)))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server data saved successfully"})
}

func (b *Backend) handleServerDetails(w http.ResponseWriter, r *http.Request) {
	server, ok := b.fleet.Server(mux.Vars(r)["name"])
	if !ok {
		writeError(w, http.StatusNotFound, "Server not found")
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (b *Backend) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.fleet.Stats(time.Now()))
}

func (b *Backend) handleServiceAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	var req struct {
		Server  string `json:"server"`
		Service string `json:"service"`
	}
	if err := decodeBody(r, &req); err != nil || req.Server == "" || req.Service == "" {
		writeError(w, http.StatusBadRequest, "Missing server or service name")
		return
	}

	target := StatusOnline
	if action == "stop" {
		target = StatusOffline
	}

	if action != "restart" {
		if current, ok := b.fleet.ServiceStatus(req.Server, req.Service); ok && current == target {
			verb := "running"
			if target == StatusOffline {
				verb = "stopped"
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Service %s is already %s", req.Service, verb)})
			return
		}
	}

	prev, err := b.fleet.SetServiceStatus(req.Server, req.Service, target)
	if err != nil {
		writeNotFound(w, err)
		return
	}

	user := currentUser(r).Username
	b.record("INFO", fmt.Sprintf("Service %s on %s %s by %s (changed from %s to %s)",
		req.Service, req.Server, pastTense(action), user, prev, target))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Service %s %s successfully", req.Service, pastTense(action)),
	})
}

func (b *Backend) handleReboot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Server string `json:"server"`
		Force  bool   `json:"force"`
	}
	if err := decodeBody(r, &req); err != nil || req.Server == "" {
		writeError(w, http.StatusBadRequest, "Missing server name")
		return
	}
	if err := b.reboot(req.Server, currentUser(r).Username); err != nil {
		writeNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Server %s is rebooting", req.Server)})
}

// reboot marks every service offline and schedules them back online after
// the reboot delay.
func (b *Backend) reboot(server, user string) error {
	if err := b.fleet.SetAllServices(server, StatusOffline); err != nil {
		return err
	}
	b.record("INFO", fmt.Sprintf("Server %s rebooted by %s", server, user))

	t := time.AfterFunc(b.rebootDelay, func() {
		if err := b.fleet.SetAllServices(server, StatusOnline); err == nil {
			b.record("INFO", fmt.Sprintf("Server %s completed reboot", server))
		}
	})
	b.mu.Lock()
	b.timers = append(b.timers, t)
	b.mu.Unlock()
	return nil
}

// logs and config

func (b *Backend) handleLogs(w http.ResponseWriter, r *http.Request) {
	if currentUser(r).Role != RoleAdmin {
		writeError(w, http.StatusForbidden, "Unauthorized access")
		return
	}

	q := r.URL.Query()
	limit := 100
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = v
	}
	server, service, level := q.Get("server"), q.Get("service"), strings.ToUpper(q.Get("level"))

	b.mu.Lock()
	lines := b.logLines
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if server != "" && !strings.Contains(line, server) {
			continue
		}
		if service != "" && !strings.Contains(line, service) {
			continue
		}
		if level != "" && !strings.Contains(line, level) {
			continue
		}
		out = append(out, line)
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	cfg := make(map[string]any, len(b.config))
	for k, v := range b.config {
		cfg[k] = v
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, cfg)
}

func (b *Backend) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var cfg map[string]any
	if err := decodeBody(r, &cfg); err != nil || cfg == nil {
		writeError(w, http.StatusBadRequest, "Invalid configuration data format")
		return
	}
	b.mu.Lock()
	b.config = cfg
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Configuration saved successfully"})
}

// winrm

func (b *Backend) handleGetWinRMConfig(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	cfg := b.winrm
	b.mu.Unlock()
	cfg.Password = ""
	writeJSON(w, http.StatusOK, cfg)
}

func (b *Backend) handleSaveWinRMConfig(w http.ResponseWriter, r *http.Request) {
	var cfg WinRMConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid WinRM configuration"})
		return
	}
	b.mu.Lock()
	if cfg.Password == "" {
		cfg.Password = b.winrm.Password
	}
	b.winrm = cfg
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "WinRM configuration saved"})
}

func (b *Backend) handleWinRMStatus(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	cfg := b.winrm
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]bool{
		"enabled":    cfg.Enabled,
		"configured": cfg.Username != "" && cfg.Host != "",
	})
}

func (b *Backend) winrmEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.winrm.Enabled
}

func (b *Backend) handleWinRMTest(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("server")
	if ip == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "Server is required"})
		return
	}
	if !b.winrmEnabled() {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "WinRM is disabled"})
		return
	}
	info, err := b.executor.Info(r.Context(), ip)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": info})
}

// winrmTarget resolves the {ip} route variable to a fleet server, writing
// an error response and returning false when that is not possible.
func (b *Backend) winrmTarget(w http.ResponseWriter, r *http.Request) (Server, bool) {
	if !b.winrmEnabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "WinRM is disabled"})
		return Server{}, false
	}
	server, ok := b.fleet.ServerByIP(mux.Vars(r)["ip"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Server not found"})
		return Server{}, false
	}
	return server, true
}

func (b *Backend) handleWinRMInfo(w http.ResponseWriter, r *http.Request) {
	server, ok := b.winrmTarget(w, r)
	if !ok {
		return
	}
	info, err := b.executor.Info(r.Context(), server.IP)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (b *Backend) handleWinRMMetrics(w http.ResponseWriter, r *http.Request) {
	server, ok := b.winrmTarget(w, r)
	if !ok {
		return
	}
	metrics, err := b.executor.Metrics(r.Context(), server.IP)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// winrmService is a Get-Service row.
type winrmService struct {
	Name        string `json:"Name"`
	DisplayName string `json:"DisplayName,omitempty"`
	Status      string `json:"Status"`
	StartType   string `json:"StartType,omitempty"`
}

func toWinRMService(s Service) winrmService {
	return winrmService{
		Name:        s.Name,
		DisplayName: s.Description,
		Status:      winrmState(s.Status),
		StartType:   "Automatic",
	}
}

// winrmState maps a dashboard status to a Get-Service state name.
func winrmState(status string) string {
	switch status {
	case StatusOnline:
		return "Running"
	case StatusOffline:
		return "Stopped"
	default:
		return "StartPending"
	}
}

func (b *Backend) handleWinRMServices(w http.ResponseWriter, r *http.Request) {
	server, ok := b.winrmTarget(w, r)
	if !ok {
		return
	}
	out := make([]winrmService, 0, len(server.Services))
	for _, s := range server.Services {
		out = append(out, toWinRMService(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleWinRMServiceStatus(w http.ResponseWriter, r *http.Request) {
	server, ok := b.winrmTarget(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["service"]
	for _, s := range server.Services {
		if s.Name == name {
			writeJSON(w, http.StatusOK, toWinRMService(s))
			return
		}
	}
	writeError(w, http.StatusNotFound, "Service not found")
}

func (b *Backend) handleWinRMServiceAction(w http.ResponseWriter, r *http.Request) {
	server, ok := b.winrmTarget(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	action, service := vars["action"], vars["service"]

	target := StatusOnline
	if action == "stop" {
		target = StatusOffline
	}
	if _, err := b.fleet.SetServiceStatus(server.Name, service, target); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": fmt.Sprintf("Cannot find any service with service name '%s'.", service)})
		return
	}

	b.record("INFO", fmt.Sprintf("WinRM: service %s on %s %s by %s", service, server.Name, pastTense(action), currentUser(r).Username))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    winrmService{Name: service, Status: winrmState(target)},
	})
}

func (b *Backend) handleWinRMReboot(w http.ResponseWriter, r *http.Request) {
	server, ok := b.winrmTarget(w, r)
	if !ok {
		return
	}
	if err := b.reboot(server.Name, currentUser(r).Username); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("Server %s is rebooting", server.Name)})
}

// helpers

// record appends a timestamped line to the in-memory log served on /logs.
func (b *Backend) record(level, msg string) {
	line := fmt.Sprintf("%s - %s - %s", time.Now().Format("2006-01-02 15:04:05"), level, msg)
	b.mu.Lock()
	b.logLines = append(b.logLines, line)
	if len(b.logLines) > maxLogLines {
		b.logLines = b.logLines[len(b.logLines)-maxLogLines:]
	}
	b.mu.Unlock()
	b.logger.Debug("mock backend event", "message", msg)
}

func pastTense(action string) string {
	switch action {
	case "start":
		return "started"
	case "stop":
		return "stopped"
	case "restart":
		return "restarted"
	}
	return action
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeNotFound(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errServiceNotFound):
		writeError(w, http.StatusNotFound, "Service not found")
	default:
		writeError(w, http.StatusNotFound, "Server not found")
	}
}
