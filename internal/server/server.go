package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/voxco/winboard/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// actionTimeout bounds a service action or reboot proxied to the controller.
	actionTimeout = 30 * time.Second

	maxRequestBody = 64 << 10 // 64KB

	// defaultHost keeps the dashboard off the network unless a host is
	// given explicitly.
	defaultHost = "127.0.0.1"

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Winboard"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

var (
	// ErrInvalidRequest is wrapped by [Actions] errors that should be
	// reported to the browser as 400.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnauthenticated is wrapped by [Actions] errors caused by a missing
	// or expired session, reported as 401.
	ErrUnauthenticated = errors.New("not logged in")

	errCrossOrigin    = errors.New("cross-origin request rejected")
	errNotJSONRequest = errors.New("request body must be application/json")
)

// Actions performs the commands the dashboard exposes. Returned messages are
// shown to the user verbatim.
type Actions interface {
	ServiceAction(ctx context.Context, action, server, service string) (string, error)
	RebootServer(ctx context.Context, server string, force bool) (string, error)
}

// Server handles HTTP requests for the dashboard and its API.
//
// Server provides these endpoints:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /api/snapshot: Returns the latest event per key as JSON
//   - GET /api/sse: Server-Sent Events stream of the snapshot, then live events
//   - POST /api/services/{action}: Starts, stops or restarts a service
//   - POST /api/servers/{server}/reboot: Reboots a server
//
// The action routes are only mounted when an [Actions] implementation is
// supplied. They act with the controller's session, so they only accept
// application/json bodies from pages served by this server. The server is
// designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	actions    Actions
	host       string
	port       int
	httpServer *http.Server
	router     *mux.Router
	assets     fs.FS
	title      string
	logger     *slog.Logger

	mu   sync.Mutex
	addr net.Addr
	done chan struct{}
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding the dashboard events
//   - actions: Command handler for the action routes (may be nil)
//   - host: Interface to listen on (defaults to 127.0.0.1 if empty)
//   - port: TCP port to listen on (0 picks a free port)
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "Winboard" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, actions Actions, host string, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if host == "" {
		host = defaultHost
	}
	s := &Server{
		store:   st,
		actions: actions,
		host:    host,
		port:    port,
		assets:  assets,
		title:   title,
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/sse", s.handleSSE).Methods(http.MethodGet)
	if s.actions != nil {
		actions := api.NewRoute().Subrouter()
		actions.Use(s.requireSameOrigin)
		actions.HandleFunc("/services/{action:start|stop|restart}", s.handleServiceAction).Methods(http.MethodPost)
		actions.HandleFunc("/servers/{server}/reboot", s.handleReboot).Methods(http.MethodPost)
	}

	r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout; [Server.Done] is closed once that shutdown has finished.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the server is listening on, or nil before
// [Server.Start].
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Done is closed when a started server has finished shutting down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleSnapshot returns the latest event per key as JSON.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, s.store.GetAll(), s.logger)
}

// handleSSE streams events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(ev store.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Warn("failed to encode event", "key", ev.Key, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// subscribe before replaying so nothing emitted in between is lost
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// commit headers now so clients see the stream open even with an empty snapshot
	if err := rc.Flush(); err != nil {
		return
	}

	for _, ev := range s.store.GetAll() {
		if err := writeAndFlush(ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(ev); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

type serviceActionRequest struct {
	Server  string `json:"server"`
	Service string `json:"service"`
}

type rebootRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleServiceAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var req serviceActionRequest
	if err := decodeBody(r, &req); err != nil || req.Server == "" || req.Service == "" {
		writeError(w, http.StatusBadRequest, "server and service are required", s.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
	defer cancel()

	msg, err := s.actions.ServiceAction(ctx, action, req.Server, req.Service)
	if err != nil {
		s.logger.Warn("dashboard service action failed",
			"action", action,
			"server", req.Server,
			"service", req.Service,
			"error", err,
		)
		writeError(w, statusFor(err), err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg}, s.logger)
}

func (s *Server) handleReboot(w http.ResponseWriter, r *http.Request) {
	server := mux.Vars(r)["server"]

	var req rebootRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
	defer cancel()

	msg, err := s.actions.RebootServer(ctx, server, req.Force)
	if err != nil {
		s.logger.Warn("dashboard reboot failed", "server", server, "error", err)
		writeError(w, statusFor(err), err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg}, s.logger)
}

// requireSameOrigin rejects action requests a foreign page could forge: the
// body must be declared as JSON (which browsers cannot send cross-site
// without a preflight) and any Origin or Fetch-Metadata header must point
// back at this server.
func (s *Server) requireSameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := checkSameOrigin(r); err != nil {
			s.logger.Warn("rejected dashboard action",
				"path", r.URL.Path,
				"origin", r.Header.Get("Origin"),
				"remote", r.RemoteAddr,
				"error", err,
			)
			writeError(w, http.StatusForbidden, err.Error(), s.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func checkSameOrigin(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return errNotJSONRequest
	}
	if site := r.Header.Get("Sec-Fetch-Site"); site != "" && site != "same-origin" && site != "none" {
		return errCrossOrigin
	}
	if origin := r.Header.Get("Origin"); origin != "" {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" || !strings.EqualFold(u.Host, r.Host) {
			return errCrossOrigin
		}
	}
	return nil
}

// statusFor maps an action error to the HTTP status shown to the browser.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string, logger *slog.Logger) {
	writeJSON(w, code, map[string]string{"error": msg}, logger)
}
