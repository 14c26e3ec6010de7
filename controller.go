package winboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxco/winboard/internal/backend"
	"github.com/voxco/winboard/internal/poller"
	"github.com/voxco/winboard/tokenstore"
)

const (
	defaultPollingInterval   = 10 * time.Second
	defaultMaxReconnects     = 5
	defaultRequestTimeout    = 10 * time.Second
	defaultDashboardPort     = 8080
	defaultDashboardTitle    = "Voxco Server Dashboard"
	storeOperationTimeoutCap = 5 * time.Second
)

// errLoginSuperseded is wrapped by the AuthError returned from a Login that
// was overtaken by a Logout or another Login while it was in flight.
var errLoginSuperseded = errors.New("login superseded")

// TokenStore persists the session token between runs.
//
// Load returns "" and a nil error when nothing is stored. Implementations
// live in the tokenstore package; any type with these methods works.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Controller owns one authenticated session against the backend, polls
// server and service state while the session lasts, and fans the results out
// to subscribers as typed events.
//
// A Controller is created with [New] and is safe for concurrent use. The
// typical lifecycle is:
//
//	c, err := winboard.New(winboard.WithBaseURL("http://localhost:5001/api"))
//	if err != nil {
//	    slog.Error("failed to create controller", "error", err)
//	    os.Exit(1)
//	}
//	defer c.Close()
//
//	c.OnServerUpdate(func(u winboard.ServerUpdate) {
//	    slog.Info("fleet updated", "servers", len(u.Servers))
//	})
//
//	if _, err := c.Login(ctx, "admin", "admin"); err != nil {
//	    slog.Error("login failed", "error", err)
//	}
//
// Polling runs if and only if a session token is present. Every path that
// clears the token ([Controller.Logout], a 401 from the backend, exhausted
// reconnects) also stops polling.
type Controller struct {
	client      *backend.Client
	auth        Authenticator
	tokens      TokenStore
	interval    time.Duration
	maxAttempts int
	timeout     time.Duration
	logger      *slog.Logger
	bus         *bus

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	// storeMu orders token store I/O. It is taken before mu, never while
	// holding it.
	storeMu sync.Mutex

	mu         sync.Mutex
	session    Session
	status     ConnectionStatus
	attempts   int
	loop       *poller.Loop
	generation uint64
	closed     bool
}

// New creates a [Controller] with the given options.
//
// [WithBaseURL] is required unless a custom authenticator is configured.
// Other options have defaults:
//   - Polling interval: 10 seconds
//   - Max reconnect attempts: 5
//   - Request timeout: 10 seconds
//   - Token store: in memory
//   - Auto-resume: on
//
// If the token store already holds a token and auto-resume is on, the
// session is restored and polling starts before New returns. Handlers
// subscribed afterwards see events from the second cycle onwards; disable
// auto-resume and call [Controller.Resume] to observe the first one.
func New(opts ...Option) (*Controller, error) {
	cfg := &controllerConfig{
		interval:       defaultPollingInterval,
		maxAttempts:    defaultMaxReconnects,
		requestTimeout: defaultRequestTimeout,
		autoResume:     true,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.baseURL == "" && cfg.authenticator == nil {
		return nil, errors.New("base URL is required")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := backend.NewClient(cfg.baseURL, cfg.httpClient, cfg.requestTimeout)

	auth := cfg.authenticator
	if auth == nil {
		auth = &backendAuthenticator{client: client}
	}

	tokens := cfg.tokenStore
	if tokens == nil {
		tokens = tokenstore.NewMemory()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:      client,
		auth:        auth,
		tokens:      tokens,
		interval:    cfg.interval,
		maxAttempts: cfg.maxAttempts,
		timeout:     cfg.requestTimeout,
		logger:      logger,
		bus:         newBus(logger),
		ctx:         ctx,
		cancel:      cancel,
		status:      ConnectionStatus{State: StateDisconnected},
	}

	if cfg.autoResume {
		if _, err := c.Resume(ctx); err != nil {
			logger.Warn("failed to load persisted token", "error", err)
		}
	}

	return c, nil
}

// Resume restores a session from the token store and starts polling. It
// reports whether a token was found. Resume is a no-op returning true when a
// session already exists.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.session.Valid() {
		c.mu.Unlock()
		return true, nil
	}
	if c.closed {
		c.mu.Unlock()
		return false, errors.New("controller is closed")
	}
	gen := c.generation
	c.mu.Unlock()

	c.storeMu.Lock()
	storeCtx, cancel := c.storeContext(ctx)
	token, err := c.tokens.Load(storeCtx)
	cancel()
	c.storeMu.Unlock()
	if err != nil {
		return false, fmt.Errorf("load token: %w", err)
	}
	if token == "" {
		return false, nil
	}

	c.mu.Lock()
	if c.session.Valid() {
		c.mu.Unlock()
		return true, nil
	}
	if gen != c.generation || c.closed {
		// logged out or closed while loading
		c.mu.Unlock()
		return false, nil
	}
	c.session = Session{Token: token}
	c.status = ConnectionStatus{State: StateConnected}
	c.mu.Unlock()

	c.logger.Info("resuming persisted session")
	c.startPolling(token)
	return true, nil
}

// Login authenticates with the configured [Authenticator] and, on success,
// starts polling. The first poll cycle runs immediately.
//
// Any previous session ends first, so a failed Login leaves the controller
// logged out. On failure Login emits connection-status{connected:false} and
// returns an [*AuthError]; it never emits auth-change.
func (c *Controller) Login(ctx context.Context, username, password string) (Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Session{}, &AuthError{Reason: "controller is closed"}
	}
	loop, cleared := c.endSessionLocked(ConnectionStatus{State: StateConnecting})
	gen := c.generation
	c.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	if cleared {
		c.syncTokenStore(ctx)
	}
	c.bus.emit(ConnectionStatusEvent{Status: ConnectionStatus{State: StateConnecting}})

	token, err := c.auth.Authenticate(ctx, username, password)
	if err == nil && token == "" {
		err = &AuthError{Reason: "empty token", Err: ErrMalformedResponse}
	}

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		c.logger.Debug("login result discarded", "user", username)
		return Session{}, &AuthError{Reason: "session changed during login", Err: errLoginSuperseded}
	}

	if err != nil {
		var ae *AuthError
		if !errors.As(err, &ae) {
			err = &AuthError{Err: err}
		}
		status := ConnectionStatus{State: StateDisconnected, Err: err}
		c.status = status
		c.mu.Unlock()

		c.logger.Warn("login failed", "user", username, "error", err)
		c.bus.emit(ConnectionStatusEvent{Status: status, Err: err})
		return Session{}, err
	}

	session := Session{Token: token, User: username}
	c.session = session
	c.attempts = 0
	c.status = ConnectionStatus{State: StateConnected}
	c.mu.Unlock()

	c.syncTokenStore(ctx)
	c.logger.Info("logged in", "user", username)
	c.bus.emit(AuthChange{Authenticated: true, User: username})
	c.startPolling(token)
	return session, nil
}

// Logout ends the session. It always succeeds and is idempotent: with no
// session it only re-emits the disconnected state.
func (c *Controller) Logout() {
	c.mu.Lock()
	user := c.session.User
	loop, hadSession := c.endSessionLocked(ConnectionStatus{State: StateDisconnected})
	c.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	if hadSession {
		c.syncTokenStore(context.Background())
		c.logger.Info("logged out", "user", user)
	}

	c.bus.emit(AuthChange{Authenticated: false})
	c.bus.emit(ConnectionStatusEvent{Status: ConnectionStatus{State: StateDisconnected}})
}

// Close stops polling and waits for the poll goroutine to exit. It does not
// log out: a persisted token survives Close and can be resumed by the next
// controller. Close must not be called from an event handler.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	loop := c.loop
	c.loop = nil
	c.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	c.cancel()
	c.loops.Wait()
	c.client.Close()
	return nil
}

// IsAuthenticated reports whether a session token is present.
func (c *Controller) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Valid()
}

// Session returns the current session and whether one exists. The user is
// empty for sessions restored from a token store.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.session.Valid()
}

// Status returns the current connection status.
func (c *Controller) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ReconnectAttempts returns the number of consecutive failed poll cycles.
func (c *Controller) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// PollingInterval returns the configured interval between poll cycles.
func (c *Controller) PollingInterval() time.Duration {
	return c.interval
}

// MaxReconnectAttempts returns the configured failure tolerance.
func (c *Controller) MaxReconnectAttempts() int {
	return c.maxAttempts
}

// Polling reports whether a poll loop is active.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop != nil && !c.loop.Stopped()
}

// Subscribe registers h for events of the given kind. Handlers run in
// registration order, synchronously, each isolated by panic recovery.
//
// Returns [ErrUnknownEvent] for an unrecognised kind and an error for a nil
// handler.
func (c *Controller) Subscribe(kind EventKind, h Handler) (Subscription, error) {
	return c.bus.subscribe(kind, h)
}

// Unsubscribe removes one registration. It reports whether the subscription
// was still registered.
func (c *Controller) Unsubscribe(sub Subscription) bool {
	return c.bus.unsubscribe(sub)
}

// OnAuthChange subscribes fn to auth-change events.
func (c *Controller) OnAuthChange(fn func(AuthChange)) (Subscription, error) {
	if fn == nil {
		return Subscription{}, errors.New("nil auth-change handler")
	}
	return c.Subscribe(EventAuthChange, func(ev Event) {
		if e, ok := ev.(AuthChange); ok {
			fn(e)
		}
	})
}

// OnServerUpdate subscribes fn to server-update events.
func (c *Controller) OnServerUpdate(fn func(ServerUpdate)) (Subscription, error) {
	if fn == nil {
		return Subscription{}, errors.New("nil server-update handler")
	}
	return c.Subscribe(EventServerUpdate, func(ev Event) {
		if e, ok := ev.(ServerUpdate); ok {
			fn(e)
		}
	})
}

// OnServiceUpdate subscribes fn to service-update events.
func (c *Controller) OnServiceUpdate(fn func(ServiceUpdate)) (Subscription, error) {
	if fn == nil {
		return Subscription{}, errors.New("nil service-update handler")
	}
	return c.Subscribe(EventServiceUpdate, func(ev Event) {
		if e, ok := ev.(ServiceUpdate); ok {
			fn(e)
		}
	})
}

// OnServerReboot subscribes fn to server-reboot events.
func (c *Controller) OnServerReboot(fn func(ServerReboot)) (Subscription, error) {
	if fn == nil {
		return Subscription{}, errors.New("nil server-reboot handler")
	}
	return c.Subscribe(EventServerReboot, func(ev Event) {
		if e, ok := ev.(ServerReboot); ok {
			fn(e)
		}
	})
}

// OnConnectionStatus subscribes fn to connection-status events.
func (c *Controller) OnConnectionStatus(fn func(ConnectionStatusEvent)) (Subscription, error) {
	if fn == nil {
		return Subscription{}, errors.New("nil connection-status handler")
	}
	return c.Subscribe(EventConnectionStatus, func(ev Event) {
		if e, ok := ev.(ConnectionStatusEvent); ok {
			fn(e)
		}
	})
}

// startPolling replaces any running loop with a new one bound to token. It
// does nothing if token is no longer the session token.
func (c *Controller) startPolling(token string) {
	c.mu.Lock()
	if c.closed || token == "" || c.session.Token != token {
		c.mu.Unlock()
		return
	}
	prev := c.loop
	c.generation++
	gen := c.generation
	c.attempts = 0

	loop := poller.NewLoop(c.interval, func(ctx context.Context) {
		c.pollCycle(ctx, gen, token)
	}, c.logger)
	c.loop = loop
	c.loops.Add(1)
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	c.logger.Debug("polling started", "interval", c.interval.String())
	c.bus.emit(ConnectionStatusEvent{Status: ConnectionStatus{State: StateConnected}, Connected: true})

	go func() {
		defer c.loops.Done()
		// a Stop that lands before Start leaves the loop inert
		loop.Start(c.ctx)
		loop.Wait()
	}()
}

// pollCycle fetches servers and stats for the polling session identified by
// gen. Results for a superseded session are dropped.
func (c *Controller) pollCycle(ctx context.Context, gen uint64, token string) {
	var (
		servers    []Server
		stats      Stats
		serversErr error
		statsErr   error
	)

	// no shared context: a fast failure must not cancel the other request
	// before it can report a 401
	var g errgroup.Group
	g.Go(func() error {
		serversErr = c.client.Do(ctx, backend.Request{Path: "/servers", Token: token}, &servers)
		return serversErr
	})
	g.Go(func() error {
		statsErr = c.client.Do(ctx, backend.Request{Path: "/stats", Token: token}, &stats)
		return statsErr
	})
	err := g.Wait()

	if ctx.Err() != nil {
		// loop stopped mid-cycle
		return
	}

	if errors.Is(serversErr, backend.ErrUnauthorized) || errors.Is(statsErr, backend.ErrUnauthorized) {
		c.expireSession(token)
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale poll result")
		return
	}

	if err == nil {
		recovered := c.attempts
		c.attempts = 0
		c.status = ConnectionStatus{State: StateConnected}
		c.mu.Unlock()

		if recovered > 0 {
			c.logger.Info("connection restored", "failed_cycles", recovered)
		}
		c.logger.Debug("poll completed", "servers", len(servers))
		c.bus.emit(ServerUpdate{Servers: servers, Stats: stats, At: time.Now()})
		c.bus.emit(ConnectionStatusEvent{Status: ConnectionStatus{State: StateConnected}, Connected: true})
		return
	}

	cause := translate("poll", err)
	c.attempts++
	attempts := c.attempts

	if attempts <= c.maxAttempts {
		status := ConnectionStatus{State: StateReconnecting, Attempt: attempts}
		c.status = status
		c.mu.Unlock()

		c.logger.Warn("poll failed",
			"attempt", attempts,
			"max_attempts", c.maxAttempts,
			"error", cause,
		)
		c.bus.emit(ConnectionStatusEvent{
			Status:       status,
			Reconnecting: true,
			Attempts:     attempts,
			Err:          cause,
		})
		return
	}

	// exhausted: tear the session down exactly once
	loop, cleared := c.endSessionLocked(ConnectionStatus{State: StateDisconnected, Err: ErrReconnectExhausted})
	status := c.status
	c.attempts = attempts
	c.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	if cleared {
		c.syncTokenStore(context.Background())
	}
	c.logger.Error("connection lost, session ended",
		"attempts", attempts,
		"error", cause,
	)
	c.bus.emit(ConnectionStatusEvent{
		Status:   status,
		Attempts: attempts,
		Err:      cause,
	})
	c.bus.emit(AuthChange{Authenticated: false, Err: ErrReconnectExhausted})
}

// expireSession ends the session after the backend rejected token. It does
// nothing if the session has already moved on to another token.
func (c *Controller) expireSession(token string) {
	c.mu.Lock()
	if token == "" || c.session.Token != token {
		c.mu.Unlock()
		return
	}
	user := c.session.User
	status := ConnectionStatus{State: StateDisconnected, Err: ErrTokenExpired}
	loop, _ := c.endSessionLocked(status)
	c.mu.Unlock()

	if loop != nil {
		loop.Stop()
	}
	c.syncTokenStore(context.Background())
	c.logger.Warn("session token rejected by backend", "user", user)
	c.bus.emit(AuthChange{Authenticated: false, User: user, Err: ErrTokenExpired})
	c.bus.emit(ConnectionStatusEvent{Status: status, Err: ErrTokenExpired})
}

// endSessionLocked clears the session in memory, invalidates in-flight
// cycles and sets status. It returns the loop the caller must stop once the
// lock is released, and whether a token was cleared; if so the caller must
// also call syncTokenStore after unlocking. c.mu must be held.
func (c *Controller) endSessionLocked(status ConnectionStatus) (*poller.Loop, bool) {
	hadToken := c.session.Valid()
	c.session = Session{}
	c.attempts = 0
	c.status = status
	c.generation++

	loop := c.loop
	c.loop = nil
	return loop, hadToken
}

// syncTokenStore writes the current session token to the token store, or
// clears it when there is no session. Syncs are serialized and each reads
// the session afresh, so whichever runs last leaves the store matching the
// latest session even when a Login and a Logout race.
func (c *Controller) syncTokenStore(ctx context.Context) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	c.mu.Lock()
	token := c.session.Token
	c.mu.Unlock()

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	if token == "" {
		if err := c.tokens.Clear(storeCtx); err != nil {
			c.logger.Warn("failed to clear persisted token", "error", err)
		}
		return
	}
	if err := c.tokens.Save(storeCtx, token); err != nil {
		c.logger.Warn("failed to persist token", "error", err)
	}
}

// storeContext bounds a token store operation.
func (c *Controller) storeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	timeout := c.timeout
	if timeout > storeOperationTimeoutCap {
		timeout = storeOperationTimeoutCap
	}
	return context.WithTimeout(parent, timeout)
}

// currentToken returns the session token or [ErrNotAuthenticated].
func (c *Controller) currentToken() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Valid() {
		return Session{}, ErrNotAuthenticated
	}
	return c.session, nil
}

// call performs an authenticated backend request. A 401 expires the session
// that issued it.
func (c *Controller) call(ctx context.Context, op string, req backend.Request, out any) error {
	session, err := c.currentToken()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Token = session.Token

	err = c.client.Do(ctx, req, out)
	if err == nil {
		return nil
	}
	if errors.Is(err, backend.ErrUnauthorized) {
		c.expireSession(session.Token)
	}
	return translate(op, err)
}
