package winboard

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// controllerConfig holds mutable state during Controller construction.
type controllerConfig struct {
	baseURL        string
	interval       time.Duration
	maxAttempts    int
	requestTimeout time.Duration
	authenticator  Authenticator
	tokenStore     TokenStore
	logger         *slog.Logger
	autoResume     bool
	httpClient     *http.Client
}

// Option configures a [Controller] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, and [New] returns that error unchanged.
type Option func(*controllerConfig) error

// WithBaseURL sets the backend API root, e.g. "http://localhost:5001/api".
// Request paths such as "/servers" are appended to it.
//
// Returns an error unless the URL is absolute http or https.
func WithBaseURL(raw string) Option {
	return func(cfg *controllerConfig) error {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base URL scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("base URL must include a host")
		}
		cfg.baseURL = raw
		return nil
	}
}

// WithPollingInterval sets how often servers and stats are polled.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *controllerConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithMaxReconnectAttempts sets how many consecutive failed poll cycles are
// tolerated. The session is torn down on failure number n+1. Defaults to 5;
// zero tears down on the first failure.
//
// Returns an error if n is negative.
func WithMaxReconnectAttempts(n int) Option {
	return func(cfg *controllerConfig) error {
		if n < 0 {
			return errors.New("max reconnect attempts cannot be negative")
		}
		cfg.maxAttempts = n
		return nil
	}
}

// WithRequestTimeout bounds each backend request. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *controllerConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithAuthenticator replaces the default backend login with a custom
// strategy.
//
// Returns an error if a is nil.
func WithAuthenticator(a Authenticator) Option {
	return func(cfg *controllerConfig) error {
		if a == nil {
			return errors.New("authenticator cannot be nil")
		}
		cfg.authenticator = a
		return nil
	}
}

// WithStaticCredentials authenticates against a fixed username/password map
// instead of the backend. Shorthand for
// WithAuthenticator(NewStaticAuthenticator(users)).
//
// Returns an error if users is empty.
func WithStaticCredentials(users map[string]string) Option {
	return func(cfg *controllerConfig) error {
		if len(users) == 0 {
			return errors.New("static credentials cannot be empty")
		}
		cfg.authenticator = NewStaticAuthenticator(users)
		return nil
	}
}

// WithTokenStore sets where the session token is persisted between runs.
// Defaults to an in-memory store, which forgets the token on exit.
//
// Returns an error if s is nil.
func WithTokenStore(s TokenStore) Option {
	return func(cfg *controllerConfig) error {
		if s == nil {
			return errors.New("token store cannot be nil")
		}
		cfg.tokenStore = s
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	c, err := winboard.New(
//	    winboard.WithBaseURL("http://localhost:5001/api"),
//	    winboard.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *controllerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithAutoResume controls whether [New] resumes polling when the token store
// already holds a token. Defaults to true.
func WithAutoResume(enabled bool) Option {
	return func(cfg *controllerConfig) error {
		cfg.autoResume = enabled
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for backend requests. If not
// specified, a client with a pooled transport is created.
//
// Returns an error if c is nil.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *controllerConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}
