package winboard

import (
	"errors"
	"fmt"

	"github.com/voxco/winboard/internal/backend"
)

var (
	// ErrNotAuthenticated is returned by operations that need a session when
	// the controller has none.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidCredentials is wrapped by the [*AuthError] returned when the
	// backend or a [StaticAuthenticator] rejects a username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMalformedResponse reports a successful response whose body could not
	// be decoded into the expected shape.
	ErrMalformedResponse = backend.ErrMalformedResponse

	// ErrTokenExpired is returned (and carried by the auth-change event) when
	// the backend answers an authenticated call with 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrReconnectExhausted is carried by the auth-change event emitted when
	// more than the configured number of consecutive poll cycles fail.
	ErrReconnectExhausted = errors.New("connection lost")

	// ErrUnknownEvent is returned by [Controller.Subscribe] for an
	// unrecognised [EventKind].
	ErrUnknownEvent = errors.New("unknown event kind")

	// ErrUnknownAction is returned for a service action other than start,
	// stop or restart.
	ErrUnknownAction = errors.New("unknown service action")
)

// AuthError is returned by [Controller.Login] when no session could be
// established. Reason is a human-readable summary suitable for a login form.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "authentication failed: " + e.Reason
	}
	if e.Reason == "" {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NetworkError reports a request that could not complete: connection
// refused, DNS failure, timeout, cancelled context.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RequestError reports a non-2xx answer to a pass-through request.
type RequestError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// ActionError reports a service or reboot command rejected by the backend or
// by the remote execution layer behind it.
type ActionError struct {
	Op      string
	Server  string
	Service string

	// StatusCode is the HTTP status, or zero when the backend answered 2xx
	// but reported the command as unsuccessful.
	StatusCode int
	Message    string
	Err        error
}

func (e *ActionError) Error() string {
	target := e.Server
	if e.Service != "" {
		target = e.Server + "/" + e.Service
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "command failed"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Op, target, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, target, msg)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// IsTokenExpired reports whether err was caused by the backend rejecting the
// session token.
func IsTokenExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// translate maps a backend client error onto the public taxonomy. 401s are
// reported as [ErrTokenExpired]; the caller decides whether to expire the
// session.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, backend.ErrUnauthorized) {
		return fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	var se *backend.StatusError
	if errors.As(err, &se) {
		return &RequestError{Op: op, StatusCode: se.Code, Message: se.Message}
	}

	var te *backend.TransportError
	if errors.As(err, &te) {
		return &NetworkError{Op: op, Err: te.Err}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// actionFailure converts a translated error into an [*ActionError] when the
// backend rejected the command. Network failures and token expiry pass
// through unchanged.
func actionFailure(op, server, service string, err error) error {
	var re *RequestError
	if errors.As(err, &re) {
		return &ActionError{
			Op:         op,
			Server:     server,
			Service:    service,
			StatusCode: re.StatusCode,
			Message:    re.Message,
			Err:        err,
		}
	}
	return err
}
