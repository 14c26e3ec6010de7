package winboard

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/voxco/winboard/internal/backend"
)

// Authenticator exchanges a username and password for a bearer token.
//
// [Controller.Login] calls Authenticate exactly once per attempt. A returned
// error that is not already an [*AuthError] is wrapped in one.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (token string, err error)
}

// AuthenticatorFunc adapts a plain function to [Authenticator].
type AuthenticatorFunc func(ctx context.Context, username, password string) (string, error)

// Authenticate implements [Authenticator].
func (f AuthenticatorFunc) Authenticate(ctx context.Context, username, password string) (string, error) {
	return f(ctx, username, password)
}

// backendAuthenticator logs in through POST /login on the backend.
type backendAuthenticator struct {
	client *backend.Client
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token   string `json:"token"`
	Message string `json:"message"`
}

func (a *backendAuthenticator) Authenticate(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := a.client.Do(ctx, backend.Request{
		Method: http.MethodPost,
		Path:   "/login",
		Body:   loginRequest{Username: username, Password: password},
	}, &resp)
	if err != nil {
		return "", loginFailure(err)
	}

	if resp.Token == "" {
		return "", &AuthError{Reason: "login response carried no token", Err: ErrMalformedResponse}
	}
	return resp.Token, nil
}

// loginFailure classifies a failed POST /login.
func loginFailure(err error) error {
	var se *backend.StatusError
	if errors.As(err, &se) {
		reason := se.Message
		if reason == "" {
			reason = http.StatusText(se.Code)
		}
		if se.Code == http.StatusUnauthorized {
			return &AuthError{Reason: reason, Err: ErrInvalidCredentials}
		}
		return &AuthError{Reason: reason, Err: &RequestError{Op: "login", StatusCode: se.Code, Message: se.Message}}
	}

	var te *backend.TransportError
	if errors.As(err, &te) {
		return &AuthError{Reason: "backend unreachable", Err: &NetworkError{Op: "login", Err: te.Err}}
	}

	if errors.Is(err, backend.ErrMalformedResponse) {
		return &AuthError{Reason: "unexpected login response", Err: err}
	}
	return &AuthError{Err: err}
}

// StaticAuthenticator checks credentials against a fixed in-memory table and
// issues opaque demo tokens. It never contacts the backend, so it suits demos
// and tests where the data routes are served by something that accepts any
// token.
type StaticAuthenticator struct {
	users map[string]string
}

// NewStaticAuthenticator builds a [StaticAuthenticator] from a
// username-to-password map. The map is copied.
func NewStaticAuthenticator(users map[string]string) *StaticAuthenticator {
	cp := make(map[string]string, len(users))
	for u, p := range users {
		cp[u] = p
	}
	return &StaticAuthenticator{users: cp}
}

// Authenticate implements [Authenticator]. Unknown users and wrong passwords
// fail identically with [ErrInvalidCredentials].
func (a *StaticAuthenticator) Authenticate(ctx context.Context, username, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	want, ok := a.users[username]
	if !ok {
		// compare anyway so unknown users cost the same as wrong passwords
		want = strings.Repeat("\x00", len(password)+1)
	}
	match := subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
	if !ok || !match {
		return "", &AuthError{Reason: "Invalid credentials", Err: ErrInvalidCredentials}
	}
	return "demo_" + uuid.NewString(), nil
}
