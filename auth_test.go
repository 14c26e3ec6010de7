package winboard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxco/winboard/internal/backend"
)

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator(map[string]string{"admin": "admin", "user": "user"})

	tests := []struct {
		name     string
		user     string
		password string
		wantErr  bool
	}{
		{"admin", "admin", "admin", false},
		{"user", "user", "user", false},
		{"wrong password", "admin", "user", true},
		{"unknown user", "ghost", "ghost", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := a.Authenticate(context.Background(), tt.user, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCredentials) {
					t.Errorf("error = %v, want ErrInvalidCredentials", err)
				}
				return
			}
			if !strings.HasPrefix(token, "demo_") {
				t.Errorf("token = %q, want demo_ prefix", token)
			}
		})
	}
}

func TestStaticAuthenticator_UniqueTokens(t *testing.T) {
	a := NewStaticAuthenticator(map[string]string{"admin": "admin"})
	t1, _ := a.Authenticate(context.Background(), "admin", "admin")
	t2, _ := a.Authenticate(context.Background(), "admin", "admin")
	if t1 == t2 {
		t.Error("tokens should differ between logins")
	}
}

func TestStaticAuthenticator_CopiesMap(t *testing.T) {
	users := map[string]string{"admin": "admin"}
	a := NewStaticAuthenticator(users)
	users["admin"] = "changed"

	if _, err := a.Authenticate(context.Background(), "admin", "admin"); err != nil {
		t.Errorf("mutating the source map changed the authenticator: %v", err)
	}
}

func TestStaticAuthenticator_CancelledContext(t *testing.T) {
	a := NewStaticAuthenticator(map[string]string{"admin": "admin"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Authenticate(ctx, "admin", "admin"); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestBackendAuthenticator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		check   func(error) bool
		wantMsg string
	}{
		{
			name:   "rejected",
			status: http.StatusUnauthorized,
			body:   `{"message": "Invalid credentials"}`,
			check:  func(err error) bool { return errors.Is(err, ErrInvalidCredentials) },
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `{"error": "database locked"}`,
			check: func(err error) bool {
				var re *RequestError
				return errors.As(err, &re) && re.StatusCode == http.StatusInternalServerError
			},
			wantMsg: "database locked",
		},
		{
			name:   "no token",
			status: http.StatusOK,
			body:   `{"message": "Login successful"}`,
			check:  func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
		},
		{
			name:   "not json",
			status: http.StatusOK,
			body:   `<html>proxy error</html>`,
			check:  func(err error) bool { return errors.Is(err, ErrMalformedResponse) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := &backendAuthenticator{client: backend.NewClient(srv.URL, nil, time.Second)}
			_, err := a.Authenticate(context.Background(), "admin", "pw")

			var ae *AuthError
			if !errors.As(err, &ae) {
				t.Fatalf("error = %v (%T), want *AuthError", err, err)
			}
			if !tt.check(err) {
				t.Errorf("error = %v does not match expectation", err)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestBackendAuthenticator_SendsCredentials(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		gotBody = buf.String()
		_, _ = w.Write([]byte(`{"token": "abc", "message": "Login successful"}`))
	}))
	defer srv.Close()

	a := &backendAuthenticator{client: backend.NewClient(srv.URL+"/api", nil, time.Second)}
	token, err := a.Authenticate(context.Background(), "admin", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if token != "abc" {
		t.Errorf("token = %q, want abc", token)
	}
	if gotPath != "/api/login" {
		t.Errorf("path = %q, want /api/login", gotPath)
	}
	if !strings.Contains(gotBody, `"username":"admin"`) || !strings.Contains(gotBody, `"password":"s3cret"`) {
		t.Errorf("body = %s", gotBody)
	}
}

func TestAuthError_Message(t *testing.T) {
	tests := []struct {
		err  *AuthError
		want string
	}{
		{&AuthError{Reason: "controller is closed"}, "authentication failed: controller is closed"},
		{&AuthError{Err: ErrInvalidCredentials}, "authentication failed: invalid credentials"},
		{&AuthError{Reason: "Invalid credentials", Err: ErrInvalidCredentials}, "authentication failed: Invalid credentials: invalid credentials"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
