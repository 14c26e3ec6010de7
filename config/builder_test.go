package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voxco/winboard"
	"github.com/voxco/winboard/tokenstore"
)

func TestBuildOptions_Controller(t *testing.T) {
	cfg, err := Parse([]byte(`
base_url: http://localhost:5001/api
poll_interval: 3s
max_reconnect_attempts: 2
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, cleanup, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	defer cleanup()

	c, err := winboard.New(opts...)
	if err != nil {
		t.Fatalf("winboard.New() error = %v", err)
	}
	defer c.Close()

	if c.PollingInterval() != 3*time.Second {
		t.Errorf("PollingInterval() = %v, want 3s", c.PollingInterval())
	}
	if c.MaxReconnectAttempts() != 2 {
		t.Errorf("MaxReconnectAttempts() = %d, want 2", c.MaxReconnectAttempts())
	}
}

func TestBuildOptions_StaticAuth(t *testing.T) {
	cfg, err := Parse([]byte(`
auth:
  mode: static
  static_users:
    admin: admin
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, cleanup, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	defer cleanup()

	c, err := winboard.New(opts...)
	if err != nil {
		t.Fatalf("winboard.New() error = %v", err)
	}
	defer c.Close()

	// a static login must not touch the network
	if _, err := c.Login(context.Background(), "admin", "admin"); err != nil {
		t.Errorf("Login() error = %v", err)
	}
	c.Logout()
}

func TestBuildTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	tests := []struct {
		name  string
		cfg   TokenStoreConfig
		check func(t *testing.T, s winboard.TokenStore)
	}{
		{
			name: "default",
			cfg:  TokenStoreConfig{},
			check: func(t *testing.T, s winboard.TokenStore) {
				if _, ok := s.(*tokenstore.Memory); !ok {
					t.Errorf("store = %T, want *tokenstore.Memory", s)
				}
			},
		},
		{
			name: "memory",
			cfg:  TokenStoreConfig{Type: StoreMemory},
			check: func(t *testing.T, s winboard.TokenStore) {
				if _, ok := s.(*tokenstore.Memory); !ok {
					t.Errorf("store = %T, want *tokenstore.Memory", s)
				}
			},
		},
		{
			name: "file",
			cfg:  TokenStoreConfig{Type: StoreFile, Path: path, Key: "ops_token"},
			check: func(t *testing.T, s winboard.TokenStore) {
				f, ok := s.(*tokenstore.File)
				if !ok {
					t.Fatalf("store = %T, want *tokenstore.File", s)
				}
				if f.Path() != path {
					t.Errorf("Path() = %q, want %q", f.Path(), path)
				}
				if err := f.Save(context.Background(), "abc"); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
				data, _ := os.ReadFile(path)
				if !strings.Contains(string(data), `"ops_token"`) {
					t.Errorf("file = %s, want ops_token key", data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, cleanup, err := buildTokenStore(tt.cfg)
			if err != nil {
				t.Fatalf("buildTokenStore() error = %v", err)
			}
			defer cleanup()
			tt.check(t, s)
		})
	}
}

func TestBuildTokenStore_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  TokenStoreConfig
	}{
		{"unknown type", TokenStoreConfig{Type: "etcd"}},
		{"file without path", TokenStoreConfig{Type: StoreFile}},
		{"redis without addr", TokenStoreConfig{Type: StoreRedis}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cleanup, err := buildTokenStore(tt.cfg)
			if err == nil {
				t.Fatal("buildTokenStore() expected error, got nil")
			}
			if cleanup == nil {
				t.Fatal("cleanup must never be nil")
			}
			cleanup()
		})
	}
}

func TestBuildTokenStore_Redis(t *testing.T) {
	addr := os.Getenv("WINBOARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WINBOARD_TEST_REDIS_ADDR not set")
	}

	s, cleanup, err := buildTokenStore(TokenStoreConfig{
		Type:  StoreRedis,
		Key:   "config_test_token",
		Redis: RedisConfig{Addr: addr, Prefix: "winboard-test:"},
	})
	if err != nil {
		t.Fatalf("buildTokenStore() error = %v", err)
	}
	defer cleanup()

	ctx := context.Background()
	if err := s.Save(ctx, "abc"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	defer func() { _ = s.Clear(ctx) }()

	got, err := s.Load(ctx)
	if err != nil || got != "abc" {
		t.Errorf("Load() = %q, %v; want abc", got, err)
	}

	// cleanup is idempotent
	cleanup()
}
