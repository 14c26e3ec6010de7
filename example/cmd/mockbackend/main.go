// Standalone mock backend for trying the CLI without a real dashboard API.
//
// Usage:
//
//	go run ./example/cmd/mockbackend
//
// Then in another terminal:
//
//	go run ./cmd/winboard serve -c example/config.yaml
//
// The listen address defaults to :5001 and can be changed with MOCK_ADDR.
// Service statuses and metrics drift slightly between polls.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxco/winboard/internal/mockbackend"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	addr := os.Getenv("MOCK_ADDR")
	if addr == "" {
		addr = ":5001"
	}

	backend, err := mockbackend.New(
		mockbackend.WithJitter(true),
		mockbackend.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create mock backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("Mock backend listening on %s (API root http://localhost%s/api)\n", addr, addr)
	fmt.Println("Users: admin/admin (admin), user/user")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("mock backend error", "error", err)
		os.Exit(1)
	}
}
