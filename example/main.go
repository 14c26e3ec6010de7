// Demo: runs the mock backend in-process, logs in with a Controller and
// serves the dashboard.
//
// Usage:
//
//	go run ./example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxco/winboard"
	"github.com/voxco/winboard/internal/mockbackend"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// start the mock backend on a free port
	backend, err := mockbackend.New(mockbackend.WithJitter(true), mockbackend.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create mock backend", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}
	go func() { _ = serveMock(ln, backend) }()

	c, err := winboard.New(
		winboard.WithBaseURL(fmt.Sprintf("http://%s/api", ln.Addr())),
		winboard.WithPollingInterval(5*time.Second),
		winboard.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create controller", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	_, _ = c.OnServiceUpdate(func(u winboard.ServiceUpdate) {
		logger.Info("service changed", "server", u.Server, "service", u.Service, "status", u.Status.String())
	})
	_, _ = c.OnConnectionStatus(func(e winboard.ConnectionStatusEvent) {
		logger.Info("connection", "status", e.Status.String())
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := c.Login(ctx, "admin", "admin"); err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Winboard Demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Fleet: 10 simulated Voxco servers, polled every 5s")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := c.ServeDashboard(ctx, winboard.DashboardOptions{Port: 8080, Title: "Winboard Demo"}); err != nil {
		logger.Error("dashboard error", "error", err)
		os.Exit(1)
	}
}
