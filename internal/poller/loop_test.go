package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestLoop_StopBeforeStart verifies that calling Stop() on a loop that was
// never started does not panic and is a safe no-op.
func TestLoop_StopBeforeStart(t *testing.T) {
	loop := NewLoop(time.Minute, func(context.Context) {}, testLogger())

	loop.Stop()
	loop.Wait()
}

// TestLoop_StopTwice verifies that Stop() is idempotent.
func TestLoop_StopTwice(t *testing.T) {
	loop := NewLoop(time.Minute, func(context.Context) {}, testLogger())
	loop.Start(context.Background())

	loop.Stop()
	loop.Stop()
	loop.Wait()
}

// TestLoop_StopBeforeStartThenStart verifies that a stopped loop never runs.
func TestLoop_StopBeforeStartThenStart(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop(10*time.Millisecond, func(context.Context) { calls.Add(1) }, testLogger())

	loop.Stop()
	loop.Start(context.Background())
	loop.Wait()

	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("cycle ran %d times after Stop-then-Start, want 0", n)
	}
}

// TestLoop_ImmediateCycleOnStart verifies the first cycle does not wait for
// the interval.
func TestLoop_ImmediateCycleOnStart(t *testing.T) {
	ran := make(chan struct{}, 1)
	loop := NewLoop(time.Hour, func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}, testLogger())
	loop.Start(context.Background())
	defer func() {
		loop.Stop()
		loop.Wait()
	}()

	select {
	case <-ran:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for immediate cycle")
	}
}

// TestLoop_Ticks verifies cycles repeat on the interval.
func TestLoop_Ticks(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop(20*time.Millisecond, func(context.Context) { calls.Add(1) }, testLogger())
	loop.Start(context.Background())

	time.Sleep(110 * time.Millisecond)
	loop.Stop()
	loop.Wait()

	// immediate + ~5 ticks; allow generous scheduler slack
	if n := calls.Load(); n < 3 {
		t.Errorf("cycle ran %d times in 110ms at 20ms interval, want at least 3", n)
	}
	if loop.Cycles() != int64(calls.Load()) {
		t.Errorf("Cycles() = %d, want %d", loop.Cycles(), calls.Load())
	}
}

// TestLoop_StartTwice verifies that Start() is idempotent and does not spawn
// a second timer.
func TestLoop_StartTwice(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop(time.Hour, func(context.Context) { calls.Add(1) }, testLogger())

	loop.Start(context.Background())
	loop.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	loop.Stop()
	loop.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("cycle ran %d times, want exactly 1 immediate cycle", n)
	}
}

// TestLoop_NoOverlap verifies a slow cycle is never run concurrently with
// itself.
func TestLoop_NoOverlap(t *testing.T) {
	var (
		inFlight    atomic.Int32
		maxInFlight atomic.Int32
	)
	loop := NewLoop(5*time.Millisecond, func(ctx context.Context) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
		}
		inFlight.Add(-1)
	}, testLogger())

	loop.Start(context.Background())
	time.Sleep(150 * time.Millisecond)
	loop.Stop()
	loop.Wait()

	if m := maxInFlight.Load(); m != 1 {
		t.Errorf("max concurrent cycles = %d, want 1", m)
	}
}

// TestLoop_StopFromInsideCycle verifies a cycle can stop its own loop
// without deadlocking.
func TestLoop_StopFromInsideCycle(t *testing.T) {
	var (
		loop  *Loop
		calls atomic.Int32
	)
	loop = NewLoop(5*time.Millisecond, func(context.Context) {
		if calls.Add(1) == 3 {
			loop.Stop()
		}
	}, testLogger())
	loop.Start(context.Background())

	done := make(chan struct{})
	go func() {
		loop.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after stopping itself")
	}

	if n := calls.Load(); n != 3 {
		t.Errorf("cycle ran %d times, want 3", n)
	}
	if !loop.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

// TestLoop_ContextCancellation verifies cancelling the parent context ends
// the loop.
func TestLoop_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(time.Minute, func(context.Context) {}, testLogger())
	loop.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		loop.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("loop did not exit after parent context cancellation")
	}
}

// TestLoop_CyclePanicRecovery verifies a panicking cycle does not kill the
// loop.
func TestLoop_CyclePanicRecovery(t *testing.T) {
	var calls atomic.Int32
	loop := NewLoop(10*time.Millisecond, func(context.Context) {
		if calls.Add(1) == 1 {
			panic("simulated cycle failure")
		}
	}, testLogger())
	loop.Start(context.Background())

	time.Sleep(60 * time.Millisecond)
	loop.Stop()
	loop.Wait()

	if n := calls.Load(); n < 2 {
		t.Errorf("cycle ran %d times, want the loop to continue after a panic", n)
	}
}

// TestLoop_ConcurrentStartStop exercises Start and Stop racing each other.
// Run with: go test -race ./internal/poller/...
func TestLoop_ConcurrentStartStop(t *testing.T) {
	for i := 0; i < 100; i++ {
		loop := NewLoop(time.Minute, func(context.Context) {}, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			loop.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			loop.Stop()
		}()
		wg.Wait()

		loop.Stop()
		loop.Wait()
	}
}
