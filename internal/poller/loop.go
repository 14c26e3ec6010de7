package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// CycleFunc performs one poll cycle. It runs on the loop goroutine; the
// context is cancelled when the loop stops.
type CycleFunc func(ctx context.Context)

// Loop runs a [CycleFunc] once immediately and then on a fixed interval.
//
// Cycles never overlap: each runs to completion on the loop goroutine before
// the next tick is read. Ticks that fire during a slow cycle coalesce into at
// most one pending tick (time.Ticker drops the rest).
//
// All lifecycle methods (Start, Stop, Wait) are safe for concurrent use. Stop
// does not block, so it may be called from inside the cycle itself.
type Loop struct {
	interval time.Duration
	cycle    CycleFunc
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cycles atomic.Int64
}

// NewLoop creates a [Loop]. It does nothing until [Loop.Start] is called.
func NewLoop(interval time.Duration, cycle CycleFunc, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		interval: interval,
		cycle:    cycle,
		logger:   logger,
	}
}

// Start begins the loop in a background goroutine.
//
// The first cycle runs immediately, then one per interval until [Loop.Stop] is
// called or ctx is cancelled. Start is idempotent; calling it after Stop is a
// no-op. If ctx is nil, context.Background() is used.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()

		l.runCycle(loopCtx)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				// a stop that raced with the tick wins
				if loopCtx.Err() != nil {
					return
				}
				l.runCycle(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop without waiting for an in-flight cycle to finish.
//
// Stop is idempotent and safe to call before Start or from within a cycle.
// Use [Loop.Wait] to block until the loop goroutine has exited.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
}

// Wait blocks until the loop goroutine has exited. Calling Wait from inside a
// cycle deadlocks.
func (l *Loop) Wait() {
	l.wg.Wait()
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Cycles returns the number of cycles started so far.
func (l *Loop) Cycles() int64 {
	return l.cycles.Load()
}

// runCycle invokes the cycle with panic recovery. A panicking cycle is
// logged with a correlation ID and the loop carries on with the next tick.
func (l *Loop) runCycle(ctx context.Context) {
	l.cycles.Add(1)
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			l.logger.Error("poll cycle panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	l.cycle(ctx)
}
