// Package poller provides the timer that drives winboard's live updates.
//
// This package is internal to winboard. A [Loop] owns exactly one ticker and
// one goroutine; the controller creates a new Loop for every polling session
// and stops the previous one, so at most one timer is ever live per
// controller.
//
// The loop knows nothing about HTTP or sessions. The controller supplies the
// cycle (fetch servers and stats, update the retry counter, emit events) as a
// [CycleFunc].
package poller
