package winboard

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies one of the controller's event streams.
type EventKind int

const (
	// EventAuthChange fires on login success, logout, token expiry and
	// exhausted reconnects. Payload: [AuthChange].
	EventAuthChange EventKind = iota + 1

	// EventServerUpdate fires after each successful poll cycle. Payload: [ServerUpdate].
	EventServerUpdate

	// EventServiceUpdate fires after a successful service action. Payload: [ServiceUpdate].
	EventServiceUpdate

	// EventServerReboot fires after a successful reboot request. Payload: [ServerReboot].
	EventServerReboot

	// EventConnectionStatus fires on every connection state report. Payload:
	// [ConnectionStatusEvent].
	EventConnectionStatus
)

var eventNames = map[EventKind]string{
	EventAuthChange:       "auth-change",
	EventServerUpdate:     "server-update",
	EventServiceUpdate:    "service-update",
	EventServerReboot:     "server-reboot",
	EventConnectionStatus: "connection-status",
}

// EventKinds lists every recognised kind in declaration order.
func EventKinds() []EventKind {
	return []EventKind{
		EventAuthChange,
		EventServerUpdate,
		EventServiceUpdate,
		EventServerReboot,
		EventConnectionStatus,
	}
}

// String returns the wire name of the kind, e.g. "server-update".
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Valid reports whether k is a recognised kind.
func (k EventKind) Valid() bool {
	_, ok := eventNames[k]
	return ok
}

// ParseEventKind maps a wire name back to its kind.
func ParseEventKind(name string) (EventKind, error) {
	for k, n := range eventNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// Event is implemented by every event payload.
type Event interface {
	Kind() EventKind
}

// AuthChange reports a session being created or destroyed.
type AuthChange struct {
	Authenticated bool
	User          string

	// Err is set when the session ended involuntarily: [ErrTokenExpired] or
	// [ErrReconnectExhausted].
	Err error
}

// Kind implements [Event].
func (AuthChange) Kind() EventKind { return EventAuthChange }

// ServerUpdate carries the result of one successful poll cycle. Servers and
// Stats always come from requests issued in the same cycle.
type ServerUpdate struct {
	Servers []Server
	Stats   Stats
	At      time.Time
}

// Kind implements [Event].
func (ServerUpdate) Kind() EventKind { return EventServerUpdate }

// ServiceUpdate reports the terminal status of a successful service action.
type ServiceUpdate struct {
	Server    string
	Service   string
	Status    ServiceStatus
	Timestamp time.Time
	User      string
}

// Kind implements [Event].
func (ServiceUpdate) Kind() EventKind { return EventServiceUpdate }

// ServerReboot reports an accepted reboot request.
type ServerReboot struct {
	Server    string
	Timestamp time.Time
	User      string
}

// Kind implements [Event].
func (ServerReboot) Kind() EventKind { return EventServerReboot }

// ConnectionStatusEvent reports the controller's connection state.
type ConnectionStatusEvent struct {
	Status    ConnectionStatus
	Connected bool

	// Reconnecting is true after a failed cycle that will be retried.
	Reconnecting bool

	// Attempts is the consecutive failure count after a failed cycle.
	Attempts int

	// Err is the error that failed the cycle, if any.
	Err error
}

// Kind implements [Event].
func (ConnectionStatusEvent) Kind() EventKind { return EventConnectionStatus }

// Handler receives events. Handlers run synchronously on the emitting
// goroutine and should not block; long work belongs in a separate goroutine.
type Handler func(Event)

// Subscription identifies one registration made with [Controller.Subscribe].
// Registering the same function twice yields two distinct subscriptions.
type Subscription struct {
	kind EventKind
	id   uint64
}

// Kind returns the event kind the subscription listens to.
func (s Subscription) Kind() EventKind {
	return s.kind
}

type registration struct {
	id      uint64
	handler Handler
}

// bus is an ordered, per-kind handler registry. Emit snapshots the handler
// list so handlers may subscribe, unsubscribe or call back into the
// controller without deadlocking.
type bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[EventKind][]registration
	logger   *slog.Logger
}

func newBus(logger *slog.Logger) *bus {
	return &bus{
		handlers: make(map[EventKind][]registration),
		logger:   logger,
	}
}

func (b *bus) subscribe(kind EventKind, h Handler) (Subscription, error) {
	if !kind.Valid() {
		return Subscription{}, fmt.Errorf("%w: %s", ErrUnknownEvent, kind)
	}
	if h == nil {
		return Subscription{}, fmt.Errorf("nil handler for %s", kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	reg := registration{id: b.nextID, handler: h}
	b.handlers[kind] = append(b.handlers[kind], reg)
	return Subscription{kind: kind, id: reg.id}, nil
}

func (b *bus) unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[sub.kind]
	for i, reg := range regs {
		if reg.id == sub.id {
			// copy so an in-progress emit keeps its snapshot intact
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			b.handlers[sub.kind] = next
			return true
		}
	}
	return false
}

func (b *bus) count(kind EventKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[kind])
}

func (b *bus) emit(ev Event) {
	b.mu.Lock()
	regs := b.handlers[ev.Kind()]
	b.mu.Unlock()

	for _, reg := range regs {
		b.invoke(reg.handler, ev)
	}
}

// invoke calls h with panic recovery. A panicking handler is logged with a
// correlation ID and does not stop the remaining handlers.
func (b *bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"correlation_id", uuid.NewString(),
				"event", ev.Kind().String(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	h(ev)
}
