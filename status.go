package winboard

import "fmt"

// ConnState is the coarse connection state of a [Controller].
//
// ConnState is a string type so it logs and serialises readably. Exactly one
// state is current at any time; transitions are made only by the controller.
type ConnState string

const (
	// StateConnecting is set while a login request is in flight.
	StateConnecting ConnState = "connecting"

	// StateConnected means a session exists and the last poll (if any) succeeded.
	StateConnected ConnState = "connected"

	// StateReconnecting means a session exists but recent poll cycles failed.
	// The attempt count is carried in [ConnectionStatus.Attempt].
	StateReconnecting ConnState = "reconnecting"

	// StateDisconnected means there is no session. [ConnectionStatus.Err]
	// holds the cause when the disconnect was not a plain logout.
	StateDisconnected ConnState = "disconnected"
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	return string(s)
}

// ConnectionStatus is the tagged connection status of a [Controller].
type ConnectionStatus struct {
	State ConnState

	// Attempt is the number of consecutive failed poll cycles. Only
	// meaningful in [StateReconnecting].
	Attempt int

	// Err is the cause of a [StateDisconnected] status, nil after a logout.
	Err error
}

// String renders the status for logs, e.g. "reconnecting (attempt 2)".
func (s ConnectionStatus) String() string {
	switch s.State {
	case StateReconnecting:
		return fmt.Sprintf("%s (attempt %d)", s.State, s.Attempt)
	case StateDisconnected:
		if s.Err != nil {
			return fmt.Sprintf("%s: %v", s.State, s.Err)
		}
	}
	return s.State.String()
}

// Connected reports whether the status carries a live session.
func (s ConnectionStatus) Connected() bool {
	return s.State == StateConnected || s.State == StateReconnecting
}

// Session is the authenticated context of a [Controller]. A zero Session
// means no one is logged in.
type Session struct {
	Token string
	User  string
}

// Valid reports whether the session holds a token.
func (s Session) Valid() bool {
	return s.Token != ""
}
