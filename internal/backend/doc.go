// Package backend provides the JSON-over-HTTP client used by winboard to talk
// to the monitoring backend.
//
// This package is internal to winboard. It knows nothing about sessions or
// polling: callers pass the bearer token with every [Request], and failures
// come back as typed errors that the controller maps onto its own taxonomy:
//
//   - [StatusError]: the backend answered with a non-2xx status
//   - [TransportError]: the request never produced a response
//   - [ErrUnauthorized]: matched by any 401 [StatusError] via errors.Is
//   - [ErrMalformedResponse]: a 2xx body that could not be decoded
package backend
