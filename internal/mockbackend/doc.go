// Package mockbackend is an in-process fake of the dashboard backend.
//
// It serves the full HTTP surface winboard consumes under /api: JWT login,
// the simulated Voxco fleet, service and reboot commands, logs, config and
// the /winrm namespace. Passwords are bcrypt-hashed and tokens are HS256
// JWTs, so token expiry and rejection behave like the real thing.
//
// Tests mount a [Backend] on httptest.NewServer and drive outages with
// [Backend.SetAvailable] and token rejection with [Backend.RevokeTokens].
// The example binary under example/cmd/mockbackend serves it on a port.
package mockbackend
