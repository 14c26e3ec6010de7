// Package tokenstore persists a winboard session token between runs.
//
// Three implementations are provided, each keyed by a storage key
// (default [DefaultKey]):
//
//   - [Memory]: process-local, forgotten on exit. The controller's default.
//   - [File]: a JSON object on disk mapping storage keys to tokens, so several
//     dashboards can share one file.
//   - [Redis]: a string key in Redis, optionally with a TTL.
//
// All implementations return "" and a nil error from Load when nothing is
// stored, and treat Clear of an absent token as success.
package tokenstore

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "voxco_auth_token"
