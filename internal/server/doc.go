// Package server provides the HTTP server for the local Winboard dashboard.
//
// It handles all browser-facing HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS dashboard at "/"
//   - Snapshot API: JSON endpoint at "/api/snapshot" with the latest events
//   - Server-Sent Events: Real-time updates at "/api/sse"
//   - Commands: service actions and reboots proxied to the controller
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
