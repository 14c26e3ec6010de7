// Package dashboard provides the embedded web UI assets for Winboard.
//
// The page subscribes to the local server's SSE stream and renders the
// fleet, the connection state and recent service actions. It is compiled
// into the binary so the CLI ships as a single file.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Main dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
