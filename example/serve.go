package main

import (
	"net"
	"net/http"
	"time"
)

// serveMock serves h on ln until the process exits.
func serveMock(ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.Serve(ln)
}
