// Package httpserver constructs the server the registry API runs on.
package httpserver

import (
	"net/http"
	"time"
)

// New wraps the router in an http.Server with bounded header reads and idle
// connections. Per-request deadlines come from the timeout middleware, not
// the server.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
