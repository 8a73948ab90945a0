// Package httpserver builds the engine's API server.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server. ReadHeaderTimeout guards against slow-header
// clients. WriteTimeout stays unset: session event streams are long-lived
// and a server-wide write deadline would sever them mid-capture.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
