package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults suited to long-lived WebSocket
// subscribers: header reads are bounded but there is no write timeout, since
// a subscriber connection stays open until its result arrives.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
