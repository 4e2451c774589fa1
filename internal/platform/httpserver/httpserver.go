// Package httpserver builds the API listener.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// Timeouts bounds each phase of a connection. Zero fields keep the defaults.
type Timeouts struct {
	ReadHeader time.Duration
	Read       time.Duration
	Write      time.Duration
	Idle       time.Duration
}

// DefaultTimeouts leave room for spreadsheet uploads on Read while keeping
// header reads short.
var DefaultTimeouts = Timeouts{
	ReadHeader: 5 * time.Second,
	Read:       30 * time.Second,
	Write:      30 * time.Second,
	Idle:       2 * time.Minute,
}

const defaultMaxHeaderBytes = 64 << 10

// Option configures the server built by New.
type Option func(*http.Server)

// WithTimeouts overrides the non-zero fields of t.
func WithTimeouts(t Timeouts) Option {
	return func(srv *http.Server) {
		if t.ReadHeader > 0 {
			srv.ReadHeaderTimeout = t.ReadHeader
		}
		if t.Read > 0 {
			srv.ReadTimeout = t.Read
		}
		if t.Write > 0 {
			srv.WriteTimeout = t.Write
		}
		if t.Idle > 0 {
			srv.IdleTimeout = t.Idle
		}
	}
}

// WithErrorLog routes net/http's own errors (TLS handshakes, panics in handlers)
// through logger at warn level.
func WithErrorLog(logger *slog.Logger) Option {
	return func(srv *http.Server) {
		srv.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)
	}
}

// New builds the API server on addr.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultTimeouts.ReadHeader,
		ReadTimeout:       DefaultTimeouts.Read,
		WriteTimeout:      DefaultTimeouts.Write,
		IdleTimeout:       DefaultTimeouts.Idle,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}
