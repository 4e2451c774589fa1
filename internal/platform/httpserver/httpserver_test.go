package httpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ServerSuite struct {
	suite.Suite
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) TestNew() {
	s.Run("defaults bound every phase", func() {
		srv := New(":0", http.NotFoundHandler())
		s.Equal(":0", srv.Addr)
		s.Equal(5*time.Second, srv.ReadHeaderTimeout)
		s.Equal(30*time.Second, srv.ReadTimeout)
		s.Equal(30*time.Second, srv.WriteTimeout)
		s.Equal(2*time.Minute, srv.IdleTimeout)
		s.Equal(64<<10, srv.MaxHeaderBytes)
	})

	s.Run("zero timeouts keep the defaults", func() {
		srv := New(":0", http.NotFoundHandler(), WithTimeouts(Timeouts{Write: time.Minute}))
		s.Equal(time.Minute, srv.WriteTimeout)
		s.Equal(DefaultTimeouts.Read, srv.ReadTimeout)
		s.Equal(DefaultTimeouts.Idle, srv.IdleTimeout)
	})

	s.Run("error log goes through slog", func() {
		var buf bytes.Buffer
		srv := New(":0", http.NotFoundHandler(), WithErrorLog(slog.New(slog.NewTextHandler(&buf, nil))))
		s.Require().NotNil(srv.ErrorLog)
		srv.ErrorLog.Print("tls: handshake failure")
		s.Contains(buf.String(), "level=WARN")
		s.Contains(buf.String(), "tls: handshake failure")
	})
}

func (s *ServerSuite) TestServes() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	srv := New(ln.Addr().String(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), WithTimeouts(Timeouts{Read: time.Second, Write: time.Second}))
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	s.Require().NoError(err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	s.Require().NoError(err)
	s.Equal("ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Require().NoError(srv.Shutdown(ctx))
	s.True(errors.Is(<-done, http.ErrServerClosed))
}
