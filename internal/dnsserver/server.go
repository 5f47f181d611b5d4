package dnsserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// Server runs the UDP and TCP listeners for one address.
type Server struct {
	logger *slog.Logger
	udp    *dns.Server
	tcp    *dns.Server
}

// NewServer prepares listeners serving h. Nothing is bound until Start.
func NewServer(h dns.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		udp:    &dns.Server{Net: "udp", Handler: h, ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second},
		tcp:    &dns.Server{Net: "tcp", Handler: h, ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second},
	}
}

// Start binds addr for UDP and TCP and serves in the background. With port
// 0 the TCP listener takes the port the UDP socket was given.
func (s *Server) Start(addr string) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on udp %s: %w", addr, err)
	}
	host, _, _ := net.SplitHostPort(addr)
	port := pc.LocalAddr().(*net.UDPAddr).Port
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		pc.Close()
		return fmt.Errorf("failed to listen on tcp %s: %w", addr, err)
	}

	s.udp.PacketConn = pc
	s.tcp.Listener = ln
	if err := s.activate(s.udp); err != nil {
		ln.Close()
		return err
	}
	if err := s.activate(s.tcp); err != nil {
		_ = s.udp.Shutdown()
		return err
	}
	s.logger.Info("dns listening", "addr", pc.LocalAddr().String(), "udp", true, "tcp", true)
	return nil
}

// activate serves srv in a goroutine and waits until it accepts queries.
func (s *Server) activate(srv *dns.Server) error {
	started := make(chan struct{})
	srv.NotifyStartedFunc = func() { close(started) }
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ActivateAndServe(); err != nil {
			s.logger.Error("dns server stopped", "net", srv.Net, "err", err)
			errCh <- err
		}
	}()
	select {
	case <-started:
		return nil
	case err := <-errCh:
		return fmt.Errorf("failed to start %s server: %w", srv.Net, err)
	}
}

// Addr returns the bound UDP address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.udp.PacketConn == nil {
		return nil
	}
	return s.udp.PacketConn.LocalAddr()
}

// Shutdown stops both listeners, waiting for in-flight queries until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range []*dns.Server{s.udp, s.tcp} {
		if srv.PacketConn == nil && srv.Listener == nil {
			continue
		}
		if err := srv.ShutdownContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", srv.Net, err))
		}
	}
	return errors.Join(errs...)
}
