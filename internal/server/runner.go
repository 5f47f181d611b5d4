package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jroosing/minidns/internal/api"
	"github.com/jroosing/minidns/internal/config"
	"github.com/jroosing/minidns/internal/daemon"
	"github.com/jroosing/minidns/internal/divert"
	"github.com/jroosing/minidns/internal/dnsserver"
	"github.com/jroosing/minidns/internal/metrics"
	"github.com/jroosing/minidns/internal/zone"
)

const (
	shutdownTimeout = 5 * time.Second
	// divertAddress is where local stub resolvers send queries.
	divertAddress = "127.0.0.1"
)

// Endpoints are the addresses the daemon ended up listening on.
type Endpoints struct {
	API     net.Addr
	DNS     net.Addr
	Metrics net.Addr // nil when metrics are disabled
}

// Runner orchestrates daemon startup, configuration, and shutdown.
type Runner struct {
	logger       *slog.Logger
	noDivert     bool
	divertRunner divert.Runner
	onReady      func(Endpoints)
}

// Option configures a Runner.
type Option func(*Runner)

// WithoutDivert skips port diversion regardless of configuration.
func WithoutDivert() Option { return func(r *Runner) { r.noDivert = true } }

// WithDivertRunner replaces the command runner used for iptables.
func WithDivertRunner(dr divert.Runner) Option { return func(r *Runner) { r.divertRunner = dr } }

// WithReadyHook is called once every listener is up and the pidfile exists.
func WithReadyHook(fn func(Endpoints)) Option { return func(r *Runner) { r.onReady = fn } }

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the daemon and blocks until SIGINT or SIGTERM.
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the daemon and blocks until ctx is canceled or a
// listener fails.
//
// Startup order:
//  1. Open the zone store and load the registry
//  2. Bind the control API, DNS and (optional) metrics listeners
//  3. Install the port diversion
//  4. Write the pidfile, which tells "minidns start" the daemon is ready
//
// Shutdown undoes these in reverse.
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	store, closeStore, err := OpenStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			r.logger.Error("failed to close store", "err", err)
		}
	}()

	reg, err := zone.NewRegistry(store)
	if err != nil {
		return err
	}
	r.logger.Info("zones loaded", "driver", cfg.Storage.Driver, "zones", reg.Len())

	m := metrics.New(reg.Len)
	errCh := make(chan error, 2)

	// Control API
	apiLn, err := net.Listen("tcp", cfg.API.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.API.Addr(), err)
	}
	apiSrv := api.New(cfg, reg, r.logger, m)
	go func() {
		if err := apiSrv.Serve(apiLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	defer r.shutdown("api", apiSrv.Shutdown)
	r.logger.Info("api listening", "addr", apiLn.Addr().String(), "auth", cfg.API.APIKey != "")

	// DNS
	var opts []dnsserver.HandlerOption
	opts = append(opts,
		dnsserver.WithTTL(cfg.DNS.TTL),
		dnsserver.WithTimeout(cfg.DNS.Timeout),
		dnsserver.WithMetrics(m),
		dnsserver.WithLogger(r.logger),
	)
	if len(cfg.DNS.Forwarders) > 0 {
		opts = append(opts, dnsserver.WithForwarder(dnsserver.NewForwarder(cfg.DNS.Forwarders, cfg.DNS.Timeout)))
	}
	dnsSrv := dnsserver.NewServer(dnsserver.NewHandler(reg, opts...), r.logger)
	if err := dnsSrv.Start(cfg.DNS.Addr()); err != nil {
		return err
	}
	defer r.shutdown("dns", dnsSrv.Shutdown)

	ready := Endpoints{API: apiLn.Addr(), DNS: dnsSrv.Addr()}

	// Metrics
	if cfg.Metrics.Addr != "" {
		metricsLn, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Metrics.Addr, err)
		}
		metricsSrv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		defer r.shutdown("metrics", metricsSrv.Shutdown)
		ready.Metrics = metricsLn.Addr()
		r.logger.Info("metrics listening", "addr", ready.Metrics.String())
	}

	// Port diversion
	if cfg.Divert.Enabled && !r.noDivert {
		d := divert.New(divertAddress, cfg.Divert.Port, ready.DNS.(*net.UDPAddr).Port,
			divert.WithLogger(r.logger), divert.WithRunner(r.runner()))
		if err := d.Install(ctx); err != nil {
			r.logger.Warn("port diversion not installed", "err", err)
		} else {
			defer func() {
				if err := d.Remove(context.Background()); err != nil {
					r.logger.Warn("port diversion not removed", "err", err)
				}
			}()
		}
	}

	pid := os.Getpid()
	if err := daemon.WritePIDFile(cfg.Daemon.PIDFile, pid); err != nil {
		return err
	}
	defer func() {
		if err := daemon.RemovePIDFile(cfg.Daemon.PIDFile, pid); err != nil {
			r.logger.Warn("failed to remove pidfile", "err", err)
		}
	}()

	r.logger.Info("minidns ready", "pid", pid)
	if r.onReady != nil {
		r.onReady(ready)
	}

	select {
	case <-ctx.Done():
		r.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func (r *Runner) runner() divert.Runner {
	if r.divertRunner != nil {
		return r.divertRunner
	}
	return divert.ExecRunner{}
}

func (r *Runner) shutdown(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		r.logger.Warn("shutdown incomplete", "server", name, "err", err)
	}
}
