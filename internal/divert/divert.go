// Package divert redirects the well-known DNS port on localhost to the port
// minidns actually listens on, using iptables NAT rules in the OUTPUT chain.
//
// minidns itself binds an unprivileged port; the rules make local resolvers
// that only speak to 127.0.0.1:53 reach it.
package divert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Diverter installs and removes the redirect rules.
type Diverter struct {
	runner   Runner
	iptables string
	address  string
	fromPort int
	toPort   int
	logger   *slog.Logger
}

// Option configures a Diverter.
type Option func(*Diverter)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option { return func(d *Diverter) { d.runner = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Diverter) { d.logger = l } }

// New returns a Diverter redirecting address:fromPort to toPort.
func New(address string, fromPort, toPort int, opts ...Option) *Diverter {
	d := &Diverter{
		runner:   ExecRunner{},
		iptables: "iptables",
		address:  address,
		fromPort: fromPort,
		toPort:   toPort,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// rule returns the iptables arguments for one protocol with the given
// operation flag (-A, -C or -D).
func (d *Diverter) rule(op, proto string) []string {
	return []string{
		"-t", "nat", op, "OUTPUT",
		"-p", proto,
		"-d", d.address,
		"--dport", strconv.Itoa(d.fromPort),
		"-j", "REDIRECT",
		"--to-ports", strconv.Itoa(d.toPort),
	}
}

var protocols = []string{"udp", "tcp"}

// Install adds the rules that are not already present. If one fails, the
// rules added so far are removed again.
func (d *Diverter) Install(ctx context.Context) error {
	if d.fromPort == d.toPort {
		return nil
	}
	var added []string
	for _, proto := range protocols {
		if _, err := d.runner.Run(ctx, d.iptables, d.rule("-C", proto)...); err == nil {
			continue
		}
		if out, err := d.runner.Run(ctx, d.iptables, d.rule("-A", proto)...); err != nil {
			for _, p := range added {
				_, _ = d.runner.Run(ctx, d.iptables, d.rule("-D", p)...)
			}
			return fmt.Errorf("failed to add %s redirect: %w: %s", proto, err, strings.TrimSpace(string(out)))
		}
		added = append(added, proto)
	}
	d.logger.Info("dns port diverted",
		"address", d.address,
		"from", d.fromPort,
		"to", d.toPort,
	)
	return nil
}

// Remove deletes both rules. Every rule is attempted; the errors are joined.
func (d *Diverter) Remove(ctx context.Context) error {
	if d.fromPort == d.toPort {
		return nil
	}
	var errs []error
	for _, proto := range protocols {
		if out, err := d.runner.Run(ctx, d.iptables, d.rule("-D", proto)...); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s redirect: %w: %s", proto, err, strings.TrimSpace(string(out))))
		}
	}
	if len(errs) == 0 {
		d.logger.Info("dns port diversion removed", "from", d.fromPort, "to", d.toPort)
	}
	return errors.Join(errs...)
}
