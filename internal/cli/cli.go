// Package cli implements the minidns command line: flag parsing, the verb
// table, arity checks and exit codes.
//
// Arguments are validated completely before any operation runs, so a usage
// error never reaches the API or the daemon.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/jroosing/minidns/internal/client"
)

// Exit codes.
const (
	ExitOK = 0
	// ExitFailure: the server refused the operation or daemon control failed.
	ExitFailure = 1
	// ExitUsage: bad flags, no verb, or wrong arity for a simple verb.
	ExitUsage = 2
	// ExitTransport: the control API could not be reached.
	ExitTransport = 3
	// ExitDispatch: unknown verb or a malformed record command.
	ExitDispatch = 255
)

// Usage is printed on every usage error.
const Usage = `usage: minidns [options] command

options:
    -c, --config FILE   path to configuration file
    -n, --no-divert     do not divert the local DNS port with iptables

daemon control commands:
    start             start the minidns server and divert localhost:53 to it
    stop              stop the minidns server and remove the divert rules

zone commands:
    list              list all authoritative zones
    purge             delete all zones
    add NAME          add a new authoritative zone NAME
    del NAME          delete the authoritative zone NAME
    show NAME         list the records of zone NAME

record commands:
    record ZONE a HOST DATA   create or replace an A record
    record ZONE del HOST      delete a record

    e.g. minidns record example.com a www 192.168.0.1
`

// UsageError is a command line that cannot be executed. Code is the exit
// status to use.
type UsageError struct {
	Code int
	Msg  string
}

func (e *UsageError) Error() string { return e.Msg }

func usagef(code int, format string, args ...any) *UsageError {
	return &UsageError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Operations is everything a verb can do.
type Operations interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	ListZones(ctx context.Context) ([]string, error)
	Purge(ctx context.Context) ([]string, error)
	AddZone(ctx context.Context, name string) error
	DeleteZone(ctx context.Context, name string) error
	ShowZone(ctx context.Context, name string) ([]string, error)
	SetRecordA(ctx context.Context, zone, host, addr string) error
	DeleteRecord(ctx context.Context, zone, host string) error
}

// Options are the global flags.
type Options struct {
	ConfigPath string
	NoDivert   bool
}

// ParseFlags splits the global flags from the command tokens. Flags are
// only recognized before the verb.
func ParseFlags(args []string) (Options, []string, error) {
	var opts Options
	fs := pflag.NewFlagSet("minidns", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file")
	fs.BoolVarP(&opts.NoDivert, "no-divert", "n", false, "do not divert the local DNS port with iptables")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, nil, usagef(ExitUsage, "help requested")
		}
		return opts, nil, usagef(ExitUsage, "%v", err)
	}
	if fs.NArg() == 0 {
		return opts, nil, usagef(ExitUsage, "no command given")
	}
	return opts, fs.Args(), nil
}

// Main runs one invocation and returns the process exit code. newOps is
// only called once the command line is known to be valid.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer,
	newOps func(Options) (Operations, error),
) int {
	opts, tokens, err := ParseFlags(args)
	if err != nil {
		return fail(stderr, err)
	}
	cmd, err := Parse(tokens)
	if err != nil {
		return fail(stderr, err)
	}
	ops, err := newOps(opts)
	if err != nil {
		return fail(stderr, err)
	}
	return fail(stderr, cmd.Run(ctx, ops, stdout))
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	var ue *UsageError
	var te *client.TransportError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &ue):
		return ue.Code
	case errors.As(err, &te):
		return ExitTransport
	default:
		return ExitFailure
	}
}

func fail(stderr io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}
	var ue *UsageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "minidns: %s\n\n%s", ue.Msg, Usage)
	} else {
		fmt.Fprintf(stderr, "minidns: %s\n", strings.TrimSpace(err.Error()))
	}
	return ExitCode(err)
}
