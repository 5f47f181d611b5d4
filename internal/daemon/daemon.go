// Package daemon starts and stops the minidnsd server process and manages
// its pidfile.
//
// The CLI spawns the daemon detached in its own session with stdout and
// stderr appended to the logfile. The daemon writes the pidfile itself once
// it is serving; Spawn waits for that as the readiness signal.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/minidns/internal/config"
)

// DefaultBinary is the daemon executable name.
const DefaultBinary = "minidnsd"

var (
	ErrAlreadyRunning = errors.New("minidns is already running")
	ErrNotRunning     = errors.New("minidns is not running")
)

// Options configure Spawn and Stop.
type Options struct {
	Binary     string
	PIDFile    string
	LogFile    string
	ConfigPath string
	NoDivert   bool
	// Env is the base environment for the child; nil means os.Environ().
	Env []string

	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// OptionsFromConfig fills Options from the daemon section.
func OptionsFromConfig(cfg *config.Config, configPath string, noDivert bool) Options {
	return Options{
		Binary:       cfg.Daemon.Binary,
		PIDFile:      cfg.Daemon.PIDFile,
		LogFile:      cfg.Daemon.LogFile,
		ConfigPath:   configPath,
		NoDivert:     noDivert,
		StartTimeout: 5 * time.Second,
		StopTimeout:  10 * time.Second,
	}
}

// Spawn starts the daemon and waits until it has written its pidfile.
// It returns the daemon's pid.
func Spawn(ctx context.Context, opts Options) (int, error) {
	pidfile, err := filepath.Abs(opts.PIDFile)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve pidfile: %w", err)
	}
	if pid, err := ReadPIDFile(pidfile); err == nil && Alive(pid) {
		return 0, fmt.Errorf("pid %d: %w", pid, ErrAlreadyRunning)
	}

	bin, err := resolveBinary(opts.Binary)
	if err != nil {
		return 0, err
	}

	env := slices.Clone(opts.Env)
	if env == nil {
		env = os.Environ()
	}
	env = append(env, config.EnvPrefix+"DAEMON_PIDFILE="+pidfile)
	if opts.ConfigPath != "" {
		abs, err := filepath.Abs(opts.ConfigPath)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve config path: %w", err)
		}
		env = append(env, config.EnvConfigFile+"="+abs)
	}
	if opts.NoDivert {
		env = append(env, config.EnvNoDivert+"=1")
	}

	cmd := exec.Command(bin)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if opts.LogFile != "" {
		logPath, err := filepath.Abs(opts.LogFile)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve logfile: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("failed to open logfile: %w", err)
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
		env = append(env, config.EnvPrefix+"DAEMON_LOGFILE="+logPath)
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", bin, err)
	}
	pid := cmd.Process.Pid
	// The daemon outlives this process; nobody waits for it here.
	_ = cmd.Process.Release()

	if err := waitReady(ctx, pidfile, pid, opts.StartTimeout); err != nil {
		return 0, err
	}
	return pid, nil
}

func waitReady(ctx context.Context, pidfile string, pid int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if got, err := ReadPIDFile(pidfile); err == nil && got == pid {
			return nil
		}
		if !Alive(pid) {
			return fmt.Errorf("daemon (pid %d) exited during startup, see the logfile", pid)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon (pid %d) did not write %s: %w", pid, pidfile, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop sends SIGTERM to the process named by the pidfile and waits for it
// to exit. A stale pidfile is removed and reported as ErrNotRunning.
func Stop(ctx context.Context, pidfile string, timeout time.Duration) error {
	pid, err := ReadPIDFile(pidfile)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotRunning
	}
	if err != nil {
		return err
	}
	if !Alive(pid) {
		_ = RemovePIDFile(pidfile, pid)
		return fmt.Errorf("stale pidfile (pid %d): %w", pid, ErrNotRunning)
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for Alive(pid) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pid %d still running after SIGTERM: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
	return RemovePIDFile(pidfile, pid)
}

// resolveBinary finds the daemon: an explicit path, then minidnsd next to
// the running executable, then $PATH.
func resolveBinary(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), DefaultBinary)
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(DefaultBinary)
	if err != nil {
		return "", fmt.Errorf("cannot find %s: %w", DefaultBinary, err)
	}
	return path, nil
}

// Controller adapts Spawn and Stop to the CLI's start and stop verbs.
type Controller struct {
	opts Options
}

// NewController returns a Controller for opts.
func NewController(opts Options) *Controller {
	return &Controller{opts: opts}
}

// Start spawns the daemon.
func (c *Controller) Start(ctx context.Context) error {
	_, err := Spawn(ctx, c.opts)
	return err
}

// Stop terminates the daemon.
func (c *Controller) Stop(ctx context.Context) error {
	return Stop(ctx, c.opts.PIDFile, c.opts.StopTimeout)
}
