package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ReadPIDFile returns the pid stored in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile %s: malformed content %q", path, strings.TrimSpace(string(data)))
	}
	return pid, nil
}

// WritePIDFile records pid in path. It refuses to overwrite a pidfile that
// names another live process.
func WritePIDFile(path string, pid int) error {
	if old, err := ReadPIDFile(path); err == nil && old != pid && Alive(old) {
		return fmt.Errorf("pid %d: %w", old, ErrAlreadyRunning)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// RemovePIDFile deletes path if it still names pid.
func RemovePIDFile(path string, pid int) error {
	current, err := ReadPIDFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil && current != pid {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// Alive reports whether pid is a running, non-zombie process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcess(int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}
