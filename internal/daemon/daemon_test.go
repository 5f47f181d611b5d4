package daemon_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jroosing/minidns/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon writes a shell script that behaves like minidnsd: it records
// its environment in the logfile, writes its pid and then sleeps.
func fakeDaemon(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "minidnsd")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const serving = `echo "config=$MINIDNS_CONFIG_FILE nodivert=$MINIDNS_NO_DIVERT"
echo $$ > "$MINIDNS_DAEMON_PIDFILE"
exec sleep 30`

// =============================================================================
// Pidfiles
// =============================================================================

func TestPIDFile_WriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minidns.pid")

	require.NoError(t, daemon.WritePIDFile(path, os.Getpid()))
	pid, err := daemon.ReadPIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	// Another pid does not remove it.
	require.NoError(t, daemon.RemovePIDFile(path, os.Getpid()+1))
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, daemon.RemovePIDFile(path, os.Getpid()))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	require.NoError(t, daemon.RemovePIDFile(path, os.Getpid()))
}

func TestPIDFile_RefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minidns.pid")
	require.NoError(t, daemon.WritePIDFile(path, os.Getpid()))

	err := daemon.WritePIDFile(path, os.Getpid()+100000)
	assert.ErrorIs(t, err, daemon.ErrAlreadyRunning)
}

func TestPIDFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minidns.pid")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := daemon.ReadPIDFile(path)
	assert.ErrorContains(t, err, "malformed")
}

func TestAlive(t *testing.T) {
	assert.True(t, daemon.Alive(os.Getpid()))
	assert.False(t, daemon.Alive(0))
	assert.False(t, daemon.Alive(-1))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	assert.False(t, daemon.Alive(cmd.Process.Pid))
}

// =============================================================================
// Spawn and Stop
// =============================================================================

func TestSpawnAndStop(t *testing.T) {
	dir := t.TempDir()
	opts := daemon.Options{
		Binary:       fakeDaemon(t, serving),
		PIDFile:      filepath.Join(dir, "minidns.pid"),
		LogFile:      filepath.Join(dir, "minidns.log"),
		ConfigPath:   filepath.Join(dir, "minidns.yaml"),
		NoDivert:     true,
		StartTimeout: 5 * time.Second,
	}

	pid, err := daemon.Spawn(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, daemon.Alive(pid))

	got, err := daemon.ReadPIDFile(opts.PIDFile)
	require.NoError(t, err)
	assert.Equal(t, pid, got)

	// A second start is refused while the first is alive.
	_, err = daemon.Spawn(context.Background(), opts)
	assert.ErrorIs(t, err, daemon.ErrAlreadyRunning)

	require.NoError(t, daemon.Stop(context.Background(), opts.PIDFile, 5*time.Second))
	assert.False(t, daemon.Alive(pid))
	_, err = os.Stat(opts.PIDFile)
	assert.True(t, os.IsNotExist(err))

	logged, err := os.ReadFile(opts.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "config="+opts.ConfigPath)
	assert.Contains(t, string(logged), "nodivert=1")
}

func TestSpawn_DaemonExitsEarly(t *testing.T) {
	dir := t.TempDir()
	opts := daemon.Options{
		Binary:       fakeDaemon(t, "echo boom; exit 1"),
		PIDFile:      filepath.Join(dir, "minidns.pid"),
		LogFile:      filepath.Join(dir, "minidns.log"),
		StartTimeout: 5 * time.Second,
	}

	_, err := daemon.Spawn(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited during startup")

	logged, _ := os.ReadFile(opts.LogFile)
	assert.Contains(t, string(logged), "boom")
}

func TestSpawn_MissingBinary(t *testing.T) {
	opts := daemon.Options{
		Binary:  filepath.Join(t.TempDir(), "does-not-exist"),
		PIDFile: filepath.Join(t.TempDir(), "minidns.pid"),
	}
	_, err := daemon.Spawn(context.Background(), opts)
	assert.Error(t, err)
}

func TestStop_NotRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minidns.pid")
	assert.ErrorIs(t, daemon.Stop(context.Background(), path, time.Second), daemon.ErrNotRunning)

	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644))

	err := daemon.Stop(context.Background(), path, time.Second)
	assert.ErrorIs(t, err, daemon.ErrNotRunning)
	assert.True(t, strings.Contains(err.Error(), "stale"))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestController(t *testing.T) {
	dir := t.TempDir()
	c := daemon.NewController(daemon.Options{
		Binary:       fakeDaemon(t, serving),
		PIDFile:      filepath.Join(dir, "minidns.pid"),
		StartTimeout: 5 * time.Second,
		StopTimeout:  5 * time.Second,
	})

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
	assert.ErrorIs(t, c.Stop(context.Background()), daemon.ErrNotRunning)
}
