package sandbox_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rsalesc/robox.io/internal/sandbox"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.sh")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755)
	require.NoError(t, err)
	return path
}

func TestProcRunnerCapturesOutput(t *testing.T) {
	r := sandbox.NewProcRunner()
	res, err := r.Run(context.Background(), sandbox.Command{
		Path: writeScript(t, `echo hello; echo oops >&2`),
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.StatusOK, res.Status)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "hello\n", string(res.Stdout))
	require.Equal(t, "oops\n", string(res.Stderr))
}

func TestProcRunnerStdinAndProvidedStdout(t *testing.T) {
	r := sandbox.NewProcRunner()
	var out bytes.Buffer
	res, err := r.Run(context.Background(), sandbox.Command{
		Path:   writeScript(t, `read n; echo "got $n"`),
		Stdin:  strings.NewReader("36\n"),
		Stdout: &out,
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.StatusOK, res.Status)
	require.Equal(t, "got 36\n", out.String())
	// Output went to the caller's sink, not the internal buffer.
	require.Empty(t, res.Stdout)
}

func TestProcRunnerNonZeroExit(t *testing.T) {
	r := sandbox.NewProcRunner()
	res, err := r.Run(context.Background(), sandbox.Command{
		Path: writeScript(t, `exit 3`),
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.StatusOK, res.Status)
	require.Equal(t, 3, res.ExitCode)
}

func TestProcRunnerWallTimeout(t *testing.T) {
	r := sandbox.NewProcRunner()
	start := time.Now()
	res, err := r.Run(context.Background(), sandbox.Command{
		Path: writeScript(t, `echo partial; sleep 5`),
		Limits: sandbox.Limits{
			CPUTime:  2 * time.Second,
			WallTime: 2 * time.Second,
		},
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.StatusTimeout, res.Status)
	require.Less(t, time.Since(start), 4*time.Second)
	// Partial output up to termination is preserved.
	require.Equal(t, "partial\n", string(res.Stdout))
}

func TestProcRunnerMissingExecutable(t *testing.T) {
	r := sandbox.NewProcRunner()
	res, err := r.Run(context.Background(), sandbox.Command{
		Path: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.StatusSandboxError, res.Status)
	require.Contains(t, res.Message, "not executable")
}

func TestProcRunnerCancellation(t *testing.T) {
	r := sandbox.NewProcRunner()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := r.Run(ctx, sandbox.Command{
		Path: writeScript(t, `sleep 10`),
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestProcRunnerMemoryCeilingEnforced(t *testing.T) {
	r := sandbox.NewProcRunner()
	// Buffering ~64 MB of command substitution into a shell variable
	// under an 8 MiB ceiling must fail inside the process, not merely
	// be tagged after a successful run.
	res, err := r.Run(context.Background(), sandbox.Command{
		Path: writeScript(t, `big=$(head -c 67108864 /dev/zero | tr '\0' a)
echo "survived ${#big}"`),
		Limits: sandbox.Limits{
			CPUTime:   10 * time.Second,
			WallTime:  20 * time.Second,
			MemoryKiB: 8 * 1024,
		},
	})
	require.NoError(t, err)
	require.NotContains(t, string(res.Stdout), "survived")
	require.Equal(t, sandbox.StatusMemoryExceeded, res.Status)
}

func TestProcRunnerCPULimitKillsSpinner(t *testing.T) {
	r := sandbox.NewProcRunner()
	start := time.Now()
	res, err := r.Run(context.Background(), sandbox.Command{
		Path: writeScript(t, `while :; do :; done`),
		Limits: sandbox.Limits{
			CPUTime:  time.Second,
			WallTime: 30 * time.Second,
		},
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.StatusTimeout, res.Status)
	// The kernel CPU ceiling fires well before the wall watchdog.
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestProcRunnerSignaled(t *testing.T) {
	r := sandbox.NewProcRunner()
	res, err := r.Run(context.Background(), sandbox.Command{
		Path: writeScript(t, `kill -SEGV $$`),
	})
	require.NoError(t, err)
	require.Equal(t, sandbox.StatusSignaled, res.Status)
	require.NotNil(t, res.ExitSignal)
}
