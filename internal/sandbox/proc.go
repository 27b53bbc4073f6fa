package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ProcRunner is the portable backend: plain fork/exec with a
// wall-clock watchdog and post-hoc CPU/memory accounting from wait4
// rusage. It has no protection against box escaping and is meant for
// trusted setups and tests; production judging should use the isolate
// backend.
type ProcRunner struct{}

func NewProcRunner() *ProcRunner {
	return &ProcRunner{}
}

var _ Runner = (*ProcRunner)(nil)

func (r *ProcRunner) Run(ctx context.Context, c Command) (*Result, error) {
	limits := c.Limits.withDefaults()

	info, err := os.Stat(c.Path)
	if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
		return &Result{
			Status:  StatusSandboxError,
			Message: fmt.Sprintf("executable %s is missing or not executable", c.Path),
		}, nil
	}

	dir := c.Dir
	if dir == "" {
		dir, err = os.MkdirTemp("", "robox-box-*")
		if err != nil {
			return &Result{
				Status:  StatusSandboxError,
				Message: fmt.Sprintf("failed to create work dir: %v", err),
			}, nil
		}
		defer os.RemoveAll(dir)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := c.Stdout
	if stdout == nil {
		stdout = &stdoutBuf
	}
	stderr := c.Stderr
	if stderr == nil {
		stderr = &stderrBuf
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = dir
	cmd.Stdin = c.Stdin
	cmd.Stdout = newCapWriter(stdout, MaxCapturedOutput)
	cmd.Stderr = newCapWriter(stderr, MaxCapturedOutput)
	// Own process group so the kill on timeout reaps any children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Result{
			Status:  StatusSandboxError,
			Message: fmt.Sprintf("failed to start %s: %v", c.Path, err),
		}, nil
	}

	applyRlimits(cmd.Process.Pid, limits)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	wallTimer := time.NewTimer(limits.WallTime)
	defer wallTimer.Stop()

	timedOut := false
	select {
	case err = <-done:
	case <-wallTimer.C:
		timedOut = true
		killGroup(cmd)
		err = <-done
	case <-ctx.Done():
		killGroup(cmd)
		<-done
		return nil, ctx.Err()
	}

	res := &Result{
		WallTime: time.Since(start),
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
	}

	state := cmd.ProcessState
	res.CPUTime = state.UserTime() + state.SystemTime()
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok {
		// Maxrss is reported in KiB on Linux.
		res.MemoryKiB = ru.Maxrss
	}

	var signal *int64
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			sig := int64(ws.Signal())
			signal = &sig
		}
		res.ExitCode = ws.ExitStatus()
	} else if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return &Result{
				Status:  StatusSandboxError,
				Message: fmt.Sprintf("wait failed: %v", err),
			}, nil
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.ExitSignal = signal

	switch {
	case timedOut || res.CPUTime > limits.CPUTime:
		res.Status = StatusTimeout
	case res.MemoryKiB > limits.MemoryKiB:
		res.Status = StatusMemoryExceeded
	case signal != nil:
		res.Status = StatusSignaled
	default:
		res.Status = StatusOK
	}
	return res, nil
}

// Address space above the ceiling that the kernel still grants; Maxrss
// can cross the configured limit before allocation fails, so the
// post-hoc check classifies the overshoot as memory-exceeded.
const memRlimitSlackKiB = 16 * 1024

// applyRlimits puts kernel ceilings on the child: CPU one second past
// the limit (the post-hoc check owns the verdict boundary) and address
// space at limit plus slack. Errors are ignored since the process may
// have exited already; the watchdog and post-hoc checks still apply.
func applyRlimits(pid int, l Limits) {
	cpuSecs := uint64(l.CPUTime/time.Second) + 1
	cpu := unix.Rlimit{Cur: cpuSecs, Max: cpuSecs + 1}
	_ = unix.Prlimit(pid, unix.RLIMIT_CPU, &cpu, nil)

	asBytes := uint64(l.MemoryKiB+memRlimitSlackKiB) * 1024
	as := unix.Rlimit{Cur: asBytes, Max: asBytes}
	_ = unix.Prlimit(pid, unix.RLIMIT_AS, &as, nil)
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
