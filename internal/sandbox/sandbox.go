// Package sandbox launches untrusted programs with bounded CPU time,
// wall time and memory. It is the only package in the harness that
// touches raw OS process primitives; every other component goes
// through the Runner interface.
package sandbox

import (
	"context"
	"io"
	"time"
)

// Limits are the resource ceilings enforced on one program invocation.
// Zero fields fall back to DefaultLimits.
type Limits struct {
	CPUTime   time.Duration
	WallTime  time.Duration
	MemoryKiB int64
}

func DefaultLimits() Limits {
	return Limits{
		CPUTime:   10 * time.Second,
		WallTime:  20 * time.Second,
		MemoryKiB: 2 * 1024 * 1024,
	}
}

// withDefaults fills zero fields from DefaultLimits. A missing wall
// ceiling is derived from the CPU ceiling so a sleeping program can
// never hang the harness.
func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.CPUTime <= 0 {
		l.CPUTime = def.CPUTime
	}
	if l.WallTime <= 0 {
		l.WallTime = 2 * l.CPUTime
	}
	if l.MemoryKiB <= 0 {
		l.MemoryKiB = def.MemoryKiB
	}
	return l
}

// Status is the definitive classification of how an invocation ended.
type Status int

const (
	// StatusOK: the program ran to completion, possibly with a
	// non-zero exit code.
	StatusOK Status = iota
	// StatusTimeout: the CPU or wall ceiling was exceeded and the
	// process was killed.
	StatusTimeout
	// StatusMemoryExceeded: peak memory went over the ceiling.
	StatusMemoryExceeded
	// StatusSignaled: the program died on a signal below any limit.
	StatusSignaled
	// StatusSandboxError: the sandbox itself failed (missing
	// executable, unwritable work dir); a harness defect, not a
	// submission one.
	StatusSandboxError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusMemoryExceeded:
		return "memory-exceeded"
	case StatusSignaled:
		return "signaled"
	default:
		return "sandbox-error"
	}
}

// Command describes one program invocation. Stdout and Stderr are
// optional sinks; when nil the runner captures output itself, capped
// at MaxCapturedOutput, and exposes it on the Result.
type Command struct {
	Path   string
	Args   []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Limits Limits
}

// Result reports how an invocation ended together with its resource
// usage. It is created once per invocation and never mutated after.
type Result struct {
	Status     Status
	ExitCode   int
	ExitSignal *int64

	CPUTime   time.Duration
	WallTime  time.Duration
	MemoryKiB int64

	Stdout []byte
	Stderr []byte

	// Message carries sandbox diagnostics for StatusSandboxError.
	Message string
}

// Runner executes one program per call under the given limits. The
// process is always reaped before Run returns: the result carries a
// definitive status and partial output captured up to termination.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// MaxCapturedOutput caps how many bytes of stdout/stderr a runner
// retains when it owns the capture buffers.
const MaxCapturedOutput = 16 * 1024 * 1024

// capWriter discards everything past its byte budget. The judged
// program keeps running; only the retained prefix is bounded.
type capWriter struct {
	w    io.Writer
	left int
}

func newCapWriter(w io.Writer, max int) *capWriter {
	return &capWriter{w: w, left: max}
}

func (c *capWriter) Write(p []byte) (int, error) {
	n := len(p)
	if c.left <= 0 {
		return n, nil
	}
	if n > c.left {
		p = p[:c.left]
	}
	written, err := c.w.Write(p)
	c.left -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
