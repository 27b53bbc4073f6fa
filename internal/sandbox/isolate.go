package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// IsolateRunner executes programs inside isolate(1) control-group
// boxes. Box ids are process-wide: two runners must never share an id,
// so allocation goes through a mutex-guarded set.
type IsolateRunner struct {
	mu       sync.Mutex
	idsInUse mapset.Set[int]
}

func NewIsolateRunner() *IsolateRunner {
	return &IsolateRunner{idsInUse: mapset.NewThreadUnsafeSet[int]()}
}

var _ Runner = (*IsolateRunner)(nil)

func (r *IsolateRunner) Run(ctx context.Context, c Command) (*Result, error) {
	limits := c.Limits.withDefaults()

	box, err := r.newBox()
	if err != nil {
		return &Result{
			Status:  StatusSandboxError,
			Message: fmt.Sprintf("failed to init isolate box: %v", err),
		}, nil
	}
	defer box.close()

	exe, err := os.ReadFile(c.Path)
	if err != nil {
		return &Result{
			Status:  StatusSandboxError,
			Message: fmt.Sprintf("executable %s is missing: %v", c.Path, err),
		}, nil
	}
	prog := filepath.Base(c.Path)
	if err := box.addFile(prog, exe, true); err != nil {
		return &Result{
			Status:  StatusSandboxError,
			Message: fmt.Sprintf("failed to place executable in box: %v", err),
		}, nil
	}

	// Commands bound to a working directory (compile steps, checkers)
	// see its files inside the box and get produced files copied back
	// out after the run.
	if c.Dir != "" {
		if err := box.stageDir(c.Dir); err != nil {
			return &Result{
				Status:  StatusSandboxError,
				Message: fmt.Sprintf("failed to stage work dir in box: %v", err),
			}, nil
		}
	}

	// Checker-style invocations reference files from the shared work
	// dir; mirror them into the box under the same base names.
	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		if content, err := os.ReadFile(a); err == nil {
			base := filepath.Base(a)
			if err := box.addFile(base, content, false); err != nil {
				return &Result{
					Status:  StatusSandboxError,
					Message: fmt.Sprintf("failed to place %s in box: %v", a, err),
				}, nil
			}
			args = append(args, base)
			continue
		}
		args = append(args, a)
	}

	metrics, stdout, stderr, err := box.run(ctx, "./"+prog, args, c.Stdin, limits)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Result{
			Status:  StatusSandboxError,
			Message: fmt.Sprintf("isolate run failed: %v", err),
		}, nil
	}

	if c.Dir != "" {
		if err := box.collectDir(c.Dir); err != nil {
			return &Result{
				Status:  StatusSandboxError,
				Message: fmt.Sprintf("failed to collect work dir from box: %v", err),
			}, nil
		}
	}

	// Honor caller-provided sinks the same way the proc backend does:
	// bytes go to the sink instead of the result.
	if c.Stdout != nil {
		if _, werr := c.Stdout.Write(stdout); werr != nil {
			return &Result{
				Status:  StatusSandboxError,
				Message: fmt.Sprintf("failed to write captured stdout: %v", werr),
			}, nil
		}
		stdout = nil
	}
	if c.Stderr != nil {
		if _, werr := c.Stderr.Write(stderr); werr != nil {
			return &Result{
				Status:  StatusSandboxError,
				Message: fmt.Sprintf("failed to write captured stderr: %v", werr),
			}, nil
		}
		stderr = nil
	}

	res := &Result{
		ExitCode:  int(metrics.ExitCode),
		CPUTime:   time.Duration(metrics.TimeSec * float64(time.Second)),
		WallTime:  time.Duration(metrics.TimeWallSec * float64(time.Second)),
		MemoryKiB: metrics.MaxRssKiB,
		Stdout:    stdout,
		Stderr:    stderr,
		Message:   metrics.Message,
	}
	if metrics.CgMemKiB > res.MemoryKiB {
		res.MemoryKiB = metrics.CgMemKiB
	}
	if metrics.ExitSignal != 0 {
		sig := metrics.ExitSignal
		res.ExitSignal = &sig
	}

	switch metrics.Status {
	case "TO":
		res.Status = StatusTimeout
	case "SG":
		if metrics.CgOomKilled || res.MemoryKiB > limits.MemoryKiB {
			res.Status = StatusMemoryExceeded
		} else {
			res.Status = StatusSignaled
		}
	case "XX":
		res.Status = StatusSandboxError
	default:
		// "RE" (non-zero exit) and clean runs both complete normally;
		// the exit code carries the distinction.
		res.Status = StatusOK
	}
	return res, nil
}

func (r *IsolateRunner) newBox() (*isolateBox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := 0
	for r.idsInUse.Contains(id) {
		id++
	}

	if err := cleanupBox(id); err != nil {
		return nil, err
	}
	path, err := initBox(id)
	if err != nil {
		return nil, err
	}
	r.idsInUse.Add(id)
	return &isolateBox{runner: r, id: id, path: path}, nil
}

func (r *IsolateRunner) releaseBox(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idsInUse.Remove(id)
	return cleanupBox(id)
}

func cleanupBox(id int) error {
	cmd := exec.Command("isolate", "--cg", "--cleanup", "--box-id", fmt.Sprint(id))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("isolate cleanup: %v: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

func initBox(id int) (string, error) {
	cmd := exec.Command("isolate", "--cg", "--init", "--box-id", fmt.Sprint(id))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("isolate init: %v: %s", err, bytes.TrimSpace(out))
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}
