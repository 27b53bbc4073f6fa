// Package judge turns sandbox executions into verdicts: the engine
// runs validator, solution and checker for one test case, and the
// session pipeline aggregates test verdicts into an overall outcome.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rsalesc/robox.io/internal/iox"
	"github.com/rsalesc/robox.io/internal/sandbox"
	"github.com/rsalesc/robox.io/internal/verdict"
)

// TestCase is immutable problem data: its input, optional reference
// answer and per-case limits (zero limits fall back to the engine
// defaults).
type TestCase struct {
	ID     int64
	Input  []byte
	Answer []byte
	Limits sandbox.Limits
}

// Programs are the compiled executables taking part in judging. The
// validator is optional; the checker is not.
type Programs struct {
	Validator string
	Solution  string
	Checker   string
}

// TestResult is the single verdict produced for one (submission,
// test case) pair, along with the run data behind it.
type TestResult struct {
	TestID  int64
	Verdict verdict.Verdict
	Message string

	Solution *sandbox.Result
	Checker  *sandbox.Result
}

// Counters tracks how many times each stage was actually invoked.
type Counters struct {
	Validator atomic.Int64
	Solution  atomic.Int64
	Checker   atomic.Int64
}

type Engine struct {
	runner   sandbox.Runner
	progs    Programs
	defaults sandbox.Limits
	workRoot string

	counters Counters
}

func NewEngine(runner sandbox.Runner, progs Programs, defaults sandbox.Limits) *Engine {
	return &Engine{
		runner:   runner,
		progs:    progs,
		defaults: defaults,
	}
}

// SetWorkRoot overrides where per-case directories are created;
// empty means the system temp dir.
func (e *Engine) SetWorkRoot(dir string) { e.workRoot = dir }

func (e *Engine) Counters() *Counters { return &e.counters }

func (e *Engine) caseLimits(tc TestCase) sandbox.Limits {
	l := tc.Limits
	if l.CPUTime <= 0 {
		l.CPUTime = e.defaults.CPUTime
	}
	if l.WallTime <= 0 {
		l.WallTime = e.defaults.WallTime
	}
	if l.MemoryKiB <= 0 {
		l.MemoryKiB = e.defaults.MemoryKiB
	}
	return l
}

// checkerLimits bound the checker run itself. A checker exceeding
// them is a judging failure, never a submission verdict.
func checkerLimits() sandbox.Limits {
	return sandbox.Limits{
		CPUTime:   30 * time.Second,
		WallTime:  60 * time.Second,
		MemoryKiB: 2 * 1024 * 1024,
	}
}

// JudgeTest runs validator, solution and checker for one test case,
// strictly in that order, short-circuiting on the first failure. The
// same case judged twice with deterministic programs yields the same
// verdict: nothing here is retried.
func (e *Engine) JudgeTest(ctx context.Context, tc TestCase) TestResult {
	res := TestResult{TestID: tc.ID}

	ch, err := iox.Bind(e.workRoot, tc.Input, tc.Answer)
	if err != nil {
		return e.internalError(res, fmt.Errorf("failed to bind test streams: %w", err))
	}
	defer ch.Close()

	if e.progs.Validator != "" {
		ok, vres, err := e.runValidator(ctx, ch, tc)
		if err != nil {
			if ctx.Err() != nil {
				res.Verdict = verdict.InternalError
				res.Message = "cancelled"
				return res
			}
			return e.internalError(res, err)
		}
		if !ok {
			res.Verdict = verdict.ValidationFailed
			res.Message = strings.TrimSpace(string(vres.Stderr))
			return res
		}
	}

	sres, err := e.runSolution(ctx, ch, tc)
	if err != nil {
		if ctx.Err() != nil {
			res.Verdict = verdict.InternalError
			res.Message = "cancelled"
			return res
		}
		return e.internalError(res, err)
	}
	res.Solution = sres

	switch sres.Status {
	case sandbox.StatusTimeout:
		res.Verdict = verdict.TimeLimitExceeded
		return res
	case sandbox.StatusMemoryExceeded:
		res.Verdict = verdict.MemoryLimitExceeded
		return res
	case sandbox.StatusSignaled:
		res.Verdict = verdict.RuntimeError
		// Sandboxes do not always report which signal it was.
		if sres.ExitSignal != nil {
			res.Message = fmt.Sprintf("killed by signal %d", *sres.ExitSignal)
		} else {
			res.Message = "killed by signal"
		}
		return res
	case sandbox.StatusSandboxError:
		return e.internalError(res, fmt.Errorf("sandbox failed: %s", sres.Message))
	}
	if sres.ExitCode != 0 {
		res.Verdict = verdict.RuntimeError
		res.Message = fmt.Sprintf("exited with code %d", sres.ExitCode)
		return res
	}

	cres, err := e.runChecker(ctx, ch, tc)
	if err != nil {
		if ctx.Err() != nil {
			res.Verdict = verdict.InternalError
			res.Message = "cancelled"
			return res
		}
		return e.internalError(res, err)
	}
	res.Checker = cres

	if cres.Status != sandbox.StatusOK {
		return e.internalError(res, fmt.Errorf(
			"checker did not complete: status %s: %s", cres.Status, cres.Message))
	}

	outcome := verdict.DecodeCheckerExit(cres.ExitCode)
	if outcome == verdict.CheckerProtocolViolation {
		slog.Error("checker exit code outside the protocol",
			"test_id", tc.ID,
			"exit_code", cres.ExitCode,
			"stderr", strings.TrimSpace(string(cres.Stderr)))
	}
	res.Verdict = outcome.Verdict()
	res.Message = strings.TrimSpace(string(cres.Stderr))
	return res
}

func (e *Engine) runValidator(ctx context.Context, ch *iox.Channels, tc TestCase) (bool, *sandbox.Result, error) {
	in, err := ch.OpenInput()
	if err != nil {
		return false, nil, err
	}
	defer in.Close()

	e.counters.Validator.Add(1)
	vres, err := e.runner.Run(ctx, sandbox.Command{
		Path:   e.progs.Validator,
		Stdin:  in,
		Limits: checkerLimits(),
	})
	if err != nil {
		return false, nil, fmt.Errorf("validator run failed: %w", err)
	}
	if vres.Status == sandbox.StatusSandboxError {
		return false, nil, fmt.Errorf("validator sandbox failed: %s", vres.Message)
	}
	return vres.Status == sandbox.StatusOK && vres.ExitCode == 0, vres, nil
}

func (e *Engine) runSolution(ctx context.Context, ch *iox.Channels, tc TestCase) (*sandbox.Result, error) {
	in, err := ch.OpenInput()
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := ch.CreateOutput()
	if err != nil {
		return nil, err
	}
	defer out.Close()

	e.counters.Solution.Add(1)
	sres, err := e.runner.Run(ctx, sandbox.Command{
		Path:   e.progs.Solution,
		Stdin:  in,
		Stdout: out,
		Limits: e.caseLimits(tc),
	})
	if err != nil {
		return nil, fmt.Errorf("solution run failed: %w", err)
	}
	return sres, nil
}

func (e *Engine) runChecker(ctx context.Context, ch *iox.Channels, tc TestCase) (*sandbox.Result, error) {
	e.counters.Checker.Add(1)
	cres, err := e.runner.Run(ctx, sandbox.Command{
		Path:   e.progs.Checker,
		Args:   []string{ch.InputPath(), ch.OutputPath(), ch.AnswerPath()},
		Dir:    ch.Dir(),
		Limits: checkerLimits(),
	})
	if err != nil {
		return nil, fmt.Errorf("checker run failed: %w", err)
	}
	return cres, nil
}

func (e *Engine) internalError(res TestResult, err error) TestResult {
	slog.Error("internal judging failure", "test_id", res.TestID, "error", err)
	res.Verdict = verdict.InternalError
	res.Message = err.Error()
	return res
}
