package judge_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/sandbox"
	"github.com/rsalesc/robox.io/internal/verdict"
)

// fakeRunner dispatches on the executable path so each stage of the
// pipeline can be scripted independently.
type fakeRunner struct {
	behaviors map[string]func(c sandbox.Command) *sandbox.Result
}

func (f *fakeRunner) Run(ctx context.Context, c sandbox.Command) (*sandbox.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := f.behaviors[c.Path]
	if !ok {
		return &sandbox.Result{
			Status:  sandbox.StatusSandboxError,
			Message: "no behavior for " + c.Path,
		}, nil
	}
	return b(c), nil
}

func exitWith(code int, stderr string) func(sandbox.Command) *sandbox.Result {
	return func(sandbox.Command) *sandbox.Result {
		return &sandbox.Result{
			Status:   sandbox.StatusOK,
			ExitCode: code,
			Stderr:   []byte(stderr),
		}
	}
}

// echoSolution copies stdin to the bound output stream.
func echoSolution(c sandbox.Command) *sandbox.Result {
	data, _ := io.ReadAll(c.Stdin)
	if c.Stdout != nil {
		_, _ = c.Stdout.Write(data)
	}
	return &sandbox.Result{Status: sandbox.StatusOK}
}

// wcmpChecker compares the captured output file against the answer
// file token-wise, signaling the testlib exit codes.
func wcmpChecker(c sandbox.Command) *sandbox.Result {
	out, _ := os.ReadFile(c.Args[1])
	ans, _ := os.ReadFile(c.Args[2])
	if strings.Join(strings.Fields(string(out)), " ") ==
		strings.Join(strings.Fields(string(ans)), " ") {
		return &sandbox.Result{Status: sandbox.StatusOK, ExitCode: verdict.CheckerExitAccepted}
	}
	return &sandbox.Result{
		Status:   sandbox.StatusOK,
		ExitCode: verdict.CheckerExitWrongAnswer,
		Stderr:   []byte("tokens differ"),
	}
}

func newFakeEngine(behaviors map[string]func(sandbox.Command) *sandbox.Result) *judge.Engine {
	return judge.NewEngine(
		&fakeRunner{behaviors: behaviors},
		judge.Programs{Validator: "validator", Solution: "solution", Checker: "checker"},
		sandbox.DefaultLimits(),
	)
}

func TestValidationFailureShortCircuits(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(3, "FAIL expected integer"),
		"solution":  echoSolution,
		"checker":   wcmpChecker,
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{ID: 1, Input: []byte("abc")})
	require.Equal(t, verdict.ValidationFailed, res.Verdict)
	require.Equal(t, "FAIL expected integer", res.Message)

	require.EqualValues(t, 1, e.Counters().Validator.Load())
	require.EqualValues(t, 0, e.Counters().Solution.Load(),
		"solution must never run for an invalid input")
	require.EqualValues(t, 0, e.Counters().Checker.Load())
}

func TestAcceptedPath(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution":  echoSolution,
		"checker":   wcmpChecker,
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{
		ID:     1,
		Input:  []byte("42\n"),
		Answer: []byte("42\n"),
	})
	require.Equal(t, verdict.Accepted, res.Verdict)
	require.EqualValues(t, 1, e.Counters().Validator.Load())
	require.EqualValues(t, 1, e.Counters().Solution.Load())
	require.EqualValues(t, 1, e.Counters().Checker.Load())
}

func TestWrongAnswer(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution":  echoSolution,
		"checker":   wcmpChecker,
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{
		ID:     1,
		Input:  []byte("1 2 3"),
		Answer: []byte("1 2 3 4"),
	})
	require.Equal(t, verdict.WrongAnswer, res.Verdict)
	require.Equal(t, "tokens differ", res.Message)
}

func TestTimeoutSkipsChecker(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution": func(sandbox.Command) *sandbox.Result {
			return &sandbox.Result{Status: sandbox.StatusTimeout}
		},
		"checker": wcmpChecker,
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{ID: 1, Input: []byte("x")})
	require.Equal(t, verdict.TimeLimitExceeded, res.Verdict)
	require.EqualValues(t, 0, e.Counters().Checker.Load(),
		"no comparison to reference answer on timeout")
}

func TestMemoryExceeded(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution": func(sandbox.Command) *sandbox.Result {
			return &sandbox.Result{Status: sandbox.StatusMemoryExceeded}
		},
		"checker": wcmpChecker,
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{ID: 1, Input: []byte("x")})
	require.Equal(t, verdict.MemoryLimitExceeded, res.Verdict)
}

func TestSignaledWithoutSignalNumber(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution": func(sandbox.Command) *sandbox.Result {
			// signal number unknown, as with a sparse meta file
			return &sandbox.Result{Status: sandbox.StatusSignaled}
		},
		"checker": wcmpChecker,
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{ID: 1, Input: []byte("x")})
	require.Equal(t, verdict.RuntimeError, res.Verdict)
	require.Equal(t, "killed by signal", res.Message)
}

func TestRuntimeErrorOnNonZeroExit(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution":  exitWith(139, ""),
		"checker":   wcmpChecker,
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{ID: 1, Input: []byte("x")})
	require.Equal(t, verdict.RuntimeError, res.Verdict)
	require.EqualValues(t, 0, e.Counters().Checker.Load())
}

func TestCheckerExitCodeMapping(t *testing.T) {
	cases := []struct {
		exitCode int
		want     verdict.Verdict
	}{
		{0, verdict.Accepted},
		{1, verdict.WrongAnswer},
		{2, verdict.PresentationError},
		{3, verdict.InternalError},
		{17, verdict.InternalError},
	}
	for _, c := range cases {
		e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
			"validator": exitWith(0, ""),
			"solution":  echoSolution,
			"checker":   exitWith(c.exitCode, ""),
		})
		res := e.JudgeTest(context.Background(), judge.TestCase{ID: 1, Input: []byte("x")})
		require.Equal(t, c.want, res.Verdict, "checker exit code %d", c.exitCode)
	}
}

func TestSandboxFailureIsInternalError(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution": func(sandbox.Command) *sandbox.Result {
			return &sandbox.Result{Status: sandbox.StatusSandboxError, Message: "missing binary"}
		},
	})

	res := e.JudgeTest(context.Background(), judge.TestCase{ID: 1, Input: []byte("x")})
	require.Equal(t, verdict.InternalError, res.Verdict)
	require.Contains(t, res.Message, "missing binary")
}

func TestNoValidatorConfigured(t *testing.T) {
	e := judge.NewEngine(
		&fakeRunner{behaviors: map[string]func(sandbox.Command) *sandbox.Result{
			"solution": echoSolution,
			"checker":  wcmpChecker,
		}},
		judge.Programs{Solution: "solution", Checker: "checker"},
		sandbox.DefaultLimits(),
	)

	res := e.JudgeTest(context.Background(), judge.TestCase{
		ID: 1, Input: []byte("7"), Answer: []byte("7"),
	})
	require.Equal(t, verdict.Accepted, res.Verdict)
	require.EqualValues(t, 0, e.Counters().Validator.Load())
}

func TestJudgeTestIdempotent(t *testing.T) {
	e := newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution":  echoSolution,
		"checker":   wcmpChecker,
	})
	tc := judge.TestCase{ID: 1, Input: []byte("5"), Answer: []byte("6")}

	first := e.JudgeTest(context.Background(), tc)
	second := e.JudgeTest(context.Background(), tc)
	require.Equal(t, first.Verdict, second.Verdict)
	require.Equal(t, verdict.WrongAnswer, second.Verdict)
}

func TestSynthesizeAnswers(t *testing.T) {
	runner := &fakeRunner{behaviors: map[string]func(sandbox.Command) *sandbox.Result{
		"model": func(c sandbox.Command) *sandbox.Result {
			data, _ := io.ReadAll(c.Stdin)
			_, _ = c.Stdout.Write(bytes.ToUpper(data))
			return &sandbox.Result{Status: sandbox.StatusOK}
		},
	}}

	tests, err := judge.SynthesizeAnswers(context.Background(), runner, "model", []judge.TestCase{
		{ID: 1, Input: []byte("abc")},
		{ID: 2, Input: []byte("x"), Answer: []byte("kept")},
	})
	require.NoError(t, err)
	require.Equal(t, "ABC", string(tests[0].Answer))
	require.Equal(t, "kept", string(tests[1].Answer), "existing answers stay untouched")
}

func TestSynthesizeAnswersModelFailure(t *testing.T) {
	runner := &fakeRunner{behaviors: map[string]func(sandbox.Command) *sandbox.Result{
		"model": exitWith(1, ""),
	}}
	_, err := judge.SynthesizeAnswers(context.Background(), runner, "model", []judge.TestCase{
		{ID: 1, Input: []byte("abc")},
	})
	require.Error(t, err)
}
