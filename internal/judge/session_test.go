package judge_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/sandbox"
	"github.com/rsalesc/robox.io/internal/verdict"
)

type recordingGatherer struct {
	mu       sync.Mutex
	started  []int64
	ignored  []int64
	finished []judge.TestResult
	overall  verdict.Verdict
	err      error
}

func (g *recordingGatherer) StartJudging(string, int) {}

func (g *recordingGatherer) StartTest(testID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = append(g.started, testID)
}

func (g *recordingGatherer) IgnoreTest(testID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ignored = append(g.ignored, testID)
}

func (g *recordingGatherer) FinishTest(result judge.TestResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finished = append(g.finished, result)
}

func (g *recordingGatherer) FinishJudging(overall verdict.Verdict, errIfAny error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overall = overall
	g.err = errIfAny
}

// slowMarker makes the scripted solution time out for inputs that
// start with "slow".
func sessionEngine() *judge.Engine {
	return newFakeEngine(map[string]func(sandbox.Command) *sandbox.Result{
		"validator": exitWith(0, ""),
		"solution": func(c sandbox.Command) *sandbox.Result {
			data, _ := io.ReadAll(c.Stdin)
			if len(data) >= 4 && string(data[:4]) == "slow" {
				return &sandbox.Result{Status: sandbox.StatusTimeout}
			}
			if c.Stdout != nil {
				_, _ = c.Stdout.Write(data)
			}
			return &sandbox.Result{Status: sandbox.StatusOK}
		},
		"checker": wcmpChecker,
	})
}

func TestStopOnFirstFailure(t *testing.T) {
	e := sessionEngine()
	gath := &recordingGatherer{}

	out, err := e.JudgeSubmission(context.Background(), judge.Session{
		Tests: []judge.TestCase{
			{ID: 1, Input: []byte("a"), Answer: []byte("a")},
			{ID: 2, Input: []byte("b"), Answer: []byte("DIFFERENT")},
			{ID: 3, Input: []byte("c"), Answer: []byte("c")},
		},
		Policy: judge.Policy{StopOnFirstFailure: true, Parallelism: 1},
	}, gath)
	require.NoError(t, err)

	require.Equal(t, verdict.WrongAnswer, out.Overall)
	require.Len(t, out.Results, 2, "report up to and including the first failure")
	require.Equal(t, []int64{1, 2}, []int64{out.Results[0].TestID, out.Results[1].TestID})
	require.Equal(t, []int64{3}, gath.ignored)

	// Nothing after the first non-accepted test was executed.
	require.EqualValues(t, 2, e.Counters().Solution.Load())
	require.Equal(t, []int64{1, 2}, gath.started)
}

func TestRunAllAggregatesWorstVerdict(t *testing.T) {
	e := sessionEngine()
	gath := &recordingGatherer{}

	out, err := e.JudgeSubmission(context.Background(), judge.Session{
		Tests: []judge.TestCase{
			{ID: 1, Input: []byte("a"), Answer: []byte("a")},
			{ID: 2, Input: []byte("b"), Answer: []byte("b")},
			{ID: 3, Input: []byte("slow"), Answer: []byte("slow")},
		},
		Policy: judge.Policy{Parallelism: 1},
	}, gath)
	require.NoError(t, err)

	require.Equal(t, verdict.TimeLimitExceeded, out.Overall)
	require.Len(t, out.Results, 3)
	require.Equal(t, verdict.Accepted, out.Results[0].Verdict)
	require.Equal(t, verdict.Accepted, out.Results[1].Verdict)
	require.Equal(t, verdict.TimeLimitExceeded, out.Results[2].Verdict)
	require.Equal(t, verdict.TimeLimitExceeded, gath.overall)
}

func TestParallelResultsKeepDeclarationOrder(t *testing.T) {
	e := sessionEngine()
	gath := &recordingGatherer{}

	tests := make([]judge.TestCase, 0, 16)
	for i := int64(1); i <= 16; i++ {
		in := []byte{byte('a' + i - 1)}
		tests = append(tests, judge.TestCase{ID: i, Input: in, Answer: in})
	}

	out, err := e.JudgeSubmission(context.Background(), judge.Session{
		Tests:  tests,
		Policy: judge.Policy{Parallelism: 4},
	}, gath)
	require.NoError(t, err)
	require.Equal(t, verdict.Accepted, out.Overall)

	require.Len(t, gath.finished, 16)
	for i, r := range gath.finished {
		require.EqualValues(t, i+1, r.TestID, "results must be reported in declaration order")
	}
}

func TestExactlyOneVerdictPerTest(t *testing.T) {
	e := sessionEngine()
	out, err := e.JudgeSubmission(context.Background(), judge.Session{
		Tests: []judge.TestCase{
			{ID: 1, Input: []byte("a"), Answer: []byte("a")},
			{ID: 2, Input: []byte("b"), Answer: []byte("x")},
		},
		Policy: judge.Policy{Parallelism: 2},
	}, nil)
	require.NoError(t, err)

	seen := map[int64]int{}
	for _, r := range out.Results {
		seen[r.TestID]++
		require.GreaterOrEqual(t, r.Verdict, verdict.Accepted)
		require.LessOrEqual(t, r.Verdict, verdict.InternalError)
	}
	require.Equal(t, map[int64]int{1: 1, 2: 1}, seen)
}

func TestJudgeSubmissionIdempotent(t *testing.T) {
	sess := judge.Session{
		ID: "fixed",
		Tests: []judge.TestCase{
			{ID: 1, Input: []byte("a"), Answer: []byte("a")},
			{ID: 2, Input: []byte("slow"), Answer: []byte("slow")},
		},
		Policy: judge.Policy{Parallelism: 1},
	}

	first, err := sessionEngine().JudgeSubmission(context.Background(), sess, nil)
	require.NoError(t, err)
	second, err := sessionEngine().JudgeSubmission(context.Background(), sess, nil)
	require.NoError(t, err)

	require.Equal(t, first.Overall, second.Overall)
	require.Len(t, second.Results, len(first.Results))
	for i := range first.Results {
		require.Equal(t, first.Results[i].Verdict, second.Results[i].Verdict)
	}
}

func TestCancellationAbortsSession(t *testing.T) {
	e := sessionEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gath := &recordingGatherer{}
	_, err := e.JudgeSubmission(ctx, judge.Session{
		Tests: []judge.TestCase{
			{ID: 1, Input: []byte("a"), Answer: []byte("a")},
		},
		Policy: judge.Policy{Parallelism: 1},
	}, gath)
	require.Error(t, err)
	require.Empty(t, gath.finished, "no partial verdicts for killed cases")
	require.Equal(t, verdict.InternalError, gath.overall)
	require.Error(t, gath.err)
}

func TestPartialOutputStrippedByDefault(t *testing.T) {
	e := sessionEngine()
	out, err := e.JudgeSubmission(context.Background(), judge.Session{
		Tests: []judge.TestCase{
			{ID: 1, Input: []byte("b"), Answer: []byte("DIFFERENT")},
		},
		Policy: judge.Policy{Parallelism: 1},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, verdict.WrongAnswer, out.Overall)
	require.NotNil(t, out.Results[0].Solution)
	require.Empty(t, out.Results[0].Solution.Stdout)
}
