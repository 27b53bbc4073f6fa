package judge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rsalesc/robox.io/internal/verdict"
)

// Policy configures how a session iterates its test cases.
type Policy struct {
	// StopOnFirstFailure reports only up to and including the first
	// non-accepted verdict; later cases are ignored.
	StopOnFirstFailure bool
	// Parallelism bounds how many test cases are judged at once.
	// Values below 1 mean sequential.
	Parallelism int
	// ReportPartialOutputOnFailure keeps the solution's captured
	// output in failing test results; when false it is stripped
	// before reporting.
	ReportPartialOutputOnFailure bool
}

// Session is one submission's evaluation: an ordered sequence of test
// cases, judged under a policy, discarded after the outcome is
// reported.
type Session struct {
	ID     string
	Tests  []TestCase
	Policy Policy
}

// Outcome aggregates a session: per-test results in declaration order
// (possibly truncated by the stop policy) and the worst verdict seen.
type Outcome struct {
	SessionID string
	Overall   verdict.Verdict
	Results   []TestResult
}

// JudgeSubmission judges every test of the session. Tests may run in
// parallel, but results are buffered and reported in declaration
// order. Cancelling ctx kills in-flight sandboxes and returns without
// reporting partial verdicts for the killed cases.
func (e *Engine) JudgeSubmission(ctx context.Context, sess Session, gath Gatherer) (*Outcome, error) {
	if gath == nil {
		gath = NopGatherer{}
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	parallelism := sess.Policy.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	gath.StartJudging(sess.ID, len(sess.Tests))

	results := make([]*TestResult, len(sess.Tests))

	// Index of the first non-accepted test, for the stop policy.
	var firstFailure atomic.Int64
	firstFailure.Store(int64(len(sess.Tests)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, tc := range sess.Tests {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if sess.Policy.StopOnFirstFailure && firstFailure.Load() < int64(i) {
				return nil
			}
			gath.StartTest(tc.ID)
			r := e.JudgeTest(gctx, tc)
			if err := gctx.Err(); err != nil {
				// Killed mid-flight: no verdict for this case.
				return err
			}
			results[i] = &r
			if r.Verdict != verdict.Accepted {
				storeMin(&firstFailure, int64(i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		gath.FinishJudging(verdict.InternalError, err)
		return nil, fmt.Errorf("judging session %s aborted: %w", sess.ID, err)
	}

	cut := len(sess.Tests)
	if sess.Policy.StopOnFirstFailure {
		if f := int(firstFailure.Load()); f < cut {
			cut = f + 1
		}
	}

	out := &Outcome{SessionID: sess.ID, Overall: verdict.Accepted}
	for i, tc := range sess.Tests {
		if i >= cut || results[i] == nil {
			gath.IgnoreTest(tc.ID)
			continue
		}
		r := *results[i]
		if r.Verdict != verdict.Accepted && !sess.Policy.ReportPartialOutputOnFailure {
			r = stripOutput(r)
		}
		gath.FinishTest(r)
		out.Results = append(out.Results, r)
		if r.Verdict > out.Overall {
			out.Overall = r.Verdict
		}
	}
	gath.FinishJudging(out.Overall, nil)
	return out, nil
}

func storeMin(a *atomic.Int64, v int64) {
	for {
		cur := a.Load()
		if v >= cur || a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func stripOutput(r TestResult) TestResult {
	if r.Solution != nil {
		s := *r.Solution
		s.Stdout = nil
		s.Stderr = nil
		r.Solution = &s
	}
	return r
}
