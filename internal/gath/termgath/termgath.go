// Package termgath reports judging progress to the terminal.
package termgath

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/verdict"
)

type Gatherer struct {
	startedAt time.Time
}

var _ judge.Gatherer = (*Gatherer)(nil)

func New() *Gatherer {
	return &Gatherer{}
}

func (t *Gatherer) StartJudging(sessionID string, numTests int) {
	t.startedAt = time.Now()
	fmt.Printf("== judging %s (%d tests) ==\n", sessionID, numTests)
}

func (t *Gatherer) StartTest(testID int64) {
	fmt.Printf("-> test %d\n", testID)
}

func (t *Gatherer) IgnoreTest(testID int64) {
	fmt.Printf("   test %d %s\n", testID, color.HiBlackString("skipped"))
}

func (t *Gatherer) FinishTest(res judge.TestResult) {
	fmt.Printf("<- test %d %s", res.TestID, verdictString(res.Verdict))
	if res.Solution != nil {
		fmt.Printf("  (cpu=%dms wall=%dms mem=%dKiB)",
			res.Solution.CPUTime.Milliseconds(),
			res.Solution.WallTime.Milliseconds(),
			res.Solution.MemoryKiB)
	}
	fmt.Println()
	if res.Message != "" {
		fmt.Printf("   %s\n", color.HiBlackString(res.Message))
	}
}

func (t *Gatherer) FinishJudging(overall verdict.Verdict, errIfAny error) {
	dur := time.Since(t.startedAt).Round(time.Millisecond)
	if errIfAny != nil {
		fmt.Printf("== aborted after %s: %v ==\n", dur, errIfAny)
		return
	}
	fmt.Printf("== %s in %s ==\n", verdictString(overall), dur)
}

func verdictString(v verdict.Verdict) string {
	s := v.String()
	switch v {
	case verdict.Accepted:
		return color.GreenString(s)
	case verdict.PresentationError, verdict.WrongAnswer:
		return color.RedString(s)
	case verdict.TimeLimitExceeded, verdict.MemoryLimitExceeded:
		return color.YellowString(s)
	case verdict.RuntimeError:
		return color.MagentaString(s)
	default:
		return color.HiRedString(s)
	}
}
