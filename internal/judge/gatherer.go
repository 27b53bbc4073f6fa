package judge

import "github.com/rsalesc/robox.io/internal/verdict"

// Gatherer receives judging progress. Implementations report to a
// terminal, an SQS response queue, or a NATS subject; the pipeline
// does not care which.
type Gatherer interface {
	StartJudging(sessionID string, numTests int)
	StartTest(testID int64)
	IgnoreTest(testID int64)
	FinishTest(result TestResult)
	FinishJudging(overall verdict.Verdict, errIfAny error)
}

// MultiGatherer fans every event out to each of its gatherers in
// order.
type MultiGatherer []Gatherer

func (m MultiGatherer) StartJudging(sessionID string, numTests int) {
	for _, g := range m {
		g.StartJudging(sessionID, numTests)
	}
}

func (m MultiGatherer) StartTest(testID int64) {
	for _, g := range m {
		g.StartTest(testID)
	}
}

func (m MultiGatherer) IgnoreTest(testID int64) {
	for _, g := range m {
		g.IgnoreTest(testID)
	}
}

func (m MultiGatherer) FinishTest(result TestResult) {
	for _, g := range m {
		g.FinishTest(result)
	}
}

func (m MultiGatherer) FinishJudging(overall verdict.Verdict, errIfAny error) {
	for _, g := range m {
		g.FinishJudging(overall, errIfAny)
	}
}

// NopGatherer discards all progress.
type NopGatherer struct{}

func (NopGatherer) StartJudging(string, int)             {}
func (NopGatherer) StartTest(int64)                      {}
func (NopGatherer) IgnoreTest(int64)                     {}
func (NopGatherer) FinishTest(TestResult)                {}
func (NopGatherer) FinishJudging(verdict.Verdict, error) {}
