// Package sqsgath streams judging progress to an SQS response queue.
package sqsgath

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/rsalesc/robox.io/api"
	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/sandbox"
	"github.com/rsalesc/robox.io/internal/verdict"
)

type Gatherer struct {
	sqsClient *sqs.Client
	queueUrl  string
	judgeUuid string
}

var _ judge.Gatherer = (*Gatherer)(nil)

func New(ctx context.Context, region, judgeUuid, resQueueUrl string) (*Gatherer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Gatherer{
		sqsClient: sqs.NewFromConfig(cfg),
		queueUrl:  resQueueUrl,
		judgeUuid: judgeUuid,
	}, nil
}

func (s *Gatherer) header(msgType api.MsgType) api.Header {
	return api.Header{JudgeUuid: s.judgeUuid, MsgType: msgType}
}

func (s *Gatherer) StartJudging(sessionID string, numTests int) {
	s.send(api.StartedJudging{
		Header:   s.header(api.StartedJudgingMsg),
		NumTests: numTests,
	})
}

func (s *Gatherer) StartTest(testID int64) {
	s.send(api.ReachedTest{
		Header: s.header(api.ReachedTestMsg),
		TestId: testID,
	})
}

func (s *Gatherer) IgnoreTest(testID int64) {
	s.send(api.IgnoredTest{
		Header: s.header(api.IgnoredTestMsg),
		TestId: testID,
	})
}

func (s *Gatherer) FinishTest(res judge.TestResult) {
	s.send(api.FinishedTest{
		Header:   s.header(api.FinishedTestMsg),
		TestId:   res.TestID,
		Verdict:  res.Verdict.String(),
		Message:  res.Message,
		Solution: mapRunData(res.Solution),
		Checker:  mapRunData(res.Checker),
	})
}

func (s *Gatherer) FinishJudging(overall verdict.Verdict, errIfAny error) {
	msg := api.FinishedJudging{
		Header:  s.header(api.FinishedJudgingMsg),
		Overall: overall.String(),
	}
	if errIfAny != nil {
		errMsg := errIfAny.Error()
		msg.ErrorMessage = &errMsg
		msg.InternalError = true
	}
	s.send(msg)
}

func mapRunData(res *sandbox.Result) *api.RunData {
	if res == nil {
		return nil
	}
	return &api.RunData{
		Stdout:     trimStrToRect(string(res.Stdout), api.MaxRunDataHeight, api.MaxRunDataWidth),
		Stderr:     trimStrToRect(string(res.Stderr), api.MaxRunDataHeight, api.MaxRunDataWidth),
		ExitCode:   res.ExitCode,
		CpuMillis:  res.CPUTime.Milliseconds(),
		WallMillis: res.WallTime.Milliseconds(),
		MemoryKiB:  res.MemoryKiB,
		ExitSignal: res.ExitSignal,
		Status:     res.Status.String(),
	}
}
