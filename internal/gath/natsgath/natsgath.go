// Package natsgath streams judging progress to a NATS subject.
package natsgath

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/rsalesc/robox.io/api"
	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/sandbox"
	"github.com/rsalesc/robox.io/internal/verdict"
)

type Gatherer struct {
	nc        *nats.Conn
	subject   string
	judgeUuid string
}

var _ judge.Gatherer = (*Gatherer)(nil)

func New(natsUrl, subject, judgeUuid string) (*Gatherer, error) {
	nc, err := nats.Connect(natsUrl, nats.Name("robox-judge"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsUrl, err)
	}
	return &Gatherer{nc: nc, subject: subject, judgeUuid: judgeUuid}, nil
}

func (g *Gatherer) Close() {
	g.nc.Close()
}

func (g *Gatherer) header(msgType api.MsgType) api.Header {
	return api.Header{JudgeUuid: g.judgeUuid, MsgType: msgType}
}

func (g *Gatherer) StartJudging(sessionID string, numTests int) {
	g.publish(api.StartedJudging{
		Header:   g.header(api.StartedJudgingMsg),
		NumTests: numTests,
	})
}

func (g *Gatherer) StartTest(testID int64) {
	g.publish(api.ReachedTest{Header: g.header(api.ReachedTestMsg), TestId: testID})
}

func (g *Gatherer) IgnoreTest(testID int64) {
	g.publish(api.IgnoredTest{Header: g.header(api.IgnoredTestMsg), TestId: testID})
}

func (g *Gatherer) FinishTest(res judge.TestResult) {
	g.publish(api.FinishedTest{
		Header:   g.header(api.FinishedTestMsg),
		TestId:   res.TestID,
		Verdict:  res.Verdict.String(),
		Message:  res.Message,
		Solution: mapRunData(res.Solution),
		Checker:  mapRunData(res.Checker),
	})
}

func (g *Gatherer) FinishJudging(overall verdict.Verdict, errIfAny error) {
	msg := api.FinishedJudging{
		Header:  g.header(api.FinishedJudgingMsg),
		Overall: overall.String(),
	}
	if errIfAny != nil {
		errMsg := errIfAny.Error()
		msg.ErrorMessage = &errMsg
		msg.InternalError = true
	}
	g.publish(msg)
}

func (g *Gatherer) publish(msg any) {
	body, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal judging message", "error", err)
		return
	}
	if err := g.nc.Publish(g.subject, body); err != nil {
		slog.Error("failed to publish judging message",
			"subject", g.subject, "error", err)
	}
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
