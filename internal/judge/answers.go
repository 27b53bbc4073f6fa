package judge

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rsalesc/robox.io/internal/sandbox"
)

// SynthesizeAnswers fills missing reference answers by running the
// model solution over each input. Answers already present are kept
// as-is. The model solution runs under the same per-case limits the
// judged submission will get; a model failure is a problem-authoring
// error and aborts synthesis.
func SynthesizeAnswers(
	ctx context.Context,
	runner sandbox.Runner,
	modelSolution string,
	tests []TestCase,
) ([]TestCase, error) {
	out := make([]TestCase, len(tests))
	for i, tc := range tests {
		out[i] = tc
		if len(tc.Answer) > 0 {
			continue
		}

		var answer bytes.Buffer
		res, err := runner.Run(ctx, sandbox.Command{
			Path:   modelSolution,
			Stdin:  bytes.NewReader(tc.Input),
			Stdout: &answer,
			Limits: tc.Limits,
		})
		if err != nil {
			return nil, fmt.Errorf("model solution failed on test %d: %w", tc.ID, err)
		}
		if res.Status != sandbox.StatusOK || res.ExitCode != 0 {
			return nil, fmt.Errorf(
				"model solution failed on test %d: status %s, exit code %d",
				tc.ID, res.Status, res.ExitCode)
		}
		out[i].Answer = answer.Bytes()
	}
	return out, nil
}
