// Command judge evaluates a solution against a local problem package
// and prints per-test verdicts to the terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/rsalesc/robox.io/internal/filestore"
	"github.com/rsalesc/robox.io/internal/gath/termgath"
	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/problem"
	"github.com/rsalesc/robox.io/internal/sandbox"
	"github.com/rsalesc/robox.io/internal/verdict"
	"github.com/rsalesc/robox.io/internal/xdg"
)

func main() {
	cmd := &cli.Command{
		Name:      "judge",
		Usage:     "judge a solution against a problem package",
		ArgsUsage: "<problem-dir> <solution-executable>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stop-on-first-failure",
				Usage: "stop judging after the first non-accepted test",
			},
			&cli.IntFlag{
				Name:    "parallelism",
				Aliases: []string{"j"},
				Usage:   "how many tests to judge at once",
				Value:   1,
			},
			&cli.BoolFlag{
				Name:  "partial-output",
				Usage: "keep the solution's output in failing test reports",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "sandbox backend: proc or isolate",
				Value: "proc",
			},
			&cli.StringFlag{
				Name:  "aws-region",
				Usage: "region for downloading sha256-referenced test files",
				Value: "eu-central-1",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("judging failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	level := slog.LevelInfo
	if cmd.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))

	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected <problem-dir> <solution-executable>, got %d args", cmd.Args().Len())
	}
	problemDir := cmd.Args().Get(0)
	solution := cmd.Args().Get(1)

	runner, err := pickRunner(cmd.String("backend"))
	if err != nil {
		return err
	}

	p, err := problem.Load(problemDir)
	if err != nil {
		return fmt.Errorf("failed to load problem: %w", err)
	}
	var store *filestore.FileStore
	if p.NeedsDownloads() {
		download, err := filestore.S3DownloadFunc(ctx, cmd.String("aws-region"))
		if err != nil {
			return fmt.Errorf("failed to set up downloads for sha256-referenced tests: %w", err)
		}
		cacheDir := xdg.AppCacheDir("robox-judge")
		store, err = filestore.New(
			filepath.Join(cacheDir, "files"),
			filepath.Join(cacheDir, "tmp"),
			download)
		if err != nil {
			return fmt.Errorf("failed to set up file store: %w", err)
		}
		store.Start()
		p.ScheduleDownloads(store)
	}

	tests, err := p.TestCases(store)
	if err != nil {
		return err
	}

	if p.ModelSolution != "" {
		tests, err = judge.SynthesizeAnswers(ctx, runner, p.ModelSolution, tests)
		if err != nil {
			return fmt.Errorf("failed to synthesize reference answers: %w", err)
		}
	}

	engine := judge.NewEngine(runner, p.Programs(solution), p.Defaults)
	outcome, err := engine.JudgeSubmission(ctx, judge.Session{
		Tests: tests,
		Policy: judge.Policy{
			StopOnFirstFailure:           cmd.Bool("stop-on-first-failure"),
			Parallelism:                  int(cmd.Int("parallelism")),
			ReportPartialOutputOnFailure: cmd.Bool("partial-output"),
		},
	}, termgath.New())
	if err != nil {
		return err
	}
	if outcome.Overall != verdict.Accepted {
		os.Exit(1)
	}
	return nil
}

func pickRunner(backend string) (sandbox.Runner, error) {
	switch backend {
	case "proc":
		return sandbox.NewProcRunner(), nil
	case "isolate":
		return sandbox.NewIsolateRunner(), nil
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", backend)
	}
}
