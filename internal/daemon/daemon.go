// Package daemon turns queued judge requests into judged sessions:
// it compiles the submitted solution and the problem's judging
// programs, materializes test data through the file store and hands
// the session to the judge engine.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rsalesc/robox.io/api"
	"github.com/rsalesc/robox.io/internal/compile"
	"github.com/rsalesc/robox.io/internal/filestore"
	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/sandbox"
	"github.com/rsalesc/robox.io/internal/verdict"
)

// Checkers and validators are authored in C++ against testlib.
const (
	checkerSourceFilename   = "checker.cpp"
	checkerCompiledFilename = "checker"
	checkerCompileCmd       = "g++ -std=c++17 -o checker checker.cpp -I . -I /usr/include"

	validatorSourceFilename   = "validator.cpp"
	validatorCompiledFilename = "validator"
	validatorCompileCmd       = "g++ -std=c++17 -o validator validator.cpp -I . -I /usr/include"
)

type Daemon struct {
	runner   sandbox.Runner
	store    *filestore.FileStore
	compiles *compile.Cache

	checkerCompile   string
	validatorCompile string
}

func New(runner sandbox.Runner, store *filestore.FileStore, compiles *compile.Cache) *Daemon {
	return &Daemon{
		runner:           runner,
		store:            store,
		compiles:         compiles,
		checkerCompile:   checkerCompileCmd,
		validatorCompile: validatorCompileCmd,
	}
}

// SetJudgingCompileCmds overrides how checker and validator sources
// are compiled. Empty strings keep the defaults.
func (d *Daemon) SetJudgingCompileCmds(checker, validator string) {
	if checker != "" {
		d.checkerCompile = checker
	}
	if validator != "" {
		d.validatorCompile = validator
	}
}

// Judge processes one request end to end, streaming progress through
// gath. Submitter mistakes (a solution that does not compile) end the
// session with a compilation-error outcome and a nil error; authoring
// and infrastructure failures are returned.
func (d *Daemon) Judge(ctx context.Context, req api.JudgeReq, gath judge.Gatherer) error {
	d.scheduleDownloads(req)

	workDir, err := os.MkdirTemp("", "judged-*")
	if err != nil {
		return fmt.Errorf("failed to create session work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	solution, err := d.compileSolution(ctx, req)
	if err != nil {
		slog.Info("submission failed to compile", "judge_uuid", req.JudgeUuid, "error", err)
		gath.FinishJudging(verdict.CompilationError, nil)
		return nil
	}

	progs, err := d.prepareJudgingPrograms(ctx, workDir, req, solution)
	if err != nil {
		gath.FinishJudging(verdict.InternalError, err)
		return fmt.Errorf("failed to prepare judging programs: %w", err)
	}

	tests, err := d.resolveTests(req)
	if err != nil {
		gath.FinishJudging(verdict.InternalError, err)
		return fmt.Errorf("failed to resolve tests: %w", err)
	}

	engine := judge.NewEngine(d.runner, progs, requestLimits(req))
	sess := judge.Session{
		ID:    req.JudgeUuid,
		Tests: tests,
		Policy: judge.Policy{
			StopOnFirstFailure:           req.StopOnFirstFailure,
			Parallelism:                  req.Parallelism,
			ReportPartialOutputOnFailure: req.ReportPartialOut,
		},
	}
	_, err = engine.JudgeSubmission(ctx, sess, gath)
	return err
}

func (d *Daemon) scheduleDownloads(req api.JudgeReq) {
	for _, t := range req.Tests {
		if t.InSha256 != nil && t.InUrl != nil {
			d.store.Schedule(*t.InSha256, *t.InUrl)
		}
		if t.AnsSha256 != nil && t.AnsUrl != nil {
			d.store.Schedule(*t.AnsSha256, *t.AnsUrl)
		}
	}
}

func (d *Daemon) compileSolution(ctx context.Context, req api.JudgeReq) ([]byte, error) {
	lang := req.Language
	if lang.CompileCmd == nil {
		// interpreted language: the source is the executable
		return []byte(req.Code), nil
	}
	if lang.CompiledFname == nil {
		return nil, fmt.Errorf("language %s has a compile command but no compiled filename", lang.LangID)
	}
	compiled, _, err := compile.Compile(ctx, d.runner, compile.Spec{
		SourceFilename:   lang.CodeFname,
		Source:           []byte(req.Code),
		Command:          []string{"/bin/sh", "-c", *lang.CompileCmd},
		CompiledFilename: *lang.CompiledFname,
	})
	if err != nil {
		return nil, err
	}
	return compiled, nil
}

func (d *Daemon) prepareJudgingPrograms(
	ctx context.Context,
	workDir string,
	req api.JudgeReq,
	solution []byte,
) (judge.Programs, error) {
	var progs judge.Programs

	checker, err := d.compiles.Executable(ctx, compile.Spec{
		SourceFilename:   checkerSourceFilename,
		Source:           []byte(req.Checker),
		Command:          []string{"/bin/sh", "-c", d.checkerCompile},
		CompiledFilename: checkerCompiledFilename,
	})
	if err != nil {
		return progs, fmt.Errorf("failed to compile checker: %w", err)
	}

	var validator []byte
	if req.Validator != nil {
		validator, err = d.compiles.Executable(ctx, compile.Spec{
			SourceFilename:   validatorSourceFilename,
			Source:           []byte(*req.Validator),
			Command:          []string{"/bin/sh", "-c", d.validatorCompile},
			CompiledFilename: validatorCompiledFilename,
		})
		if err != nil {
			return progs, fmt.Errorf("failed to compile validator: %w", err)
		}
	}

	progs.Solution = filepath.Join(workDir, "solution")
	if err := os.WriteFile(progs.Solution, solution, 0o755); err != nil {
		return progs, fmt.Errorf("failed to write solution executable: %w", err)
	}
	progs.Checker = filepath.Join(workDir, "checker")
	if err := os.WriteFile(progs.Checker, checker, 0o755); err != nil {
		return progs, fmt.Errorf("failed to write checker executable: %w", err)
	}
	if validator != nil {
		progs.Validator = filepath.Join(workDir, "validator")
		if err := os.WriteFile(progs.Validator, validator, 0o755); err != nil {
			return progs, fmt.Errorf("failed to write validator executable: %w", err)
		}
	}
	return progs, nil
}

func (d *Daemon) resolveTests(req api.JudgeReq) ([]judge.TestCase, error) {
	tests := make([]judge.TestCase, 0, len(req.Tests))
	for _, t := range req.Tests {
		input, err := d.resolveFile(t.InContent, t.InSha256)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve input of test %d: %w", t.ID, err)
		}
		if input == nil {
			return nil, fmt.Errorf("test %d has no input", t.ID)
		}
		answer, err := d.resolveFile(t.AnsContent, t.AnsSha256)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve answer of test %d: %w", t.ID, err)
		}
		tests = append(tests, judge.TestCase{ID: t.ID, Input: input, Answer: answer})
	}
	return tests, nil
}

func (d *Daemon) resolveFile(content *string, sha *string) ([]byte, error) {
	switch {
	case content != nil:
		return []byte(*content), nil
	case sha != nil:
		return d.store.Await(*sha)
	default:
		return nil, nil
	}
}

func requestLimits(req api.JudgeReq) sandbox.Limits {
	l := sandbox.Limits{
		CPUTime:   time.Duration(req.CpuMillis) * time.Millisecond,
		MemoryKiB: req.MemoryKiB,
	}
	if l.CPUTime <= 0 || l.MemoryKiB <= 0 {
		def := sandbox.DefaultLimits()
		if l.CPUTime <= 0 {
			l.CPUTime = def.CPUTime
		}
		if l.MemoryKiB <= 0 {
			l.MemoryKiB = def.MemoryKiB
		}
	}
	return l
}

// Describe renders a one-line summary for logs.
func Describe(req api.JudgeReq) string {
	parts := []string{req.JudgeUuid, req.Language.LangID,
		fmt.Sprintf("%d tests", len(req.Tests))}
	return strings.Join(parts, " ")
}
