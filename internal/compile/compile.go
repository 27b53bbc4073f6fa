// Package compile runs external compile commands inside a sandbox and
// hands back the produced executable.
package compile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rsalesc/robox.io/internal/sandbox"
)

// Spec describes one compilation: the source file to materialize, any
// supporting files (headers, libraries), the command to run and the
// name of the artifact it is expected to produce.
type Spec struct {
	SourceFilename   string
	Source           []byte
	ExtraFiles       map[string][]byte
	Command          []string
	CompiledFilename string
}

func compileLimits() sandbox.Limits {
	return sandbox.Limits{
		CPUTime:   60 * time.Second,
		WallTime:  120 * time.Second,
		MemoryKiB: 2 * 1024 * 1024,
	}
}

// Compile materializes spec's files in a fresh work dir, runs the compile
// command there through the runner and returns the compiled artifact.
// A non-zero compiler exit is reported through err with the run data
// still attached for diagnostics.
func Compile(ctx context.Context, runner sandbox.Runner, spec Spec) ([]byte, *sandbox.Result, error) {
	if len(spec.Command) == 0 {
		return nil, nil, fmt.Errorf("compile spec names no command")
	}
	if spec.CompiledFilename == "" {
		return nil, nil, fmt.Errorf("compile spec names no compiled filename")
	}

	workDir, err := os.MkdirTemp("", "compile-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create compile work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if spec.SourceFilename != "" {
		err := os.WriteFile(filepath.Join(workDir, spec.SourceFilename), spec.Source, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to write source file: %w", err)
		}
	}
	for name, content := range spec.ExtraFiles {
		err := os.WriteFile(filepath.Join(workDir, name), content, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to write file %s: %w", name, err)
		}
	}

	res, err := runner.Run(ctx, sandbox.Command{
		Path:   spec.Command[0],
		Args:   spec.Command[1:],
		Dir:    workDir,
		Limits: compileLimits(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to run compile command: %w", err)
	}
	if res.Status != sandbox.StatusOK || res.ExitCode != 0 {
		return nil, res, fmt.Errorf("compilation failed: %s",
			compileDiagnostics(res))
	}

	compiled, err := os.ReadFile(filepath.Join(workDir, spec.CompiledFilename))
	if err != nil {
		return nil, res, fmt.Errorf("compiler exited cleanly but produced no %s: %w",
			spec.CompiledFilename, err)
	}
	return compiled, res, nil
}

func compileDiagnostics(res *sandbox.Result) string {
	msg := strings.TrimSpace(string(res.Stderr))
	if msg == "" {
		msg = fmt.Sprintf("exit code %d, status %s", res.ExitCode, res.Status)
	}
	return msg
}
