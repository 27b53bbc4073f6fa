package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

type isolateBox struct {
	runner *IsolateRunner
	id     int
	path   string
}

func (b *isolateBox) close() {
	_ = b.runner.releaseBox(b.id)
}

func (b *isolateBox) addFile(name string, content []byte, executable bool) error {
	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}
	path := filepath.Join(b.path, "box", name)
	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("failed to write %s into box: %w", name, err)
	}
	return nil
}

// stageDir mirrors the regular files of dir into the box so commands
// that expect a populated working directory find it there.
func (b *isolateBox) stageDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read work dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		if err := b.addFile(e.Name(), content, info.Mode()&0111 != 0); err != nil {
			return err
		}
	}
	return nil
}

// collectDir copies the box's regular files back into dir so artifacts
// produced by the run are visible outside the box.
func (b *isolateBox) collectDir(dir string) error {
	boxDir := filepath.Join(b.path, "box")
	entries, err := os.ReadDir(boxDir)
	if err != nil {
		return fmt.Errorf("failed to read box dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", e.Name(), err)
		}
		content, err := os.ReadFile(filepath.Join(boxDir, e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s from box: %w", e.Name(), err)
		}
		err = os.WriteFile(filepath.Join(dir, e.Name()), content, info.Mode().Perm())
		if err != nil {
			return fmt.Errorf("failed to copy %s out of box: %w", e.Name(), err)
		}
	}
	return nil
}

// run executes one command inside the box and parses the meta file
// isolate leaves behind into metrics.
func (b *isolateBox) run(
	ctx context.Context,
	prog string,
	args []string,
	stdin io.Reader,
	limits Limits,
) (*isolateMetrics, []byte, []byte, error) {
	metaFile, err := os.CreateTemp("", "robox-isolate-meta-*.txt")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create meta file: %w", err)
	}
	metaPath := metaFile.Name()
	_ = metaFile.Close()
	defer os.Remove(metaPath)

	cliArgs := []string{
		"--cg",
		"--box-id", fmt.Sprint(b.id),
		"--meta", metaPath,
		"--env=HOME=/box",
	}
	cliArgs = append(cliArgs, limits.isolateArgs()...)
	cliArgs = append(cliArgs, "--run", "--", prog)
	cliArgs = append(cliArgs, args...)

	cmd := exec.CommandContext(ctx, "isolate", cliArgs...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = newCapWriter(&stdout, MaxCapturedOutput)
	cmd.Stderr = newCapWriter(&stderr, MaxCapturedOutput)

	// isolate exits non-zero whenever the boxed program fails; the
	// meta file is the authoritative account of what happened.
	runErr := cmd.Run()

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read meta file: %w", err)
	}
	if len(bytes.TrimSpace(metaBytes)) == 0 && runErr != nil {
		return nil, nil, nil, fmt.Errorf("isolate failed before running the program: %w", runErr)
	}

	metrics, err := parseMetaFile(metaBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse meta file: %w", err)
	}
	return metrics, stdout.Bytes(), stderr.Bytes(), nil
}

func (l Limits) isolateArgs() []string {
	return []string{
		fmt.Sprintf("--time=%.3f", l.CPUTime.Seconds()),
		fmt.Sprintf("--wall-time=%.3f", l.WallTime.Seconds()),
		fmt.Sprintf("--extra-time=%.3f", 0.5),
		fmt.Sprintf("--cg-mem=%d", l.MemoryKiB),
		"--processes=128",
		"--open-files=128",
	}
}
