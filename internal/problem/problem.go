// Package problem loads problem packages from disk. A problem is a
// directory with a problem.toml manifest naming the judging programs,
// resource limits and an ordered list of tests.
package problem

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/rsalesc/robox.io/internal/filestore"
	"github.com/rsalesc/robox.io/internal/judge"
	"github.com/rsalesc/robox.io/internal/sandbox"
)

const ManifestFilename = "problem.toml"

type manifest struct {
	Name          string         `toml:"name"`
	Checker       string         `toml:"checker"`
	Validator     string         `toml:"validator"`
	ModelSolution string         `toml:"model_solution"`
	Limits        manifestLimits `toml:"limits"`
	Tests         []manifestTest `toml:"tests"`
}

type manifestLimits struct {
	CpuMillis  int64 `toml:"cpu_millis"`
	WallMillis int64 `toml:"wall_millis"`
	MemoryKiB  int64 `toml:"memory_kib"`
}

// A test provides its input (and optionally its answer) in exactly one
// of three forms: inline content, a file path relative to the problem
// directory, or a sha256 + download URL pair.
type manifestTest struct {
	Input      string `toml:"input"`
	InputFile  string `toml:"input_file"`
	InputSha   string `toml:"input_sha256"`
	InputUrl   string `toml:"input_url"`
	Answer     string `toml:"answer"`
	AnswerFile string `toml:"answer_file"`
	AnswerSha  string `toml:"answer_sha256"`
	AnswerUrl  string `toml:"answer_url"`

	Limits *manifestLimits `toml:"limits"`
}

type Problem struct {
	Name          string
	Dir           string
	Checker       string
	Validator     string
	ModelSolution string
	Defaults      sandbox.Limits

	tests []manifestTest
}

// Load reads the problem.toml manifest in dir.
func Load(dir string) (*Problem, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read problem manifest: %w", err)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse problem manifest: %w", err)
	}
	if m.Checker == "" {
		return nil, fmt.Errorf("problem manifest names no checker")
	}
	if len(m.Tests) == 0 {
		return nil, fmt.Errorf("problem manifest names no tests")
	}
	for i, t := range m.Tests {
		if err := validateRef(t.Input, t.InputFile, t.InputSha, t.InputUrl, true); err != nil {
			return nil, fmt.Errorf("test %d input: %w", i+1, err)
		}
		if err := validateRef(t.Answer, t.AnswerFile, t.AnswerSha, t.AnswerUrl, false); err != nil {
			return nil, fmt.Errorf("test %d answer: %w", i+1, err)
		}
	}

	p := &Problem{
		Name:     m.Name,
		Dir:      dir,
		Checker:  resolvePath(dir, m.Checker),
		Defaults: m.Limits.toSandbox(),
		tests:    m.Tests,
	}
	if m.Validator != "" {
		p.Validator = resolvePath(dir, m.Validator)
	}
	if m.ModelSolution != "" {
		p.ModelSolution = resolvePath(dir, m.ModelSolution)
	}
	return p, nil
}

func validateRef(inline, file, sha, url string, required bool) error {
	n := 0
	if inline != "" {
		n++
	}
	if file != "" {
		n++
	}
	if sha != "" || url != "" {
		if sha == "" || url == "" {
			return fmt.Errorf("sha256 and url must be given together")
		}
		n++
	}
	if n > 1 {
		return fmt.Errorf("inline content, file and sha256 reference are mutually exclusive")
	}
	if n == 0 && required {
		return fmt.Errorf("no content given")
	}
	return nil
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (l manifestLimits) toSandbox() sandbox.Limits {
	return sandbox.Limits{
		CPUTime:   time.Duration(l.CpuMillis) * time.Millisecond,
		WallTime:  time.Duration(l.WallMillis) * time.Millisecond,
		MemoryKiB: l.MemoryKiB,
	}
}

// Programs returns the judging executables declared by the manifest.
func (p *Problem) Programs(solution string) judge.Programs {
	return judge.Programs{
		Validator: p.Validator,
		Solution:  solution,
		Checker:   p.Checker,
	}
}

// NeedsDownloads reports whether any test references its content by
// sha256, requiring a file store to materialize.
func (p *Problem) NeedsDownloads() bool {
	for _, t := range p.tests {
		if t.InputSha != "" || t.AnswerSha != "" {
			return true
		}
	}
	return false
}

// ScheduleDownloads registers every content-addressed test file with
// the store so downloads start before the tests are needed. A nil
// store is fine when no test uses sha256 references.
func (p *Problem) ScheduleDownloads(store *filestore.FileStore) {
	if store == nil {
		return
	}
	for _, t := range p.tests {
		if t.InputSha != "" {
			store.Schedule(t.InputSha, t.InputUrl)
		}
		if t.AnswerSha != "" {
			store.Schedule(t.AnswerSha, t.AnswerUrl)
		}
	}
}

// TestCases materializes the manifest's tests. Tests with missing
// answers come back with a nil Answer; pairing them with a model
// solution is the caller's business.
func (p *Problem) TestCases(store *filestore.FileStore) ([]judge.TestCase, error) {
	tests := make([]judge.TestCase, 0, len(p.tests))
	for i, t := range p.tests {
		input, err := p.resolveContent(store, t.Input, t.InputFile, t.InputSha)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve input of test %d: %w", i+1, err)
		}
		answer, err := p.resolveContent(store, t.Answer, t.AnswerFile, t.AnswerSha)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve answer of test %d: %w", i+1, err)
		}

		tc := judge.TestCase{
			ID:     int64(i + 1),
			Input:  input,
			Answer: answer,
		}
		if t.Limits != nil {
			tc.Limits = t.Limits.toSandbox()
		}
		tests = append(tests, tc)
	}
	return tests, nil
}

func (p *Problem) resolveContent(store *filestore.FileStore, inline, file, sha string) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(resolvePath(p.Dir, file))
		if err != nil {
			return nil, fmt.Errorf("failed to read test file: %w", err)
		}
		return data, nil
	case sha != "":
		if store == nil {
			return nil, fmt.Errorf("test references sha256 %s but no file store is configured", sha)
		}
		return store.Await(sha)
	default:
		return nil, nil
	}
}
