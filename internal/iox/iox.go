// Package iox binds a test case's byte streams to the files a judged
// invocation sees: the input fed to validator and solution, the
// captured solution output, and the reference answer handed to the
// checker. Pure plumbing, no judgment logic.
package iox

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	InputFilename  = "input.txt"
	OutputFilename = "output.txt"
	AnswerFilename = "answer.txt"
)

// Channels is one test case's materialized stream set, scoped to a
// private directory that Close removes on every exit path.
type Channels struct {
	dir string
}

// Bind materializes the input and reference answer under a fresh
// directory. A test case without a reference answer gets an empty
// answer file: special-judge checkers are self-sufficient and must
// tolerate it.
func Bind(root string, input, answer []byte) (*Channels, error) {
	dir, err := os.MkdirTemp(root, "case-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create case dir: %w", err)
	}
	c := &Channels{dir: dir}

	if err := os.WriteFile(c.InputPath(), input, 0644); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to write input: %w", err)
	}
	if err := os.WriteFile(c.AnswerPath(), answer, 0644); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to write answer: %w", err)
	}
	return c, nil
}

func (c *Channels) Dir() string        { return c.dir }
func (c *Channels) InputPath() string  { return filepath.Join(c.dir, InputFilename) }
func (c *Channels) OutputPath() string { return filepath.Join(c.dir, OutputFilename) }
func (c *Channels) AnswerPath() string { return filepath.Join(c.dir, AnswerFilename) }

// OpenInput returns a fresh reader over the input; each program run
// gets its own cursor.
func (c *Channels) OpenInput() (*os.File, error) {
	f, err := os.Open(c.InputPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// CreateOutput returns the sink for the solution's stdout, truncating
// any previous capture.
func (c *Channels) CreateOutput() (*os.File, error) {
	f, err := os.Create(c.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, nil
}

// Output reads back the captured solution output.
func (c *Channels) Output() ([]byte, error) {
	data, err := os.ReadFile(c.OutputPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read captured output: %w", err)
	}
	return data, nil
}

func (c *Channels) Close() {
	_ = os.RemoveAll(c.dir)
}
