// Package striptool wraps the external strip utility used to remove
// symbol information from installed shared libraries.
package striptool

import (
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
)

// Strip drives a strip-compatible binary.
type Strip struct {
	tool string
	args []string
}

// New returns a Strip invoking the given tool (e.g. "strip",
// "llvm-strip", "aarch64-linux-gnu-strip").
func New(tool string) *Strip {
	s := &Strip{tool: tool}
	if runtime.GOOS == "darwin" {
		// Apple strip refuses dylibs without -x (keep global symbols).
		s.args = append(s.args, "-x")
	}
	return s
}

// Tool returns the configured tool name.
func (s *Strip) Tool() string { return s.tool }

// Args prepends extra arguments passed before the file path.
func (s *Strip) Args(args ...string) { s.args = append(s.args, args...) }

// Available reports whether the tool can be found on PATH.
func (s *Strip) Available() bool {
	_, err := exec.LookPath(s.tool)
	return err == nil
}

// Run strips the file in place. A non-zero exit fails with the tool's
// stderr attached; silent strip failures are exactly what this tool
// exists to avoid.
func (s *Strip) Run(path string) error {
	args := append(append([]string{}, s.args...), path)
	cmd := exec.Command(s.tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("%s %s: %w: %s", s.tool, path, err, msg)
		}
		return fmt.Errorf("%s %s: %w", s.tool, path, err)
	}
	return nil
}
