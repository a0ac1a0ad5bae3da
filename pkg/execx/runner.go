// Package execx is the single place sipbox shells out to local tools
// (docker, mkcert, openssl). Everything else takes a CommandRunner so tests
// can substitute canned results.
package execx

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes a local command and returns its combined output.
type CommandRunner interface {
	// Run executes name with args and returns stdout. A non-zero exit
	// status is returned as an error with stderr attached.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports whether name resolves to an executable on PATH.
	LookPath(name string) bool
}

// DefaultTimeout bounds a single tool invocation. Everything sipbox runs is
// a fast local operation; anything slower is stuck.
const DefaultTimeout = 30 * time.Second

// ExecRunner runs commands via os/exec.
type ExecRunner struct {
	// Timeout overrides DefaultTimeout when non-zero.
	Timeout time.Duration
}

// NewRunner creates an ExecRunner with the default timeout
func NewRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements CommandRunner
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	// Grandchildren inheriting the output pipes would otherwise hold Wait
	// open after the context kills the direct child.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s failed: %w", name, err)
		}
		return "", fmt.Errorf("%s failed: %w: %s", name, err, msg)
	}

	return stdout.String(), nil
}

// LookPath implements CommandRunner
func (r *ExecRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
