package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor runs external commands. The real implementation shells out to
// ffmpeg/ffprobe; tests substitute a fake.
type Executor interface {
	// Execute runs a command and returns its stdout. Stderr is folded
	// into the returned error on failure.
	Execute(ctx context.Context, name string, args ...string) (string, error)
	// ExecuteInDir runs a command with the given working directory.
	// Caption burns run from the job work dir so filter paths stay relative.
	ExecuteInDir(ctx context.Context, dir, name string, args ...string) (string, error)
	// LookPath reports where name resolves on PATH.
	LookPath(name string) (string, error)
}

type execExecutor struct{}

// NewExecutor creates the exec-backed Executor.
func NewExecutor() Executor {
	return &execExecutor{}
}

func (e *execExecutor) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return e.run(ctx, "", name, args...)
}

func (e *execExecutor) ExecuteInDir(ctx context.Context, dir, name string, args ...string) (string, error) {
	return e.run(ctx, dir, name, args...)
}

func (e *execExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (e *execExecutor) run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Include stderr in the error so ffmpeg failures are debuggable
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", fmt.Errorf("command '%s' failed: %w\nstderr: %s", name, err, stderrStr)
		}
		return "", fmt.Errorf("command '%s' failed: %w", name, err)
	}

	return stdout.String(), nil
}
