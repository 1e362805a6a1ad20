package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error
}

// CommandExecutor runs commands with os/exec.
type CommandExecutor struct{}

func (CommandExecutor) Run(ctx context.Context, binary string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// RunTool executes argv (binary plus leading arguments) with extra appended
// and wraps failures as ErrExternalTool with the tail of stderr attached.
func RunTool(ctx context.Context, runner Executor, component string, argv []string, extra ...string) error {
	if len(argv) == 0 {
		return Wrap(ErrConfiguration, component, "run", "command not configured", nil)
	}
	if runner == nil {
		runner = CommandExecutor{}
	}
	args := append(append([]string{}, argv[1:]...), extra...)
	var stderr bytes.Buffer
	err := runner.Run(ctx, argv[0], args, io.Discard, &stderr)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Wrap(ErrExternalTool, component, "run", fmt.Sprintf("%s timed out", argv[0]), err)
	}
	return Wrap(ErrExternalTool, component, "run", tail(stderr.String(), 512), err)
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
