// Package command wraps execution of external tools so that callers can be
// exercised in tests without touching the host.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// Runner executes external commands.
type Runner interface {
	// Run executes a command and returns an error that includes the
	// combined output on failure.
	Run(ctx context.Context, name string, args ...string) error
	// Output executes a command and returns its standard output.
	Output(ctx context.Context, name string, args ...string) (string, error)
	// RunInput executes a command feeding input on its standard input.
	RunInput(ctx context.Context, input string, name string, args ...string) error
}

// ExecRunner runs commands on the host. With DryRun set, mutating calls are
// logged and skipped while Output still executes, since reads are needed to
// plan the run.
type ExecRunner struct {
	Logger *logging.Logger
	DryRun bool
}

// NewExecRunner returns a host runner bound to the given logger.
func NewExecRunner(logger *logging.Logger, dryRun bool) *ExecRunner {
	return &ExecRunner{Logger: logger, DryRun: dryRun}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	display := commandLine(name, args)
	if r.DryRun {
		r.Logger.Info("DRY RUN: %s", display)
		return nil
	}
	r.Logger.Debug("Executing: %s", display)
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	display := commandLine(name, args)
	r.Logger.Debug("Executing: %s", display)
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s failed: %w, output: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (r *ExecRunner) RunInput(ctx context.Context, input string, name string, args ...string) error {
	display := commandLine(name, args)
	if r.DryRun {
		r.Logger.Info("DRY RUN: %s (with %d bytes on stdin)", display, len(input))
		return nil
	}
	r.Logger.Debug("Executing: %s", display)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(input)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Exists reports whether an executable is available on PATH.
func Exists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
