// Package parity compares the Go provisioner against the legacy shell
// script on hosts where both are installed.
package parity

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// TestResult holds the result of a parity test
type TestResult struct {
	Name           string
	ScriptExitCode int
	GoExitCode     int
	ScriptOutput   string
	GoOutput       string
	ScriptDuration time.Duration
	GoDuration     time.Duration
	Passed         bool
	Error          error
}

// Runner executes parity tests between the legacy shell script and the Go
// implementation
type Runner struct {
	scriptPath   string
	goBinaryPath string
	configPath   string
}

// NewRunner creates a new parity test runner
func NewRunner(scriptPath, goBinaryPath, configPath string) *Runner {
	return &Runner{
		scriptPath:   scriptPath,
		goBinaryPath: goBinaryPath,
		configPath:   configPath,
	}
}

// RunDryRunTest runs both implementations in dry-run mode and compares results
func (r *Runner) RunDryRunTest(ctx context.Context, testName string) *TestResult {
	result := &TestResult{
		Name: testName,
	}

	// Run the legacy shell script
	scriptStart := time.Now()
	scriptOut, scriptErr := r.runScript(ctx, "--dry-run")
	result.ScriptDuration = time.Since(scriptStart)
	if scriptErr != nil {
		if exitErr, ok := scriptErr.(*exec.ExitError); ok {
			result.ScriptExitCode = exitErr.ExitCode()
		} else {
			result.ScriptExitCode = 1
			result.Error = fmt.Errorf("script execution failed: %w", scriptErr)
		}
	}
	result.ScriptOutput = scriptOut

	// Run the Go binary
	goStart := time.Now()
	goOut, goErr := r.runGo(ctx, "--dry-run")
	result.GoDuration = time.Since(goStart)
	if goErr != nil {
		if exitErr, ok := goErr.(*exec.ExitError); ok {
			result.GoExitCode = exitErr.ExitCode()
		} else {
			result.GoExitCode = 1
			if result.Error == nil {
				result.Error = fmt.Errorf("go execution failed: %w", goErr)
			}
		}
	}
	result.GoOutput = goOut

	// Compare exit codes
	result.Passed = result.ScriptExitCode == result.GoExitCode

	return result
}

// runScript executes the legacy shell script
func (r *Runner) runScript(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "/bin/bash", append([]string{r.scriptPath}, args...)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// runGo executes the Go binary
func (r *Runner) runGo(ctx context.Context, args ...string) (string, error) {
	allArgs := append([]string{"--config", r.configPath}, args...)
	cmd := exec.CommandContext(ctx, r.goBinaryPath, allArgs...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// Report generates a comparison report
func (r *TestResult) Report() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "=== Parity Test: %s ===\n", r.Name)
	fmt.Fprintf(&buf, "Script Exit Code: %d\n", r.ScriptExitCode)
	fmt.Fprintf(&buf, "Go     Exit Code: %d\n", r.GoExitCode)
	fmt.Fprintf(&buf, "Script Duration:  %v\n", r.ScriptDuration)
	fmt.Fprintf(&buf, "Go     Duration:  %v\n", r.GoDuration)
	if r.Passed {
		fmt.Fprintf(&buf, "Status: PASSED ✓\n")
	} else {
		fmt.Fprintf(&buf, "Status: FAILED ✗\n")
	}
	if r.Error != nil {
		fmt.Fprintf(&buf, "Error: %v\n", r.Error)
	}
	fmt.Fprintf(&buf, "\n")
	return buf.String()
}
