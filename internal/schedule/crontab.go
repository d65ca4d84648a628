// Package schedule registers the recurring backup job in the root crontab.
// Entries written here carry a marker tag so repeated runs update one line
// instead of stacking duplicates.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/gatewaykit/z2m-provision/internal/command"
	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// markerTag identifies the crontab line owned by this tool.
const markerTag = "# z2m-provision:backup"

// Crontab edits the invoking user's crontab.
type Crontab struct {
	logger *logging.Logger
	runner command.Runner

	// read and write are swapped in tests to avoid touching the real
	// crontab.
	read  func(ctx context.Context) (string, error)
	write func(ctx context.Context, content string) error
}

// NewCrontab returns a Crontab backed by the crontab command.
func NewCrontab(logger *logging.Logger, runner command.Runner) *Crontab {
	c := &Crontab{logger: logger, runner: runner}
	c.read = c.readCommand
	c.write = c.writeCommand
	return c
}

func (c *Crontab) readCommand(ctx context.Context) (string, error) {
	out, err := c.runner.Output(ctx, "crontab", "-l")
	if err != nil {
		// An empty crontab is not an error condition.
		if strings.Contains(err.Error(), "no crontab for") {
			return "", nil
		}
		return "", fmt.Errorf("read crontab: %w", err)
	}
	return out, nil
}

func (c *Crontab) writeCommand(ctx context.Context, content string) error {
	if err := c.runner.RunInput(ctx, content, "crontab", "-"); err != nil {
		return fmt.Errorf("install crontab: %w", err)
	}
	return nil
}

// ValidateSpec rejects malformed five-field cron expressions before they
// reach the crontab.
func ValidateSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// EnsureBackupEntry installs or updates the tagged backup line. Lines
// matching any legacyFragment are dropped, which retires entries that still
// point at the old shell script. The crontab is only rewritten when the
// outcome differs from the current content.
func (c *Crontab) EnsureBackupEntry(ctx context.Context, spec, cmdLine string, legacyFragments ...string) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	entry := fmt.Sprintf("%s %s %s", spec, cmdLine, markerTag)

	current, err := c.read(ctx)
	if err != nil {
		return err
	}

	var kept []string
	found := false
	changed := false
	for _, line := range strings.Split(current, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Contains(trimmed, markerTag) {
			if found {
				// Collapse duplicate tagged lines.
				changed = true
				continue
			}
			found = true
			if trimmed != entry {
				c.logger.Info("Updating backup schedule entry")
				changed = true
			}
			kept = append(kept, entry)
			continue
		}
		if matchesLegacy(trimmed, legacyFragments) {
			c.logger.Info("Removing legacy backup entry: %s", trimmed)
			changed = true
			continue
		}
		kept = append(kept, line)
	}
	if !found {
		c.logger.Info("Registering backup schedule: %s", spec)
		kept = append(kept, entry)
		changed = true
	}

	if !changed {
		c.logger.Skip("Backup schedule already registered")
		return nil
	}
	return c.write(ctx, strings.Join(kept, "\n")+"\n")
}

// RemoveBackupEntry deletes the tagged line, if present.
func (c *Crontab) RemoveBackupEntry(ctx context.Context) error {
	current, err := c.read(ctx)
	if err != nil {
		return err
	}
	var kept []string
	changed := false
	for _, line := range strings.Split(current, "\n") {
		if strings.Contains(line, markerTag) {
			changed = true
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	if !changed {
		return nil
	}
	if len(kept) == 0 {
		return c.write(ctx, "")
	}
	return c.write(ctx, strings.Join(kept, "\n")+"\n")
}

func matchesLegacy(line string, fragments []string) bool {
	if strings.HasPrefix(line, "#") {
		return false
	}
	for _, fragment := range fragments {
		if fragment != "" && strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
