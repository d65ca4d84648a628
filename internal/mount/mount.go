// Package mount manages the network share that holds the backup archives.
package mount

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gatewaykit/z2m-provision/internal/command"
	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// Error marks a failure of the mount table or the mount tooling so callers
// can tell it apart from failures of whatever ran on the mounted share.
type Error struct {
	Err error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Manager mounts and unmounts a single share.
type Manager struct {
	Source  string
	Target  string
	FSType  string
	Options string

	// MountsPath is the mount table consulted by Mounted, swapped in tests.
	MountsPath string

	logger *logging.Logger
	runner command.Runner
}

// NewManager returns a Manager for the given share.
func NewManager(source, target, fstype, options string, logger *logging.Logger, runner command.Runner) *Manager {
	return &Manager{
		Source:     source,
		Target:     target,
		FSType:     fstype,
		Options:    options,
		logger:     logger,
		runner:     runner,
		MountsPath: "/proc/self/mounts",
	}
}

// Mounted reports whether something is mounted on the target.
func (m *Manager) Mounted() (bool, error) {
	data, err := os.ReadFile(m.MountsPath)
	if err != nil {
		return false, &Error{Err: fmt.Errorf("read mount table: %w", err)}
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && unescapeMountPath(fields[1]) == m.Target {
			return true, nil
		}
	}
	return false, nil
}

// Mount attaches the share onto the target, creating the mount point if it
// does not exist.
func (m *Manager) Mount(ctx context.Context) error {
	if err := os.MkdirAll(m.Target, 0o755); err != nil {
		return &Error{Err: fmt.Errorf("create mount point %s: %w", m.Target, err)}
	}
	m.logger.Info("Mounting %s on %s (%s)", m.Source, m.Target, m.FSType)
	args := []string{"-t", m.FSType}
	if strings.TrimSpace(m.Options) != "" {
		args = append(args, "-o", m.Options)
	}
	args = append(args, m.Source, m.Target)
	if err := m.runner.Run(ctx, "mount", args...); err != nil {
		return &Error{Err: fmt.Errorf("mount %s: %w", m.Source, err)}
	}
	return nil
}

// Unmount detaches the share.
func (m *Manager) Unmount(ctx context.Context) error {
	m.logger.Info("Unmounting %s", m.Target)
	if err := m.runner.Run(ctx, "umount", m.Target); err != nil {
		return &Error{Err: fmt.Errorf("unmount %s: %w", m.Target, err)}
	}
	return nil
}

// WithMount runs fn with the share available on the target. A share that was
// already mounted before the call is left mounted afterwards; one mounted
// here is unmounted again even when fn fails.
func (m *Manager) WithMount(ctx context.Context, fn func() error) error {
	wasMounted, err := m.Mounted()
	if err != nil {
		return err
	}
	if wasMounted {
		m.logger.Skip("Share already mounted on %s", m.Target)
	} else {
		if err := m.Mount(ctx); err != nil {
			return err
		}
		defer func() {
			// The run context may already be canceled (signal). The
			// share still has to come off.
			if err := m.Unmount(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warning("Failed to unmount %s: %v", m.Target, err)
			}
		}()
	}
	return fn()
}

// unescapeMountPath decodes the octal escapes the kernel uses for spaces and
// other special characters in mount table paths.
func unescapeMountPath(path string) string {
	if !strings.Contains(path, `\`) {
		return path
	}
	var out strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] == '\\' && i+3 < len(path) {
			var c byte
			valid := true
			for j := 1; j <= 3; j++ {
				d := path[i+j]
				if d < '0' || d > '7' {
					valid = false
					break
				}
				c = c<<3 | (d - '0')
			}
			if valid {
				out.WriteByte(c)
				i += 3
				continue
			}
		}
		out.WriteByte(path[i])
	}
	return out.String()
}
