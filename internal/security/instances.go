// Package security guards against concurrent provisioning runs. Two runs at
// once would race on the crontab, the mount and the data directory.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InstanceGuard scans the process table for other instances of this binary.
type InstanceGuard struct {
	// ProcessName is the comm name to look for.
	ProcessName string
	// ProcRoot is /proc, swapped in tests.
	ProcRoot string
	// SelfPID is excluded from the scan.
	SelfPID int
}

// NewInstanceGuard returns a guard for the current process.
func NewInstanceGuard(processName string) *InstanceGuard {
	return &InstanceGuard{
		ProcessName: processName,
		ProcRoot:    "/proc",
		SelfPID:     os.Getpid(),
	}
}

// Check returns an error naming the first other running instance found.
func (g *InstanceGuard) Check() error {
	pids, err := g.runningInstances()
	if err != nil {
		return err
	}
	if len(pids) > 0 {
		return fmt.Errorf("another %s instance is already running (pid %d)", g.ProcessName, pids[0])
	}
	return nil
}

// runningInstances lists other processes whose comm matches. Comm names are
// truncated by the kernel at 15 characters, so the comparison accounts for
// that.
func (g *InstanceGuard) runningInstances() ([]int, error) {
	entries, err := os.ReadDir(g.ProcRoot)
	if err != nil {
		return nil, fmt.Errorf("read process table: %w", err)
	}

	wantComm := g.ProcessName
	if len(wantComm) > 15 {
		wantComm = wantComm[:15]
	}

	var pids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == g.SelfPID {
			continue
		}
		data, err := os.ReadFile(filepath.Join(g.ProcRoot, entry.Name(), "comm"))
		if err != nil {
			// Raced with process exit, or not readable. Not ours to report.
			continue
		}
		if strings.TrimSpace(string(data)) == wantComm {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}
