package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gatewaykit/z2m-provision/internal/command"
	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// Manager drives systemctl for one service.
type Manager struct {
	Name string

	logger *logging.Logger
	runner command.Runner
}

// NewManager returns a Manager for the named service.
func NewManager(name string, logger *logging.Logger, runner command.Runner) *Manager {
	return &Manager{Name: name, logger: logger, runner: runner}
}

func (m *Manager) DaemonReload(ctx context.Context) error {
	if err := m.runner.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("reload systemd units: %w", err)
	}
	return nil
}

func (m *Manager) Enable(ctx context.Context) error {
	if err := m.runner.Run(ctx, "systemctl", "enable", m.Name); err != nil {
		return fmt.Errorf("enable service %s: %w", m.Name, err)
	}
	return nil
}

func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("Starting service %s", m.Name)
	if err := m.runner.Run(ctx, "systemctl", "start", m.Name); err != nil {
		return fmt.Errorf("start service %s: %w", m.Name, err)
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context) error {
	m.logger.Info("Stopping service %s", m.Name)
	if err := m.runner.Run(ctx, "systemctl", "stop", m.Name); err != nil {
		return fmt.Errorf("stop service %s: %w", m.Name, err)
	}
	return nil
}

func (m *Manager) Restart(ctx context.Context) error {
	m.logger.Info("Restarting service %s", m.Name)
	if err := m.runner.Run(ctx, "systemctl", "restart", m.Name); err != nil {
		return fmt.Errorf("restart service %s: %w", m.Name, err)
	}
	return nil
}

// IsActive reports whether the service is currently running.
func (m *Manager) IsActive(ctx context.Context) bool {
	out, err := m.runner.Output(ctx, "systemctl", "is-active", m.Name)
	return err == nil && strings.TrimSpace(out) == "active"
}
