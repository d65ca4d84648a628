// Package environment prepares the host for the gateway application. It
// installs the required system packages, the Node.js runtime and the
// dedicated service account.
package environment

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gatewaykit/z2m-provision/internal/command"
	"github.com/gatewaykit/z2m-provision/internal/config"
	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

// basePackages are installed unconditionally. cifs-utils is needed for the
// backup share, the rest for fetching and building the application.
var basePackages = []string{
	"git",
	"curl",
	"ca-certificates",
	"cifs-utils",
	"build-essential",
	"make",
	"g++",
	"gcc",
}

// Prep runs the host preparation steps.
type Prep struct {
	cfg    *config.Config
	logger *logging.Logger
	runner command.Runner

	// lookPath reports whether a binary is on PATH, swapped in tests.
	lookPath func(string) bool
	// osReleasePath is the file consulted by Detect, swapped in tests.
	osReleasePath string
}

// NewPrep returns a Prep bound to the given configuration and runner.
func NewPrep(cfg *config.Config, logger *logging.Logger, runner command.Runner) *Prep {
	return &Prep{
		cfg:           cfg,
		logger:        logger,
		runner:        runner,
		lookPath:      command.Exists,
		osReleasePath: "/etc/os-release",
	}
}

// Run performs all environment steps in order.
func (p *Prep) Run(ctx context.Context) error {
	if err := p.EnsurePackages(ctx); err != nil {
		return err
	}
	if err := p.EnsureRuntime(ctx); err != nil {
		return err
	}
	if err := p.EnsureServiceAccount(ctx); err != nil {
		return err
	}
	p.SetTimezone(ctx)
	return nil
}

// EnsurePackages installs the base package set. apt treats already-installed
// packages as a no-op, so this is safe to repeat.
func (p *Prep) EnsurePackages(ctx context.Context) error {
	p.logger.Info("Updating package index")
	if err := p.runner.Run(ctx, "apt-get", "update"); err != nil {
		return fmt.Errorf("update package index: %w", err)
	}
	p.logger.Info("Installing base packages: %s", strings.Join(basePackages, " "))
	args := append([]string{"install", "-y"}, basePackages...)
	if err := p.runner.Run(ctx, "apt-get", args...); err != nil {
		return fmt.Errorf("install base packages: %w", err)
	}
	return nil
}

// EnsureRuntime installs Node.js from the NodeSource repository unless a
// node binary is already on PATH.
func (p *Prep) EnsureRuntime(ctx context.Context) error {
	if p.lookPath("node") {
		p.logger.Skip("Node.js runtime already installed")
		return nil
	}
	p.logger.Info("Installing Node.js runtime from %s", p.cfg.NodeSetupURL)
	setup := fmt.Sprintf("curl -fsSL %s | bash -", p.cfg.NodeSetupURL)
	if err := p.runner.Run(ctx, "bash", "-c", setup); err != nil {
		return fmt.Errorf("run NodeSource setup script: %w", err)
	}
	if err := p.runner.Run(ctx, "apt-get", "install", "-y", "nodejs"); err != nil {
		return fmt.Errorf("install nodejs package: %w", err)
	}
	return nil
}

// EnsureServiceAccount creates the system account the service runs as. An
// existing account of the same name is reused.
func (p *Prep) EnsureServiceAccount(ctx context.Context) error {
	user := p.cfg.ServiceUser
	if _, err := p.runner.Output(ctx, "id", "-u", user); err == nil {
		p.logger.Skip("Service account %s already exists", user)
		return nil
	}
	p.logger.Info("Creating service account %s", user)
	err := p.runner.Run(ctx, "useradd",
		"--system",
		"--shell", "/usr/sbin/nologin",
		"--home-dir", p.cfg.InstallPath,
		"--no-create-home",
		user,
	)
	if err != nil {
		return fmt.Errorf("create service account %s: %w", user, err)
	}
	return nil
}

// SetTimezone applies the configured timezone. Failures are logged but do
// not abort provisioning since the service does not depend on local time.
func (p *Prep) SetTimezone(ctx context.Context) {
	tz := strings.TrimSpace(p.cfg.Timezone)
	if tz == "" {
		return
	}
	p.logger.Info("Setting timezone to %s", tz)
	if err := p.runner.Run(ctx, "timedatectl", "set-timezone", tz); err != nil {
		p.logger.Warning("Failed to set timezone %s: %v", tz, err)
	}
}

// Detect reads the distribution identifier from os-release. The package
// setup only supports apt-based distributions.
func (p *Prep) Detect() (string, error) {
	data, err := os.ReadFile(p.osReleasePath)
	if err != nil {
		return "", fmt.Errorf("read os-release: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "ID=") {
			return strings.Trim(strings.TrimPrefix(line, "ID="), `"`), nil
		}
	}
	return "", fmt.Errorf("os-release has no ID field")
}

// DetectRuntime reports which managed runtime is available on the host.
func (p *Prep) DetectRuntime() types.RuntimeKind {
	if p.lookPath("node") {
		return types.RuntimeNode
	}
	return types.RuntimeUnknown
}
