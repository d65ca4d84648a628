// Package deploy manages the gateway application source tree. The upstream
// repository is authoritative: updates discard any local modification.
package deploy

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/gatewaykit/z2m-provision/internal/command"
	"github.com/gatewaykit/z2m-provision/internal/config"
	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// Deployer installs and updates the application under the install path.
type Deployer struct {
	cfg    *config.Config
	logger *logging.Logger
	runner command.Runner

	// lookupUser resolves the service account, swapped in tests.
	lookupUser func(string) (uid, gid int, err error)
}

// NewDeployer returns a Deployer bound to the given configuration and runner.
func NewDeployer(cfg *config.Config, logger *logging.Logger, runner command.Runner) *Deployer {
	return &Deployer{
		cfg:        cfg,
		logger:     logger,
		runner:     runner,
		lookupUser: lookupSystemUser,
	}
}

// Run performs the full deploy stage.
func (d *Deployer) Run(ctx context.Context) error {
	if err := d.EnsureSource(ctx); err != nil {
		return err
	}
	if err := d.SetOwnership(); err != nil {
		return err
	}
	return d.InstallDependencies(ctx)
}

// EnsureSource clones the upstream repository on first run. On later runs it
// fetches and hard-resets to the upstream branch, dropping local changes and
// untracked files. Data under the data directory is restored separately and
// not part of the repository.
func (d *Deployer) EnsureSource(ctx context.Context) error {
	target := d.cfg.InstallPath
	gitDir := filepath.Join(target, ".git")
	if _, err := os.Stat(gitDir); err != nil {
		d.logger.Info("Cloning %s into %s", d.cfg.UpstreamRepo, target)
		if d.cfg.DryRun {
			d.logger.Info("DRY RUN: mkdir -p %s", filepath.Dir(target))
		} else if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create parent of install path: %w", err)
		}
		err := d.runner.Run(ctx, "git", "clone",
			"--depth", "1",
			"--branch", d.cfg.UpstreamBranch,
			d.cfg.UpstreamRepo, target)
		if err != nil {
			return fmt.Errorf("clone upstream repository: %w", err)
		}
		return nil
	}

	d.logger.Info("Updating %s from upstream branch %s", target, d.cfg.UpstreamBranch)
	if err := d.runner.Run(ctx, "git", "-C", target, "fetch", "origin", d.cfg.UpstreamBranch); err != nil {
		return fmt.Errorf("fetch upstream: %w", err)
	}
	if err := d.runner.Run(ctx, "git", "-C", target, "reset", "--hard", "origin/"+d.cfg.UpstreamBranch); err != nil {
		return fmt.Errorf("reset to upstream branch: %w", err)
	}
	if err := d.runner.Run(ctx, "git", "-C", target, "clean", "-fd"); err != nil {
		return fmt.Errorf("remove untracked files: %w", err)
	}
	return nil
}

// SetOwnership hands the whole install tree to the service account.
func (d *Deployer) SetOwnership() error {
	uid, gid, err := d.lookupUser(d.cfg.ServiceUser)
	if err != nil {
		return fmt.Errorf("resolve service account %s: %w", d.cfg.ServiceUser, err)
	}
	if d.cfg.DryRun {
		d.logger.Info("DRY RUN: chown -R %d:%d %s", uid, gid, d.cfg.InstallPath)
		return nil
	}
	d.logger.Debug("Setting ownership of %s to %d:%d", d.cfg.InstallPath, uid, gid)
	err = filepath.WalkDir(d.cfg.InstallPath, func(path string, _ os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		return os.Lchown(path, uid, gid)
	})
	if err != nil {
		return fmt.Errorf("set ownership of install path: %w", err)
	}
	return nil
}

// InstallDependencies runs npm in the install path as the service account so
// the dependency tree never ends up owned by root.
func (d *Deployer) InstallDependencies(ctx context.Context) error {
	if _, _, err := d.lookupUser(d.cfg.ServiceUser); err != nil {
		return fmt.Errorf("resolve service account %s: %w", d.cfg.ServiceUser, err)
	}
	d.logger.Info("Installing application dependencies in %s", d.cfg.InstallPath)
	script := fmt.Sprintf("cd %s && npm ci --no-audit --no-fund", d.cfg.InstallPath)
	err := d.runner.Run(ctx, "runuser",
		"-u", d.cfg.ServiceUser,
		"--", "bash", "-c", script)
	if err != nil {
		return fmt.Errorf("install dependencies as %s: %w", d.cfg.ServiceUser, err)
	}
	return nil
}

func lookupSystemUser(name string) (int, int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("parse gid %q: %w", u.Gid, err)
	}
	return uid, gid, nil
}
