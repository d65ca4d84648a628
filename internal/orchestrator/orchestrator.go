// Package orchestrator sequences the provisioning stages and the recurring
// backup job.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gatewaykit/z2m-provision/internal/config"
	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/mount"
	"github.com/gatewaykit/z2m-provision/internal/schedule"
	"github.com/gatewaykit/z2m-provision/internal/service"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

// StageError carries the failing stage and the process exit code for it.
type StageError struct {
	Stage types.Stage
	Err   error
	Code  types.ExitCode
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// stageFailed wraps an error unless it already is a StageError.
func stageFailed(stage types.Stage, code types.ExitCode, err error) error {
	if err == nil {
		return nil
	}
	if se, ok := err.(*StageError); ok {
		return se
	}
	return &StageError{Stage: stage, Err: err, Code: code}
}

// archiveStageError classifies a restore or backup failure: mount tooling
// failures and permission problems get their dedicated exit codes,
// everything else is an archive error.
func archiveStageError(stage types.Stage, err error) error {
	if err == nil {
		return nil
	}
	var mountErr *mount.Error
	switch {
	case errors.As(err, &mountErr):
		return stageFailed(stage, types.ExitMountError, err)
	case errors.Is(err, fs.ErrPermission):
		return stageFailed(stage, types.ExitPermissionError, err)
	}
	return stageFailed(stage, types.ExitArchiveError, err)
}

// StageRunner is one provisioning stage.
type StageRunner interface {
	Run(ctx context.Context) error
}

// Orchestrator wires the stages together.
type Orchestrator struct {
	cfg    *config.Config
	logger *logging.Logger

	env     StageRunner
	deploy  StageRunner
	mounts  *mount.Manager
	svc     *service.Manager
	crontab *schedule.Crontab

	// CronCommand is the command line the scheduled backup entry runs.
	CronCommand string
	// LegacyCronFragments are command fragments of retired backup entries.
	LegacyCronFragments []string

	// unitPath is where the service unit is written, swapped in tests.
	unitPath string
	// lookupUser resolves the service account, swapped in tests.
	lookupUser func(string) (uid, gid int, err error)
	// now stamps archives, swapped in tests.
	now func() time.Time
}

// New returns an Orchestrator over the given stage implementations.
func New(cfg *config.Config, logger *logging.Logger, env, deploy StageRunner,
	mounts *mount.Manager, svc *service.Manager, crontab *schedule.Crontab) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		env:        env,
		deploy:     deploy,
		mounts:     mounts,
		svc:        svc,
		crontab:    crontab,
		unitPath:   service.UnitPath(cfg.ServiceName),
		lookupUser: lookupSystemUser,
		now:        time.Now,
	}
}

// RunProvision executes the full provisioning sequence. Stages run in a
// fixed order and the first failure stops the run.
func (o *Orchestrator) RunProvision(ctx context.Context) error {
	o.logger.Phase("Preparing host environment")
	if err := o.env.Run(ctx); err != nil {
		return stageFailed(types.StageEnvironment, types.ExitEnvironmentError, err)
	}

	o.logger.Phase("Deploying application source")
	if err := o.deploy.Run(ctx); err != nil {
		return stageFailed(types.StageDeploy, types.ExitDeployError, err)
	}

	o.logger.Phase("Restoring data from backup share")
	if err := o.RunRestore(ctx); err != nil {
		return archiveStageError(types.StageRestore, err)
	}

	o.logger.Phase("Installing service and backup schedule")
	if err := o.RunServiceStage(ctx); err != nil {
		return stageFailed(types.StageService, types.ExitServiceError, err)
	}
	return nil
}

// RunServiceStage writes the unit file, enables and starts the service, and
// registers the recurring backup job.
func (o *Orchestrator) RunServiceStage(ctx context.Context) error {
	unitCfg := service.UnitConfig{
		Name:             o.cfg.ServiceName,
		Description:      fmt.Sprintf("%s gateway", o.cfg.ServiceName),
		User:             o.cfg.ServiceUser,
		WorkingDirectory: o.cfg.InstallPath,
		ExecStart:        "/usr/bin/node index.js",
		MemoryMax:        o.cfg.MemoryMax,
		RestartSec:       o.cfg.RestartSec,
		WatchdogSec:      o.cfg.WatchdogSec,
	}

	if o.cfg.DryRun {
		o.logger.Info("DRY RUN: would write unit file %s", o.unitPath)
	} else {
		changed, err := service.WriteUnitFile(o.unitPath, unitCfg)
		if err != nil {
			return err
		}
		if changed {
			if err := o.svc.DaemonReload(ctx); err != nil {
				return err
			}
		} else {
			o.logger.Skip("Unit file %s unchanged", o.unitPath)
		}
	}

	if err := o.svc.Enable(ctx); err != nil {
		return err
	}
	if err := o.svc.Restart(ctx); err != nil {
		return err
	}

	err := o.crontab.EnsureBackupEntry(ctx, o.cfg.BackupSchedule,
		o.CronCommand, o.LegacyCronFragments...)
	if err != nil {
		return &StageError{Stage: types.StageService, Err: err, Code: types.ExitScheduleError}
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

// dataDir returns the configured data directory under the install path.
func (o *Orchestrator) dataDir() string {
	if o.cfg.DataDir != "" {
		return o.cfg.DataDir
	}
	return filepath.Join(o.cfg.InstallPath, "data")
}
