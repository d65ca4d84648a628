package orchestrator

import (
	"context"
	"fmt"
	"os"

	"filippo.io/age"

	"github.com/gatewaykit/z2m-provision/internal/archive"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

// RunBackupJob archives the data directory onto the share and prunes
// expired archives. This is what the scheduled crontab entry runs. The
// service is stopped while the archive is taken so the device database is
// quiescent, and started again afterwards no matter how the job ends.
func (o *Orchestrator) RunBackupJob(ctx context.Context) (*types.ArchiveMetadata, error) {
	dataDir := o.dataDir()
	if _, err := os.Stat(dataDir); err != nil {
		return nil, &StageError{
			Stage: types.StageBackup,
			Err:   fmt.Errorf("data directory %s not usable: %w", dataDir, err),
			Code:  types.ExitArchiveError,
		}
	}

	if o.cfg.DryRun {
		o.logger.Info("DRY RUN: would archive %s into %s and prune archives older than %d days",
			dataDir, o.cfg.ArchiveDir(), o.cfg.RetentionDays)
		return nil, nil
	}

	var recipients []age.Recipient
	if o.cfg.EncryptArchive {
		var err error
		recipients, err = archive.LoadRecipients(o.cfg.AgeRecipientsFile)
		if err != nil {
			return nil, archiveStageError(types.StageBackup, err)
		}
	}

	var created *types.ArchiveMetadata
	err := o.mounts.WithMount(ctx, func() error {
		if err := os.MkdirAll(o.cfg.ArchiveDir(), 0o755); err != nil {
			return fmt.Errorf("create archive directory: %w", err)
		}

		started := false
		startService := func() {
			if started {
				return
			}
			started = true
			if err := o.svc.Start(ctx); err != nil {
				o.logger.Error("Failed to start service after backup: %v", err)
			}
		}

		if err := o.svc.Stop(ctx); err != nil {
			return err
		}
		defer startService()

		store := archive.NewStore(o.cfg.ArchiveDir(), o.cfg.ArchivePrefix, o.logger)
		meta, err := store.Create(ctx, dataDir, archive.CreateOptions{
			Recipients: recipients,
			Now:        o.now(),
		})
		if err != nil {
			return err
		}
		created = meta

		// Downtime covers archive creation only; pruning runs with the
		// service back up.
		startService()

		deleted, err := store.Prune(o.cfg.RetentionDays, o.now())
		if err != nil {
			// The new archive is already safe on the share.
			o.logger.Warning("Retention pruning failed: %v", err)
			return nil
		}
		if len(deleted) > 0 {
			o.logger.Info("Pruned %d expired archive(s)", len(deleted))
		}
		return nil
	})
	if err != nil {
		return created, archiveStageError(types.StageBackup, err)
	}
	return created, nil
}
