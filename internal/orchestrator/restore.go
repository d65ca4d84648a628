package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"filippo.io/age"

	"github.com/gatewaykit/z2m-provision/internal/archive"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

// RunRestore restores the newest archive from the share into the data
// directory. The share is mounted only for the duration of the restore. The
// previous data directory content is discarded first, so a failed restore
// leaves an empty data directory, never a half-merged one.
func (o *Orchestrator) RunRestore(ctx context.Context) error {
	uid, gid, err := o.lookupUser(o.cfg.ServiceUser)
	if err != nil {
		return fmt.Errorf("resolve service account %s: %w", o.cfg.ServiceUser, err)
	}

	if o.cfg.DryRun {
		o.logger.Info("DRY RUN: would restore newest %s archive from %s into %s",
			o.cfg.ArchivePrefix, o.cfg.ArchiveDir(), o.dataDir())
		return nil
	}

	return o.mounts.WithMount(ctx, func() error {
		store := archive.NewStore(o.cfg.ArchiveDir(), o.cfg.ArchivePrefix, o.logger)
		latest, err := store.Latest()
		if err != nil {
			if errors.Is(err, archive.ErrNoArchives) {
				return &StageError{
					Stage: types.StageRestore,
					Err:   err,
					Code:  types.ExitNoArchiveError,
				}
			}
			return err
		}
		o.logger.Info("Selected archive %s (created %s, %d bytes)",
			latest.Name, latest.Timestamp.Format("2006-01-02 15:04:05"), latest.Size)

		var identities []age.Identity
		if latest.Encrypted {
			identities, err = archive.LoadIdentities(o.cfg.AgeIdentityFile)
			if err != nil {
				return err
			}
		}

		dataDir := o.dataDir()
		if err := recreateEmptyDir(dataDir, uid, gid); err != nil {
			return err
		}

		err = archive.Extract(ctx, o.logger, latest.Path, dataDir, archive.ExtractOptions{
			Identities: identities,
			OwnerUID:   uid,
			OwnerGID:   gid,
		})
		if err != nil {
			return err
		}

		o.patchDevicePath(dataDir)
		return nil
	})
}

// patchDevicePath points the restored configuration at this host's adapter
// device. The backup may come from a host with a different device path.
// Failure only warns; the operator can fix the configuration by hand.
func (o *Orchestrator) patchDevicePath(dataDir string) {
	device := o.cfg.DevicePath
	if device == "" {
		return
	}
	configPath := filepath.Join(dataDir, "configuration.yaml")
	changed, err := PatchDevicePath(configPath, device)
	if err != nil {
		o.logger.Warning("Could not patch device path in %s: %v", configPath, err)
		return
	}
	if changed {
		o.logger.Info("Patched serial port to %s in restored configuration", device)
	}
}

// recreateEmptyDir replaces a directory with a fresh empty one owned by the
// given ids.
func recreateEmptyDir(dir string, uid, gid int) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	if err := os.Chown(dir, uid, gid); err != nil {
		return fmt.Errorf("chown directory %s: %w", dir, err)
	}
	return nil
}
