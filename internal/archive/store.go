package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

// ErrNoArchives is returned when the store holds no archive for the prefix.
var ErrNoArchives = fmt.Errorf("no archives found")

// modTimeSlack is how far the filesystem mtime may drift from the timestamp
// embedded in the name before the archive is flagged as suspicious. Network
// shares commonly lose sub-second precision, copies lose more.
const modTimeSlack = 24 * time.Hour

// Store lists and prunes the archives of one prefix in one directory.
type Store struct {
	Dir    string
	Prefix string

	logger *logging.Logger
}

// NewStore returns a Store over the given directory.
func NewStore(dir, prefix string, logger *logging.Logger) *Store {
	return &Store{Dir: dir, Prefix: prefix, logger: logger}
}

// List returns all archives of the prefix, newest first. Ordering follows
// the timestamp embedded in the name, not the filesystem mtime. Files that
// look similar but do not parse are skipped with a debug line.
func (s *Store) List() ([]*types.ArchiveMetadata, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read archive directory %s: %w", s.Dir, err)
	}

	var archives []*types.ArchiveMetadata
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, checksumSuffix) {
			continue
		}
		ts, encrypted, err := ParseArchiveName(s.Prefix, name)
		if err != nil {
			if strings.HasPrefix(name, s.Prefix+"-") {
				s.logger.Debug("Ignoring unparseable archive name %s: %v", name, err)
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat archive %s: %w", name, err)
		}

		meta := &types.ArchiveMetadata{
			Path:      filepath.Join(s.Dir, name),
			Name:      name,
			Timestamp: ts,
			ModTime:   info.ModTime(),
			Size:      info.Size(),
			Encrypted: encrypted,
		}
		if drift := meta.ModTime.Sub(ts); drift > modTimeSlack || drift < -modTimeSlack {
			s.logger.Warning("Archive %s: name says %s but mtime is %s",
				name, ts.Format(time.RFC3339), meta.ModTime.Format(time.RFC3339))
		}
		archives = append(archives, meta)
	}

	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Timestamp.After(archives[j].Timestamp)
	})
	return archives, nil
}

// Latest returns the newest archive, or ErrNoArchives.
func (s *Store) Latest() (*types.ArchiveMetadata, error) {
	archives, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("%w for prefix %s in %s", ErrNoArchives, s.Prefix, s.Dir)
	}
	return archives[0], nil
}

// Prune deletes archives whose embedded timestamp is older than the
// retention window, together with their sidecars. It returns the deleted
// archives. The newest archive is always kept, even when expired, so a
// paused host never deletes its last backup.
func (s *Store) Prune(retentionDays int, now time.Time) ([]*types.ArchiveMetadata, error) {
	archives, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(archives) <= 1 {
		return nil, nil
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	var deleted []*types.ArchiveMetadata
	for _, meta := range archives[1:] {
		if !meta.Timestamp.Before(cutoff) {
			continue
		}
		s.logger.Info("Pruning expired archive %s (created %s)",
			meta.Name, meta.Timestamp.Format("2006-01-02 15:04:05"))
		if err := os.Remove(meta.Path); err != nil {
			return deleted, fmt.Errorf("delete archive %s: %w", meta.Name, err)
		}
		if err := os.Remove(ChecksumPath(meta.Path)); err != nil && !os.IsNotExist(err) {
			s.logger.Warning("Failed to delete checksum sidecar for %s: %v", meta.Name, err)
		}
		deleted = append(deleted, meta)
	}
	return deleted, nil
}
