// Package archive creates, lists, restores and prunes the backup archives of
// the gateway data directory. Archives are named
// <prefix>-YYYYMMDD-HHMMSS.tar.gz, with an .age suffix when encrypted, and
// carry a .sha256 sidecar.
package archive

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the creation time embedded in every archive name.
const TimestampLayout = "20060102-150405"

const (
	plainSuffix     = ".tar.gz"
	encryptedSuffix = ".tar.gz.age"
	checksumSuffix  = ".sha256"
)

// BuildArchiveName returns the file name for an archive created at ts.
func BuildArchiveName(prefix string, ts time.Time, encrypted bool) string {
	name := fmt.Sprintf("%s-%s%s", prefix, ts.Format(TimestampLayout), plainSuffix)
	if encrypted {
		name += ".age"
	}
	return name
}

// ParseArchiveName extracts the embedded creation time from an archive file
// name. It returns the time, whether the archive is encrypted, and an error
// for names that do not belong to the given prefix.
func ParseArchiveName(prefix, name string) (time.Time, bool, error) {
	encrypted := false
	rest := name
	switch {
	case strings.HasSuffix(rest, encryptedSuffix):
		encrypted = true
		rest = strings.TrimSuffix(rest, encryptedSuffix)
	case strings.HasSuffix(rest, plainSuffix):
		rest = strings.TrimSuffix(rest, plainSuffix)
	default:
		return time.Time{}, false, fmt.Errorf("unrecognized archive suffix: %s", name)
	}

	want := prefix + "-"
	if !strings.HasPrefix(rest, want) {
		return time.Time{}, false, fmt.Errorf("archive %s does not match prefix %s", name, prefix)
	}
	stamp := strings.TrimPrefix(rest, want)
	ts, err := time.ParseInLocation(TimestampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("archive %s has no valid timestamp: %w", name, err)
	}
	return ts, encrypted, nil
}

// ChecksumPath returns the sidecar path for an archive.
func ChecksumPath(archivePath string) string {
	return archivePath + checksumSuffix
}
