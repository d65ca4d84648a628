package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"filippo.io/age"

	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// ExtractOptions controls archive extraction.
type ExtractOptions struct {
	// Identities decrypts .age archives. Required for encrypted archives.
	Identities []age.Identity
	// OwnerUID and OwnerGID force the ownership of every restored entry.
	// Both set to -1 keep the ids recorded in the archive.
	OwnerUID int
	OwnerGID int
}

// Extract restores an archive into destRoot. Entries escaping the
// destination are rejected. A checksum sidecar is verified when present; a
// missing sidecar is only logged since archives predating sidecars are
// still restorable.
func Extract(ctx context.Context, logger *logging.Logger, archivePath, destRoot string, opts ExtractOptions) error {
	ok, err := VerifySidecar(logger, archivePath)
	switch {
	case os.IsNotExist(err):
		logger.Warning("Archive %s has no checksum sidecar, skipping verification", filepath.Base(archivePath))
	case err != nil:
		return err
	case !ok:
		return fmt.Errorf("archive %s failed checksum verification", filepath.Base(archivePath))
	}

	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	var stream io.Reader = file
	if strings.HasSuffix(archivePath, ".age") {
		if len(opts.Identities) == 0 {
			return fmt.Errorf("archive %s is encrypted and no identity is configured", filepath.Base(archivePath))
		}
		stream, err = age.Decrypt(file, opts.Identities...)
		if err != nil {
			return fmt.Errorf("decrypt archive: %w", err)
		}
	}

	gzReader, err := gzip.NewReader(stream)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gzReader.Close()

	logger.Info("Extracting archive %s into %s", filepath.Base(archivePath), destRoot)
	tarReader := tar.NewReader(gzReader)
	extracted := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		if err := extractTarEntry(tarReader, header, destRoot, opts, logger); err != nil {
			return fmt.Errorf("extract %s: %w", header.Name, err)
		}
		extracted++
		if extracted%100 == 0 {
			logger.Debug("Extracted %d entries...", extracted)
		}
	}
	logger.Info("Extracted %d entries", extracted)
	return nil
}

func extractTarEntry(tarReader *tar.Reader, header *tar.Header, destRoot string, opts ExtractOptions, logger *logging.Logger) error {
	cleanDestRoot := filepath.Clean(destRoot)
	target := filepath.Clean(filepath.Join(cleanDestRoot, header.Name))

	safePrefix := cleanDestRoot
	if cleanDestRoot != string(os.PathSeparator) {
		safePrefix = cleanDestRoot + string(os.PathSeparator)
	}
	if !strings.HasPrefix(target, safePrefix) && target != cleanDestRoot {
		return fmt.Errorf("illegal path: %s", header.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	uid, gid := header.Uid, header.Gid
	if opts.OwnerUID >= 0 {
		uid = opts.OwnerUID
	}
	if opts.OwnerGID >= 0 {
		gid = opts.OwnerGID
	}

	switch header.Typeflag {
	case tar.TypeDir:
		return extractDirectory(target, header, uid, gid, logger)
	case tar.TypeReg:
		return extractRegularFile(tarReader, target, header, uid, gid, logger)
	case tar.TypeSymlink:
		return extractSymlink(target, header, uid, gid, logger)
	case tar.TypeLink:
		linkTarget := filepath.Clean(filepath.Join(cleanDestRoot, header.Linkname))
		if !strings.HasPrefix(linkTarget, safePrefix) {
			return fmt.Errorf("illegal hardlink target: %s", header.Linkname)
		}
		_ = os.Remove(target)
		if err := os.Link(linkTarget, target); err != nil {
			return fmt.Errorf("create hardlink: %w", err)
		}
		return nil
	default:
		logger.Debug("Skipping unsupported entry type %d: %s", header.Typeflag, header.Name)
		return nil
	}
}

func extractDirectory(target string, header *tar.Header, uid, gid int, logger *logging.Logger) error {
	if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.Chown(target, uid, gid); err != nil {
		logger.Debug("Failed to chown directory %s: %v", target, err)
	}
	if err := os.Chmod(target, os.FileMode(header.Mode)); err != nil {
		return fmt.Errorf("chmod directory: %w", err)
	}
	if err := setTimestamps(target, header); err != nil {
		logger.Debug("Failed to set timestamps on directory %s: %v", target, err)
	}
	return nil
}

func extractRegularFile(tarReader *tar.Reader, target string, header *tar.Header, uid, gid int, logger *logging.Logger) error {
	_ = os.Remove(target)

	outFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer outFile.Close()
	if _, err := io.Copy(outFile, tarReader); err != nil {
		return fmt.Errorf("write file content: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Chown(target, uid, gid); err != nil {
		logger.Debug("Failed to chown file %s: %v", target, err)
	}
	if err := os.Chmod(target, os.FileMode(header.Mode)); err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}
	if err := setTimestamps(target, header); err != nil {
		logger.Debug("Failed to set timestamps on file %s: %v", target, err)
	}
	return nil
}

func extractSymlink(target string, header *tar.Header, uid, gid int, logger *logging.Logger) error {
	_ = os.Remove(target)
	if err := os.Symlink(header.Linkname, target); err != nil {
		return fmt.Errorf("create symlink: %w", err)
	}
	if err := os.Lchown(target, uid, gid); err != nil {
		logger.Debug("Failed to lchown symlink %s: %v", target, err)
	}
	return nil
}

// setTimestamps restores atime and mtime with nanosecond precision.
func setTimestamps(target string, header *tar.Header) error {
	atime := header.AccessTime
	if atime.IsZero() {
		atime = header.ModTime
	}
	mtime := header.ModTime
	times := []syscall.Timespec{
		{Sec: atime.Unix(), Nsec: int64(atime.Nanosecond())},
		{Sec: mtime.Unix(), Nsec: int64(mtime.Nanosecond())},
	}
	if err := syscall.UtimesNano(target, times); err != nil {
		return fmt.Errorf("set atime/mtime: %w", err)
	}
	return nil
}
