package archive

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"

	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

// CreateOptions controls archive creation.
type CreateOptions struct {
	// Recipients enables age encryption when non-empty.
	Recipients []age.Recipient
	// Now stamps the archive name, defaulting to time.Now.
	Now time.Time
}

// Create archives the contents of srcDir into a new file in the store's
// directory and writes the checksum sidecar. Entries are stored relative to
// srcDir so a restore into any directory reproduces the tree.
func (s *Store) Create(ctx context.Context, srcDir string, opts CreateOptions) (*types.ArchiveMetadata, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	encrypted := len(opts.Recipients) > 0
	name := BuildArchiveName(s.Prefix, now, encrypted)
	path := filepath.Join(s.Dir, name)

	s.logger.Info("Creating archive %s from %s", name, srcDir)
	if err := writeArchiveFile(ctx, path, srcDir, opts.Recipients, s.logger); err != nil {
		os.Remove(path)
		return nil, err
	}

	sum, err := GenerateChecksum(s.logger, path)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat new archive: %w", err)
	}
	return &types.ArchiveMetadata{
		Path:      path,
		Name:      name,
		Timestamp: now.Truncate(time.Second),
		ModTime:   info.ModTime(),
		Size:      info.Size(),
		Checksum:  sum,
		Encrypted: encrypted,
	}, nil
}

func writeArchiveFile(ctx context.Context, path, srcDir string, recipients []age.Recipient, logger *logging.Logger) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer file.Close()

	buffered := bufio.NewWriter(file)

	var sink io.Writer = buffered
	var encWriter io.WriteCloser
	if len(recipients) > 0 {
		encWriter, err = age.Encrypt(buffered, recipients...)
		if err != nil {
			return fmt.Errorf("start age encryption: %w", err)
		}
		sink = encWriter
	}

	gzWriter := gzip.NewWriter(sink)
	tarWriter := tar.NewWriter(gzWriter)

	count := 0
	walkErr := filepath.WalkDir(srcDir, func(entryPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(srcDir, entryPath)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if err := addTarEntry(tarWriter, entryPath, rel, entry); err != nil {
			return err
		}
		count++
		if count%100 == 0 {
			logger.Debug("Archived %d entries...", count)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("archive %s: %w", srcDir, walkErr)
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("finish tar stream: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("finish gzip stream: %w", err)
	}
	if encWriter != nil {
		if err := encWriter.Close(); err != nil {
			return fmt.Errorf("finish age encryption: %w", err)
		}
	}
	if err := buffered.Flush(); err != nil {
		return fmt.Errorf("flush archive file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}
	logger.Info("Archived %d entries", count)
	return nil
}

func addTarEntry(tarWriter *tar.Writer, entryPath, rel string, entry fs.DirEntry) error {
	info, err := entry.Info()
	if err != nil {
		return err
	}

	var linkTarget string
	if info.Mode()&fs.ModeSymlink != 0 {
		linkTarget, err = os.Readlink(entryPath)
		if err != nil {
			return fmt.Errorf("read symlink %s: %w", rel, err)
		}
	}

	header, err := tar.FileInfoHeader(info, linkTarget)
	if err != nil {
		return fmt.Errorf("build tar header for %s: %w", rel, err)
	}
	header.Name = filepath.ToSlash(rel)
	if info.IsDir() && !strings.HasSuffix(header.Name, "/") {
		header.Name += "/"
	}
	header.Format = tar.FormatPAX

	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(entryPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer file.Close()
	if _, err := io.Copy(tarWriter, file); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// LoadRecipients parses an age recipients file, one recipient per line.
func LoadRecipients(path string) ([]age.Recipient, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipients file: %w", err)
	}
	defer file.Close()

	var recipients []age.Recipient
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		recipient, err := age.ParseX25519Recipient(line)
		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", line, err)
		}
		recipients = append(recipients, recipient)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read recipients file: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("recipients file %s has no recipients", path)
	}
	return recipients, nil
}

// LoadIdentities parses an age identities file.
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer file.Close()
	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}
	return identities, nil
}
