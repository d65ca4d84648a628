package archive

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gatewaykit/z2m-provision/internal/logging"
)

// GenerateChecksum computes the SHA256 of a file and writes it to the
// .sha256 sidecar in the usual "<hash>  <name>" format.
func GenerateChecksum(logger *logging.Logger, path string) (string, error) {
	sum, err := hashFile(path)
	if err != nil {
		return "", err
	}
	sidecar := ChecksumPath(path)
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(path))
	if err := os.WriteFile(sidecar, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("write checksum sidecar: %w", err)
	}
	logger.Debug("Wrote checksum sidecar %s", sidecar)
	return sum, nil
}

// VerifyChecksum recomputes the SHA256 of a file and compares it with the
// expected value.
func VerifyChecksum(logger *logging.Logger, path, expected string) (bool, error) {
	sum, err := hashFile(path)
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(sum, strings.TrimSpace(expected)) {
		logger.Debug("Checksum mismatch for %s: got %s, want %s", path, sum, expected)
		return false, nil
	}
	return true, nil
}

// VerifySidecar checks an archive against its .sha256 sidecar. A missing
// sidecar returns os.ErrNotExist so the caller can decide whether that is
// fatal.
func VerifySidecar(logger *logging.Logger, archivePath string) (bool, error) {
	data, err := os.ReadFile(ChecksumPath(archivePath))
	if err != nil {
		return false, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return false, fmt.Errorf("checksum sidecar %s is empty", ChecksumPath(archivePath))
	}
	return VerifyChecksum(logger, archivePath, fields[0])
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for checksum: %w", err)
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
