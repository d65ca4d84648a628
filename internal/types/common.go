package types

import "time"

// RuntimeKind identifies the managed runtime the gateway application runs on.
type RuntimeKind string

const (
	// RuntimeNode - Node.js runtime (NodeSource packages)
	RuntimeNode RuntimeKind = "node"

	// RuntimeUnknown - runtime not detected
	RuntimeUnknown RuntimeKind = "unknown"
)

// String returns the string representation of the runtime kind.
func (r RuntimeKind) String() string {
	return string(r)
}

// Stage identifies one of the sequential provisioning stages.
type Stage string

const (
	// StageEnvironment - packages, runtime, service account
	StageEnvironment Stage = "environment"

	// StageDeploy - source tree and dependency installation
	StageDeploy Stage = "deploy"

	// StageRestore - data directory restore from the share
	StageRestore Stage = "restore"

	// StageService - unit file, service start, cron registration
	StageService Stage = "service"

	// StageBackup - recurring backup job run
	StageBackup Stage = "backup"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// ArchiveMetadata describes one backup archive on the share.
type ArchiveMetadata struct {
	// Path is the full path to the archive file
	Path string

	// Name is the archive base name
	Name string

	// Timestamp is the moment embedded in the archive name
	Timestamp time.Time

	// ModTime is the filesystem modification time of the archive
	ModTime time.Time

	// Size is the file size in bytes
	Size int64

	// Checksum is the SHA256 checksum, when a sidecar is present
	Checksum string

	// Encrypted reports whether the archive carries the .age suffix
	Encrypted bool
}

// LogLevel represents the logging verbosity.
type LogLevel int

const (
	// LogLevelDebug - maximum detail
	LogLevelDebug LogLevel = 5

	// LogLevelInfo - general information
	LogLevelInfo LogLevel = 4

	// LogLevelWarning - warnings
	LogLevelWarning LogLevel = 3

	// LogLevelError - errors
	LogLevelError LogLevel = 2

	// LogLevelCritical - critical errors
	LogLevelCritical LogLevel = 1

	// LogLevelNone - no logging
	LogLevelNone LogLevel = 0
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	case LogLevelCritical:
		return "CRITICAL"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}
