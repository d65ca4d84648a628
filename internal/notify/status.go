// Package notify maps run outcomes to operator-facing status and delivers
// optional webhook notifications.
package notify

import "github.com/gatewaykit/z2m-provision/internal/types"

// Status is the coarse outcome of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// StatusFromExitCode maps an exit code to a status. A restore with no
// archive on the share is a warning, not an error: on a brand-new site
// there is nothing to restore yet.
func StatusFromExitCode(code int) Status {
	switch types.ExitCode(code) {
	case types.ExitSuccess:
		return StatusSuccess
	case types.ExitNoArchiveError:
		return StatusWarning
	default:
		return StatusError
	}
}

// GetStatusEmoji returns the symbol used in the final log line.
func GetStatusEmoji(status Status) string {
	switch status {
	case StatusSuccess:
		return "✅"
	case StatusWarning:
		return "⚠️"
	default:
		return "❌"
	}
}
