package types

// ExitCode represents the process exit codes of the application.
type ExitCode int

const (
	// ExitSuccess - run completed successfully
	ExitSuccess ExitCode = 0

	// ExitGenericError - unspecified error
	ExitGenericError ExitCode = 1

	// ExitConfigError - configuration missing or invalid
	ExitConfigError ExitCode = 2

	// ExitEnvironmentError - package, runtime or service account preparation failed
	ExitEnvironmentError ExitCode = 3

	// ExitDeployError - source tree update or dependency installation failed
	ExitDeployError ExitCode = 4

	// ExitMountError - share mount or unmount failed
	ExitMountError ExitCode = 5

	// ExitNoArchiveError - no backup archive found on the share during restore
	ExitNoArchiveError ExitCode = 6

	// ExitArchiveError - archive creation, verification or extraction failed
	ExitArchiveError ExitCode = 7

	// ExitServiceError - unit installation or service control failed
	ExitServiceError ExitCode = 8

	// ExitScheduleError - crontab registration failed
	ExitScheduleError ExitCode = 9

	// ExitPermissionError - insufficient privileges
	ExitPermissionError ExitCode = 10

	// ExitPanicError - unhandled panic intercepted
	ExitPanicError ExitCode = 11

	// ExitSecurityError - another instance already running
	ExitSecurityError ExitCode = 12
)

// String returns a textual description of the exit code.
func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitGenericError:
		return "generic error"
	case ExitConfigError:
		return "configuration error"
	case ExitEnvironmentError:
		return "environment error"
	case ExitDeployError:
		return "deploy error"
	case ExitMountError:
		return "mount error"
	case ExitNoArchiveError:
		return "no archive found"
	case ExitArchiveError:
		return "archive error"
	case ExitServiceError:
		return "service error"
	case ExitScheduleError:
		return "schedule error"
	case ExitPermissionError:
		return "permission error"
	case ExitPanicError:
		return "panic error"
	case ExitSecurityError:
		return "security error"
	default:
		return "unknown error"
	}
}

// Int returns the exit code as an integer.
func (e ExitCode) Int() int {
	return int(e)
}
