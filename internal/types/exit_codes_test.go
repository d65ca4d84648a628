package types

import "testing"

func TestExitCodeString(t *testing.T) {
	tests := []struct {
		code     ExitCode
		expected string
	}{
		{ExitSuccess, "success"},
		{ExitGenericError, "generic error"},
		{ExitConfigError, "configuration error"},
		{ExitEnvironmentError, "environment error"},
		{ExitDeployError, "deploy error"},
		{ExitMountError, "mount error"},
		{ExitNoArchiveError, "no archive found"},
		{ExitArchiveError, "archive error"},
		{ExitServiceError, "service error"},
		{ExitScheduleError, "schedule error"},
		{ExitPermissionError, "permission error"},
		{ExitPanicError, "panic error"},
		{ExitSecurityError, "security error"},
		{ExitCode(99), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.code.String(); got != tt.expected {
				t.Errorf("ExitCode(%d).String() = %q; want %q", tt.code, got, tt.expected)
			}
		})
	}
}

func TestExitCodeInt(t *testing.T) {
	if ExitSuccess.Int() != 0 {
		t.Errorf("ExitSuccess.Int() = %d; want 0", ExitSuccess.Int())
	}
	if ExitNoArchiveError.Int() != 6 {
		t.Errorf("ExitNoArchiveError.Int() = %d; want 6", ExitNoArchiveError.Int())
	}
}

func TestExitCodesAreDistinct(t *testing.T) {
	codes := []ExitCode{
		ExitSuccess, ExitGenericError, ExitConfigError, ExitEnvironmentError,
		ExitDeployError, ExitMountError, ExitNoArchiveError, ExitArchiveError,
		ExitServiceError, ExitScheduleError, ExitPermissionError,
		ExitPanicError, ExitSecurityError,
	}
	seen := make(map[ExitCode]bool)
	for _, c := range codes {
		if seen[c] {
			t.Errorf("duplicate exit code %d", c)
		}
		seen[c] = true
	}
}
