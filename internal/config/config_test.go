package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gatewaykit/z2m-provision/internal/types"
)

const validConfig = `# test config
SHARE_SOURCE=//nas.local/backups
SHARE_TYPE=cifs
MOUNT_POINT=/mnt/gateway-backup
INSTALL_PATH=/opt/zigbee2mqtt
SERVICE_USER=zigbee2mqtt
SERVICE_NAME=zigbee2mqtt
UPSTREAM_REPO=https://github.com/Koenkk/zigbee2mqtt.git
ARCHIVE_PREFIX=zigbee2mqtt
BACKUP_SCHEDULE=30 3 * * *
RETENTION_DAYS=14
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provision.env")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ShareSource != "//nas.local/backups" {
		t.Errorf("ShareSource = %q", cfg.ShareSource)
	}
	if cfg.RetentionDays != 14 {
		t.Errorf("RetentionDays = %d; want 14", cfg.RetentionDays)
	}
	if cfg.DebugLevel != types.LogLevelInfo {
		t.Errorf("DebugLevel = %v; want info default", cfg.DebugLevel)
	}
	if cfg.DataDir != "/opt/zigbee2mqtt/data" {
		t.Errorf("DataDir = %q; want install path default", cfg.DataDir)
	}
	if cfg.MemoryMax != "512M" {
		t.Errorf("MemoryMax = %q; want default 512M", cfg.MemoryMax)
	}
}

func TestLoadMissingRequiredKey(t *testing.T) {
	content := strings.Replace(validConfig, "SHARE_SOURCE=//nas.local/backups\n", "", 1)
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatalf("expected error for missing SHARE_SOURCE")
	}
	if !strings.Contains(err.Error(), "SHARE_SOURCE") {
		t.Errorf("error does not name the missing key: %v", err)
	}
}

func TestLoadRejectsBadRetention(t *testing.T) {
	content := strings.Replace(validConfig, "RETENTION_DAYS=14", "RETENTION_DAYS=0", 1)
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatalf("expected error for RETENTION_DAYS=0")
	}
}

func TestLoadRejectsRelativeMountPoint(t *testing.T) {
	content := strings.Replace(validConfig, "MOUNT_POINT=/mnt/gateway-backup", "MOUNT_POINT=mnt/backup", 1)
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatalf("expected error for relative MOUNT_POINT")
	}
}

func TestLoadRejectsPrefixWithSlash(t *testing.T) {
	content := strings.Replace(validConfig, "ARCHIVE_PREFIX=zigbee2mqtt", "ARCHIVE_PREFIX=zig/bee", 1)
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatalf("expected error for ARCHIVE_PREFIX containing a slash")
	}
}

func TestLoadEncryptionRequiresRecipients(t *testing.T) {
	content := validConfig + "ENCRYPT_ARCHIVE=true\nAGE_RECIPIENTS_FILE=\n"
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatalf("expected error for encryption without recipients file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestArchiveDir(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.ArchiveDir(); got != "/mnt/gateway-backup" {
		t.Errorf("ArchiveDir = %q; want mount point", got)
	}

	cfg, err = Load(writeConfig(t, validConfig+"SHARE_BACKUP_DIR=zigbee\n"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.ArchiveDir(); got != "/mnt/gateway-backup/zigbee" {
		t.Errorf("ArchiveDir = %q; want subdirectory joined", got)
	}
}

func TestParseKeyValues(t *testing.T) {
	raw := `# comment
KEY1=plain
KEY2="quoted value"
KEY3='single quoted'
KEY4=value # trailing comment
  KEY5 = spaced
=nokey
NOVALUE
`
	values := ParseKeyValues(raw)
	cases := map[string]string{
		"KEY1": "plain",
		"KEY2": "quoted value",
		"KEY3": "single quoted",
		"KEY4": "value",
		"KEY5": "spaced",
	}
	for key, want := range cases {
		if got := values[key]; got != want {
			t.Errorf("values[%s] = %q; want %q", key, got, want)
		}
	}
	if len(values) != len(cases) {
		t.Errorf("parsed %d keys; want %d", len(values), len(cases))
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		input string
		want  types.LogLevel
	}{
		{"debug", types.LogLevelDebug},
		{"INFO", types.LogLevelInfo},
		{"warning", types.LogLevelWarning},
		{"error", types.LogLevelError},
		{"critical", types.LogLevelCritical},
		{"none", types.LogLevelNone},
		{"5", types.LogLevelDebug},
		{"bogus", types.LogLevelInfo},
		{"", types.LogLevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLogLevel(tc.input); got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}
}

func TestDefaultTemplateIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provision.env")
	content := strings.Replace(DefaultEnvTemplate(),
		"SHARE_SOURCE=", "SHARE_SOURCE=//nas.local/backups", 1)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("default template with SHARE_SOURCE set should load: %v", err)
	}
}
