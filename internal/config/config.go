package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"

	"github.com/gatewaykit/z2m-provision/internal/types"
)

// Config is the validated process-wide configuration. All knobs the operator
// previously had to edit into the script body live here, loaded from a
// KEY=VALUE env file.
type Config struct {
	BaseDir    string
	DryRun     bool
	DebugLevel types.LogLevel
	UseColor   bool
	LogPath    string

	// Remote share
	ShareSource    string
	ShareType      string
	ShareOptions   string
	MountPoint     string
	ShareBackupDir string

	// Gateway application
	InstallPath    string
	DataDir        string
	ServiceUser    string
	ServiceName    string
	UpstreamRepo   string
	UpstreamBranch string
	NodeSetupURL   string
	DevicePath     string
	Timezone       string

	// Service limits
	MemoryMax   string
	RestartSec  int
	WatchdogSec int

	// Backup job
	ArchivePrefix  string
	BackupSchedule string
	RetentionDays  int

	// Encryption
	EncryptArchive    bool
	AgeRecipientsFile string
	AgeIdentityFile   string

	// Notifications
	WebhookURL string

	raw map[string]string
}

// Load reads and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file: %w", err)
	}

	raw := ParseKeyValues(string(data))
	cfg := &Config{raw: raw}

	get := func(key, fallback string) string {
		if v, ok := raw[key]; ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return fallback
	}

	cfg.BaseDir = get("BASE_DIR", "/opt/z2m-provision")
	cfg.DryRun = cast.ToBool(get("DRY_RUN", "false"))
	cfg.DebugLevel = ParseLogLevel(get("DEBUG_LEVEL", "info"))
	cfg.UseColor = cast.ToBool(get("USE_COLOR", "true"))
	cfg.LogPath = get("LOG_PATH", filepath.Join(cfg.BaseDir, "log"))

	cfg.ShareSource = get("SHARE_SOURCE", "")
	cfg.ShareType = get("SHARE_TYPE", "cifs")
	cfg.ShareOptions = get("SHARE_OPTIONS", "rw")
	cfg.MountPoint = get("MOUNT_POINT", "/mnt/gateway-backup")
	cfg.ShareBackupDir = get("SHARE_BACKUP_DIR", "")

	cfg.InstallPath = get("INSTALL_PATH", "/opt/zigbee2mqtt")
	cfg.DataDir = get("DATA_DIR", filepath.Join(cfg.InstallPath, "data"))
	cfg.ServiceUser = get("SERVICE_USER", "zigbee2mqtt")
	cfg.ServiceName = get("SERVICE_NAME", "zigbee2mqtt")
	cfg.UpstreamRepo = get("UPSTREAM_REPO", "")
	cfg.UpstreamBranch = get("UPSTREAM_BRANCH", "master")
	cfg.NodeSetupURL = get("NODE_SETUP_URL", "https://deb.nodesource.com/setup_20.x")
	cfg.DevicePath = get("DEVICE_PATH", "")
	cfg.Timezone = get("TIMEZONE", "")

	cfg.MemoryMax = get("MEMORY_MAX", "512M")
	cfg.RestartSec = cast.ToInt(get("RESTART_SEC", "10"))
	cfg.WatchdogSec = cast.ToInt(get("WATCHDOG_SEC", "0"))

	cfg.ArchivePrefix = get("ARCHIVE_PREFIX", "zigbee2mqtt")
	cfg.BackupSchedule = get("BACKUP_SCHEDULE", "30 3 * * *")
	cfg.RetentionDays = cast.ToInt(get("RETENTION_DAYS", "14"))

	cfg.EncryptArchive = cast.ToBool(get("ENCRYPT_ARCHIVE", "false"))
	cfg.AgeRecipientsFile = get("AGE_RECIPIENTS_FILE", filepath.Join(cfg.BaseDir, "identity", "recipients.txt"))
	cfg.AgeIdentityFile = get("AGE_IDENTITY_FILE", filepath.Join(cfg.BaseDir, "identity", "key.txt"))

	cfg.WebhookURL = get("WEBHOOK_URL", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"SHARE_SOURCE", c.ShareSource},
		{"MOUNT_POINT", c.MountPoint},
		{"INSTALL_PATH", c.InstallPath},
		{"SERVICE_USER", c.ServiceUser},
		{"SERVICE_NAME", c.ServiceName},
		{"UPSTREAM_REPO", c.UpstreamRepo},
		{"ARCHIVE_PREFIX", c.ArchivePrefix},
		{"BACKUP_SCHEDULE", c.BackupSchedule},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s is required", field.key)
		}
	}

	if !filepath.IsAbs(c.MountPoint) {
		return fmt.Errorf("MOUNT_POINT must be an absolute path: %s", c.MountPoint)
	}
	if !filepath.IsAbs(c.InstallPath) {
		return fmt.Errorf("INSTALL_PATH must be an absolute path: %s", c.InstallPath)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1, got %d", c.RetentionDays)
	}
	if c.RestartSec < 0 {
		return fmt.Errorf("RESTART_SEC must not be negative, got %d", c.RestartSec)
	}
	if c.WatchdogSec < 0 {
		return fmt.Errorf("WATCHDOG_SEC must not be negative, got %d", c.WatchdogSec)
	}
	if strings.ContainsAny(c.ArchivePrefix, "/ \t") {
		return fmt.Errorf("ARCHIVE_PREFIX must not contain slashes or spaces: %q", c.ArchivePrefix)
	}
	if c.EncryptArchive && strings.TrimSpace(c.AgeRecipientsFile) == "" {
		return fmt.Errorf("AGE_RECIPIENTS_FILE is required when ENCRYPT_ARCHIVE is enabled")
	}
	return nil
}

// Get returns the raw value of a key as it appeared in the file.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.raw[key]
	return v, ok
}

// ArchiveDir returns the directory on the mounted share that holds the
// backup archives.
func (c *Config) ArchiveDir() string {
	if strings.TrimSpace(c.ShareBackupDir) == "" {
		return c.MountPoint
	}
	return filepath.Join(c.MountPoint, c.ShareBackupDir)
}

// ParseLogLevel converts a level name to a LogLevel, defaulting to INFO.
func ParseLogLevel(s string) types.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "5":
		return types.LogLevelDebug
	case "info", "4":
		return types.LogLevelInfo
	case "warning", "3":
		return types.LogLevelWarning
	case "error", "2":
		return types.LogLevelError
	case "critical", "1":
		return types.LogLevelCritical
	case "none", "0":
		return types.LogLevelNone
	default:
		return types.LogLevelInfo
	}
}

// ParseKeyValues parses a simple KEY=VALUE env-style file, ignoring comments
// and stripping surrounding quotes and inline comments from the value.
func ParseKeyValues(raw string) map[string]string {
	result := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		rest := strings.TrimSpace(line[idx+1:])
		if hash := strings.Index(rest, " #"); hash >= 0 {
			rest = strings.TrimSpace(rest[:hash])
		}
		if len(rest) >= 2 {
			if (rest[0] == '"' && rest[len(rest)-1] == '"') ||
				(rest[0] == '\'' && rest[len(rest)-1] == '\'') {
				rest = rest[1 : len(rest)-1]
			}
		}
		result[key] = rest
	}
	return result
}
