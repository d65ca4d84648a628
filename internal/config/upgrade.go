package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// UpgradeResult summarizes what an upgrade of the configuration file did or
// would do.
type UpgradeResult struct {
	// Changed is true when the upgraded file differs from the current one.
	Changed bool
	// MissingKeys are template keys absent from the current file, added with
	// their template defaults.
	MissingKeys []string
	// PreservedValues maps keys whose existing value differs from the
	// template default and was kept.
	PreservedValues map[string]string
	// ExtraKeys are keys present in the current file but not in the
	// template. They are appended at the end of the upgraded file.
	ExtraKeys []string
	// BackupPath is the path of the pre-upgrade copy, empty for a dry run.
	BackupPath string
}

// PlanUpgradeConfigFile computes the upgrade without touching the file.
func PlanUpgradeConfigFile(path string) (*UpgradeResult, error) {
	_, result, err := buildUpgradedConfig(path)
	return result, err
}

// UpgradeConfigFile merges the configuration file with the embedded template.
// Template keys missing from the file are added with their defaults, existing
// values are preserved, and unknown keys are carried over at the end. The old
// file is kept next to the new one with a timestamped suffix.
func UpgradeConfigFile(path string) (*UpgradeResult, error) {
	upgraded, result, err := buildUpgradedConfig(path)
	if err != nil {
		return nil, err
	}
	if !result.Changed {
		return result, nil
	}

	backupPath := fmt.Sprintf("%s.bak-%s", path, time.Now().Format("20060102-150405"))
	current, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read configuration file: %w", err)
	}
	if err := os.WriteFile(backupPath, current, 0600); err != nil {
		return nil, fmt.Errorf("write configuration backup: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(upgraded), 0600); err != nil {
		return nil, fmt.Errorf("write upgraded configuration: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("replace configuration file: %w", err)
	}

	result.BackupPath = backupPath
	return result, nil
}

// buildUpgradedConfig renders the upgraded file content by walking the
// template line by line, substituting values found in the current file.
func buildUpgradedConfig(path string) (string, *UpgradeResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read configuration file: %w", err)
	}
	currentRaw := string(data)
	current := ParseKeyValues(currentRaw)
	templateValues := ParseKeyValues(defaultEnvTemplate)

	result := &UpgradeResult{
		PreservedValues: make(map[string]string),
	}

	var out strings.Builder
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(defaultEnvTemplate))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}
		idx := strings.IndexByte(trimmed, '=')
		if idx <= 0 {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}
		key := strings.TrimSpace(trimmed[:idx])
		seen[key] = true
		if value, ok := current[key]; ok {
			if value != templateValues[key] {
				result.PreservedValues[key] = value
			}
			out.WriteString(fmt.Sprintf("%s=%s\n", key, value))
		} else {
			result.MissingKeys = append(result.MissingKeys, key)
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}

	var extras []string
	for key := range current {
		if !seen[key] {
			extras = append(extras, key)
		}
	}
	sort.Strings(extras)
	if len(extras) > 0 {
		out.WriteString("\n# Keys not present in the current template\n")
		for _, key := range extras {
			out.WriteString(fmt.Sprintf("%s=%s\n", key, current[key]))
		}
	}
	result.ExtraKeys = extras

	upgraded := out.String()
	result.Changed = normalizeConfig(upgraded) != normalizeConfig(currentRaw)
	return upgraded, result, nil
}

// normalizeConfig reduces a config file to its effective KEY=VALUE lines so
// comment and whitespace differences do not count as changes.
func normalizeConfig(raw string) string {
	values := ParseKeyValues(raw)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var out strings.Builder
	for _, key := range keys {
		out.WriteString(key)
		out.WriteByte('=')
		out.WriteString(values[key])
		out.WriteByte('\n')
	}
	return out.String()
}
