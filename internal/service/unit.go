// Package service writes the systemd unit for the gateway application and
// drives systemctl.
package service

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const unitTemplate = `[Unit]
Description={{.Description}}
After=network-online.target
Wants=network-online.target

[Service]
{{- if gt .WatchdogSec 0}}
Type=notify
WatchdogSec={{.WatchdogSec}}
{{- else}}
Type=simple
{{- end}}
User={{.User}}
Group={{.User}}
WorkingDirectory={{.WorkingDirectory}}
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec={{.RestartSec}}
{{- if .MemoryMax}}
MemoryMax={{.MemoryMax}}
{{- end}}
Environment=NODE_ENV=production
StandardOutput=journal
StandardError=journal

[Install]
WantedBy=multi-user.target
`

// UnitConfig parameterizes the rendered unit file.
type UnitConfig struct {
	Name             string
	Description      string
	User             string
	WorkingDirectory string
	ExecStart        string
	MemoryMax        string
	RestartSec       int
	// WatchdogSec switches the unit to Type=notify when positive. The
	// application must then report watchdog keepalives itself.
	WatchdogSec int
}

// Render produces the unit file content.
func Render(cfg UnitConfig) (string, error) {
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", fmt.Errorf("parse unit template: %w", err)
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, cfg); err != nil {
		return "", fmt.Errorf("render unit template: %w", err)
	}
	return out.String(), nil
}

// UnitPath returns where the unit file for a service lives.
func UnitPath(name string) string {
	return filepath.Join("/etc/systemd/system", name+".service")
}

// WriteUnitFile renders the unit and writes it to path, replacing whatever
// is there. It reports whether the content changed so callers can skip the
// daemon reload on no-op runs.
func WriteUnitFile(path string, cfg UnitConfig) (bool, error) {
	content, err := Render(cfg)
	if err != nil {
		return false, err
	}
	if existing, err := os.ReadFile(path); err == nil && string(existing) == content {
		return false, nil
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write unit file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("replace unit file: %w", err)
	}
	return true, nil
}
