package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gatewaykit/z2m-provision/internal/config"
)

type configStatusLogger interface {
	Warning(format string, args ...interface{})
	Info(format string, args ...interface{})
}

func resolveInstallConfigPath(configPath string) (string, error) {
	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		return "", fmt.Errorf("configuration path is empty")
	}

	if filepath.IsAbs(configPath) {
		return configPath, nil
	}

	baseDir, ok := detectBaseDir()
	if !ok {
		return "", fmt.Errorf("unable to determine base directory for configuration")
	}
	return filepath.Join(baseDir, configPath), nil
}

func ensureConfigExists(path string, logger configStatusLogger) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("configuration path is empty")
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat configuration file: %w", err)
	}

	logger.Warning("Configuration file not found: %s", path)
	fmt.Print("Generate default configuration from template? [y/N]: ")

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read user input: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(response))
	if answer != "y" && answer != "yes" {
		return fmt.Errorf("configuration file is required to continue")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create configuration directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(config.DefaultEnvTemplate()), 0o600); err != nil {
		return fmt.Errorf("failed to write default configuration: %w", err)
	}

	logger.Info("✓ Default configuration created at %s", path)
	return nil
}

// ExecInfo describes where the running binary lives and which installation
// root it belongs to.
type ExecInfo struct {
	ExecPath string
	ExecDir  string
	BaseDir  string
	HasBase  bool
}

var (
	execInfo     ExecInfo
	execInfoOnce sync.Once
)

func getExecInfo() ExecInfo {
	execInfoOnce.Do(func() {
		execInfo = detectExecInfo()
	})
	return execInfo
}

func detectExecInfo() ExecInfo {
	execPath, err := os.Executable()
	if err != nil {
		return ExecInfo{}
	}

	if resolved, err := filepath.EvalSymlinks(execPath); err == nil && resolved != "" {
		execPath = resolved
	}

	execDir := filepath.Dir(execPath)
	dir := execDir
	originalDir := dir
	baseDir := ""

	// Walk upwards until a directory looks like an installation root, i.e.
	// it contains a configs/ or identity/ directory.
	for {
		if dir == "" || dir == "." || dir == string(filepath.Separator) {
			break
		}
		if info, err := os.Stat(filepath.Join(dir, "configs")); err == nil && info.IsDir() {
			baseDir = dir
			break
		}
		if info, err := os.Stat(filepath.Join(dir, "identity")); err == nil && info.IsDir() {
			baseDir = dir
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if baseDir == "" {
		if parent := filepath.Dir(originalDir); parent != "" && parent != "." && parent != string(filepath.Separator) {
			baseDir = parent
		}
	}

	return ExecInfo{
		ExecPath: execPath,
		ExecDir:  execDir,
		BaseDir:  baseDir,
		HasBase:  baseDir != "",
	}
}

func detectBaseDir() (string, bool) {
	info := getExecInfo()
	return info.BaseDir, info.HasBase
}

func resolveHostname() string {
	if path, err := exec.LookPath("hostname"); err == nil {
		if out, err := exec.Command(path, "-f").Output(); err == nil {
			if fqdn := strings.TrimSpace(string(out)); fqdn != "" {
				return fqdn
			}
		}
	}

	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}

	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}

// setEnvValue replaces the value of key in a KEY=VALUE template, keeping
// leading whitespace and inline comments intact. Keys missing from the
// template are appended at the end.
func setEnvValue(template, key, value string) string {
	target := key + "="
	lines := strings.Split(template, "\n")
	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, target) {
			leadingLen := len(line) - len(strings.TrimLeft(line, " \t"))
			leading := ""
			if leadingLen > 0 {
				leading = line[:leadingLen]
			}
			rest := line[leadingLen:]
			commentSpacing := ""
			comment := ""
			if idx := strings.Index(rest, "#"); idx >= 0 {
				before := rest[:idx]
				comment = rest[idx:]
				trimmedBefore := strings.TrimRight(before, " \t")
				commentSpacing = before[len(trimmedBefore):]
				rest = trimmedBefore
			}
			newLine := leading + key + "=" + value
			if comment != "" {
				spacing := commentSpacing
				if spacing == "" {
					spacing = " "
				}
				newLine += spacing + comment
			}
			lines[i] = newLine
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, key+"="+value)
	}
	return strings.Join(lines, "\n")
}

func sanitizeEnvValue(value string) string {
	value = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\x00' {
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(value)
}
