package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gatewaykit/z2m-provision/internal/config"
	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

type fakeRunner struct {
	calls   []string
	failOn  string
	outputs map[string]string
}

func (f *fakeRunner) record(name string, args []string) string {
	line := name
	if len(args) > 0 {
		line += " " + strings.Join(args, " ")
	}
	f.calls = append(f.calls, line)
	return line
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	line := f.record(name, args)
	if f.failOn != "" && strings.HasPrefix(line, f.failOn) {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	line := f.record(name, args)
	if out, ok := f.outputs[line]; ok {
		return out, nil
	}
	return "", fmt.Errorf("%s failed", name)
}

func (f *fakeRunner) RunInput(_ context.Context, _ string, name string, args ...string) error {
	return f.Run(nil, name, args...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	content := `SHARE_SOURCE=//nas.local/backups
MOUNT_POINT=/mnt/gateway-backup
INSTALL_PATH=/opt/zigbee2mqtt
SERVICE_USER=zigbee2mqtt
SERVICE_NAME=zigbee2mqtt
UPSTREAM_REPO=https://github.com/Koenkk/zigbee2mqtt.git
ARCHIVE_PREFIX=zigbee2mqtt
BACKUP_SCHEDULE=30 3 * * *
`
	path := filepath.Join(t.TempDir(), "provision.env")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func newTestPrep(t *testing.T, runner *fakeRunner) *Prep {
	t.Helper()
	logger := logging.New(types.LogLevelNone, false)
	return NewPrep(testConfig(t), logger, runner)
}

func TestEnsurePackages(t *testing.T) {
	runner := &fakeRunner{}
	prep := newTestPrep(t, runner)
	if err := prep.EnsurePackages(context.Background()); err != nil {
		t.Fatalf("EnsurePackages returned error: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %v", len(runner.calls), runner.calls)
	}
	if runner.calls[0] != "apt-get update" {
		t.Errorf("first call = %q; want apt-get update", runner.calls[0])
	}
	if !strings.Contains(runner.calls[1], "cifs-utils") {
		t.Errorf("install call missing cifs-utils: %q", runner.calls[1])
	}
}

func TestEnsurePackagesUpdateFailure(t *testing.T) {
	runner := &fakeRunner{failOn: "apt-get update"}
	prep := newTestPrep(t, runner)
	if err := prep.EnsurePackages(context.Background()); err == nil {
		t.Fatalf("expected error when apt-get update fails")
	}
}

func TestEnsureRuntimeSkipsWhenPresent(t *testing.T) {
	runner := &fakeRunner{}
	prep := newTestPrep(t, runner)
	prep.lookPath = func(string) bool { return true }
	if err := prep.EnsureRuntime(context.Background()); err != nil {
		t.Fatalf("EnsureRuntime returned error: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("expected no commands when node is installed, got %v", runner.calls)
	}
}

func TestEnsureRuntimeInstalls(t *testing.T) {
	runner := &fakeRunner{}
	prep := newTestPrep(t, runner)
	prep.lookPath = func(string) bool { return false }
	if err := prep.EnsureRuntime(context.Background()); err != nil {
		t.Fatalf("EnsureRuntime returned error: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 calls, got %v", runner.calls)
	}
	if !strings.Contains(runner.calls[0], "deb.nodesource.com") {
		t.Errorf("setup call missing NodeSource URL: %q", runner.calls[0])
	}
	if runner.calls[1] != "apt-get install -y nodejs" {
		t.Errorf("install call = %q", runner.calls[1])
	}
}

func TestEnsureServiceAccountExisting(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"id -u zigbee2mqtt": "998\n",
	}}
	prep := newTestPrep(t, runner)
	if err := prep.EnsureServiceAccount(context.Background()); err != nil {
		t.Fatalf("EnsureServiceAccount returned error: %v", err)
	}
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "useradd") {
			t.Errorf("useradd called for existing account: %v", runner.calls)
		}
	}
}

func TestEnsureServiceAccountCreates(t *testing.T) {
	runner := &fakeRunner{}
	prep := newTestPrep(t, runner)
	if err := prep.EnsureServiceAccount(context.Background()); err != nil {
		t.Fatalf("EnsureServiceAccount returned error: %v", err)
	}
	var created bool
	for _, call := range runner.calls {
		if strings.HasPrefix(call, "useradd --system") &&
			strings.Contains(call, "--shell /usr/sbin/nologin") &&
			strings.Contains(call, "zigbee2mqtt") {
			created = true
		}
	}
	if !created {
		t.Errorf("expected useradd call, got %v", runner.calls)
	}
}

func TestSetTimezoneSkipsWhenEmpty(t *testing.T) {
	runner := &fakeRunner{}
	prep := newTestPrep(t, runner)
	prep.SetTimezone(context.Background())
	if len(runner.calls) != 0 {
		t.Errorf("expected no calls without a timezone, got %v", runner.calls)
	}
}

func TestDetect(t *testing.T) {
	runner := &fakeRunner{}
	prep := newTestPrep(t, runner)
	path := filepath.Join(t.TempDir(), "os-release")
	content := "PRETTY_NAME=\"Debian GNU/Linux 12\"\nID=debian\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write os-release: %v", err)
	}
	prep.osReleasePath = path
	id, err := prep.Detect()
	if err != nil {
		t.Fatalf("Detect returned error: %v", err)
	}
	if id != "debian" {
		t.Errorf("Detect = %q; want debian", id)
	}
}

func TestDetectRuntime(t *testing.T) {
	runner := &fakeRunner{}
	prep := newTestPrep(t, runner)
	prep.lookPath = func(string) bool { return true }
	if got := prep.DetectRuntime(); got != types.RuntimeNode {
		t.Errorf("DetectRuntime = %v; want node", got)
	}
	prep.lookPath = func(string) bool { return false }
	if got := prep.DetectRuntime(); got != types.RuntimeUnknown {
		t.Errorf("DetectRuntime = %v; want unknown", got)
	}
}
