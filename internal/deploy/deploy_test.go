package deploy

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
	calls  []string
	failOn string
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
	if f.failOn != "" && strings.Contains(line, f.failOn) {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	f.record(name, args)
	return "", nil
}

func (f *fakeRunner) RunInput(_ context.Context, _ string, name string, args ...string) error {
	return f.Run(nil, name, args...)
}

func testConfig(t *testing.T, installPath string) *config.Config {
	t.Helper()
	content := fmt.Sprintf(`SHARE_SOURCE=//nas.local/backups
MOUNT_POINT=/mnt/gateway-backup
INSTALL_PATH=%s
SERVICE_USER=zigbee2mqtt
SERVICE_NAME=zigbee2mqtt
UPSTREAM_REPO=https://github.com/Koenkk/zigbee2mqtt.git
UPSTREAM_BRANCH=master
ARCHIVE_PREFIX=zigbee2mqtt
BACKUP_SCHEDULE=30 3 * * *
`, installPath)
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

func newTestDeployer(t *testing.T, installPath string, runner *fakeRunner) *Deployer {
	t.Helper()
	logger := logging.New(types.LogLevelNone, false)
	d := NewDeployer(testConfig(t, installPath), logger, runner)
	d.lookupUser = func(string) (int, int, error) { return 1001, 1001, nil }
	return d
}

func TestEnsureSourceClonesFreshHost(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "zigbee2mqtt")
	runner := &fakeRunner{}
	d := newTestDeployer(t, installPath, runner)
	if err := d.EnsureSource(context.Background()); err != nil {
		t.Fatalf("EnsureSource returned error: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected a single clone call, got %v", runner.calls)
	}
	call := runner.calls[0]
	if !strings.HasPrefix(call, "git clone --depth 1") {
		t.Errorf("clone call = %q", call)
	}
	if !strings.Contains(call, "--branch master") {
		t.Errorf("clone call missing branch: %q", call)
	}
}

func TestEnsureSourceUpdatesExistingCheckout(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "zigbee2mqtt")
	if err := os.MkdirAll(filepath.Join(installPath, ".git"), 0o755); err != nil {
		t.Fatalf("failed to fake checkout: %v", err)
	}
	runner := &fakeRunner{}
	d := newTestDeployer(t, installPath, runner)
	if err := d.EnsureSource(context.Background()); err != nil {
		t.Fatalf("EnsureSource returned error: %v", err)
	}
	want := []string{
		"fetch origin master",
		"reset --hard origin/master",
		"clean -fd",
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), runner.calls)
	}
	for i, fragment := range want {
		if !strings.Contains(runner.calls[i], fragment) {
			t.Errorf("call %d = %q; want fragment %q", i, runner.calls[i], fragment)
		}
	}
}

func TestEnsureSourceFetchFailure(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "zigbee2mqtt")
	if err := os.MkdirAll(filepath.Join(installPath, ".git"), 0o755); err != nil {
		t.Fatalf("failed to fake checkout: %v", err)
	}
	runner := &fakeRunner{failOn: "fetch"}
	d := newTestDeployer(t, installPath, runner)
	if err := d.EnsureSource(context.Background()); err == nil {
		t.Fatalf("expected error when fetch fails")
	}
}

func TestSetOwnership(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "zigbee2mqtt")
	if err := os.MkdirAll(filepath.Join(installPath, "lib"), 0o755); err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(installPath, "index.js"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	runner := &fakeRunner{}
	d := newTestDeployer(t, installPath, runner)
	// Chown to our own ids so the walk succeeds without privileges.
	d.lookupUser = func(string) (int, int, error) { return os.Getuid(), os.Getgid(), nil }
	if err := d.SetOwnership(); err != nil {
		t.Fatalf("SetOwnership returned error: %v", err)
	}
}

func TestSetOwnershipUnknownUser(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "zigbee2mqtt")
	runner := &fakeRunner{}
	d := newTestDeployer(t, installPath, runner)
	d.lookupUser = func(string) (int, int, error) { return 0, 0, fmt.Errorf("unknown user") }
	if err := d.SetOwnership(); err == nil {
		t.Fatalf("expected error for unknown service account")
	}
}

func TestInstallDependencies(t *testing.T) {
	installPath := filepath.Join(t.TempDir(), "zigbee2mqtt")
	runner := &fakeRunner{}
	d := newTestDeployer(t, installPath, runner)
	if err := d.InstallDependencies(context.Background()); err != nil {
		t.Fatalf("InstallDependencies returned error: %v", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected a single call, got %v", runner.calls)
	}
	call := runner.calls[0]
	if !strings.HasPrefix(call, "runuser -u zigbee2mqtt") {
		t.Errorf("npm must run as the service account: %q", call)
	}
	if !strings.Contains(call, "npm ci") {
		t.Errorf("call missing npm ci: %q", call)
	}
}

func TestEnsureSourceDryRunCreatesNothing(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "opt")
	installPath := filepath.Join(parent, "zigbee2mqtt")
	runner := &fakeRunner{}
	d := newTestDeployer(t, installPath, runner)
	d.cfg.DryRun = true

	if err := d.EnsureSource(context.Background()); err != nil {
		t.Fatalf("EnsureSource returned error: %v", err)
	}
	if _, err := os.Stat(parent); !os.IsNotExist(err) {
		t.Errorf("dry run created the install path parent")
	}
}
