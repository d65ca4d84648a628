package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

func baseUnitConfig() UnitConfig {
	return UnitConfig{
		Name:             "zigbee2mqtt",
		Description:      "Zigbee2MQTT gateway",
		User:             "zigbee2mqtt",
		WorkingDirectory: "/opt/zigbee2mqtt",
		ExecStart:        "/usr/bin/node index.js",
		MemoryMax:        "512M",
		RestartSec:       10,
	}
}

func TestRenderSimpleUnit(t *testing.T) {
	content, err := Render(baseUnitConfig())
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	for _, want := range []string{
		"Description=Zigbee2MQTT gateway",
		"Type=simple",
		"User=zigbee2mqtt",
		"WorkingDirectory=/opt/zigbee2mqtt",
		"ExecStart=/usr/bin/node index.js",
		"Restart=on-failure",
		"RestartSec=10",
		"MemoryMax=512M",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("unit missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "WatchdogSec") {
		t.Errorf("unit has WatchdogSec without watchdog configured:\n%s", content)
	}
}

func TestRenderWatchdogUnit(t *testing.T) {
	cfg := baseUnitConfig()
	cfg.WatchdogSec = 30
	content, err := Render(cfg)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if !strings.Contains(content, "Type=notify") {
		t.Errorf("watchdog unit must be Type=notify:\n%s", content)
	}
	if !strings.Contains(content, "WatchdogSec=30") {
		t.Errorf("watchdog unit missing WatchdogSec:\n%s", content)
	}
	if strings.Contains(content, "Type=simple") {
		t.Errorf("watchdog unit must not be Type=simple:\n%s", content)
	}
}

func TestRenderWithoutMemoryMax(t *testing.T) {
	cfg := baseUnitConfig()
	cfg.MemoryMax = ""
	content, err := Render(cfg)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if strings.Contains(content, "MemoryMax") {
		t.Errorf("unit has MemoryMax without a limit configured:\n%s", content)
	}
}

func TestWriteUnitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zigbee2mqtt.service")
	cfg := baseUnitConfig()

	changed, err := WriteUnitFile(path, cfg)
	if err != nil {
		t.Fatalf("WriteUnitFile returned error: %v", err)
	}
	if !changed {
		t.Errorf("first write must report a change")
	}

	changed, err = WriteUnitFile(path, cfg)
	if err != nil {
		t.Fatalf("WriteUnitFile returned error: %v", err)
	}
	if changed {
		t.Errorf("rewrite of identical content must be a no-op")
	}

	cfg.MemoryMax = "1G"
	changed, err = WriteUnitFile(path, cfg)
	if err != nil {
		t.Fatalf("WriteUnitFile returned error: %v", err)
	}
	if !changed {
		t.Errorf("changed config must rewrite the unit")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read unit: %v", err)
	}
	if !strings.Contains(string(data), "MemoryMax=1G") {
		t.Errorf("unit not updated:\n%s", data)
	}
}

func TestUnitPath(t *testing.T) {
	if got := UnitPath("zigbee2mqtt"); got != "/etc/systemd/system/zigbee2mqtt.service" {
		t.Errorf("UnitPath = %q", got)
	}
}

type fakeRunner struct {
	calls  []string
	failOn string
	output string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	line := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, line)
	if f.failOn != "" && strings.Contains(line, f.failOn) {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	if err := f.Run(nil, name, args...); err != nil {
		return "", err
	}
	return f.output, nil
}

func (f *fakeRunner) RunInput(_ context.Context, _ string, name string, args ...string) error {
	return f.Run(nil, name, args...)
}

func TestManagerLifecycle(t *testing.T) {
	runner := &fakeRunner{output: "active\n"}
	logger := logging.New(types.LogLevelNone, false)
	m := NewManager("zigbee2mqtt", logger, runner)
	ctx := context.Background()

	if err := m.DaemonReload(ctx); err != nil {
		t.Fatalf("DaemonReload returned error: %v", err)
	}
	if err := m.Enable(ctx); err != nil {
		t.Fatalf("Enable returned error: %v", err)
	}
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !m.IsActive(ctx) {
		t.Errorf("IsActive = false with active output")
	}

	want := []string{
		"systemctl daemon-reload",
		"systemctl enable zigbee2mqtt",
		"systemctl start zigbee2mqtt",
		"systemctl is-active zigbee2mqtt",
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("calls = %v", runner.calls)
	}
	for i, call := range want {
		if runner.calls[i] != call {
			t.Errorf("call %d = %q; want %q", i, runner.calls[i], call)
		}
	}
}

func TestManagerStopFailure(t *testing.T) {
	runner := &fakeRunner{failOn: "stop"}
	logger := logging.New(types.LogLevelNone, false)
	m := NewManager("zigbee2mqtt", logger, runner)
	if err := m.Stop(context.Background()); err == nil {
		t.Fatalf("expected error when systemctl stop fails")
	}
}
