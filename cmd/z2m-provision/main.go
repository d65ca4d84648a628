package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gatewaykit/z2m-provision/internal/cli"
	"github.com/gatewaykit/z2m-provision/internal/command"
	"github.com/gatewaykit/z2m-provision/internal/config"
	"github.com/gatewaykit/z2m-provision/internal/deploy"
	"github.com/gatewaykit/z2m-provision/internal/environment"
	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/mount"
	"github.com/gatewaykit/z2m-provision/internal/notify"
	"github.com/gatewaykit/z2m-provision/internal/orchestrator"
	"github.com/gatewaykit/z2m-provision/internal/schedule"
	"github.com/gatewaykit/z2m-provision/internal/security"
	"github.com/gatewaykit/z2m-provision/internal/service"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

const (
	version = "0.3.0"

	// binSymlinkPath is the stable command path used in cron entries so
	// that upgrading the binary never invalidates the schedule.
	binSymlinkPath = "/usr/local/bin/z2m-provision"
)

// Build-time variables (injected via ldflags)
var (
	buildTime = "" // Set during compilation via -ldflags "-X main.buildTime=..."
)

func main() {
	code := run()
	status := notify.StatusFromExitCode(code)
	statusLabel := strings.ToUpper(status.String())
	emoji := notify.GetStatusEmoji(status)
	logging.Info("Final exit status: %s %s (code=%d)", emoji, statusLabel, code)
	os.Exit(code)
}

var closeStdinOnce sync.Once

func run() int {
	bootstrap := logging.NewBootstrapLogger()

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			bootstrap.Error("PANIC: %v", r)
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, stack)
			os.Exit(types.ExitPanicError.Int())
		}
	}()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT (Ctrl+C) and SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		bootstrap.Warning("\nReceived signal %v, initiating graceful shutdown...", sig)
		cancel()
		closeStdinOnce.Do(func() {
			if file := os.Stdin; file != nil {
				_ = file.Close()
			}
		})
	}()

	// Parse command-line arguments
	args := cli.Parse()

	if args.ShowVersion {
		cli.ShowVersion(version, buildTime)
		return types.ExitSuccess.Int()
	}

	if args.ShowHelp {
		cli.ShowHelp()
		return types.ExitSuccess.Int()
	}

	// Resolve the configuration path relative to the executable's base
	// directory so that configs/ is located consistently next to the
	// binary, regardless of the current working directory.
	resolvedConfigPath, err := resolveInstallConfigPath(args.ConfigPath)
	if err != nil {
		bootstrap.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}
	args.ConfigPath = resolvedConfigPath

	// Handle configuration upgrade dry-run (plan-only, no writes).
	if args.UpgradeConfigDry {
		if err := ensureConfigExists(args.ConfigPath, bootstrap); err != nil {
			bootstrap.Error("ERROR: %v", err)
			return types.ExitConfigError.Int()
		}

		bootstrap.Printf("Planning configuration upgrade using embedded template: %s", args.ConfigPath)
		result, err := config.PlanUpgradeConfigFile(args.ConfigPath)
		if err != nil {
			bootstrap.Error("ERROR: Failed to plan configuration upgrade: %v", err)
			return types.ExitConfigError.Int()
		}
		if !result.Changed {
			bootstrap.Println("Configuration is already up to date with the embedded template; no changes are required.")
			return types.ExitSuccess.Int()
		}

		if len(result.MissingKeys) > 0 {
			bootstrap.Printf("Missing keys that would be added from the template (%d): %s",
				len(result.MissingKeys), strings.Join(result.MissingKeys, ", "))
		}
		if len(result.PreservedValues) > 0 {
			bootstrap.Printf("Existing values that would be preserved: %d", len(result.PreservedValues))
		}
		if len(result.ExtraKeys) > 0 {
			bootstrap.Printf("Custom keys that would be preserved (not present in template) (%d): %s",
				len(result.ExtraKeys), strings.Join(result.ExtraKeys, ", "))
		}
		bootstrap.Println("Dry run only: no files were modified. Use --upgrade-config to apply these changes.")
		return types.ExitSuccess.Int()
	}

	// Handle configuration upgrade (schema-aware merge with embedded template).
	if args.UpgradeConfig {
		if err := ensureConfigExists(args.ConfigPath, bootstrap); err != nil {
			bootstrap.Error("ERROR: %v", err)
			return types.ExitConfigError.Int()
		}

		bootstrap.Printf("Upgrading configuration file: %s", args.ConfigPath)
		result, err := config.UpgradeConfigFile(args.ConfigPath)
		if err != nil {
			bootstrap.Error("ERROR: Failed to upgrade configuration: %v", err)
			return types.ExitConfigError.Int()
		}
		if !result.Changed {
			bootstrap.Println("Configuration is already up to date with the embedded template; no changes were made.")
			return types.ExitSuccess.Int()
		}

		bootstrap.Println("Configuration upgraded successfully!")
		if len(result.MissingKeys) > 0 {
			bootstrap.Printf("- Added %d missing key(s): %s",
				len(result.MissingKeys), strings.Join(result.MissingKeys, ", "))
		} else {
			bootstrap.Println("- No new keys were required from the template")
		}
		if len(result.PreservedValues) > 0 {
			bootstrap.Printf("- Preserved %d existing value(s) from current configuration", len(result.PreservedValues))
		}
		if len(result.ExtraKeys) > 0 {
			bootstrap.Printf("- Kept %d custom key(s) not present in the template: %s",
				len(result.ExtraKeys), strings.Join(result.ExtraKeys, ", "))
		}
		if result.BackupPath != "" {
			bootstrap.Printf("- Backup saved to: %s", result.BackupPath)
		}
		bootstrap.Println("✓ Configuration upgrade completed successfully.")
		return types.ExitSuccess.Int()
	}

	// Handle setup wizard (runs before normal execution)
	if args.Setup {
		if err := runSetup(ctx, args.ConfigPath, bootstrap); err != nil {
			bootstrap.Error("ERROR: %v", err)
			return types.ExitConfigError.Int()
		}
		return types.ExitSuccess.Int()
	}

	// Print header
	bootstrap.Println("===========================================")
	bootstrap.Println("  Zigbee Gateway Provisioner")
	bootstrap.Printf("  Version: %s", version)
	bootstrap.Println("===========================================")
	bootstrap.Println("")

	if err := ensureConfigExists(args.ConfigPath, bootstrap); err != nil {
		bootstrap.Error("ERROR: %v", err)
		return types.ExitConfigError.Int()
	}

	bootstrap.Printf("Loading configuration from: %s", args.ConfigPath)
	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		bootstrap.Error("ERROR: Failed to load configuration: %v", err)
		return types.ExitConfigError.Int()
	}
	bootstrap.Println("✓ Configuration loaded successfully")

	// Show dry-run status early in the bootstrap phase
	dryRun := args.DryRun || cfg.DryRun
	if dryRun {
		if args.DryRun {
			bootstrap.Println("⚠ DRY RUN MODE (enabled via --dry-run flag)")
		} else {
			bootstrap.Println("⚠ DRY RUN MODE (enabled via DRY_RUN config)")
		}
	}
	bootstrap.Println("")

	if strings.TrimSpace(cfg.LogPath) == "" {
		bootstrap.Warning("WARNING: LOG_PATH is empty - file logging disabled, using stdout only")
	}

	// Determine log level (CLI overrides config)
	logLevel := cfg.DebugLevel
	if args.LogLevel != types.LogLevelNone {
		logLevel = args.LogLevel
	}

	// Initialize logger with configuration
	logger := logging.New(logLevel, cfg.UseColor)
	logging.SetDefaultLogger(logger)
	bootstrap.SetLevel(logLevel)
	bootstrap.Flush(logger)

	// Open log file for real-time writing (closed after notifications)
	hostname := resolveHostname()
	startTime := time.Now()
	operation := "provision"
	if args.Backup {
		operation = "backup"
	}
	if strings.TrimSpace(cfg.LogPath) != "" {
		timestampStr := startTime.Format("20060102-150405")
		logFileName := fmt.Sprintf("%s-%s-%s.log", operation, hostname, timestampStr)
		logFilePath := filepath.Join(cfg.LogPath, logFileName)

		if err := os.MkdirAll(cfg.LogPath, 0755); err != nil {
			logging.Warning("Failed to create log directory %s: %v", cfg.LogPath, err)
		} else if err := logger.OpenLogFile(logFilePath); err != nil {
			logging.Warning("Failed to open log file %s: %v", logFilePath, err)
		} else {
			logging.Info("Log file opened: %s", logFilePath)
		}
	}
	defer func() {
		if err := logger.CloseLogFile(); err != nil {
			logging.Warning("Failed to close log file: %v", err)
		}
	}()

	if dryRun {
		if args.DryRun {
			logging.Info("DRY RUN MODE: No actual changes will be made (enabled via --dry-run flag)")
		} else {
			logging.Info("DRY RUN MODE: No actual changes will be made (enabled via DRY_RUN config)")
		}
	}

	// Refuse to run alongside another provisioner instance. A provision run
	// racing a cron backup over the same share is never safe.
	guard := security.NewInstanceGuard(filepath.Base(os.Args[0]))
	if err := guard.Check(); err != nil {
		logging.Error("Instance check failed: %v", err)
		return types.ExitSecurityError.Int()
	}

	runner := command.NewExecRunner(logger, dryRun)
	prep := environment.NewPrep(cfg, logger, runner)

	if distro, err := prep.Detect(); err != nil {
		logging.Warning("WARNING: %v", err)
		logging.Info("Continuing with unknown distribution...")
	} else {
		logging.Info("Detected distribution: %s", distro)
	}
	logging.Info("Node.js runtime: %s", prep.DetectRuntime())
	logging.Info("Install path: %s", cfg.InstallPath)
	logging.Info("Remote share: %s -> %s (%s)", cfg.ShareSource, cfg.MountPoint, cfg.ShareType)
	configSource := args.ConfigPathSource
	if configSource == "" {
		configSource = "configured path"
	}
	logging.Info("Configuration file: %s (%s)", args.ConfigPath, configSource)
	fmt.Println()

	deployer := deploy.NewDeployer(cfg, logger, runner)
	mounts := mount.NewManager(cfg.ShareSource, cfg.MountPoint, cfg.ShareType, cfg.ShareOptions, logger, runner)
	svc := service.NewManager(cfg.ServiceName, logger, runner)
	crontab := schedule.NewCrontab(logger, runner)

	orch := orchestrator.New(cfg, logger, prep, deployer, mounts, svc, crontab)
	orch.CronCommand = cronCommandLine(args.ConfigPath)
	orch.LegacyCronFragments = []string{
		"backup.sh",
		filepath.Join(cfg.InstallPath, "backup.sh"),
	}

	var runErr error
	var archiveName string
	if args.Backup {
		meta, err := orch.RunBackupJob(ctx)
		runErr = err
		if meta != nil {
			archiveName = meta.Name
		}
	} else {
		runErr = orch.RunProvision(ctx)
	}

	code := types.ExitSuccess
	message := ""
	if runErr != nil {
		var stageErr *orchestrator.StageError
		if errors.As(runErr, &stageErr) {
			logging.Error("Stage %s failed: %v", stageErr.Stage, stageErr.Err)
			code = stageErr.Code
		} else {
			logging.Error("Run failed: %v", runErr)
			code = types.ExitGenericError
		}
		message = runErr.Error()
	}

	if runErr == nil && !dryRun {
		// The symlink keeps the cron entry stable across upgrades. Best
		// effort: a failure here never fails the run.
		if info := getExecInfo(); info.ExecPath != "" {
			ensureBinSymlink(info.ExecPath, bootstrap)
		}
	}

	notifier := notify.NewWebhookNotifier(cfg.WebhookURL, logger)
	if notifier.IsEnabled() {
		notifier.Send(ctx, notify.RunReport{
			Host:      hostname,
			Operation: operation,
			Status:    notify.StatusFromExitCode(code.Int()),
			ExitCode:  code.Int(),
			Message:   message,
			Archive:   archiveName,
			Duration:  time.Since(startTime).Round(time.Second).String(),
			Timestamp: time.Now(),
		})
	}

	return code.Int()
}

// cronCommandLine is the command the scheduled backup entry runs. The stable
// symlink is preferred; the raw executable path is the fallback for installs
// where /usr/local/bin is not writable.
func cronCommandLine(configPath string) string {
	target := binSymlinkPath
	if _, err := os.Stat(binSymlinkPath); err != nil {
		if info := getExecInfo(); info.ExecPath != "" {
			target = info.ExecPath
		}
	}
	return fmt.Sprintf("%s --backup --config %s", target, configPath)
}

func ensureBinSymlink(execPath string, bootstrap *logging.BootstrapLogger) {
	dest := binSymlinkPath
	info, err := os.Lstat(dest)
	if err == nil {
		// Something already exists: if it's a symlink, assume it is
		// user-managed or already pointing at this binary and skip.
		if info.Mode()&os.ModeSymlink != 0 {
			bootstrap.Info("Existing symlink preserved: %s", dest)
			return
		}
		// Regular file or directory: do not overwrite.
		bootstrap.Warning("WARNING: %s already exists and is not a symlink; leaving it untouched", dest)
		return
	}
	if !os.IsNotExist(err) {
		bootstrap.Warning("WARNING: Unable to inspect %s: %v", dest, err)
		return
	}

	if err := os.Symlink(execPath, dest); err != nil {
		bootstrap.Warning("WARNING: Failed to create symlink %s -> %s: %v", dest, execPath, err)
		return
	}
	bootstrap.Info("Created symlink: %s -> %s", dest, execPath)
}
