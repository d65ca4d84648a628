package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"filippo.io/age"
	"golang.org/x/term"

	"github.com/gatewaykit/z2m-provision/internal/config"
	"github.com/gatewaykit/z2m-provision/internal/logging"
	"github.com/gatewaykit/z2m-provision/internal/schedule"
)

func runSetup(ctx context.Context, configPath string, bootstrap *logging.BootstrapLogger) error {
	resolvedPath, err := resolveInstallConfigPath(configPath)
	if err != nil {
		return err
	}
	configPath = resolvedPath

	// Derive BASE_DIR from the configuration path so that configs/,
	// identity/ and log/ all live under the same root, even during --setup.
	baseDir := filepath.Dir(filepath.Dir(configPath))
	if baseDir == "" || baseDir == "." || baseDir == string(filepath.Separator) {
		baseDir = "/opt/z2m-provision"
	}

	var setupErr error

	defer func() {
		printSetupFooter(setupErr, configPath, baseDir)
	}()

	if err := ensureInteractiveStdin(); err != nil {
		setupErr = err
		return setupErr
	}

	tmpConfigPath := configPath + ".tmp"
	defer func() {
		if _, err := os.Stat(tmpConfigPath); err == nil {
			_ = os.Remove(tmpConfigPath)
		}
	}()

	reader := bufio.NewReader(os.Stdin)
	printSetupBanner(configPath)

	template, err := prepareBaseTemplate(ctx, reader, configPath)
	if err != nil {
		setupErr = wrapSetupError(err)
		return setupErr
	}

	if template, err = configureShare(ctx, reader, template); err != nil {
		setupErr = wrapSetupError(err)
		return setupErr
	}
	if template, err = configureGateway(ctx, reader, template); err != nil {
		setupErr = wrapSetupError(err)
		return setupErr
	}
	if template, err = configureAdapter(ctx, reader, template); err != nil {
		setupErr = wrapSetupError(err)
		return setupErr
	}
	if template, err = configureSchedule(ctx, reader, template); err != nil {
		setupErr = wrapSetupError(err)
		return setupErr
	}
	enableEncryption, err := configureEncryption(ctx, reader, &template)
	if err != nil {
		setupErr = wrapSetupError(err)
		return setupErr
	}

	// Ensure BASE_DIR is explicitly present in the generated env file so
	// that subsequent runs use the same root directory.
	template = setEnvValue(template, "BASE_DIR", baseDir)

	if err := writeConfigFile(configPath, tmpConfigPath, template); err != nil {
		setupErr = err
		return setupErr
	}
	bootstrap.Info("✓ Configuration saved at %s", configPath)

	if err := installSupportDocs(baseDir, bootstrap); err != nil {
		setupErr = fmt.Errorf("install documentation: %w", err)
		return setupErr
	}

	if enableEncryption {
		if err := ensureAgeKeyPair(configPath, bootstrap); err != nil {
			setupErr = err
			return setupErr
		}
	}

	// Ensure a z2m-provision entry points at this binary, if not already
	// customized.
	execInfo := getExecInfo()
	if execInfo.ExecPath != "" {
		ensureBinSymlink(execInfo.ExecPath, bootstrap)
	}

	setupErr = nil
	return nil
}

func printSetupFooter(setupErr error, configPath, baseDir string) {
	colorReset := "\033[0m"

	title := "Gateway setup completed"
	color := "\033[32m" // green by default

	if setupErr != nil {
		if isSetupAbortedError(setupErr) {
			color = "\033[35m"
			title = "Gateway setup aborted"
		} else {
			color = "\033[31m"
			title = "Gateway setup failed"
		}
	}

	fmt.Println()
	fmt.Printf("%s================================================\n", color)
	fmt.Printf(" %s\n", title)
	fmt.Printf("================================================%s\n", colorReset)
	fmt.Println()
	fmt.Println("Next steps:")
	if strings.TrimSpace(configPath) != "" {
		fmt.Printf("1. Review configuration: %s\n", configPath)
	} else {
		fmt.Println("1. Review configuration: <configuration path unavailable>")
	}
	fmt.Println("2. Provision the gateway: z2m-provision")
	if strings.TrimSpace(baseDir) != "" {
		fmt.Printf("3. Check logs: tail -f %s/log/*.log\n", baseDir)
	} else {
		fmt.Println("3. Check logs: tail -f /opt/z2m-provision/log/*.log")
	}
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  z2m-provision      - Provision the gateway (install, restore, service, schedule)")
	fmt.Println("  --backup           - Create a backup archive on the network share")
	fmt.Println("  --dry-run          - Show what would be done without changing the host")
	fmt.Println("  --setup            - Re-run this interactive setup")
	fmt.Println("  --upgrade-config   - Upgrade configuration file using the embedded template")
	fmt.Println("  --upgrade-config-dry-run - Preview configuration upgrade without modifying files")
	fmt.Println("  --help             - Show all options")
	fmt.Println()
}

func printSetupBanner(configPath string) {
	fmt.Println("===========================================")
	fmt.Println("  Zigbee Gateway Provisioner")
	fmt.Printf("  Version: %s\n", version)
	fmt.Println("  Mode: Setup Wizard")
	fmt.Println("===========================================")
	fmt.Printf("Configuration file: %s\n\n", configPath)
}

func prepareBaseTemplate(ctx context.Context, reader *bufio.Reader, configPath string) (string, error) {
	if _, err := os.Stat(configPath); err == nil {
		overwrite, err := promptYesNo(ctx, reader, fmt.Sprintf("%s already exists. Overwrite? [y/N]: ", configPath), false)
		if err != nil {
			return "", err
		}
		if !overwrite {
			return "", fmt.Errorf("setup aborted (existing configuration kept)")
		}
	}

	create, err := promptYesNo(ctx, reader, "Generate configuration file from default template? [y/N]: ", false)
	if err != nil {
		return "", err
	}
	if !create {
		return "", fmt.Errorf("setup aborted by user")
	}

	return config.DefaultEnvTemplate(), nil
}

func configureShare(ctx context.Context, reader *bufio.Reader, template string) (string, error) {
	fmt.Println("\n--- Backup share ---")
	fmt.Println("Backups are stored on a mounted network share. CIFS and NFS are supported.")
	source, err := promptNonEmpty(ctx, reader, "Share source (SHARE_SOURCE, e.g. //nas.local/backups or nas:/export/backups): ")
	if err != nil {
		return "", err
	}
	template = setEnvValue(template, "SHARE_SOURCE", sanitizeEnvValue(source))

	fsType, err := promptDefault(ctx, reader, "Share filesystem type (SHARE_TYPE) [cifs]: ", "cifs")
	if err != nil {
		return "", err
	}
	template = setEnvValue(template, "SHARE_TYPE", sanitizeEnvValue(fsType))

	mountPoint, err := promptDefault(ctx, reader, "Mount point (MOUNT_POINT) [/mnt/gateway-backup]: ", "/mnt/gateway-backup")
	if err != nil {
		return "", err
	}
	template = setEnvValue(template, "MOUNT_POINT", sanitizeEnvValue(mountPoint))

	needsCreds, err := promptYesNo(ctx, reader, "Does the share require credentials? [y/N]: ", false)
	if err != nil {
		return "", err
	}
	if needsCreds {
		credFile, err := promptNonEmpty(ctx, reader, "Path to credentials file (passed as credentials= mount option): ")
		if err != nil {
			return "", err
		}
		template = setEnvValue(template, "SHARE_OPTIONS", "rw,credentials="+sanitizeEnvValue(credFile))
	}

	backupDir, err := promptDefault(ctx, reader, "Subdirectory on the share for archives (SHARE_BACKUP_DIR, empty = share root): ", "")
	if err != nil {
		return "", err
	}
	template = setEnvValue(template, "SHARE_BACKUP_DIR", sanitizeEnvValue(backupDir))
	return template, nil
}

func configureGateway(ctx context.Context, reader *bufio.Reader, template string) (string, error) {
	fmt.Println("\n--- Gateway application ---")
	customize, err := promptYesNo(ctx, reader, "Customize install path and service account? [y/N]: ", false)
	if err != nil {
		return "", err
	}
	if customize {
		installPath, err := promptDefault(ctx, reader, "Install path (INSTALL_PATH) [/opt/zigbee2mqtt]: ", "/opt/zigbee2mqtt")
		if err != nil {
			return "", err
		}
		template = setEnvValue(template, "INSTALL_PATH", sanitizeEnvValue(installPath))

		serviceUser, err := promptDefault(ctx, reader, "Service account (SERVICE_USER) [zigbee2mqtt]: ", "zigbee2mqtt")
		if err != nil {
			return "", err
		}
		template = setEnvValue(template, "SERVICE_USER", sanitizeEnvValue(serviceUser))
	}

	timezone, err := promptDefault(ctx, reader, "Host timezone (TIMEZONE, e.g. Europe/Berlin, empty = leave unchanged): ", "")
	if err != nil {
		return "", err
	}
	template = setEnvValue(template, "TIMEZONE", sanitizeEnvValue(timezone))
	return template, nil
}

func configureAdapter(ctx context.Context, reader *bufio.Reader, template string) (string, error) {
	fmt.Println("\n--- Zigbee adapter ---")
	fmt.Println("A stable device path (by-id) survives reboots and USB re-enumeration.")
	pin, err := promptYesNo(ctx, reader, "Pin the adapter to a fixed device path after restore? [y/N]: ", false)
	if err != nil {
		return "", err
	}
	if pin {
		devicePath, err := promptDefault(ctx, reader, "Adapter device path (DEVICE_PATH) [/dev/ttyACM0]: ", "/dev/ttyACM0")
		if err != nil {
			return "", err
		}
		template = setEnvValue(template, "DEVICE_PATH", sanitizeEnvValue(devicePath))
	} else {
		template = setEnvValue(template, "DEVICE_PATH", "")
	}
	return template, nil
}

func configureSchedule(ctx context.Context, reader *bufio.Reader, template string) (string, error) {
	fmt.Println("\n--- Backup schedule ---")
	for {
		spec, err := promptDefault(ctx, reader, "Cron schedule for backups (BACKUP_SCHEDULE) [30 3 * * *]: ", "30 3 * * *")
		if err != nil {
			return "", err
		}
		spec = sanitizeEnvValue(spec)
		if err := schedule.ValidateSpec(spec); err != nil {
			fmt.Printf("Invalid cron expression: %v\n", err)
			continue
		}
		template = setEnvValue(template, "BACKUP_SCHEDULE", spec)
		break
	}

	for {
		days, err := promptDefault(ctx, reader, "Days to keep old backups (RETENTION_DAYS) [14]: ", "14")
		if err != nil {
			return "", err
		}
		days = sanitizeEnvValue(days)
		if n, convErr := strconv.Atoi(days); convErr != nil || n < 1 {
			fmt.Println("Retention must be a whole number of days, at least 1.")
			continue
		}
		template = setEnvValue(template, "RETENTION_DAYS", days)
		break
	}
	return template, nil
}

func configureEncryption(ctx context.Context, reader *bufio.Reader, template *string) (bool, error) {
	fmt.Println("\n--- Encryption ---")
	enableEncryption, err := promptYesNo(ctx, reader, "Encrypt backup archives with age? [y/N]: ", false)
	if err != nil {
		return false, err
	}
	if enableEncryption {
		*template = setEnvValue(*template, "ENCRYPT_ARCHIVE", "true")
	} else {
		*template = setEnvValue(*template, "ENCRYPT_ARCHIVE", "false")
	}
	return enableEncryption, nil
}

// ensureAgeKeyPair generates an X25519 key pair for archive encryption if the
// configured identity and recipients files do not exist yet. Existing key
// material is never touched.
func ensureAgeKeyPair(configPath string, bootstrap *logging.BootstrapLogger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to reload configuration after setup: %w", err)
	}

	identityPath := cfg.AgeIdentityFile
	recipientsPath := cfg.AgeRecipientsFile
	if identityPath == "" || recipientsPath == "" {
		return fmt.Errorf("encryption enabled but AGE_IDENTITY_FILE or AGE_RECIPIENTS_FILE is empty")
	}

	if _, err := os.Stat(identityPath); err == nil {
		bootstrap.Info("Existing age identity preserved: %s", identityPath)
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat age identity file: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("failed to generate age identity: %w", err)
	}

	for _, dir := range []string{filepath.Dir(identityPath), filepath.Dir(recipientsPath)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create key directory %s: %w", dir, err)
		}
	}

	identityContent := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().Format(time.RFC3339), identity.Recipient().String(), identity.String())
	if err := os.WriteFile(identityPath, []byte(identityContent), 0o600); err != nil {
		return fmt.Errorf("failed to write age identity file: %w", err)
	}

	recipientsContent := identity.Recipient().String() + "\n"
	if err := os.WriteFile(recipientsPath, []byte(recipientsContent), 0o644); err != nil {
		return fmt.Errorf("failed to write age recipients file: %w", err)
	}

	bootstrap.Info("✓ Generated age key pair")
	bootstrap.Info("  Identity (keep secret): %s", identityPath)
	bootstrap.Info("  Recipients: %s", recipientsPath)
	bootstrap.Warning("Back up the identity file offline: without it encrypted archives cannot be restored")
	return nil
}

func writeConfigFile(configPath, tmpConfigPath, content string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create configuration directory: %w", err)
	}
	if err := os.WriteFile(tmpConfigPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	if err := os.Rename(tmpConfigPath, configPath); err != nil {
		return fmt.Errorf("failed to finalize configuration file: %w", err)
	}
	return nil
}

func wrapSetupError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, errInteractiveAborted) {
		// Preserve sentinel so callers can detect user-aborted setups with errors.Is
		return fmt.Errorf("setup aborted by user: %w", err)
	}
	return err
}

func isSetupAbortedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errInteractiveAborted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "setup aborted by user") {
		return true
	}
	if strings.Contains(msg, "setup aborted (existing configuration kept)") {
		return true
	}
	return false
}

func ensureInteractiveStdin() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("setup wizard requires an interactive terminal (stdin is not a TTY)")
	}
	return nil
}

func promptYesNo(ctx context.Context, reader *bufio.Reader, question string, defaultYes bool) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, errInteractiveAborted
		}
		fmt.Print(question)
		resp, err := readLineWithContext(ctx, reader)
		if err != nil {
			return false, err
		}
		resp = strings.TrimSpace(strings.ToLower(resp))
		if resp == "" {
			return defaultYes, nil
		}
		switch resp {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Println("Please answer with 'y' or 'n'.")
		}
	}
}

func promptNonEmpty(ctx context.Context, reader *bufio.Reader, question string) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", errInteractiveAborted
		}
		fmt.Print(question)
		resp, err := readLineWithContext(ctx, reader)
		if err != nil {
			return "", err
		}
		resp = strings.TrimSpace(resp)
		if resp != "" {
			return resp, nil
		}
		fmt.Println("Value cannot be empty.")
	}
}

func promptDefault(ctx context.Context, reader *bufio.Reader, question, fallback string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errInteractiveAborted
	}
	fmt.Print(question)
	resp, err := readLineWithContext(ctx, reader)
	if err != nil {
		return "", err
	}
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return fallback, nil
	}
	return resp, nil
}

var (
	errInteractiveAborted = errors.New("interactive input aborted")
	errPromptInputClosed  = errors.New("stdin closed")
)

func readLineWithContext(ctx context.Context, reader *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line: line, err: mapPromptInputError(err)}
	}()
	select {
	case <-ctx.Done():
		return "", errInteractiveAborted
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, errPromptInputClosed) {
				return "", errInteractiveAborted
			}
			return "", res.err
		}
		return res.line, nil
	}
}

func mapPromptInputError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return errPromptInputClosed
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "use of closed file") ||
		strings.Contains(errStr, "bad file descriptor") ||
		strings.Contains(errStr, "file already closed") {
		return errPromptInputClosed
	}
	return err
}
