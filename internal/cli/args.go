package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/gatewaykit/z2m-provision/internal/config"
	"github.com/gatewaykit/z2m-provision/internal/types"
)

// Args holds the parsed command-line arguments
type Args struct {
	ConfigPath       string
	ConfigPathSource string
	LogLevel         types.LogLevel
	DryRun           bool
	ShowVersion      bool
	ShowHelp         bool
	Setup            bool
	Backup           bool
	UpgradeConfig    bool
	UpgradeConfigDry bool
}

// DefaultConfigPath is used when no --config flag is given and no installed
// configuration is found.
const DefaultConfigPath = "./configs/provision.env"

// Parse parses command-line arguments and returns Args struct
func Parse() *Args {
	args := &Args{}

	configFlag := newStringFlag(DefaultConfigPath)

	flag.Var(configFlag, "config", "Path to configuration file")
	flag.Var(configFlag, "c", "Path to configuration file (shorthand)")

	var logLevelStr string
	flag.StringVar(&logLevelStr, "log-level", "",
		"Log level (debug|info|warning|error|critical)")
	flag.StringVar(&logLevelStr, "l", "",
		"Log level (shorthand)")

	flag.BoolVar(&args.DryRun, "dry-run", false,
		"Log the actions a provisioning run would take without changing the host")
	flag.BoolVar(&args.DryRun, "n", false,
		"Perform a dry run (shorthand)")

	flag.BoolVar(&args.ShowVersion, "version", false,
		"Show version information")
	flag.BoolVar(&args.ShowVersion, "v", false,
		"Show version information (shorthand)")

	flag.BoolVar(&args.ShowHelp, "help", false,
		"Show help message")
	flag.BoolVar(&args.ShowHelp, "h", false,
		"Show help message (shorthand)")

	flag.BoolVar(&args.Setup, "setup", false,
		"Run the interactive setup (generate/configure provision.env)")

	flag.BoolVar(&args.Backup, "backup", false,
		"Run the backup job: archive the gateway data directory onto the share and prune expired archives")

	flag.BoolVar(&args.UpgradeConfig, "upgrade-config", false,
		"Upgrade configuration file using the embedded template (adds missing keys, preserves existing and custom keys)")

	flag.BoolVar(&args.UpgradeConfigDry, "upgrade-config-dry-run", false,
		"Plan configuration upgrade using the embedded template without modifying the file (reports missing and custom keys)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Zigbee gateway provisioning and backup\n\n")
		fmt.Fprintf(os.Stderr, "Without a mode flag, a full provisioning run is performed:\n")
		fmt.Fprintf(os.Stderr, "packages, runtime, service account, application source, data\n")
		fmt.Fprintf(os.Stderr, "restore from the backup share, systemd unit and backup schedule.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -c /path/to/provision.env\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dry-run --log-level debug\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --backup\n", os.Args[0])
	}

	flag.Parse()

	args.ConfigPath = configFlag.value
	if configFlag.set {
		args.ConfigPathSource = "specified via --config/-c flag"
	} else {
		args.ConfigPathSource = "default path"
	}

	if logLevelStr != "" {
		args.LogLevel = config.ParseLogLevel(logLevelStr)
	} else {
		args.LogLevel = types.LogLevelNone // Will be overridden by config
	}

	return args
}

// ShowHelp displays help message and exits
func ShowHelp() {
	flag.Usage()
	os.Exit(0)
}

// ShowVersion displays version information and exits
func ShowVersion(version, buildTime string) {
	fmt.Printf("z2m-provision\n")
	fmt.Printf("Version: %s\n", version)
	if buildTime != "" {
		fmt.Printf("Build: %s\n", buildTime)
	}
	os.Exit(0)
}

type stringFlag struct {
	value string
	set   bool
}

func newStringFlag(defaultValue string) *stringFlag {
	return &stringFlag{value: defaultValue}
}

func (s *stringFlag) String() string {
	return s.value
}

func (s *stringFlag) Set(val string) error {
	s.value = val
	s.set = true
	return nil
}
