package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/precision.report/internal/deploy"
)

const version = "0.2.0"

var debugMode bool

func debugLog(format string, args ...interface{}) {
	if debugMode {
		fmt.Printf("[DEBUG] "+format+"\n", args...)
	}
}

// debugLogger adapts the --debug flag to the deploy.Logger interface.
type debugLogger struct{}

func (debugLogger) Debugf(format string, args ...interface{}) {
	debugLog(format, args...)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "install":
		handleInstall(args)
	case "upgrade":
		handleUpgrade(args)
	case "fix":
		handleFix(args)
	case "status":
		handleStatus(args)
	case "health":
		handleHealth(args)
	case "rollback":
		handleRollback(args)
	case "backup":
		handleBackup(args)
	case "config":
		handleConfig(args)
	case "version":
		fmt.Printf("precision-deploy version %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`precision-deploy - Deployment manager for precision capture stations

Usage: precision-deploy <command> [options]

Commands:
  install    Install the precision service on a host
  upgrade    Upgrade precision to a new binary
  fix        Diagnose and repair a broken installation
  status     Check service status (use --scan for a disk usage breakdown)
  health     Probe the running service
  rollback   Restore the previous version from the on-host backup
  backup     Pull the database and configuration to this machine
  config     Inspect or edit the station configuration
  version    Show precision-deploy version
  help       Show this help message

Common Flags:
  --target <host>      Target host (default: localhost)
                       Can be a hostname, IP, or SSH config host alias
  --ssh-user <user>    SSH user for remote deployment
                       Defaults to ~/.ssh/config or current user
  --ssh-key <path>     SSH private key path
                       Defaults to ~/.ssh/config
  --dry-run            Show what would be done without executing
  --debug              Enable debug logging

SSH Config Support:
  precision-deploy reads ~/.ssh/config for host configuration. If a host
  is defined there, the tool uses its HostName, User, IdentityFile, and
  IdentityAgent. Command-line flags override SSH config values.

Examples:
  # Install locally
  precision-deploy install --binary ./precision-linux-arm64

  # Install using an SSH config host alias
  precision-deploy install --target station1 --binary ./precision-linux-arm64

  # Install on a remote host with explicit credentials
  precision-deploy install --target pi@192.168.1.100 --ssh-key ~/.ssh/id_rsa --binary ./precision-linux-arm64

  # Check status using SSH config
  precision-deploy status --target station1

  # Upgrade a station in place
  precision-deploy upgrade --target station1 --binary ./precision-linux-arm64

  # Health check on a remote host
  precision-deploy health --target station1

For more information, see: https://github.com/banshee-data/precision.report`)
}

// connFlags registers the flags every subcommand shares.
type connFlags struct {
	target  *string
	sshUser *string
	sshKey  *string
	dryRun  *bool
	debug   *bool
}

func newConnFlags(fs *flag.FlagSet) *connFlags {
	return &connFlags{
		target:  fs.String("target", "localhost", "Target host (hostname, IP, or SSH config alias)"),
		sshUser: fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)"),
		sshKey:  fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)"),
		dryRun:  fs.Bool("dry-run", false, "Show what would be done without executing"),
		debug:   fs.Bool("debug", false, "Enable debug logging"),
	}
}

// connection is a resolved deployment target.
type connection struct {
	Host          string
	User          string
	Key           string
	IdentityAgent string
	DryRun        bool
}

func (f *connFlags) resolve() (*connection, error) {
	debugMode = *f.debug

	host, user, key, agent, err := deploy.ResolveSSHTarget(*f.target, *f.sshUser, *f.sshKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve SSH config: %w", err)
	}
	if user == "" {
		user = os.Getenv("USER")
	}

	return &connection{
		Host:          host,
		User:          user,
		Key:           key,
		IdentityAgent: agent,
		DryRun:        *f.dryRun,
	}, nil
}

func (c *connection) executor() *deploy.Executor {
	e := deploy.NewExecutor(c.Host, c.User, c.Key, c.IdentityAgent, c.DryRun)
	if debugMode {
		e.SetLogger(debugLogger{})
	}
	return e
}

func mustResolve(f *connFlags) *connection {
	c, err := f.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return c
}

func handleInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	conn := newConnFlags(fs)
	binaryPath := fs.String("binary", "", "Path to the precision binary (required)")
	dbPath := fs.String("db-path", "", "Existing database to seed the station with")
	iface := fs.String("iface", "", "Capture interface for the service (default: eth0)")
	fs.Parse(args)

	if *binaryPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --binary flag is required. Point it at a precision binary built for the target (e.g., --binary ./precision-linux-arm64)")
		fs.Usage()
		os.Exit(1)
	}

	station := deploy.DefaultStation()
	if *iface != "" {
		station.Interface = *iface
	}

	installer := &Installer{
		Station:    station,
		Exec:       mustResolve(conn).executor(),
		BinaryPath: *binaryPath,
		DBPath:     *dbPath,
	}

	if err := installer.Install(); err != nil {
		fmt.Fprintf(os.Stderr, "Installation failed: %v\n", err)
		os.Exit(1)
	}
}

func handleUpgrade(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	conn := newConnFlags(fs)
	binaryPath := fs.String("binary", "", "Path to the new precision binary (required)")
	noBackup := fs.Bool("no-backup", false, "Skip the on-host backup before upgrading")
	noMigrate := fs.Bool("no-migrate", false, "Skip database migrations (they run by default)")
	fs.Parse(args)

	if *binaryPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --binary flag is required. Point it at a precision binary built for the target (e.g., --binary ./precision-linux-arm64)")
		fs.Usage()
		os.Exit(1)
	}

	upgrader := &Upgrader{
		Station:    deploy.DefaultStation(),
		Exec:       mustResolve(conn).executor(),
		BinaryPath: *binaryPath,
		NoBackup:   *noBackup,
		NoMigrate:  *noMigrate,
	}

	if err := upgrader.Upgrade(); err != nil {
		fmt.Fprintf(os.Stderr, "Upgrade failed: %v\n", err)
		os.Exit(1)
	}
}

func handleFix(args []string) {
	fs := flag.NewFlagSet("fix", flag.ExitOnError)
	conn := newConnFlags(fs)
	binaryPath := fs.String("binary", "", "Binary to restore if the installed one is missing (optional)")
	fs.Parse(args)

	fixer := &Fixer{
		Station:    deploy.DefaultStation(),
		Exec:       mustResolve(conn).executor(),
		BinaryPath: *binaryPath,
	}

	if err := fixer.Fix(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFix completed with errors: %v\n", err)
		os.Exit(1)
	}
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	conn := newConnFlags(fs)
	apiPort := fs.Int("api-port", 8080, "Web server port on the station")
	timeout := fs.Int("timeout", 30, "Timeout in seconds")
	scan := fs.Bool("scan", false, "Scan the data directory for the largest files")
	fs.Parse(args)

	c := mustResolve(conn)
	monitor := &Monitor{
		Station: deploy.DefaultStation(),
		Exec:    c.executor(),
		APIHost: apiHostname(c.Host),
		APIPort: *apiPort,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	var report *StatusReport
	err := runWithSpinner("Gathering station status...", func() error {
		var err error
		report, err = monitor.GetStatus(ctx)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get status: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(report.FormatStatus())

	if *scan {
		fmt.Println("\n=== Disk Scan ===")
		var scanOut string
		err := runWithSpinner("Scanning disk usage...", func() error {
			var err error
			scanOut, err = monitor.ScanDiskUsage()
			return err
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Disk scan failed: %v\n", err)
		} else {
			fmt.Print(scanOut)
		}
	}
}

func handleHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	conn := newConnFlags(fs)
	apiPort := fs.Int("api-port", 8080, "Web server port on the station")
	fs.Parse(args)

	c := mustResolve(conn)
	monitor := &Monitor{
		Station: deploy.DefaultStation(),
		Exec:    c.executor(),
		APIHost: apiHostname(c.Host),
		APIPort: *apiPort,
	}

	health, err := monitor.CheckHealth()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}

	if !health.Healthy {
		fmt.Printf("Service is UNHEALTHY: %s\n%s\n", health.Message, health.Details)
		os.Exit(1)
	}

	fmt.Printf("Service is HEALTHY\n%s\n", health.Details)
}

func handleRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	conn := newConnFlags(fs)
	yes := fs.Bool("yes", false, "Skip confirmation prompts")
	fs.Parse(args)

	rollback := &Rollback{
		Station: deploy.DefaultStation(),
		Exec:    mustResolve(conn).executor(),
		Yes:     *yes,
	}

	if err := rollback.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
		os.Exit(1)
	}
}

func handleBackup(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	conn := newConnFlags(fs)
	outputDir := fs.String("output", ".", "Local directory to write the backup into")
	fs.Parse(args)

	backup := &Backup{
		Station:   deploy.DefaultStation(),
		Exec:      mustResolve(conn).executor(),
		OutputDir: *outputDir,
	}

	if err := backup.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Backup failed: %v\n", err)
		os.Exit(1)
	}
}

func handleConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	conn := newConnFlags(fs)
	show := fs.Bool("show", false, "Show current station configuration")
	edit := fs.Bool("edit", false, "Edit the service ExecStart line")
	fs.Parse(args)

	cfg := &ConfigManager{
		Station: deploy.DefaultStation(),
		Exec:    mustResolve(conn).executor(),
	}

	switch {
	case *show:
		if err := cfg.Show(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to show config: %v\n", err)
			os.Exit(1)
		}
	case *edit:
		if err := cfg.Edit(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to edit config: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "Use --show or --edit flag")
		fs.Usage()
		os.Exit(1)
	}
}

// apiHostname extracts the host to probe over HTTP from a resolved
// target, stripping any user@ prefix.
func apiHostname(target string) string {
	if target == "" {
		return "localhost"
	}
	for i := 0; i < len(target); i++ {
		if target[i] == '@' {
			return target[i+1:]
		}
	}
	return target
}

// runWithSpinner runs fn while a spinner ticks on the terminal.
func runWithSpinner(label string, fn func() error) error {
	spinner := NewSpinner(label)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Print("\r\033[K")
				return
			case <-ticker.C:
				fmt.Print(spinner.Next())
			}
		}
	}()

	err := fn()
	close(done)
	time.Sleep(120 * time.Millisecond)
	return err
}
