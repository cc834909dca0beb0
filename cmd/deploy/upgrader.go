package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/precision.report/internal/deploy"
)

// Service management timing constants
const (
	// serviceStopGracePeriod is the time to wait after stopping the service
	// to allow systemd to fully terminate the process
	serviceStopGracePeriod = 2 * time.Second
	// serviceStartGracePeriod is the time to wait after starting the service
	// to allow it to initialize and be ready for health checks
	serviceStartGracePeriod = 3 * time.Second
)

// Upgrader replaces the binary on an installed station, backing up the
// old one and running schema migrations on the way.
type Upgrader struct {
	Station    deploy.Station
	Exec       *deploy.Executor
	BinaryPath string
	NoBackup   bool
	NoMigrate  bool
}

// Upgrade performs the upgrade
func (u *Upgrader) Upgrade() error {
	fmt.Printf("Starting upgrade of %s...\n", u.Station.ServiceName)

	// Step 1: Check if service is installed
	if installed, err := u.checkInstalled(); err != nil {
		return fmt.Errorf("failed to check installation: %w", err)
	} else if !installed {
		return fmt.Errorf("%s is not installed. Use 'install' command first", u.Station.ServiceName)
	}

	// Step 2: Get current version info
	currentVersion, err := u.getCurrentVersion()
	if err != nil {
		fmt.Printf("Warning: could not determine current version: %v\n", err)
		currentVersion = "unknown"
	}
	fmt.Printf("Current version: %s\n", currentVersion)

	// Step 3: Backup current installation
	if !u.NoBackup {
		if err := u.backupCurrent(); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
	} else {
		fmt.Println("Skipping backup (--no-backup flag set)")
	}

	// Step 4: Stop service
	if err := u.stopService(); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	// Step 5: Install new binary
	if err := u.installNewBinary(); err != nil {
		return fmt.Errorf("failed to install new binary: %w", err)
	}

	// Step 6: Run schema migrations with the new binary
	if !u.NoMigrate {
		if err := u.runMigrations(); err != nil {
			fmt.Println("\n⚠ Warning: Migration failed, service has not been restarted!")
			fmt.Println("You may want to rollback using: precision-deploy rollback")
			return fmt.Errorf("migration failed: %w", err)
		}
	} else {
		fmt.Println("Skipping migrations (--no-migrate flag set)")
	}

	// Step 7: Start service
	if err := u.startService(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Step 8: Verify service is healthy
	if err := u.verifyHealth(); err != nil {
		fmt.Println("\n⚠ Warning: Service health check failed!")
		fmt.Println("You may want to rollback using: precision-deploy rollback")
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("\n✓ Upgrade completed successfully!")
	return nil
}

func (u *Upgrader) checkInstalled() (bool, error) {
	if u.Exec.DryRun {
		return true, nil
	}

	output, err := u.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", u.Station.UnitPath()))
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(output) == "exists", nil
}

func (u *Upgrader) getCurrentVersion() (string, error) {
	if u.Exec.DryRun {
		return "unknown", nil
	}

	output, err := u.Exec.Run(fmt.Sprintf("%s --version 2>&1 || echo 'unknown'", u.Station.BinaryPath))
	if err != nil {
		return "unknown", err
	}

	version := strings.TrimSpace(output)
	if version == "" || strings.Contains(version, "unknown") {
		// Fall back to the binary's modification time
		timeOutput, err := u.Exec.Run(fmt.Sprintf("stat -c %%Y %s 2>/dev/null || echo '0'", u.Station.BinaryPath))
		if err == nil && strings.TrimSpace(timeOutput) != "0" {
			return fmt.Sprintf("installed-%s", strings.TrimSpace(timeOutput)), nil
		}
		return "unknown", nil
	}

	return version, nil
}

func (u *Upgrader) backupCurrent() error {
	fmt.Println("Backing up current installation...")

	timestamp := time.Now().Format("20060102-150405")
	backupDir := filepath.Join(u.Station.BackupDir(), timestamp)
	owner := u.Station.ServiceUser + ":" + u.Station.ServiceUser

	_, err := u.Exec.RunSudo(fmt.Sprintf("mkdir -p %s", backupDir))
	if err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Backup binary
	debugLog("Backing up binary from %s to %s", u.Station.BinaryPath, backupDir)
	output, err := u.Exec.RunSudo(fmt.Sprintf("cp %s %s/", u.Station.BinaryPath, backupDir))
	if err != nil {
		return fmt.Errorf("failed to backup binary to %s: %w (output: %s)", backupDir, err, output)
	}

	// Backup database and tuning config if present
	dbPath := u.Station.DatabaseFile()
	output, err = u.Exec.RunSudo(fmt.Sprintf("test -f %s && cp %s %s/ || true", dbPath, dbPath, backupDir))
	if err != nil {
		fmt.Printf("Warning: could not backup database: %v (output: %s)\n", err, output)
	}
	confPath := u.Station.ConfigFile()
	output, err = u.Exec.RunSudo(fmt.Sprintf("test -f %s && cp %s %s/ || true", confPath, confPath, backupDir))
	if err != nil {
		fmt.Printf("Warning: could not backup tuning config: %v (output: %s)\n", err, output)
	}

	_, err = u.Exec.RunSudo(fmt.Sprintf("chown -R %s %s", owner, backupDir))
	if err != nil {
		fmt.Printf("Warning: could not set backup ownership: %v\n", err)
	}

	// Save version info
	versionInfo := fmt.Sprintf("Backup created: %s\nBinary: %s\n", timestamp, u.Station.BinaryPath)
	versionFile := "/tmp/precision-backup-version.txt"
	if err := u.Exec.WriteFile(versionFile, versionInfo); err == nil {
		u.Exec.RunSudo(fmt.Sprintf("mv %s %s/version.txt", versionFile, backupDir))
	} else {
		fmt.Printf("Warning: could not write version info: %v\n", err)
	}

	fmt.Printf("  ✓ Backup saved to: %s\n", backupDir)
	return nil
}

func (u *Upgrader) stopService() error {
	fmt.Println("Stopping service...")

	_, err := u.Exec.RunSudo(fmt.Sprintf("systemctl stop %s", u.Station.UnitName()))
	if err != nil {
		return err
	}

	u.Exec.Run(fmt.Sprintf("sleep %d", int(serviceStopGracePeriod.Seconds())))

	fmt.Println("  ✓ Service stopped")
	return nil
}

func (u *Upgrader) installNewBinary() error {
	fmt.Printf("Installing new binary from: %s\n", u.BinaryPath)

	tempPath := "/tmp/precision-new"
	if err := u.Exec.CopyFile(u.BinaryPath, tempPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}

	_, err := u.Exec.RunSudo(fmt.Sprintf("mv %s %s", tempPath, u.Station.BinaryPath))
	if err != nil {
		return fmt.Errorf("failed to move binary: %w", err)
	}

	_, err = u.Exec.RunSudo(fmt.Sprintf("chown root:root %s", u.Station.BinaryPath))
	if err != nil {
		return fmt.Errorf("failed to set ownership: %w", err)
	}

	_, err = u.Exec.RunSudo(fmt.Sprintf("chmod 0755 %s", u.Station.BinaryPath))
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ New binary installed")
	return nil
}

// runMigrations brings the schema up to date while the service is
// stopped. Stations without a migrations directory skip this; their
// databases are baselined by the daemon itself.
func (u *Upgrader) runMigrations() error {
	fmt.Println("Running database migrations...")

	dir := u.Station.MigrationsDir()
	migrateCmd := fmt.Sprintf("sudo -u %s %s -db %s -migrations-dir %s migrate up",
		u.Station.ServiceUser, u.Station.BinaryPath, u.Station.DatabaseFile(), dir)

	if u.Exec.DryRun {
		u.Exec.Run(migrateCmd)
		return nil
	}

	output, err := u.Exec.Run(fmt.Sprintf("test -d %s && echo 'exists' || echo 'not found'", dir))
	if err != nil {
		return err
	}
	if strings.TrimSpace(output) != "exists" {
		fmt.Println("  ✓ No migrations directory on host, skipping")
		return nil
	}

	output, err = u.Exec.Run(migrateCmd)
	if err != nil {
		return fmt.Errorf("migrate up failed: %w (output: %s)", err, output)
	}

	fmt.Println("  ✓ Migrations applied")
	return nil
}

func (u *Upgrader) startService() error {
	fmt.Println("Starting service...")

	_, err := u.Exec.RunSudo(fmt.Sprintf("systemctl start %s", u.Station.UnitName()))
	if err != nil {
		return err
	}

	u.Exec.Run(fmt.Sprintf("sleep %d", int(serviceStartGracePeriod.Seconds())))

	fmt.Println("  ✓ Service started")
	return nil
}

func (u *Upgrader) verifyHealth() error {
	fmt.Println("Verifying service health...")

	if u.Exec.DryRun {
		return nil
	}

	output, err := u.Exec.Run(fmt.Sprintf("systemctl is-active %s", u.Station.UnitName()))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service is not active")
	}

	url := fmt.Sprintf("http://localhost%s/health", u.Station.ListenAddr)
	output, err = u.Exec.Run(fmt.Sprintf("curl -fsS --max-time 5 %s || true", url))
	if err == nil && strings.Contains(output, `"status"`) && !strings.Contains(output, `"ok"`) {
		return fmt.Errorf("health endpoint reports: %s", strings.TrimSpace(output))
	}

	fmt.Println("  ✓ Service is running")
	return nil
}
