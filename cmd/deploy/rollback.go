package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/precision.report/internal/deploy"
)

// Rollback restores the newest on-host backup taken by upgrade.
type Rollback struct {
	Station deploy.Station
	Exec    *deploy.Executor
	Yes     bool
}

// Execute performs the rollback
func (r *Rollback) Execute() error {
	fmt.Println("Starting rollback to previous version...")

	// Step 1: Find most recent backup
	backupDir, err := r.findLatestBackup()
	if err != nil {
		return fmt.Errorf("failed to find backup: %w", err)
	}

	fmt.Printf("Found backup: %s\n", backupDir)

	// Step 2: Confirm rollback
	if !r.Yes && !r.Exec.DryRun {
		fmt.Print("Are you sure you want to rollback? This will stop the service and restore the backup. [y/N]: ")
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	// Step 3: Stop service
	if err := r.stopService(); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	// Step 4: Restore binary
	if err := r.restoreBinary(backupDir); err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}

	// Step 5: Optionally restore database
	if err := r.restoreDatabase(backupDir); err != nil {
		fmt.Printf("Warning: could not restore database: %v\n", err)
	}

	// Step 6: Start service
	if err := r.startService(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Step 7: Verify service is healthy
	if err := r.verifyHealth(); err != nil {
		return fmt.Errorf("health check failed after rollback: %w", err)
	}

	fmt.Println("\n✓ Rollback completed successfully!")
	return nil
}

func (r *Rollback) findLatestBackup() (string, error) {
	fmt.Println("Looking for backups...")

	if r.Exec.DryRun {
		return filepath.Join(r.Station.BackupDir(), "<latest>"), nil
	}

	// Backup directories are named by timestamp, newest first
	output, err := r.Exec.RunSudo(fmt.Sprintf("ls -1t %s/ 2>/dev/null | head -1", r.Station.BackupDir()))
	if err != nil {
		return "", fmt.Errorf("no backups found")
	}

	backupName := strings.TrimSpace(output)
	if backupName == "" {
		return "", fmt.Errorf("no backups found in %s/", r.Station.BackupDir())
	}

	backupDir := filepath.Join(r.Station.BackupDir(), backupName)

	// Verify backup contains a binary
	binaryName := filepath.Base(r.Station.BinaryPath)
	checkOutput, err := r.Exec.RunSudo(fmt.Sprintf("test -f %s/%s && echo 'exists' || echo 'missing'", backupDir, binaryName))
	if err != nil || strings.TrimSpace(checkOutput) != "exists" {
		return "", fmt.Errorf("backup directory exists but binary not found: %s", backupDir)
	}

	return backupDir, nil
}

func (r *Rollback) stopService() error {
	fmt.Println("Stopping service...")

	_, err := r.Exec.RunSudo(fmt.Sprintf("systemctl stop %s", r.Station.UnitName()))
	if err != nil {
		return err
	}

	r.Exec.Run("sleep 2")
	fmt.Println("  ✓ Service stopped")
	return nil
}

func (r *Rollback) restoreBinary(backupDir string) error {
	fmt.Printf("Restoring binary from: %s\n", backupDir)

	backupBinary := filepath.Join(backupDir, filepath.Base(r.Station.BinaryPath))

	_, err := r.Exec.RunSudo(fmt.Sprintf("cp %s %s", backupBinary, r.Station.BinaryPath))
	if err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}

	_, err = r.Exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", r.Station.BinaryPath, r.Station.BinaryPath))
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary restored")
	return nil
}

func (r *Rollback) restoreDatabase(backupDir string) error {
	dbBackup := filepath.Join(backupDir, filepath.Base(r.Station.DatabaseFile()))

	if !r.Exec.DryRun {
		checkOutput, err := r.Exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbBackup))
		if err != nil || strings.TrimSpace(checkOutput) != "exists" {
			fmt.Println("  ⊘ No database backup found, keeping current database")
			return nil
		}
	}

	confirm := "n"
	if r.Yes {
		confirm = "y"
	} else if !r.Exec.DryRun {
		fmt.Print("Database backup found. Restore it? This will replace current data. [y/N]: ")
		fmt.Scanln(&confirm)
	}

	if strings.ToLower(confirm) != "y" {
		fmt.Println("  ⊘ Keeping current database")
		return nil
	}

	fmt.Println("  Restoring database...")

	_, err := r.Exec.RunSudo(fmt.Sprintf("cp %s %s", dbBackup, r.Station.DatabaseFile()))
	if err != nil {
		return err
	}

	owner := r.Station.ServiceUser + ":" + r.Station.ServiceUser
	_, err = r.Exec.RunSudo(fmt.Sprintf("chown %s %s", owner, r.Station.DatabaseFile()))
	if err != nil {
		return err
	}

	fmt.Println("  ✓ Database restored")
	return nil
}

func (r *Rollback) startService() error {
	fmt.Println("Starting service...")

	_, err := r.Exec.RunSudo(fmt.Sprintf("systemctl start %s", r.Station.UnitName()))
	if err != nil {
		return err
	}

	r.Exec.Run("sleep 3")
	fmt.Println("  ✓ Service started")
	return nil
}

func (r *Rollback) verifyHealth() error {
	fmt.Println("Verifying service health...")

	if r.Exec.DryRun {
		return nil
	}

	output, err := r.Exec.Run(fmt.Sprintf("systemctl is-active %s", r.Station.UnitName()))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service is not active")
	}

	fmt.Println("  ✓ Service is running")
	return nil
}
