package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/precision.report/internal/deploy"
)

// Backup pulls a station's binary, database, and configuration down to
// this machine.
type Backup struct {
	Station   deploy.Station
	Exec      *deploy.Executor
	OutputDir string
}

// Execute performs the backup
func (b *Backup) Execute() error {
	fmt.Printf("Starting backup of %s...\n", b.Station.ServiceName)

	timestamp := time.Now().Format("20060102-150405")
	backupName := fmt.Sprintf("precision-backup-%s", timestamp)

	// Step 1: Create local backup directory
	localBackupDir := filepath.Join(b.OutputDir, backupName)
	if err := os.MkdirAll(localBackupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	fmt.Printf("Backup directory: %s\n", localBackupDir)

	// Step 2: Backup binary
	if err := b.backupBinary(localBackupDir); err != nil {
		return fmt.Errorf("failed to backup binary: %w", err)
	}

	// Step 3: Backup database
	if err := b.backupDatabase(localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup database: %v\n", err)
	}

	// Step 4: Backup tuning config and unit file
	if err := b.backupConfig(localBackupDir); err != nil {
		fmt.Printf("Warning: could not backup config: %v\n", err)
	}

	// Step 5: Create metadata file
	if err := b.createMetadata(localBackupDir, timestamp); err != nil {
		fmt.Printf("Warning: could not create metadata: %v\n", err)
	}

	fmt.Printf("\n✓ Backup completed successfully!\n")
	fmt.Printf("Backup saved to: %s\n", localBackupDir)

	return nil
}

// pullFile copies a root-readable file off the target. It stages
// through /tmp with relaxed permissions so the ssh user can read it.
func (b *Backup) pullFile(remotePath, localDest string) error {
	staging := "/tmp/precision-pull-" + filepath.Base(remotePath)

	if _, err := b.Exec.RunSudo(fmt.Sprintf("cp %s %s && chmod 644 %s", remotePath, staging, staging)); err != nil {
		return err
	}
	defer b.Exec.Run("rm -f " + staging)

	return b.Exec.FetchFile(staging, localDest)
}

func (b *Backup) backupBinary(backupDir string) error {
	fmt.Println("Backing up binary...")

	binaryDest := filepath.Join(backupDir, filepath.Base(b.Station.BinaryPath))
	if err := b.pullFile(b.Station.BinaryPath, binaryDest); err != nil {
		return err
	}

	fmt.Println("  ✓ Binary backed up")
	return nil
}

func (b *Backup) backupDatabase(backupDir string) error {
	fmt.Println("Backing up database...")

	dbPath := b.Station.DatabaseFile()
	checkOutput, err := b.Exec.RunSudo(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbPath))
	if err != nil || strings.TrimSpace(checkOutput) == "missing" {
		fmt.Println("  ⊘ No database found")
		return nil
	}

	dbDest := filepath.Join(backupDir, filepath.Base(dbPath))
	if err := b.pullFile(dbPath, dbDest); err != nil {
		return err
	}

	if info, err := os.Stat(dbDest); err == nil {
		fmt.Printf("  ✓ Database backed up (%.1f MB)\n", float64(info.Size())/(1<<20))
	} else {
		fmt.Println("  ✓ Database backed up")
	}
	return nil
}

func (b *Backup) backupConfig(backupDir string) error {
	fmt.Println("Backing up configuration...")

	confDest := filepath.Join(backupDir, filepath.Base(b.Station.ConfigFile()))
	if err := b.pullFile(b.Station.ConfigFile(), confDest); err != nil {
		fmt.Printf("  ⊘ No tuning config: %v\n", err)
	} else {
		fmt.Println("  ✓ Tuning config backed up")
	}

	unitDest := filepath.Join(backupDir, b.Station.UnitName())
	if err := b.pullFile(b.Station.UnitPath(), unitDest); err != nil {
		return err
	}

	fmt.Println("  ✓ Service file backed up")
	return nil
}

func (b *Backup) createMetadata(backupDir, timestamp string) error {
	fmt.Println("Creating backup metadata...")

	versionOutput, _ := b.Exec.Run(fmt.Sprintf("%s --version 2>&1 || echo 'unknown'", b.Station.BinaryPath))
	statusOutput, _ := b.Exec.Run(fmt.Sprintf("systemctl is-active %s 2>&1 || echo 'unknown'", b.Station.UnitName()))

	target := b.Exec.Target
	if target == "" {
		target = "localhost"
	}

	binaryName := filepath.Base(b.Station.BinaryPath)
	dbName := filepath.Base(b.Station.DatabaseFile())
	confName := filepath.Base(b.Station.ConfigFile())

	metadata := fmt.Sprintf(`Precision Station Backup
========================
Timestamp: %s
Target: %s
Binary Version: %s
Service Status: %s

Files included:
- %s (binary)
- %s (database)
- %s (tuning config)
- %s (systemd unit)

To restore this backup:
1. Stop the service: sudo systemctl stop %s
2. Restore binary: sudo cp %s %s
3. Restore database: sudo cp %s %s
4. Restore tuning config: sudo cp %s %s
5. Restore unit: sudo cp %s /etc/systemd/system/
6. Reload systemd: sudo systemctl daemon-reload
7. Start service: sudo systemctl start %s
`, timestamp, target, strings.TrimSpace(versionOutput), strings.TrimSpace(statusOutput),
		binaryName, dbName, confName, b.Station.UnitName(),
		b.Station.UnitName(),
		binaryName, b.Station.BinaryPath,
		dbName, b.Station.DatabaseFile(),
		confName, b.Station.ConfigFile(),
		b.Station.UnitName(),
		b.Station.UnitName())

	metadataFile := filepath.Join(backupDir, "README.txt")
	if err := os.WriteFile(metadataFile, []byte(metadata), 0644); err != nil {
		return err
	}

	fmt.Println("  ✓ Metadata created")
	return nil
}
