package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/banshee-data/precision.report/internal/deploy"
)

// Installer provisions a capture station: service user, directory tree,
// binary, default tuning config, and systemd unit.
type Installer struct {
	Station    deploy.Station
	Exec       *deploy.Executor
	BinaryPath string
	DBPath     string
}

// Install performs the installation
func (i *Installer) Install() error {
	fmt.Printf("Starting installation of %s...\n", i.Station.ServiceName)

	// Step 1: Validate binary exists
	if err := i.validateBinary(); err != nil {
		return fmt.Errorf("binary validation failed: %w", err)
	}

	// Step 2: Check if already installed
	if installed, err := i.checkExisting(); err != nil {
		return fmt.Errorf("failed to check existing installation: %w", err)
	} else if installed {
		fmt.Printf("%s is already installed. Use 'upgrade' command to update.\n", i.Station.ServiceName)
		return nil
	}

	// Step 3: Create service user
	if err := i.createServiceUser(); err != nil {
		return fmt.Errorf("failed to create service user: %w", err)
	}

	// Step 4: Create directories
	if err := i.createDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Step 5: Install binary
	if err := i.installBinary(); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}

	// Step 6: Write tuning config
	if err := i.writeTuningConfig(); err != nil {
		return fmt.Errorf("failed to write tuning config: %w", err)
	}

	// Step 7: Seed database if provided
	if i.DBPath != "" {
		if err := i.seedDatabase(); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	// Step 8: Install systemd unit
	if err := i.installUnit(); err != nil {
		return fmt.Errorf("failed to install service: %w", err)
	}

	// Step 9: Start service
	if err := i.startService(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	fmt.Println("\n✓ Installation completed successfully!")
	fmt.Println("\nUseful commands:")
	fmt.Println("  Check status:  precision-deploy status")
	fmt.Println("  Health check:  precision-deploy health")
	fmt.Printf("  View logs:     sudo journalctl -u %s -f\n", i.Station.UnitName())

	return nil
}

func (i *Installer) validateBinary() error {
	fmt.Printf("Validating binary: %s\n", i.BinaryPath)

	info, err := os.Stat(i.BinaryPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("binary not found: %s", i.BinaryPath)
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("binary path is a directory: %s", i.BinaryPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("binary is empty: %s", i.BinaryPath)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary is not executable: %s", i.BinaryPath)
	}

	fmt.Println("  ✓ Binary validated")
	return nil
}

func (i *Installer) checkExisting() (bool, error) {
	fmt.Println("Checking for existing installation...")

	output, err := i.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", i.Station.UnitPath()))
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(output) == "exists" {
		return true, nil
	}

	fmt.Println("  ✓ No existing installation found")
	return false, nil
}

func (i *Installer) createServiceUser() error {
	fmt.Printf("Creating service user '%s'...\n", i.Station.ServiceUser)

	output, err := i.Exec.Run(fmt.Sprintf("id -u %s >/dev/null 2>&1 && echo 'exists' || echo 'not found'", i.Station.ServiceUser))
	if err != nil {
		return err
	}
	if strings.TrimSpace(output) == "exists" {
		fmt.Printf("  ✓ User '%s' already exists\n", i.Station.ServiceUser)
		return nil
	}

	_, err = i.Exec.RunSudo(fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s", i.Station.ServiceUser))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("  ✓ User '%s' created\n", i.Station.ServiceUser)
	return nil
}

func (i *Installer) createDirectories() error {
	fmt.Printf("Creating data directory: %s\n", i.Station.DataDir)

	// The config dir stays root-owned; the daemon only reads it.
	owner := i.Station.ServiceUser + ":" + i.Station.ServiceUser
	_, err := i.Exec.RunSudo(fmt.Sprintf("mkdir -p %s %s %s && chown %s %s %s",
		i.Station.DataDir, i.Station.BackupDir(), i.Station.ConfigDir,
		owner, i.Station.DataDir, i.Station.BackupDir()))
	if err != nil {
		return err
	}

	fmt.Println("  ✓ Directories created")
	return nil
}

func (i *Installer) installBinary() error {
	fmt.Printf("Installing binary to %s...\n", i.Station.BinaryPath)

	if err := i.Exec.CopyFile(i.BinaryPath, i.Station.BinaryPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}

	_, err := i.Exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", i.Station.BinaryPath, i.Station.BinaryPath))
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary installed")
	return nil
}

func (i *Installer) writeTuningConfig() error {
	fmt.Printf("Writing tuning config to %s...\n", i.Station.ConfigFile())

	// A reinstall keeps site tuning intact.
	output, err := i.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", i.Station.ConfigFile()))
	if err != nil {
		return err
	}
	if strings.TrimSpace(output) == "exists" {
		fmt.Println("  ✓ Keeping existing tuning config")
		return nil
	}

	tempFile := "/tmp/precision-tuning.json"
	if err := i.Exec.WriteFile(tempFile, deploy.DefaultTuningJSON); err != nil {
		return fmt.Errorf("failed to write tuning config: %w", err)
	}
	_, err = i.Exec.RunSudo(fmt.Sprintf("mv %s %s && chmod 0644 %s", tempFile, i.Station.ConfigFile(), i.Station.ConfigFile()))
	if err != nil {
		return fmt.Errorf("failed to install tuning config: %w", err)
	}

	fmt.Println("  ✓ Default tuning config written")
	return nil
}

func (i *Installer) seedDatabase() error {
	fmt.Printf("Seeding database from: %s\n", i.DBPath)

	if err := i.Exec.CopyFile(i.DBPath, i.Station.DatabaseFile()); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}

	_, err := i.Exec.RunSudo(fmt.Sprintf("chown %s:%s %s", i.Station.ServiceUser, i.Station.ServiceUser, i.Station.DatabaseFile()))
	if err != nil {
		return fmt.Errorf("failed to set database ownership: %w", err)
	}

	fmt.Println("  ✓ Database seeded")
	return nil
}

func (i *Installer) installUnit() error {
	fmt.Println("Installing systemd service...")

	tempFile := "/tmp/precision.service"
	if err := i.Exec.WriteFile(tempFile, i.Station.UnitFile()); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	_, err := i.Exec.RunSudo(fmt.Sprintf("mv %s %s", tempFile, i.Station.UnitPath()))
	if err != nil {
		return fmt.Errorf("failed to install service file: %w", err)
	}

	_, err = i.Exec.RunSudo("systemctl daemon-reload")
	if err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}

	_, err = i.Exec.RunSudo(fmt.Sprintf("systemctl enable %s", i.Station.UnitName()))
	if err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}

	fmt.Println("  ✓ Service installed and enabled")
	return nil
}

func (i *Installer) startService() error {
	fmt.Printf("Starting %s...\n", i.Station.UnitName())

	_, err := i.Exec.RunSudo(fmt.Sprintf("systemctl start %s", i.Station.UnitName()))
	if err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	if i.Exec.DryRun {
		return nil
	}

	// Give systemd a moment before polling
	i.Exec.Run("sleep 2")

	output, err := i.Exec.Run(fmt.Sprintf("systemctl is-active %s", i.Station.UnitName()))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service failed to start properly (state: %s)", strings.TrimSpace(output))
	}

	fmt.Println("  ✓ Service started successfully")
	return nil
}
