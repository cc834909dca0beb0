package main

import (
	"fmt"
	"strings"

	"github.com/banshee-data/precision.report/internal/deploy"
)

// Fixer repairs a broken installation in place.
type Fixer struct {
	Station    deploy.Station
	Exec       *deploy.Executor
	BinaryPath string
}

// repair pairs a check with the action that puts it right.
type repair struct {
	label string
	check func() error
	fix   func() error
}

// Later repairs assume earlier ones hold, so order matters: user before
// directories, unit before enable.
func (f *Fixer) repairs() []repair {
	return []repair{
		{"Service user", f.checkServiceUser, f.fixServiceUser},
		{"Directories", f.checkDirectories, f.fixDirectories},
		{"Binary", f.checkBinary, f.fixBinary},
		{"Tuning config", f.checkTuningConfig, f.fixTuningConfig},
		{"Systemd unit", f.checkUnit, f.fixUnit},
		{"Service enabled", f.checkEnabled, f.fixEnabled},
		{"Database ownership", f.checkDatabaseOwnership, f.fixDatabaseOwnership},
	}
}

// Fix performs a comprehensive repair of the installation
func (f *Fixer) Fix() error {
	fmt.Println("🔧 Starting installation repair...")

	issues := 0
	fixed := 0

	for _, r := range f.repairs() {
		err := r.check()
		if err == nil {
			fmt.Printf("✅ %s OK\n", r.label)
			continue
		}

		fmt.Printf("❌ %s: %v\n", r.label, err)
		fmt.Println("   Attempting to fix...")
		if fixErr := r.fix(); fixErr != nil {
			fmt.Printf("   ⚠️  Could not fix: %v\n\n", fixErr)
			issues++
		} else {
			fmt.Println("   ✅ Fixed")
			fixed++
		}
	}

	// Summary
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if issues == 0 {
		fmt.Println("✅ All checks passed! Installation is healthy.")
		if fixed > 0 {
			fmt.Printf("   Repaired %d issue(s)\n", fixed)
		}
	} else {
		fmt.Printf("⚠️  %d issue(s) remain. See details above.\n", issues)
		if fixed > 0 {
			fmt.Printf("   Successfully repaired %d issue(s)\n", fixed)
		}
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Try to start the service once everything critical passes
	if issues == 0 {
		fmt.Println("\n🚀 Attempting to start service...")
		if err := f.startService(); err != nil {
			fmt.Printf("⚠️  Could not start service: %v\n", err)
			fmt.Printf("   Check logs with: sudo journalctl -u %s -n 50\n", f.Station.UnitName())
		} else {
			fmt.Println("✅ Service started successfully")
		}
	}

	if issues > 0 {
		return fmt.Errorf("%d issue(s) could not be fixed", issues)
	}
	return nil
}

func (f *Fixer) checkServiceUser() error {
	debugLog("Checking if service user '%s' exists", f.Station.ServiceUser)
	output, err := f.Exec.Run(fmt.Sprintf("id -u %s >/dev/null 2>&1 && echo 'exists' || echo 'not found'", f.Station.ServiceUser))
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if strings.TrimSpace(output) != "exists" {
		return fmt.Errorf("user '%s' does not exist", f.Station.ServiceUser)
	}
	return nil
}

func (f *Fixer) fixServiceUser() error {
	debugLog("Creating service user '%s'", f.Station.ServiceUser)
	output, err := f.Exec.RunSudo(fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s 2>&1 || true", f.Station.ServiceUser))
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if strings.Contains(output, "already exists") {
		debugLog("User already exists, continuing")
		return nil
	}
	if f.Exec.DryRun {
		return nil
	}
	return f.checkServiceUser()
}

func (f *Fixer) checkDirectories() error {
	debugLog("Checking data directory %s", f.Station.DataDir)
	for _, dir := range []string{f.Station.DataDir, f.Station.ConfigDir} {
		output, err := f.Exec.Run(fmt.Sprintf("test -d %s && echo 'exists' || echo 'not found'", dir))
		if err != nil {
			return fmt.Errorf("failed to check directory: %w", err)
		}
		if strings.TrimSpace(output) != "exists" {
			return fmt.Errorf("directory %s does not exist", dir)
		}
	}

	debugLog("Checking data directory ownership (expecting %s)", f.Station.ServiceUser)
	ownerOutput, err := f.Exec.Run(fmt.Sprintf("stat -c '%%U:%%G' %s 2>/dev/null", f.Station.DataDir))
	if err == nil && !strings.Contains(ownerOutput, f.Station.ServiceUser) {
		return fmt.Errorf("data directory has incorrect ownership: %s", strings.TrimSpace(ownerOutput))
	}
	return nil
}

func (f *Fixer) fixDirectories() error {
	debugLog("Creating and fixing directories")
	owner := f.Station.ServiceUser + ":" + f.Station.ServiceUser
	_, err := f.Exec.RunSudo(fmt.Sprintf("mkdir -p %s %s %s && chown -R %s %s",
		f.Station.DataDir, f.Station.BackupDir(), f.Station.ConfigDir, owner, f.Station.DataDir))
	return err
}

func (f *Fixer) checkBinary() error {
	debugLog("Checking binary %s", f.Station.BinaryPath)
	output, err := f.Exec.Run(fmt.Sprintf("test -x %s && echo 'ok' || echo 'missing'", f.Station.BinaryPath))
	if err != nil {
		return fmt.Errorf("failed to check binary: %w", err)
	}
	if strings.TrimSpace(output) != "ok" {
		return fmt.Errorf("binary missing or not executable at %s", f.Station.BinaryPath)
	}
	return nil
}

func (f *Fixer) fixBinary() error {
	if f.BinaryPath == "" {
		return fmt.Errorf("no local binary provided (use --binary)")
	}
	debugLog("Installing binary from %s", f.BinaryPath)
	if err := f.Exec.CopyFile(f.BinaryPath, f.Station.BinaryPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}
	_, err := f.Exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", f.Station.BinaryPath, f.Station.BinaryPath))
	return err
}

func (f *Fixer) checkTuningConfig() error {
	debugLog("Checking tuning config %s", f.Station.ConfigFile())
	output, err := f.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", f.Station.ConfigFile()))
	if err != nil {
		return fmt.Errorf("failed to check tuning config: %w", err)
	}
	if strings.TrimSpace(output) != "exists" {
		return fmt.Errorf("tuning config missing at %s", f.Station.ConfigFile())
	}
	return nil
}

func (f *Fixer) fixTuningConfig() error {
	debugLog("Writing default tuning config")
	tempFile := "/tmp/precision-tuning.json"
	if err := f.Exec.WriteFile(tempFile, deploy.DefaultTuningJSON); err != nil {
		return err
	}
	_, err := f.Exec.RunSudo(fmt.Sprintf("mv %s %s && chmod 0644 %s", tempFile, f.Station.ConfigFile(), f.Station.ConfigFile()))
	return err
}

func (f *Fixer) checkUnit() error {
	debugLog("Checking systemd unit %s", f.Station.UnitPath())
	output, err := f.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", f.Station.UnitPath()))
	if err != nil {
		return fmt.Errorf("failed to check unit file: %w", err)
	}
	if strings.TrimSpace(output) != "exists" {
		return fmt.Errorf("unit file missing at %s", f.Station.UnitPath())
	}
	return nil
}

func (f *Fixer) fixUnit() error {
	debugLog("Writing systemd unit")
	tempFile := "/tmp/precision.service"
	if err := f.Exec.WriteFile(tempFile, f.Station.UnitFile()); err != nil {
		return err
	}
	if _, err := f.Exec.RunSudo(fmt.Sprintf("mv %s %s", tempFile, f.Station.UnitPath())); err != nil {
		return err
	}
	_, err := f.Exec.RunSudo("systemctl daemon-reload")
	return err
}

func (f *Fixer) checkEnabled() error {
	debugLog("Checking whether %s is enabled", f.Station.UnitName())
	output, err := f.Exec.Run(fmt.Sprintf("systemctl is-enabled %s 2>/dev/null || true", f.Station.UnitName()))
	if err != nil {
		return fmt.Errorf("failed to check enablement: %w", err)
	}
	if strings.TrimSpace(output) != "enabled" {
		return fmt.Errorf("service is not enabled")
	}
	return nil
}

func (f *Fixer) fixEnabled() error {
	_, err := f.Exec.RunSudo(fmt.Sprintf("systemctl enable %s", f.Station.UnitName()))
	return err
}

// checkDatabaseOwnership only complains about an existing database the
// daemon cannot write. A missing database is normal: the daemon creates
// it on first start.
func (f *Fixer) checkDatabaseOwnership() error {
	dbPath := f.Station.DatabaseFile()
	debugLog("Checking database %s", dbPath)
	output, err := f.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", dbPath))
	if err != nil {
		return fmt.Errorf("failed to check database: %w", err)
	}
	if strings.TrimSpace(output) != "exists" {
		return nil
	}

	ownerOutput, err := f.Exec.Run(fmt.Sprintf("stat -c '%%U' %s 2>/dev/null", dbPath))
	if err == nil && strings.TrimSpace(ownerOutput) != f.Station.ServiceUser && !f.Exec.DryRun {
		return fmt.Errorf("database owned by %s, expected %s", strings.TrimSpace(ownerOutput), f.Station.ServiceUser)
	}
	return nil
}

func (f *Fixer) fixDatabaseOwnership() error {
	owner := f.Station.ServiceUser + ":" + f.Station.ServiceUser
	_, err := f.Exec.RunSudo(fmt.Sprintf("chown %s %s*", owner, f.Station.DatabaseFile()))
	return err
}

func (f *Fixer) startService() error {
	if _, err := f.Exec.RunSudo(fmt.Sprintf("systemctl restart %s", f.Station.UnitName())); err != nil {
		return err
	}
	if f.Exec.DryRun {
		return nil
	}

	f.Exec.Run("sleep 2")

	output, err := f.Exec.Run(fmt.Sprintf("systemctl is-active %s", f.Station.UnitName()))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service did not reach active state")
	}
	return nil
}
