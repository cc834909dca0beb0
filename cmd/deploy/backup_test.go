package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/precision.report/internal/deploy"
)

func TestBackup_Execute(t *testing.T) {
	outputDir := t.TempDir()

	exec, builder := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		switch {
		case strings.Contains(cmd, "test -f /var/lib/precision/precision.db"):
			r.Output = []byte("exists\n")
		case strings.Contains(cmd, "--version"):
			r.Output = []byte("precision version 0.1.0\n")
		case strings.Contains(cmd, "is-active"):
			r.Output = []byte("active\n")
		}
		return r
	})

	backup := &Backup{
		Station:   deploy.DefaultStation(),
		Exec:      exec,
		OutputDir: outputDir,
	}

	if err := backup.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	// Binary, database, tuning config, and unit file each come down
	// through a staged scp.
	if got := commandsContaining(builder, "scp "); len(got) != 4 {
		t.Errorf("recorded %d scp fetches, want 4: %v", len(got), got)
	}
	if got := commandsContaining(builder, "rm -f /tmp/precision-pull-"); len(got) != 4 {
		t.Errorf("staging files not cleaned up, %d rm commands: %v", len(got), got)
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one backup directory, got %d", len(entries))
	}
	dirName := entries[0].Name()
	if !strings.HasPrefix(dirName, "precision-backup-") {
		t.Errorf("backup dir = %q, want precision-backup-<timestamp>", dirName)
	}

	content, err := os.ReadFile(filepath.Join(outputDir, dirName, "README.txt"))
	if err != nil {
		t.Fatalf("README.txt not written: %v", err)
	}
	for _, want := range []string{
		"Precision Station Backup",
		"Target: station1.example.com",
		"Binary Version: precision version 0.1.0",
		"Service Status: active",
		"sudo systemctl start precision.service",
	} {
		if !strings.Contains(string(content), want) {
			t.Errorf("README missing %q:\n%s", want, content)
		}
	}
}

func TestBackup_Execute_NoDatabase(t *testing.T) {
	outputDir := t.TempDir()

	exec, builder := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		if strings.Contains(cmd, "test -f /var/lib/precision/precision.db") {
			r.Output = []byte("missing\n")
		}
		return r
	})

	backup := &Backup{
		Station:   deploy.DefaultStation(),
		Exec:      exec,
		OutputDir: outputDir,
	}

	if err := backup.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got := commandsContaining(builder, "cp /var/lib/precision/precision.db"); len(got) != 0 {
		t.Errorf("database pull attempted despite missing file: %v", got)
	}
}

func TestBackup_Execute_BinaryPullFails(t *testing.T) {
	outputDir := t.TempDir()

	exec, _ := scriptedExec(func(cmd string) *deploy.MockRunner {
		r := &deploy.MockRunner{}
		if strings.Contains(cmd, "cp /usr/local/bin/precision /tmp/precision-pull-") {
			r.Err = os.ErrPermission
		}
		return r
	})

	backup := &Backup{
		Station:   deploy.DefaultStation(),
		Exec:      exec,
		OutputDir: outputDir,
	}

	err := backup.Execute()
	if err == nil || !strings.Contains(err.Error(), "failed to backup binary") {
		t.Fatalf("Execute() error = %v, want binary backup failure", err)
	}
}
