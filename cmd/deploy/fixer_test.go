package main

import (
	"strings"
	"testing"

	"github.com/banshee-data/precision.report/internal/deploy"
)

// healthyStation scripts every repair check to pass.
func healthyStation(cmd string) *deploy.MockRunner {
	r := &deploy.MockRunner{}
	switch {
	case strings.Contains(cmd, "id -u"):
		r.Output = []byte("exists\n")
	case strings.Contains(cmd, "test -d"):
		r.Output = []byte("exists\n")
	case strings.Contains(cmd, "stat -c '%U:%G'"):
		r.Output = []byte("precision:precision\n")
	case strings.Contains(cmd, "test -x"):
		r.Output = []byte("ok\n")
	case strings.Contains(cmd, "tuning.json && echo"):
		r.Output = []byte("exists\n")
	case strings.Contains(cmd, "precision.service && echo"):
		r.Output = []byte("exists\n")
	case strings.Contains(cmd, "is-enabled"):
		r.Output = []byte("enabled\n")
	case strings.Contains(cmd, "precision.db && echo"):
		r.Output = []byte("exists\n")
	case strings.Contains(cmd, "stat -c '%U'"):
		r.Output = []byte("precision\n")
	case strings.Contains(cmd, "is-active"):
		r.Output = []byte("active\n")
	}
	return r
}

func TestFixer_Fix_HealthyStation(t *testing.T) {
	exec, builder := scriptedExec(healthyStation)

	fixer := &Fixer{Station: deploy.DefaultStation(), Exec: exec}

	if err := fixer.Fix(); err != nil {
		t.Fatalf("Fix() error: %v", err)
	}
	if got := commandsContaining(builder, "useradd"); len(got) != 0 {
		t.Errorf("fix attempted on a healthy station: %v", got)
	}
	if len(commandsContaining(builder, "systemctl restart precision.service")) == 0 {
		t.Error("service was not restarted after the repair pass")
	}
}

func TestFixer_Fix_RepairsMissingPieces(t *testing.T) {
	idChecks := 0
	exec, builder := scriptedExec(func(cmd string) *deploy.MockRunner {
		if strings.Contains(cmd, "id -u") {
			idChecks++
			if idChecks == 1 {
				return &deploy.MockRunner{Output: []byte("not found\n")}
			}
			return &deploy.MockRunner{Output: []byte("exists\n")}
		}
		if strings.Contains(cmd, "tuning.json && echo") {
			return &deploy.MockRunner{Output: []byte("not found\n")}
		}
		return healthyStation(cmd)
	})

	fixer := &Fixer{Station: deploy.DefaultStation(), Exec: exec}

	if err := fixer.Fix(); err != nil {
		t.Fatalf("Fix() error: %v", err)
	}
	if len(commandsContaining(builder, "useradd --system")) == 0 {
		t.Error("missing service user was not created")
	}
	if len(commandsContaining(builder, "mv /tmp/precision-tuning.json /etc/precision/tuning.json")) == 0 {
		t.Error("missing tuning config was not installed")
	}
	if idChecks < 2 {
		t.Errorf("service user was not re-checked after the fix, %d checks", idChecks)
	}
}

func TestFixer_Fix_UnfixableWithoutBinary(t *testing.T) {
	exec, builder := scriptedExec(func(cmd string) *deploy.MockRunner {
		if strings.Contains(cmd, "test -x") {
			return &deploy.MockRunner{Output: []byte("missing\n")}
		}
		return healthyStation(cmd)
	})

	fixer := &Fixer{Station: deploy.DefaultStation(), Exec: exec}

	err := fixer.Fix()
	if err == nil || !strings.Contains(err.Error(), "could not be fixed") {
		t.Fatalf("Fix() error = %v, want unfixed-issue error", err)
	}
	if got := commandsContaining(builder, "systemctl restart"); len(got) != 0 {
		t.Errorf("service restart attempted with outstanding issues: %v", got)
	}
}
