package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type testLogger struct {
	lines []string
}

func (l *testLogger) Debugf(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func TestNewExecutor(t *testing.T) {
	e := NewExecutor("host.example.com", "user", "/path/to/key", "/path/to/agent", false)

	if e.Target != "host.example.com" {
		t.Errorf("Target = %s, want host.example.com", e.Target)
	}
	if e.SSHUser != "user" {
		t.Errorf("SSHUser = %s, want user", e.SSHUser)
	}
	if e.SSHKey != "/path/to/key" {
		t.Errorf("SSHKey = %s, want /path/to/key", e.SSHKey)
	}
	if e.IdentityAgent != "/path/to/agent" {
		t.Errorf("IdentityAgent = %s, want /path/to/agent", e.IdentityAgent)
	}
	if e.DryRun {
		t.Error("DryRun should default to false")
	}
}

func TestExecutor_IsLocal(t *testing.T) {
	tests := []struct {
		target   string
		expected bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"", true},
		{"remote.example.com", false},
		{"192.168.1.100", false},
	}

	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			e := NewExecutor(tc.target, "", "", "", false)
			if e.IsLocal() != tc.expected {
				t.Errorf("IsLocal(%q) = %v, want %v", tc.target, e.IsLocal(), tc.expected)
			}
		})
	}
}

func TestExecutor_Run_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	output, err := e.Run("echo hello")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "[DRY-RUN]") {
		t.Errorf("Expected dry-run output, got: %s", output)
	}
	if !strings.Contains(output, "echo hello") {
		t.Errorf("Expected command in output, got: %s", output)
	}
}

func TestExecutor_Run_Local(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	output, err := e.Run("echo hello")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(output) != "hello" {
		t.Errorf("Expected 'hello', got: %s", output)
	}
}

func TestExecutor_Run_LocalError(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	if _, err := e.Run("exit 1"); err == nil {
		t.Error("Expected error for failed command")
	}
}

func TestExecutor_RunSudo_PrependsSudo(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutorWithBuilder("localhost", "", "", "", false, builder)

	if _, err := e.RunSudo("systemctl daemon-reload"); err != nil {
		t.Fatalf("RunSudo failed: %v", err)
	}

	last := builder.LastCommand()
	if last == nil || !last.Shell {
		t.Fatalf("Expected a shell command, got %+v", last)
	}
	if last.Args[1] != "sudo systemctl daemon-reload" {
		t.Errorf("Command = %q, want sudo prefix", last.Args[1])
	}
}

func TestExecutor_RunSudo_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	output, err := e.RunSudo("cat /etc/passwd")

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "[DRY-RUN]") || !strings.Contains(output, "sudo") {
		t.Errorf("Expected sudo dry-run output, got: %s", output)
	}
}

func TestExecutor_Run_RemoteArgv(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutorWithBuilder("remote.example.com", "testuser", "/path/to/key", "/path/to/agent", false, builder)

	if _, err := e.Run("echo hello"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	last := builder.LastCommand()
	if last == nil {
		t.Fatal("No command recorded")
	}
	if last.Name != "ssh" {
		t.Errorf("Name = %s, want ssh", last.Name)
	}

	joined := strings.Join(last.Args, " ")
	for _, want := range []string{
		"-i /path/to/key",
		"IdentityAgent=/path/to/agent",
		"StrictHostKeyChecking=no",
		"testuser@remote.example.com",
		"echo hello",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("ssh argv missing %q: %v", want, last.Args)
		}
	}
}

func TestExecutor_Run_RemoteTargetWithAt(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutorWithBuilder("existing@remote.example.com", "ignored", "", "", false, builder)

	e.Run("true")

	joined := strings.Join(builder.LastCommand().Args, " ")
	if !strings.Contains(joined, "existing@remote.example.com") {
		t.Errorf("Expected target kept as-is, got: %s", joined)
	}
	if strings.Contains(joined, "ignored@") {
		t.Errorf("User prefix should not be added to user@host targets: %s", joined)
	}
}

func TestExecutor_Run_RemoteError(t *testing.T) {
	builder := NewMockCommandBuilder()
	builder.NextRunner = &MockRunner{Output: []byte("permission denied"), Err: fmt.Errorf("exit status 255")}
	e := NewExecutorWithBuilder("remote.example.com", "", "", "", false, builder)

	logger := &testLogger{}
	e.SetLogger(logger)

	if _, err := e.Run("true"); err == nil {
		t.Fatal("Expected error from scripted runner")
	}
	found := false
	for _, line := range logger.lines {
		if strings.Contains(line, "run failed") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected failure debug line, got: %v", logger.lines)
	}
}

func TestExecutor_SetLogger_Nil(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", false)
	e.SetLogger(nil)
	// The no-op default must survive a nil SetLogger.
	if _, err := e.Run("true"); err != nil {
		t.Errorf("Run failed after SetLogger(nil): %v", err)
	}
}

func TestExecutor_CopyFile_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	if err := e.CopyFile("/source/file", "/dest/file"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestExecutor_CopyFile_Local(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "source.txt")
	dstPath := filepath.Join(tmpDir, "dest.txt")

	if err := os.WriteFile(srcPath, []byte("test content"), 0644); err != nil {
		t.Fatalf("Failed to create source file: %v", err)
	}

	e := NewExecutor("localhost", "", "", "", false)
	if err := e.CopyFile(srcPath, dstPath); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	content, err := os.ReadFile(dstPath)
	if err != nil {
		t.Fatalf("Failed to read destination file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("Content = %q, want 'test content'", string(content))
	}
}

func TestExecutor_CopyFile_LocalMissingSrc(t *testing.T) {
	tmpDir := t.TempDir()
	e := NewExecutor("localhost", "", "", "", false)
	err := e.CopyFile(filepath.Join(tmpDir, "nonexistent.txt"), filepath.Join(tmpDir, "dest.txt"))
	if err == nil {
		t.Error("Expected error for missing source file")
	}
}

func TestExecutor_CopyFile_RemoteStagesThroughTmp(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutorWithBuilder("remote.example.com", "pi", "", "", false, builder)

	if err := e.CopyFile("./precision", "/usr/local/bin/precision"); err != nil {
		t.Fatalf("CopyFile failed: %v", err)
	}

	if len(builder.Commands) != 2 {
		t.Fatalf("Expected scp then mv, got %d commands: %+v", len(builder.Commands), builder.Commands)
	}

	scp := builder.Commands[0]
	if scp.Name != "scp" {
		t.Errorf("First command = %s, want scp", scp.Name)
	}
	if !strings.Contains(strings.Join(scp.Args, " "), "pi@remote.example.com:/tmp/precision-copy-") {
		t.Errorf("scp should stage through /tmp: %v", scp.Args)
	}

	mv := builder.Commands[1]
	mvCmd := strings.Join(mv.Args, " ")
	if !strings.Contains(mvCmd, "sudo mv /tmp/precision-copy-") || !strings.Contains(mvCmd, "/usr/local/bin/precision") {
		t.Errorf("Expected sudo mv into place, got: %s", mvCmd)
	}
}

func TestExecutor_FetchFile_RemoteArgv(t *testing.T) {
	builder := NewMockCommandBuilder()
	e := NewExecutorWithBuilder("remote.example.com", "pi", "/key", "", false, builder)

	if err := e.FetchFile("/tmp/staged.db", "./backup/staged.db"); err != nil {
		t.Fatalf("FetchFile failed: %v", err)
	}

	last := builder.LastCommand()
	if last.Name != "scp" {
		t.Fatalf("Name = %s, want scp", last.Name)
	}
	joined := strings.Join(last.Args, " ")
	if !strings.Contains(joined, "pi@remote.example.com:/tmp/staged.db") {
		t.Errorf("Expected remote source in argv: %s", joined)
	}
	if last.Args[len(last.Args)-1] != "./backup/staged.db" {
		t.Errorf("Expected local destination last, got: %v", last.Args)
	}
}

func TestExecutor_FetchFile_Local(t *testing.T) {
	tmpDir := t.TempDir()
	srcPath := filepath.Join(tmpDir, "src.db")
	dstPath := filepath.Join(tmpDir, "dst.db")
	if err := os.WriteFile(srcPath, []byte("db"), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewExecutor("localhost", "", "", "", false)
	if err := e.FetchFile(srcPath, dstPath); err != nil {
		t.Fatalf("FetchFile failed: %v", err)
	}
	if _, err := os.Stat(dstPath); err != nil {
		t.Errorf("Destination missing: %v", err)
	}
}

func TestExecutor_WriteFile_Local(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "test.txt")

	e := NewExecutor("localhost", "", "", "", false)
	if err := e.WriteFile(filePath, "test content"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "test content" {
		t.Errorf("Content = %q, want 'test content'", string(content))
	}
}

func TestExecutor_WriteFile_RemoteSendsStdin(t *testing.T) {
	builder := NewMockCommandBuilder()
	runner := &MockRunner{}
	builder.NextRunner = runner
	e := NewExecutorWithBuilder("remote.example.com", "", "", "", false, builder)

	if err := e.WriteFile("/etc/precision/tuning.json", `{"burst_size": 4}`); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	last := builder.LastCommand()
	if !strings.Contains(strings.Join(last.Args, " "), "cat > /etc/precision/tuning.json") {
		t.Errorf("Expected cat redirect in argv: %v", last.Args)
	}
	if string(runner.Stdin) != `{"burst_size": 4}` {
		t.Errorf("Stdin = %q, want config content", runner.Stdin)
	}
	if !runner.RunCalled {
		t.Error("Runner was never executed")
	}
}

func TestExecutor_WriteFile_DryRun(t *testing.T) {
	e := NewExecutor("localhost", "", "", "", true)
	if err := e.WriteFile("/tmp/test.txt", "content"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestSystemPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/usr/local/bin/precision", true},
		{"/etc/precision/tuning.json", true},
		{"/var/lib/precision/precision.db", true},
		{"/var/folders/ab/tmp.db", false},
		{"/home/pi/precision", false},
		{"/tmp/precision-copy-1", false},
	}

	for _, tc := range tests {
		if got := systemPath(tc.path); got != tc.want {
			t.Errorf("systemPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
