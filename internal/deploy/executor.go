package deploy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger receives debug lines from the executor. The deploy CLI plugs
// its --debug flag in here; everything else gets the no-op default.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Executor runs commands on a deployment target, either the local host
// or a remote one reached over ssh. DryRun short-circuits every call
// and reports what would have run instead.
type Executor struct {
	Target        string
	SSHUser       string
	SSHKey        string
	IdentityAgent string
	DryRun        bool

	builder CommandBuilder
	logger  Logger
}

// NewExecutor creates an executor that shells out for real.
func NewExecutor(target, sshUser, sshKey, identityAgent string, dryRun bool) *Executor {
	return NewExecutorWithBuilder(target, sshUser, sshKey, identityAgent, dryRun, execBuilder{})
}

// NewExecutorWithBuilder creates an executor with a custom command
// builder. Tests pass a MockCommandBuilder to script every invocation.
func NewExecutorWithBuilder(target, sshUser, sshKey, identityAgent string, dryRun bool, builder CommandBuilder) *Executor {
	return &Executor{
		Target:        target,
		SSHUser:       sshUser,
		SSHKey:        sshKey,
		IdentityAgent: identityAgent,
		DryRun:        dryRun,
		builder:       builder,
		logger:        nopLogger{},
	}
}

// SetLogger sets the debug logger. A nil logger keeps the current one.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// IsLocal reports whether commands run on this host rather than over ssh.
func (e *Executor) IsLocal() bool {
	return e.Target == "" || e.Target == "localhost" || e.Target == "127.0.0.1"
}

// Run executes a shell command on the target and returns its combined
// output.
func (e *Executor) Run(command string) (string, error) {
	if e.DryRun {
		line := fmt.Sprintf("[DRY-RUN] Would execute: %s", command)
		fmt.Println(line)
		return line, nil
	}

	e.logger.Debugf("run: %s (target=%s local=%v)", command, e.Target, e.IsLocal())

	var out []byte
	var err error
	if e.IsLocal() {
		out, err = e.builder.ShellCommand(command).Run()
	} else {
		out, err = e.sshCommand(command).Run()
	}
	if err != nil {
		e.logger.Debugf("run failed: %v, output: %s", err, out)
	}
	return string(out), err
}

// RunSudo executes a shell command on the target with sudo.
func (e *Executor) RunSudo(command string) (string, error) {
	if e.DryRun {
		line := fmt.Sprintf("[DRY-RUN] Would execute (sudo): %s", command)
		fmt.Println(line)
		return line, nil
	}
	return e.Run("sudo " + command)
}

// CopyFile copies a local file onto the target. Remote copies stage
// through /tmp and finish with a sudo move when the destination needs
// one.
func (e *Executor) CopyFile(src, dst string) error {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would copy: %s -> %s\n", src, dst)
		return nil
	}

	e.logger.Debugf("copy: %s -> %s (target=%s local=%v)", src, dst, e.Target, e.IsLocal())

	var err error
	if e.IsLocal() {
		err = e.copyLocal(src, dst)
	} else {
		err = e.copySSH(src, dst)
	}
	if err != nil {
		e.logger.Debugf("copy failed: %v", err)
	}
	return err
}

// FetchFile copies a file from the target onto this host. On a local
// target it degenerates to a plain copy. The remote path must already
// be readable by the ssh user.
func (e *Executor) FetchFile(src, dst string) error {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would fetch: %s -> %s\n", src, dst)
		return nil
	}

	if e.IsLocal() {
		return e.copyLocal(src, dst)
	}

	args := append(e.sshOptions(), fmt.Sprintf("%s:%s", e.remoteTarget(), src), dst)
	e.logger.Debugf("scp %v", args)
	if out, err := e.builder.Command("scp", args...).Run(); err != nil {
		return fmt.Errorf("scp fetch failed: %w (output: %s)", err, out)
	}
	return nil
}

// WriteFile writes content to a file on the target.
func (e *Executor) WriteFile(path, content string) error {
	if e.DryRun {
		fmt.Printf("[DRY-RUN] Would write to: %s\n", path)
		return nil
	}

	if e.IsLocal() {
		return os.WriteFile(path, []byte(content), 0644)
	}

	runner := e.sshCommand(fmt.Sprintf("cat > %s", path))
	runner.SetStdin([]byte(content))
	if out, err := runner.Run(); err != nil {
		return fmt.Errorf("remote write of %s failed: %w (output: %s)", path, err, out)
	}
	return nil
}

// sshOptions returns the flags shared by every ssh and scp invocation.
// Host key checking is off: provisioning runs non-interactively against
// freshly imaged hosts. Only point the tool at hosts you control.
func (e *Executor) sshOptions() []string {
	var args []string
	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}
	if e.IdentityAgent != "" {
		args = append(args, "-o", fmt.Sprintf("IdentityAgent=%s", e.IdentityAgent))
	}
	args = append(args,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
	)
	return args
}

func (e *Executor) remoteTarget() string {
	target := e.Target
	if e.SSHUser != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", e.SSHUser, target)
	}
	return target
}

func (e *Executor) sshCommand(command string) Runner {
	args := append(e.sshOptions(), e.remoteTarget(), command)
	return e.builder.Command("ssh", args...)
}

// systemPath reports whether dst needs sudo to write. /var/folders is
// the macOS per-user temp tree, not a system directory.
func systemPath(dst string) bool {
	return strings.HasPrefix(dst, "/usr") ||
		strings.HasPrefix(dst, "/etc") ||
		(strings.HasPrefix(dst, "/var") && !strings.HasPrefix(dst, "/var/folders"))
}

func (e *Executor) copyLocal(src, dst string) error {
	if systemPath(dst) {
		if out, err := e.builder.Command("sudo", "cp", src, dst).Run(); err != nil {
			return fmt.Errorf("sudo cp failed: %w (output: %s)", err, out)
		}
		return nil
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

func (e *Executor) copySSH(src, dst string) error {
	tempPath := fmt.Sprintf("/tmp/precision-copy-%d", time.Now().Unix())
	args := append(e.sshOptions(), src, fmt.Sprintf("%s:%s", e.remoteTarget(), tempPath))

	e.logger.Debugf("scp %v", args)
	if out, err := e.builder.Command("scp", args...).Run(); err != nil {
		return fmt.Errorf("scp failed: %w (output: %s)", err, out)
	}

	mv := fmt.Sprintf("mv %s %s", tempPath, dst)
	var err error
	if systemPath(dst) {
		_, err = e.RunSudo(mv)
	} else {
		_, err = e.Run(mv)
	}
	return err
}
