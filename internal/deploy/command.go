package deploy

import (
	"bytes"
	"os/exec"
)

// Runner is a single prepared command. Implementations either shell out
// for real or record the invocation for tests.
type Runner interface {
	// Run executes the command and returns combined stdout and stderr.
	Run() ([]byte, error)

	// SetStdin supplies stdin for the command.
	SetStdin(stdin []byte)
}

// CommandBuilder constructs Runners. The Executor routes every local,
// ssh, and scp invocation through one, so tests can intercept the exact
// argv without touching a shell.
type CommandBuilder interface {
	// Command prepares a command with explicit arguments.
	Command(name string, args ...string) Runner

	// ShellCommand prepares a command run through sh -c.
	ShellCommand(command string) Runner
}

type execRunner struct {
	cmd *exec.Cmd
}

func (r *execRunner) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

func (r *execRunner) SetStdin(stdin []byte) {
	r.cmd.Stdin = bytes.NewReader(stdin)
}

// execBuilder is the CommandBuilder backed by os/exec.
type execBuilder struct{}

func (execBuilder) Command(name string, args ...string) Runner {
	return &execRunner{cmd: exec.Command(name, args...)}
}

func (execBuilder) ShellCommand(command string) Runner {
	return &execRunner{cmd: exec.Command("sh", "-c", command)}
}

// RecordedCommand is one invocation captured by a MockCommandBuilder.
type RecordedCommand struct {
	Name  string
	Args  []string
	Shell bool
}

// MockRunner implements Runner for tests. It returns the configured
// output and error and records any stdin it was given.
type MockRunner struct {
	Output    []byte
	Err       error
	Stdin     []byte
	RunCalled bool
}

// Run returns the configured output and error.
func (m *MockRunner) Run() ([]byte, error) {
	m.RunCalled = true
	return m.Output, m.Err
}

// SetStdin records the stdin data.
func (m *MockRunner) SetStdin(stdin []byte) {
	m.Stdin = stdin
}

// MockCommandBuilder implements CommandBuilder for tests, recording
// every command it is asked to build.
type MockCommandBuilder struct {
	// Commands records all built commands in order.
	Commands []RecordedCommand

	// NextRunner, when set, is returned by the next Command or
	// ShellCommand call and then cleared.
	NextRunner *MockRunner

	// RunnerFactory, when set, scripts the runner for each command.
	// It takes precedence over NextRunner.
	RunnerFactory func(name string, args []string) *MockRunner
}

// NewMockCommandBuilder creates an empty MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// Command records the invocation and returns a scripted runner.
func (b *MockCommandBuilder) Command(name string, args ...string) Runner {
	b.Commands = append(b.Commands, RecordedCommand{Name: name, Args: args})
	return b.runnerFor(name, args)
}

// ShellCommand records a sh -c invocation and returns a scripted runner.
func (b *MockCommandBuilder) ShellCommand(command string) Runner {
	b.Commands = append(b.Commands, RecordedCommand{Name: "sh", Args: []string{"-c", command}, Shell: true})
	return b.runnerFor("sh", []string{"-c", command})
}

func (b *MockCommandBuilder) runnerFor(name string, args []string) *MockRunner {
	if b.RunnerFactory != nil {
		return b.RunnerFactory(name, args)
	}
	if b.NextRunner != nil {
		runner := b.NextRunner
		b.NextRunner = nil
		return runner
	}
	return &MockRunner{}
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *RecordedCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}

// Reset clears all recorded commands.
func (b *MockCommandBuilder) Reset() {
	b.Commands = nil
	b.NextRunner = nil
}
