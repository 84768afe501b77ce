package probe

import (
	"context"
	"os/exec"
)

// Runner abstracts external command execution so CLI probes can be exercised
// without spawning processes.
type Runner interface {
	// LookPath resolves a binary name to an executable path.
	LookPath(name string) (string, error)
	// Run executes the command and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type osRunner struct{}

// NewOSRunner returns a Runner backed by the local operating system.
func NewOSRunner() Runner {
	return osRunner{}
}

func (osRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (osRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return exec.CommandContext(ctx, name, args...).Output()
}
