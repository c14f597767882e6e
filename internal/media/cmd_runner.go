package media

import (
	"context"
	"os/exec"
)

// CmdRunner executes external commands
type CmdRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

// NewCmdRunner returns a CmdRunner backed by os/exec
func NewCmdRunner() CmdRunner {
	return execRunner{}
}

// Run executes the command and returns its combined output
func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
