package fsreload

import (
	"context"
	"os/exec"
	"time"
)

// DefaultWaitDelay bounds how long a killed command may keep its output pipes open.
const DefaultWaitDelay = 2 * time.Second

// Runner executes one external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx ends;
// WaitDelay later its pipes are closed even if a child still holds them.
type ExecRunner struct {
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	return cmd.CombinedOutput()
}
