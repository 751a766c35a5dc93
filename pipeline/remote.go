package pipeline

import (
	"context"
	"fmt"
)

// ProcessManager restarts the application process on a deployment target.
type ProcessManager interface {
	Restart(ctx context.Context, host, user, app string) error
}

// SSHProcessManager shells out to ssh to restart the remote process-manager
// entry. It reuses the pipeline's Runner so the transcript lands in the same
// log directory as every other stage.
type SSHProcessManager struct {
	runner Runner
}

func NewSSHProcessManager(runner Runner) *SSHProcessManager {
	return &SSHProcessManager{runner: runner}
}

func (m *SSHProcessManager) Restart(ctx context.Context, host, user, app string) error {
	target := host
	if user != "" {
		target = user + "@" + host
	}
	logPath, err := m.runner.Run(ctx, "", "ssh", target, "pm2", "restart", app)
	if err != nil {
		return fmt.Errorf("remote restart of %s on %s failed (log: %s): %w", app, host, logPath, err)
	}
	return nil
}
