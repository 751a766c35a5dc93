package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Runner executes an external command, capturing combined output to a log
// file so stage failures can point the operator at the full transcript.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (logPath string, err error)
}

// ExecRunner shells out, one log file per invocation under logDir.
type ExecRunner struct {
	logDir string
}

func NewExecRunner(logDir string) *ExecRunner {
	return &ExecRunner{logDir: logDir}
}

func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	if err := os.MkdirAll(r.logDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log dir: %w", err)
	}
	logPath := filepath.Join(r.logDir, fmt.Sprintf("%s-%s.log", name, time.Now().UTC().Format("20060102-150405")))
	logFile, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		return logPath, fmt.Errorf("%s failed: %w", name, err)
	}
	return logPath, nil
}
