// Package lockfile provides advisory per-(environment, domain) locks so two
// operators cannot run overlapping restores or deploys against the same
// backing store. Locks are plain files created with O_EXCL; acquisition
// fails fast rather than waiting.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tradewatch/deployctl/operr"
)

// Lock is a held advisory lock.
type Lock struct {
	path string
}

// Acquire takes the lock for (environment, domain) under root. Returns a
// ResourceBusy error when the lock is already held.
func Acquire(root, environment, domain string) (*Lock, error) {
	dir := filepath.Join(root, ".locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.lock", environment, domain))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, operr.E(operr.ResourceBusy, "acquire lock",
				fmt.Sprintf("another operation holds %s/%s (lock file %s)", environment, domain, path))
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	fmt.Fprintf(f, "pid=%d\nacquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
