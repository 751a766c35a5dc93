package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewatch/deployctl/operr"
)

func TestAcquireAndRelease(t *testing.T) {
	root := t.TempDir()

	lock, err := Acquire(root, "staging", "database")
	require.NoError(t, err)

	// Lock file carries pid and timestamp for the operator to inspect.
	data, err := os.ReadFile(filepath.Join(root, ".locks", "staging-database.lock"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pid=")
	assert.Contains(t, string(data), "acquired=")

	require.NoError(t, lock.Release())
	_, err = os.Stat(filepath.Join(root, ".locks", "staging-database.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireBusy(t *testing.T) {
	root := t.TempDir()

	lock, err := Acquire(root, "production", "config")
	require.NoError(t, err)

	// Second acquisition fails fast instead of waiting.
	_, err = Acquire(root, "production", "config")
	require.Error(t, err)
	assert.True(t, operr.Is(err, operr.ResourceBusy))

	// Released lock can be reacquired.
	require.NoError(t, lock.Release())
	lock2, err := Acquire(root, "production", "config")
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestLocksAreIndependentPerEnvironmentAndDomain(t *testing.T) {
	root := t.TempDir()

	a, err := Acquire(root, "staging", "database")
	require.NoError(t, err)
	defer a.Release()

	// Different domain, same environment.
	b, err := Acquire(root, "staging", "config")
	require.NoError(t, err)
	defer b.Release()

	// Same domain, different environment.
	c, err := Acquire(root, "production", "database")
	require.NoError(t, err)
	defer c.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	lock, err := Acquire(t.TempDir(), "development", "code")
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	assert.NoError(t, lock.Release())
}
