package dbengine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/operr"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *backup.Store) {
	t.Helper()
	root := t.TempDir()
	store := NewMemoryStore()
	backups := backup.NewStore(root)
	return New(store, backups, root, zap.NewNop()), store, backups
}

func TestBackupCapturesNonSystemCollections(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{{"symbol": "AAPL", "qty": float64(10)}})
	store.Seed("positions", []Document{{"symbol": "MSFT"}})
	store.Seed("system.indexes", []Document{{"internal": true}})

	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"trades", "positions"}, record.Contents)
}

func TestRestoreRoundTrip(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{
		{"symbol": "AAPL", "qty": float64(10)},
		{"symbol": "GOOG", "qty": float64(3)},
	})

	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)

	// Live data drifts after the backup.
	store.Seed("trades", []Document{{"symbol": "TSLA", "qty": float64(99)}})

	report, err := engine.Restore(ctx, config.Staging, record.ID, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"trades"}, report.Restored)
	assert.NotEmpty(t, report.PreBackupID)
	assert.NotEqual(t, record.ID, report.PreBackupID)

	docs, err := store.ReadAll(ctx, "trades")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "AAPL", docs[0]["symbol"])
}

func TestRestorePartialSelection(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{{"symbol": "AAPL"}})
	store.Seed("positions", []Document{{"symbol": "MSFT"}})

	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)

	// Drift both collections so the effect of restore is observable.
	store.Seed("trades", []Document{{"symbol": "DRIFTED"}})
	store.Seed("positions", []Document{{"symbol": "DRIFTED"}})

	// Request one present and one absent collection: the present one is
	// restored, the absent one is reported, nothing else is touched.
	report, err := engine.Restore(ctx, config.Staging, record.ID, []string{"positions", "orders"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"positions"}, report.Restored)
	assert.Equal(t, []string{"orders"}, report.Missing)

	positions, _ := store.ReadAll(ctx, "positions")
	require.Len(t, positions, 1)
	assert.Equal(t, "MSFT", positions[0]["symbol"])

	trades, _ := store.ReadAll(ctx, "trades")
	require.Len(t, trades, 1)
	assert.Equal(t, "DRIFTED", trades[0]["symbol"])
}

func TestRestoreEmptyIntersectionFailsClosed(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{{"symbol": "AAPL"}})
	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)

	store.Seed("trades", []Document{{"symbol": "LIVE"}})

	_, err = engine.Restore(ctx, config.Staging, record.ID, []string{"orders", "audit"}, false)
	require.Error(t, err)
	assert.True(t, operr.Is(err, operr.NotFound))

	// Nothing was written.
	trades, _ := store.ReadAll(ctx, "trades")
	require.Len(t, trades, 1)
	assert.Equal(t, "LIVE", trades[0]["symbol"])
}

func TestRestoreDryRun(t *testing.T) {
	engine, store, backups := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{{"symbol": "AAPL"}})
	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)

	store.Seed("trades", []Document{{"symbol": "LIVE"}})

	report, err := engine.Restore(ctx, config.Staging, record.ID, nil, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, []string{"trades"}, report.Restored)
	assert.Empty(t, report.PreBackupID)

	// Live data untouched, and no pre-restore backup was created.
	trades, _ := store.ReadAll(ctx, "trades")
	assert.Equal(t, "LIVE", trades[0]["symbol"])
	records, err := backups.List(config.Staging, backup.DomainDatabase)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRestoreUnknownBackup(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.Restore(context.Background(), config.Staging, "backup-19990101-000000", nil, false)
	require.Error(t, err)
	assert.True(t, operr.Is(err, operr.NotFound))
}

// writeMigration drops a migration file into a backup's migrations dir.
func writeMigration(t *testing.T, backups *backup.Store, env config.Environment, backupID, name string, m Migration) {
	t.Helper()
	_, dir, err := backups.Open(env, backup.DomainDatabase, backupID)
	require.NoError(t, err)
	migDir := filepath.Join(dir, "migrations")
	require.NoError(t, os.MkdirAll(migDir, 0755))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(migDir, name), data, 0644))
}

func TestApplyMigrationsLexicalOrder(t *testing.T) {
	engine, store, backups := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{{"symbol": "AAPL"}})
	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)

	// Written out of order; applied in lexical filename order.
	writeMigration(t, backups, config.Staging, record.ID, "002-backfill.json", Migration{
		Description: "backfill sector field",
		Up:          []Document{{"update": "trades", "set": "sector"}},
	})
	writeMigration(t, backups, config.Staging, record.ID, "001-index.json", Migration{
		Description: "recreate symbol index",
		Up:          []Document{{"createIndexes": "trades"}},
	})

	applied, err := engine.ApplyMigrations(ctx, config.Staging, record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"001-index.json", "002-backfill.json"}, applied)

	commands := store.Commands()
	require.Len(t, commands, 2)
	assert.Equal(t, "trades", commands[0]["createIndexes"])
	assert.Equal(t, "trades", commands[1]["update"])
}

func TestApplyMigrationsDryRun(t *testing.T) {
	engine, store, backups := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{{"symbol": "AAPL"}})
	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)
	writeMigration(t, backups, config.Staging, record.ID, "001-index.json", Migration{
		Up: []Document{{"createIndexes": "trades"}},
	})

	applied, err := engine.ApplyMigrations(ctx, config.Staging, record.ID, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"001-index.json"}, applied)
	assert.Empty(t, store.Commands())
}

// failingStore fails RunCommand after a set number of successes.
type failingStore struct {
	*MemoryStore
	successes int
}

func (s *failingStore) RunCommand(ctx context.Context, cmd Document) error {
	if s.successes <= 0 {
		return assert.AnError
	}
	s.successes--
	return s.MemoryStore.RunCommand(ctx, cmd)
}

func TestApplyMigrationsFailureAbortsRemainder(t *testing.T) {
	root := t.TempDir()
	mem := NewMemoryStore()
	backups := backup.NewStore(root)
	failing := &failingStore{MemoryStore: mem, successes: 1}
	engine := New(failing, backups, root, zap.NewNop())
	ctx := context.Background()

	mem.Seed("trades", []Document{{"symbol": "AAPL"}})
	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)

	writeMigration(t, backups, config.Staging, record.ID, "001-ok.json", Migration{
		Up: []Document{{"createIndexes": "trades"}},
	})
	writeMigration(t, backups, config.Staging, record.ID, "002-boom.json", Migration{
		Up: []Document{{"update": "trades"}},
	})
	writeMigration(t, backups, config.Staging, record.ID, "003-never.json", Migration{
		Up: []Document{{"update": "positions"}},
	})

	applied, err := engine.ApplyMigrations(ctx, config.Staging, record.ID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002-boom.json")
	// The first migration stays applied; nothing after the failure runs.
	assert.Equal(t, []string{"001-ok.json"}, applied)
	assert.Len(t, mem.Commands(), 1)
}

func TestDiscoverMigrationsNoneIsNotAnError(t *testing.T) {
	engine, store, _ := newTestEngine(t)
	ctx := context.Background()

	store.Seed("trades", []Document{{"symbol": "AAPL"}})
	record, err := engine.Backup(ctx, config.Staging)
	require.NoError(t, err)

	migrations, err := engine.DiscoverMigrations(config.Staging, record.ID)
	require.NoError(t, err)
	assert.Empty(t, migrations)
}
