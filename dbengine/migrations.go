package dbengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
)

// Migration is a post-restore refinement step stored alongside a backup
// under migrations/. Each file holds an ordered list of database commands
// under "up"; the commands are expected to be idempotent.
type Migration struct {
	Name        string     `json:"-"`
	Description string     `json:"description"`
	Up          []Document `json:"up"`
}

const migrationsDirName = "migrations"

// DiscoverMigrations lists the migrations found alongside a backup, in
// lexical filename order.
func (e *Engine) DiscoverMigrations(env config.Environment, backupID string) ([]Migration, error) {
	_, dir, err := e.backups.Open(env, backup.DomainDatabase, backupID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, migrationsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, migrationsDirName, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		var m Migration
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %w", name, err)
		}
		m.Name = name
		migrations = append(migrations, m)
	}
	return migrations, nil
}

// ApplyMigrations runs the backup's migrations in lexical order. A failing
// migration aborts the remaining sequence but leaves already-restored
// collections and already-applied migrations in place: migrations are a
// refinement step after restore, not part of restore atomicity. Returns the
// names of migrations that ran.
func (e *Engine) ApplyMigrations(ctx context.Context, env config.Environment, backupID string, dryRun bool) ([]string, error) {
	migrations, err := e.DiscoverMigrations(env, backupID)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		if dryRun {
			applied = append(applied, m.Name)
			continue
		}
		e.logger.Info("applying migration",
			zap.String("backup", backupID),
			zap.String("migration", m.Name),
			zap.String("description", m.Description))
		for _, cmd := range m.Up {
			if err := e.store.RunCommand(ctx, cmd); err != nil {
				return applied, fmt.Errorf("migration %s failed, aborting remaining migrations: %w", m.Name, err)
			}
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}
