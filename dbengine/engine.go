package dbengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/lockfile"
	"github.com/tradewatch/deployctl/operr"
)

// Engine snapshots and restores document collections. Restore is
// destructive per collection: drop, recreate, bulk insert — never a merge.
// Callers get that back via the pre-restore safety backup, which is always
// taken first.
type Engine struct {
	store      DocumentStore
	backups    *backup.Store
	backupRoot string
	logger     *zap.Logger
}

func New(store DocumentStore, backups *backup.Store, backupRoot string, logger *zap.Logger) *Engine {
	return &Engine{store: store, backups: backups, backupRoot: backupRoot, logger: logger}
}

// RestoreReport describes what a restore did (or, in dry-run mode, would do).
type RestoreReport struct {
	BackupID    string   `json:"backup_id"`
	Environment string   `json:"environment"`
	Restored    []string `json:"restored"`
	Missing     []string `json:"missing,omitempty"` // requested but absent from the backup
	PreBackupID string   `json:"pre_backup_id,omitempty"`
	DryRun      bool     `json:"dry_run,omitempty"`
}

// systemPrefix marks internal collections excluded from snapshots.
const systemPrefix = "system."

// Plan returns the collections a backup would capture, without writing
// anything. Backs the backup command's dry-run mode.
func (e *Engine) Plan(ctx context.Context) ([]string, error) {
	names, err := e.store.Collections(ctx)
	if err != nil {
		return nil, err
	}
	var captured []string
	for _, name := range names {
		if strings.HasPrefix(name, systemPrefix) {
			continue
		}
		captured = append(captured, name)
	}
	return captured, nil
}

// Backup serializes every live non-system collection to one JSON file each.
func (e *Engine) Backup(ctx context.Context, env config.Environment) (*backup.Record, error) {
	names, err := e.store.Collections(ctx)
	if err != nil {
		return nil, err
	}

	return e.backups.Create(env, backup.DomainDatabase, "database backup", func(dir string) ([]string, error) {
		var captured []string
		for _, name := range names {
			if strings.HasPrefix(name, systemPrefix) {
				continue
			}
			docs, err := e.store.ReadAll(ctx, name)
			if err != nil {
				return nil, err
			}
			data, err := json.MarshalIndent(docs, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to serialize collection %s: %w", name, err)
			}
			if err := os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644); err != nil {
				return nil, fmt.Errorf("failed to write collection %s: %w", name, err)
			}
			captured = append(captured, name)
		}
		return captured, nil
	})
}

// Restore brings collections back from a snapshot. An empty collection list
// means everything in the backup; otherwise the intersection is restored,
// with a warning per requested-but-absent collection. An empty intersection
// fails closed before any write. dryRun computes the full plan and writes
// nothing.
func (e *Engine) Restore(ctx context.Context, env config.Environment, backupID string, collections []string, dryRun bool) (*RestoreReport, error) {
	record, dir, err := e.backups.Open(env, backup.DomainDatabase, backupID)
	if err != nil {
		return nil, err
	}

	toRestore, missing := intersect(record.Contents, collections)
	for _, name := range missing {
		e.logger.Warn("requested collection absent from backup",
			zap.String("backup", backupID),
			zap.String("collection", name))
	}
	if len(toRestore) == 0 {
		return nil, operr.E(operr.NotFound, "db restore",
			fmt.Sprintf("backup %s contains none of the requested collections", backupID))
	}

	report := &RestoreReport{
		BackupID:    record.ID,
		Environment: string(env),
		Restored:    toRestore,
		Missing:     missing,
		DryRun:      dryRun,
	}
	if dryRun {
		return report, nil
	}

	lock, err := lockfile.Acquire(e.backupRoot, string(env), string(backup.DomainDatabase))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	pre, err := backup.SafeMutate("db restore",
		func() (*backup.Record, error) { return e.Backup(ctx, env) },
		func(*backup.Record) error {
			for _, name := range toRestore {
				docs, err := readCollectionFile(dir, name)
				if err != nil {
					return err
				}
				if err := e.store.Drop(ctx, name); err != nil {
					return err
				}
				if err := e.store.Insert(ctx, name, docs); err != nil {
					return err
				}
				e.logger.Info("collection restored",
					zap.String("collection", name),
					zap.Int("documents", len(docs)))
			}
			return nil
		})
	if err != nil {
		return report, err
	}
	report.PreBackupID = pre.ID
	return report, nil
}

// intersect returns (backup ∩ requested, requested \ backup). An empty
// request selects the whole backup.
func intersect(available, requested []string) (restore, missing []string) {
	if len(requested) == 0 {
		return append([]string(nil), available...), nil
	}
	set := make(map[string]struct{}, len(available))
	for _, name := range available {
		set[name] = struct{}{}
	}
	for _, name := range requested {
		if _, ok := set[name]; ok {
			restore = append(restore, name)
		} else {
			missing = append(missing, name)
		}
	}
	return restore, missing
}

func readCollectionFile(dir, name string) ([]Document, error) {
	data, err := os.ReadFile(filepath.Join(dir, name+".json"))
	if err != nil {
		return nil, operr.Wrap(operr.NotFound, "db restore",
			fmt.Sprintf("collection file %s.json missing from backup", name), err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse collection %s: %w", name, err)
	}
	return docs, nil
}
