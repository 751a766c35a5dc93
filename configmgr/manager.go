// Package configmgr implements the configuration domain engine: environment
// switching, validation, structural diff, artifact generation, and the
// backup/restore cycle for environment files plus their generated artifacts.
package configmgr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/confirm"
	"github.com/tradewatch/deployctl/lockfile"
	"github.com/tradewatch/deployctl/operr"
)

type Manager struct {
	cfg       *config.Config
	registry  *config.Registry
	store     *backup.Store
	confirmer confirm.Confirmer
	logger    *zap.Logger
}

func New(cfg *config.Config, registry *config.Registry, store *backup.Store, confirmer confirm.Confirmer, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		confirmer: confirmer,
		logger:    logger,
	}
}

// Validate checks the environment document. With force set, failures are
// downgraded to logged warnings and Validate returns nil; force downgrades
// validation only, nothing else.
func (m *Manager) Validate(env config.Environment, force bool) error {
	raw, err := m.registry.ResolveRaw(env)
	if err != nil {
		return err
	}
	cfg, err := m.registry.Resolve(env)
	if err != nil {
		return err
	}

	errs := config.ValidateEnvironment(env, raw, cfg)
	if len(errs) == 0 {
		return nil
	}

	if force {
		for _, ve := range errs {
			m.logger.Warn("config validation downgraded by --force",
				zap.String("environment", string(env)),
				zap.String("field", ve.Field),
				zap.String("problem", ve.Message))
		}
		return nil
	}
	return operr.Wrap(operr.ValidationFailure, "config validate",
		fmt.Sprintf("%s failed %d check(s)", env, len(errs)), errs)
}

// Show returns the typed environment document for rendering.
func (m *Manager) Show(env config.Environment) (*config.EnvironmentConfig, error) {
	return m.registry.Resolve(env)
}

// Diff produces the structural diff between two environments. The returned
// entries carry real values; callers mask for display via DiffEntry.Masked.
func (m *Manager) Diff(envA, envB config.Environment) ([]config.DiffEntry, error) {
	rawA, err := m.registry.ResolveRaw(envA)
	if err != nil {
		return nil, err
	}
	rawB, err := m.registry.ResolveRaw(envB)
	if err != nil {
		return nil, err
	}
	return config.DiffEnvironments(rawA, rawB)
}

// Backup snapshots the live environment file plus any generated artifacts
// that exist for env. Contents are recorded as config-dir-relative paths.
func (m *Manager) Backup(env config.Environment) (*backup.Record, error) {
	items := []string{filepath.Join("environments", string(env)+".yaml")}
	items = append(items, ArtifactPaths(env)...)

	return m.store.Create(env, backup.DomainConfig, "config backup", func(dir string) ([]string, error) {
		var captured []string
		for _, item := range items {
			src := filepath.Join(m.cfg.ConfigDir, item)
			if _, err := os.Stat(src); os.IsNotExist(err) {
				// Artifacts that were never generated are simply not part
				// of this snapshot.
				continue
			}
			if err := copyFile(src, filepath.Join(dir, item)); err != nil {
				return nil, err
			}
			captured = append(captured, item)
		}
		if len(captured) == 0 {
			return nil, operr.E(operr.NotFound, "config backup",
				fmt.Sprintf("nothing to capture for %s: no environment file at %s", env,
					filepath.Join(m.cfg.ConfigDir, items[0])))
		}
		return captured, nil
	})
}

// Restore writes a config backup's items back to their live locations. The
// backup's own manifest decides which environment is touched. A fresh backup
// of the current state is always taken first, so the restore itself is
// undoable.
func (m *Manager) Restore(backupID string) (*backup.Record, error) {
	record, dir, err := m.store.Locate(backup.DomainConfig, backupID)
	if err != nil {
		return nil, err
	}

	lock, err := lockfile.Acquire(m.cfg.BackupRoot, string(record.Environment), string(backup.DomainConfig))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	pre, err := backup.SafeMutate("config restore",
		func() (*backup.Record, error) { return m.Backup(record.Environment) },
		func(*backup.Record) error {
			for _, item := range record.Contents {
				src := filepath.Join(dir, item)
				dst := filepath.Join(m.cfg.ConfigDir, item)
				if err := copyFile(src, dst); err != nil {
					return fmt.Errorf("failed to restore %s: %w", item, err)
				}
			}
			return nil
		})
	if err != nil {
		return pre, err
	}

	m.logger.Info("config restored",
		zap.String("backup", record.ID),
		zap.String("environment", string(record.Environment)),
		zap.String("pre_restore_backup", pre.ID),
		zap.Int("items", len(record.Contents)))
	return pre, nil
}

// Generate renders the three deployment artifacts for env and writes them
// under the config dir.
func (m *Manager) Generate(env config.Environment) ([]string, error) {
	cfg, err := m.registry.Resolve(env)
	if err != nil {
		return nil, err
	}
	artifacts, err := GenerateArtifacts(env, cfg)
	if err != nil {
		return nil, err
	}

	paths := ArtifactPaths(env)
	for _, rel := range paths {
		dst := filepath.Join(m.cfg.ConfigDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact dir: %w", err)
		}
		if err := os.WriteFile(dst, artifacts[rel], 0o644); err != nil {
			return nil, fmt.Errorf("failed to write artifact %s: %w", rel, err)
		}
	}
	return paths, nil
}

// Use switches the active environment: confirm unless forced, regenerate
// artifacts, then write the pointer last. The ordering means a reader that
// only checks the pointer never sees an environment whose artifacts have not
// been regenerated yet.
func (m *Manager) Use(env config.Environment, force bool) error {
	if !force && !m.confirmer.Confirm(fmt.Sprintf("Switch active environment to %s and regenerate artifacts?", env)) {
		return fmt.Errorf("config use: %w", operr.ErrCanceled)
	}

	if _, err := m.Generate(env); err != nil {
		return fmt.Errorf("config use: %w", err)
	}
	if err := m.registry.WriteActiveEnvironment(env); err != nil {
		return fmt.Errorf("config use: %w", err)
	}

	m.logger.Info("active environment switched", zap.String("environment", string(env)))
	return nil
}

// ListBackups returns config-domain backups for env, newest first.
func (m *Manager) ListBackups(env config.Environment) ([]backup.Record, error) {
	return m.store.List(env, backup.DomainConfig)
}

// RenderMaskedYAML serializes an environment document for the human-readable
// form of `show`, with secret leaves masked. Structured output (json, yaml)
// carries real values for automation.
func RenderMaskedYAML(cfg *config.EnvironmentConfig) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize environment document: %w", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to reparse environment document: %w", err)
	}
	return yaml.Marshal(config.MaskSecrets(doc))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
