// Package pipeline implements the forward deployment orchestrator: backups,
// tests, build, artifact validation, publish, edge invalidation, remote
// restart, manifest recording, and notification, in that fixed order.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/confirm"
	"github.com/tradewatch/deployctl/lockfile"
	"github.com/tradewatch/deployctl/models"
	"github.com/tradewatch/deployctl/notify"
	"github.com/tradewatch/deployctl/operr"
)

// Options are the per-stage skip flags.
type Options struct {
	SkipBuild        bool
	SkipTests        bool
	SkipBackup       bool
	SkipConfirmation bool
	SkipRestart      bool
	SkipValidation   bool
	SkipNotification bool
}

// ConfigBackuper is the slice of the config manager the pipeline needs.
type ConfigBackuper interface {
	Backup(env config.Environment) (*backup.Record, error)
}

// DatabaseBackuper is the slice of the database engine the pipeline needs.
type DatabaseBackuper interface {
	Backup(ctx context.Context, env config.Environment) (*backup.Record, error)
}

// HistoryWriter records deployment manifests.
type HistoryWriter interface {
	RecordDeployment(m *models.DeploymentManifest) error
}

// Revisions exposes the current code revision for version derivation.
type Revisions interface {
	Head() (branch, hash string, err error)
}

type Pipeline struct {
	cfg       *config.Config
	registry  *config.Registry
	configs   ConfigBackuper
	database  DatabaseBackuper
	history   HistoryWriter
	revisions Revisions
	runner    Runner
	objects   ObjectStore
	cdn       CDN
	processes ProcessManager
	notifier  notify.Notifier
	confirmer confirm.Confirmer
	logger    *zap.Logger
	now       func() time.Time
}

// Deps bundles the pipeline's collaborators.
type Deps struct {
	Configs   ConfigBackuper
	Database  DatabaseBackuper
	History   HistoryWriter
	Revisions Revisions
	Runner    Runner
	Objects   ObjectStore
	CDN       CDN
	Processes ProcessManager
	Notifier  notify.Notifier
	Confirmer confirm.Confirmer
}

func New(cfg *config.Config, registry *config.Registry, deps Deps, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		registry:  registry,
		configs:   deps.Configs,
		database:  deps.Database,
		history:   deps.History,
		revisions: deps.Revisions,
		runner:    deps.Runner,
		objects:   deps.Objects,
		cdn:       deps.CDN,
		processes: deps.Processes,
		notifier:  deps.Notifier,
		confirmer: deps.Confirmer,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes the full pipeline for env. Lint and test failures may be
// continued past with explicit confirmation (or the global skip); any
// failure from build onward is fatal.
func (p *Pipeline) Run(ctx context.Context, env config.Environment, opts Options) (*models.DeploymentManifest, error) {
	start := p.now()

	envCfg, err := p.registry.Resolve(env)
	if err != nil {
		return nil, err
	}

	lock, err := lockfile.Acquire(p.cfg.BackupRoot, string(env), string(backup.DomainCode))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	// Stage: backup. Failures are logged, never fatal — a failed backup
	// must not be mistaken for a failed deployment.
	if !opts.SkipBackup {
		p.runBackups(ctx, env)
	} else {
		p.logger.Info("skipping pre-deployment backups")
	}

	// Stages: lint, unit tests, integration tests.
	if !opts.SkipTests {
		if err := p.runTestStage(ctx, env, "lint", opts, "npm", "run", "lint"); err != nil {
			return nil, err
		}
		if err := p.runTestStage(ctx, env, "unit tests", opts, "npm", "test"); err != nil {
			return nil, err
		}
		if env == config.Staging || env == config.Production {
			if err := p.runTestStage(ctx, env, "integration tests", opts, "npm", "run", "test:integration"); err != nil {
				return nil, err
			}
		}
	} else {
		p.logger.Info("skipping test stages")
	}

	// Stage: build. Version identifier is derived from the date and the
	// short code revision.
	_, hash, err := p.revisions.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve code revision: %w", err)
	}
	short := hash
	if len(short) > 7 {
		short = short[:7]
	}
	version := fmt.Sprintf("%s-%s", start.UTC().Format("2006.01.02"), short)

	manifest := &models.DeploymentManifest{
		ID:          uuid.NewString(),
		Environment: env,
		Version:     version,
		GitCommit:   hash,
		GitShort:    short,
		DeployedBy:  operatorName(),
	}

	if !opts.SkipBuild {
		if err := p.runBuild(ctx, env); err != nil {
			return p.finish(ctx, manifest, start, opts, err)
		}
	} else {
		p.logger.Info("skipping build stage")
	}

	// Stage: validate build output.
	if !opts.SkipValidation {
		if err := p.validateBuild(); err != nil {
			return p.finish(ctx, manifest, start, opts, err)
		}
	}

	// Stage: publish to object storage.
	uploaded, err := p.objects.Sync(ctx, p.cfg.BuildDir, envCfg.Deployment.Bucket, "")
	if err != nil {
		return p.finish(ctx, manifest, start, opts,
			operr.Wrap(operr.StageFailure, "deploy publish",
				fmt.Sprintf("upload to bucket %s failed", envCfg.Deployment.Bucket), err))
	}
	p.logger.Info("build published",
		zap.String("bucket", envCfg.Deployment.Bucket),
		zap.Int("files", uploaded))

	// Stage: invalidate edge cache.
	if envCfg.Deployment.CloudFrontDistribution != "" {
		if err := p.cdn.Invalidate(ctx, envCfg.Deployment.CloudFrontDistribution, []string{"/*"}); err != nil {
			return p.finish(ctx, manifest, start, opts,
				operr.Wrap(operr.StageFailure, "deploy invalidate", "edge cache invalidation failed", err))
		}
	}

	// Stage: optional remote restart.
	if !opts.SkipRestart && envCfg.Deployment.ServerHost != "" {
		err := p.processes.Restart(ctx, envCfg.Deployment.ServerHost, envCfg.Deployment.ServerUser, "dashboard-api-"+string(env))
		if err != nil {
			return p.finish(ctx, manifest, start, opts,
				operr.Wrap(operr.StageFailure, "deploy restart", "remote process restart failed", err))
		}
	}

	return p.finish(ctx, manifest, start, opts, nil)
}

func (p *Pipeline) runBackups(ctx context.Context, env config.Environment) {
	if record, err := p.configs.Backup(env); err != nil {
		p.logger.Warn("config backup failed (continuing)", zap.Error(err))
	} else {
		p.logger.Info("config backed up", zap.String("backup", record.ID))
	}
	if p.database == nil {
		p.logger.Warn("database engine unavailable, skipping database backup")
		return
	}
	if record, err := p.database.Backup(ctx, env); err != nil {
		p.logger.Warn("database backup failed (continuing)", zap.Error(err))
	} else {
		p.logger.Info("database backed up", zap.String("backup", record.ID))
	}
}

// runTestStage runs one lint/test stage. On failure the operator may
// explicitly continue; the global skip-confirmation flag continues without
// asking but still logs the failure.
func (p *Pipeline) runTestStage(ctx context.Context, env config.Environment, stage string, opts Options, name string, args ...string) error {
	logPath, err := p.runner.Run(ctx, p.cfg.Repo.Path, name, args...)
	if err == nil {
		p.logger.Info("stage passed", zap.String("stage", stage))
		return nil
	}

	p.logger.Warn("stage failed",
		zap.String("stage", stage),
		zap.String("log", logPath),
		zap.Error(err))

	if opts.SkipConfirmation {
		p.logger.Warn("continuing past failed stage (confirmation skipped)", zap.String("stage", stage))
		return nil
	}
	if p.confirmer.Confirm(fmt.Sprintf("%s failed for %s (log: %s). Continue anyway?", stage, env, logPath)) {
		p.logger.Warn("operator chose to continue past failed stage", zap.String("stage", stage))
		return nil
	}
	return operr.Stage("deploy "+stage, "stage failed and continuation was refused", logPath, err)
}

func (p *Pipeline) runBuild(ctx context.Context, env config.Environment) error {
	if logPath, err := p.runner.Run(ctx, p.cfg.Repo.Path, "npm", "ci"); err != nil {
		return operr.Stage("deploy build", "dependency install failed", logPath, err)
	}
	logPath, err := p.runner.Run(ctx, p.cfg.Repo.Path, "npm", "run", "build:"+string(env))
	if err != nil {
		return operr.Stage("deploy build", "build failed", logPath, err)
	}
	p.logger.Info("build completed", zap.String("log", logPath))
	return nil
}

// validateBuild checks that the build directory exists and contains the
// expected entry artifact.
func (p *Pipeline) validateBuild() error {
	entry := filepath.Join(p.cfg.BuildDir, "index.html")
	if _, err := os.Stat(p.cfg.BuildDir); os.IsNotExist(err) {
		return operr.E(operr.StageFailure, "deploy validate",
			fmt.Sprintf("build directory %s does not exist", p.cfg.BuildDir))
	}
	if _, err := os.Stat(entry); os.IsNotExist(err) {
		return operr.E(operr.StageFailure, "deploy validate",
			fmt.Sprintf("entry artifact %s missing from build output", entry))
	}
	return nil
}

// finish records the manifest and sends the notification. Both are
// best-effort on the failure path; notification failures are never fatal.
func (p *Pipeline) finish(ctx context.Context, manifest *models.DeploymentManifest, start time.Time, opts Options, stageErr error) (*models.DeploymentManifest, error) {
	manifest.Timestamp = p.now().UTC()
	manifest.DurationSeconds = int(p.now().Sub(start) / time.Second)
	if stageErr != nil {
		manifest.Status = models.StatusFailed
	} else {
		manifest.Status = models.StatusSuccess
	}

	if err := p.history.RecordDeployment(manifest); err != nil {
		if stageErr == nil {
			return manifest, fmt.Errorf("deployment succeeded but manifest recording failed: %w", err)
		}
		p.logger.Warn("failed to record manifest for failed deployment", zap.Error(err))
	}
	if err := p.writeManifestFile(manifest); err != nil {
		p.logger.Warn("failed to write manifest record file", zap.Error(err))
	}

	if !opts.SkipNotification {
		n := notify.Notification{
			Environment:     manifest.Environment,
			Version:         manifest.Version,
			Status:          manifest.Status,
			DurationSeconds: manifest.DurationSeconds,
		}
		if stageErr != nil {
			n.Message = stageErr.Error()
		}
		if err := p.notifier.Notify(ctx, n); err != nil {
			p.logger.Warn("notification delivery failed (non-fatal)", zap.Error(err))
		}
	}

	if stageErr != nil {
		return manifest, stageErr
	}
	p.logger.Info("deployment complete",
		zap.String("environment", string(manifest.Environment)),
		zap.String("version", manifest.Version),
		zap.Int("duration_seconds", manifest.DurationSeconds))
	return manifest, nil
}

// writeManifestFile writes the manifest as a standalone YAML record next to
// the stage logs, so the run is inspectable even when the history database
// is unavailable.
func (p *Pipeline) writeManifestFile(manifest *models.DeploymentManifest) error {
	dir := filepath.Join(p.cfg.LogDir, "deployments")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest dir: %w", err)
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("deploy-%s-%s.yaml", manifest.Environment, manifest.Version))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest record: %w", err)
	}
	return nil
}

func operatorName() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}
