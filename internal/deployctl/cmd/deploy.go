package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradewatch/deployctl/appversion"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/configmgr"
	"github.com/tradewatch/deployctl/db"
	"github.com/tradewatch/deployctl/dbengine"
	"github.com/tradewatch/deployctl/internal/deployctl/output"
	"github.com/tradewatch/deployctl/notify"
	"github.com/tradewatch/deployctl/pipeline"
)

var (
	deployEnv        string
	deploySkipBuild  bool
	deploySkipTests  bool
	deploySkipBackup bool
	deploySkipConf   bool
	deploySkipRest   bool
	deploySkipValid  bool
	deploySkipNotif  bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run the forward deployment pipeline",
	Long: `Deploy runs the full pipeline for an environment: pre-deployment
backups, lint and tests, build, build validation, publish to the environment's
bucket, edge cache invalidation, optional remote restart, and manifest
recording.

Backup failures are logged and never block the deployment. A failed lint or
test stage stops the pipeline unless the operator explicitly confirms
continuing (--skip-confirmation continues without asking). Failures from the
build stage onward are always fatal and are recorded as a failed deployment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		env, err := resolveEnv(tc, deployEnv)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		deps, cleanup, err := deployDeps(ctx, tc, env)
		if err != nil {
			return err
		}
		defer cleanup()

		pipe := pipeline.New(tc.cfg, tc.registry, deps, tc.logger)
		manifest, err := pipe.Run(ctx, env, pipeline.Options{
			SkipBuild:        deploySkipBuild,
			SkipTests:        deploySkipTests,
			SkipBackup:       deploySkipBackup,
			SkipConfirmation: deploySkipConf,
			SkipRestart:      deploySkipRest,
			SkipValidation:   deploySkipValid,
			SkipNotification: deploySkipNotif,
		})
		if err != nil {
			return err
		}

		output.Success(fmt.Sprintf("Deployed %s to %s", manifest.Version, env))
		output.Info(fmt.Sprintf("  Commit:   %s", manifest.GitShort))
		output.Info(fmt.Sprintf("  Duration: %ds", manifest.DurationSeconds))
		return nil
	},
}

// deployDeps wires the pipeline's collaborators. The database backuper is
// best-effort: when the environment's database is unreachable the pipeline
// still runs, it just logs that the database backup was skipped.
func deployDeps(ctx context.Context, tc *toolchain, env config.Environment) (pipeline.Deps, func(), error) {
	cleanup := func() {}

	envCfg, err := tc.registry.Resolve(env)
	if err != nil {
		return pipeline.Deps{}, cleanup, err
	}

	vcs, err := appversion.OpenGit(tc.cfg.Repo.Path, tc.cfg.Repo.AuthorName, tc.cfg.Repo.AuthorEmail)
	if err != nil {
		return pipeline.Deps{}, cleanup, err
	}

	objects, err := pipeline.NewS3Store(ctx, envCfg.Deployment.Region)
	if err != nil {
		return pipeline.Deps{}, cleanup, err
	}
	cdn, err := pipeline.NewCloudFrontCDN(ctx, envCfg.Deployment.Region)
	if err != nil {
		return pipeline.Deps{}, cleanup, err
	}

	history, err := db.New(tc.cfg.History.Path)
	if err != nil {
		return pipeline.Deps{}, cleanup, err
	}
	cleanup = func() { history.Close() }

	runner := pipeline.NewExecRunner(tc.cfg.LogDir)

	var notifier notify.Notifier = notify.Discard{}
	if tc.cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(tc.cfg.Notify.WebhookURL, tc.cfg.Notify.Channel)
	}

	deps := pipeline.Deps{
		Configs:   configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(true), tc.logger),
		History:   history,
		Revisions: vcs,
		Runner:    runner,
		Objects:   objects,
		CDN:       cdn,
		Processes: pipeline.NewSSHProcessManager(runner),
		Notifier:  notifier,
		Confirmer: confirmer(deploySkipConf),
	}

	store, disconnect, err := dbengine.ConnectMongo(ctx, envCfg.Database.URI, envCfg.Database.Name)
	if err != nil {
		tc.logger.Warn("database unreachable, database backup will be skipped", zap.Error(err))
	} else {
		deps.Database = dbengine.New(store, tc.backups, tc.cfg.BackupRoot, tc.logger)
		closeHistory := cleanup
		cleanup = func() {
			disconnect(ctx)
			closeHistory()
		}
	}

	return deps, cleanup, nil
}

var deployHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded deployments for an environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		env, err := resolveEnv(tc, deployEnv)
		if err != nil {
			return err
		}
		history, err := db.New(tc.cfg.History.Path)
		if err != nil {
			return err
		}
		defer history.Close()

		manifests, err := history.ListDeployments(env, 20)
		if err != nil {
			return err
		}

		headers := []string{"VERSION", "STATUS", "COMMIT", "DEPLOYED BY", "WHEN", "DURATION"}
		var rows [][]string
		for _, m := range manifests {
			rows = append(rows, []string{
				m.Version,
				m.Status,
				m.GitShort,
				m.DeployedBy,
				m.Timestamp.Format("2006-01-02 15:04"),
				fmt.Sprintf("%ds", m.DurationSeconds),
			})
		}
		output.PrintTable(headers, rows)
		return nil
	},
}

func init() {
	deployCmd.PersistentFlags().StringVarP(&deployEnv, "environment", "e", "", "target environment (defaults to the active environment)")

	deployCmd.Flags().BoolVar(&deploySkipBuild, "skip-build", false, "skip the build stage")
	deployCmd.Flags().BoolVar(&deploySkipTests, "skip-tests", false, "skip lint and test stages")
	deployCmd.Flags().BoolVar(&deploySkipBackup, "skip-backup", false, "skip pre-deployment backups")
	deployCmd.Flags().BoolVar(&deploySkipConf, "skip-confirmation", false, "continue past failed test stages without asking")
	deployCmd.Flags().BoolVar(&deploySkipRest, "skip-restart", false, "skip the remote process restart")
	deployCmd.Flags().BoolVar(&deploySkipValid, "skip-validation", false, "skip build output validation")
	deployCmd.Flags().BoolVar(&deploySkipNotif, "skip-notification", false, "do not send the deployment notification")

	deployCmd.AddCommand(deployHistoryCmd)
	rootCmd.AddCommand(deployCmd)
}
