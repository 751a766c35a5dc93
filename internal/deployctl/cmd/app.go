package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tradewatch/deployctl/appversion"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/internal/deployctl/output"
	"github.com/tradewatch/deployctl/pipeline"
)

var (
	appEnv        string
	appVersionArg string
	appCommit     string
	appTag        string
	appDryRun     bool
	appSkipBuild  bool
	appSkipDeploy bool
	appSkipConf   bool
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Roll the application code back to a previous version",
}

func appEngineFor(ctx context.Context, tc *toolchain, env config.Environment, skipConfirmation bool) (*appversion.Engine, error) {
	vcs, err := appversion.OpenGit(tc.cfg.Repo.Path, tc.cfg.Repo.AuthorName, tc.cfg.Repo.AuthorEmail)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewExecRunner(tc.cfg.LogDir)
	builder := pipeline.NewNpmBuilder(runner, tc.cfg.Repo.Path)

	envCfg, err := tc.registry.Resolve(env)
	if err != nil {
		return nil, err
	}
	objects, err := pipeline.NewS3Store(ctx, envCfg.Deployment.Region)
	if err != nil {
		return nil, err
	}
	publisher := pipeline.NewBucketPublisher(objects, tc.registry, tc.cfg.BuildDir)

	recordDir := filepath.Join(tc.cfg.LogDir, "rollbacks")
	return appversion.New(vcs, builder, publisher, tc.backups, tc.cfg.BackupRoot,
		recordDir, confirmer(skipConfirmation), tc.logger), nil
}

var appRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Resolve a target version and roll the worktree back to it",
	Long: `Rollback resolves the requested target (a semantic version must match
exactly one tag; explicit tags and commits are used verbatim), preserves the
current state on a safety branch, then checks out, rebuilds and redeploys.

--dry-run stops right after target resolution and reports what it found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ParseEnvironment(appEnv)
		if err != nil {
			return err
		}
		target, err := appTarget()
		if err != nil {
			return err
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		engine, err := appEngineFor(cmd.Context(), tc, env, appSkipConf)
		if err != nil {
			return err
		}

		result, err := engine.Rollback(cmd.Context(), env, target, appversion.Options{
			DryRun:           appDryRun,
			SkipBuild:        appSkipBuild,
			SkipDeploy:       appSkipDeploy,
			SkipConfirmation: appSkipConf,
		})
		if err != nil {
			return err
		}

		if appDryRun {
			output.Info(fmt.Sprintf("dry run: %s resolves to %s (%s)", target.Value, result.ResolvedRef, result.ResolvedHash))
			return nil
		}
		output.Success(fmt.Sprintf("Rolled %s back to %s", env, result.ResolvedRef))
		output.Info(fmt.Sprintf("  Safety branch: %s", result.SafetyBranch))
		output.Info(fmt.Sprintf("  Record:        %s", result.RecordPath))
		return nil
	},
}

// appTarget maps the mutually-exclusive target flags to a Target.
func appTarget() (appversion.Target, error) {
	set := 0
	var target appversion.Target
	if appVersionArg != "" {
		set++
		target = appversion.Target{Kind: appversion.TargetVersion, Value: appVersionArg}
	}
	if appCommit != "" {
		set++
		target = appversion.Target{Kind: appversion.TargetCommit, Value: appCommit}
	}
	if appTag != "" {
		set++
		target = appversion.Target{Kind: appversion.TargetTag, Value: appTag}
	}
	if set != 1 {
		return appversion.Target{}, fmt.Errorf("exactly one of --version, --commit or --tag is required")
	}
	return target, nil
}

var appListVersionsCmd = &cobra.Command{
	Use:   "list-versions",
	Short: "List available version tags, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		vcs, err := appversion.OpenGit(tc.cfg.Repo.Path, tc.cfg.Repo.AuthorName, tc.cfg.Repo.AuthorEmail)
		if err != nil {
			return err
		}
		engine := appversion.New(vcs, nil, nil, tc.backups, tc.cfg.BackupRoot, "", confirmer(true), tc.logger)
		tags, err := engine.ListVersions()
		if err != nil {
			return err
		}

		headers := []string{"TAG", "COMMIT", "DATE"}
		var rows [][]string
		for _, tag := range tags {
			hash := tag.Hash
			if len(hash) > 7 {
				hash = hash[:7]
			}
			rows = append(rows, []string{tag.Name, hash, tag.When.Format("2006-01-02")})
		}
		output.PrintTable(headers, rows)
		return nil
	},
}

func init() {
	appRollbackCmd.Flags().StringVar(&appEnv, "env", "", "target environment (required)")
	appRollbackCmd.MarkFlagRequired("env")
	appRollbackCmd.Flags().StringVar(&appVersionArg, "version", "", "semantic version to roll back to (X.Y.Z)")
	appRollbackCmd.Flags().StringVar(&appCommit, "commit", "", "commit to roll back to")
	appRollbackCmd.Flags().StringVar(&appTag, "tag", "", "tag to roll back to")
	appRollbackCmd.Flags().BoolVar(&appDryRun, "dry-run", false, "resolve the target and stop")
	appRollbackCmd.Flags().BoolVar(&appSkipBuild, "skip-build", false, "skip the rebuild step")
	appRollbackCmd.Flags().BoolVar(&appSkipDeploy, "skip-deploy", false, "skip the redeploy step")
	appRollbackCmd.Flags().BoolVar(&appSkipConf, "skip-confirmation", false, "do not prompt before checkout")

	appCmd.AddCommand(appRollbackCmd)
	appCmd.AddCommand(appListVersionsCmd)
	rootCmd.AddCommand(appCmd)
}
