package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradewatch/deployctl/appversion"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/configmgr"
	"github.com/tradewatch/deployctl/internal/deployctl/output"
	"github.com/tradewatch/deployctl/operr"
)

var (
	rbEnv          string
	rbType         string
	rbVersion      string
	rbConfigBackup string
	rbDBBackup     string
	rbSkipConf     bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll one or all domains back to a previous state",
	Long: `Rollback dispatches to the domain engines. The type selects what to
roll back:

  application  check out, rebuild and redeploy a previous version (-v)
  database     restore every collection from a database snapshot (-d)
  config       restore a configuration backup (-c)
  all          application, then database, then config

Each domain takes its own fresh backup before mutating anything, so a
rollback is itself undoable per domain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		env, err := resolveEnv(tc, rbEnv)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		switch rbType {
		case "application":
			return rollbackApplication(ctx, tc, env)
		case "database":
			return rollbackDatabase(ctx, tc, env)
		case "config":
			return rollbackConfig(tc)
		case "all":
			// Application first so the restored data and config match the
			// code that will serve them.
			if err := rollbackApplication(ctx, tc, env); err != nil {
				return err
			}
			if err := rollbackDatabase(ctx, tc, env); err != nil {
				return err
			}
			return rollbackConfig(tc)
		default:
			return operr.E(operr.InvalidArgument, "rollback",
				fmt.Sprintf("unknown type %q (expected application, database, config or all)", rbType))
		}
	},
}

func rollbackApplication(ctx context.Context, tc *toolchain, env config.Environment) error {
	if rbVersion == "" {
		return operr.E(operr.InvalidArgument, "rollback", "-v <version> is required for an application rollback")
	}
	engine, err := appEngineFor(ctx, tc, env, rbSkipConf)
	if err != nil {
		return err
	}
	result, err := engine.Rollback(ctx, env, appversion.Target{
		Kind:  appversion.TargetVersion,
		Value: rbVersion,
	}, appversion.Options{SkipConfirmation: rbSkipConf})
	if err != nil {
		return err
	}
	output.Success(fmt.Sprintf("Application rolled back to %s (safety branch %s)",
		result.ResolvedRef, result.SafetyBranch))
	return nil
}

func rollbackDatabase(ctx context.Context, tc *toolchain, env config.Environment) error {
	if rbDBBackup == "" {
		return operr.E(operr.InvalidArgument, "rollback", "-d <backupId> is required for a database rollback")
	}
	engine, cleanup, err := dbEngineFor(ctx, tc, env)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := engine.Restore(ctx, env, rbDBBackup, nil, false)
	if err != nil {
		return err
	}
	output.Success(fmt.Sprintf("Database restored from %s: %s (pre-restore state %s)",
		rbDBBackup, strings.Join(report.Restored, ", "), report.PreBackupID))
	return nil
}

func rollbackConfig(tc *toolchain) error {
	if rbConfigBackup == "" {
		return operr.E(operr.InvalidArgument, "rollback", "-c <backupId> is required for a config rollback")
	}
	mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(rbSkipConf), tc.logger)
	pre, err := mgr.Restore(rbConfigBackup)
	if err != nil {
		return err
	}
	output.Success(fmt.Sprintf("Configuration restored from %s (pre-restore state %s)", rbConfigBackup, pre.ID))
	return nil
}

func init() {
	rollbackCmd.Flags().StringVarP(&rbEnv, "environment", "e", "", "target environment (defaults to the active environment)")
	rollbackCmd.Flags().StringVarP(&rbType, "type", "t", "application", "what to roll back: application, database, config or all")
	rollbackCmd.Flags().StringVarP(&rbVersion, "version", "v", "", "application version to roll back to")
	rollbackCmd.Flags().StringVarP(&rbConfigBackup, "config-backup", "c", "", "config backup id to restore")
	rollbackCmd.Flags().StringVarP(&rbDBBackup, "db-backup", "d", "", "database backup id to restore")
	rollbackCmd.Flags().BoolVar(&rbSkipConf, "skip-confirmation", false, "do not prompt before destructive steps")

	rootCmd.AddCommand(rollbackCmd)
}
