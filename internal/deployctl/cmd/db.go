package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/dbengine"
	"github.com/tradewatch/deployctl/internal/deployctl/output"
)

var (
	dbEnv         string
	dbBackupID    string
	dbCollections string
	dbDryRun      bool
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Back up and restore database collections",
}

// dbEngine dials the environment's document database and builds the engine.
func dbEngineFor(ctx context.Context, tc *toolchain, env config.Environment) (*dbengine.Engine, func(), error) {
	envCfg, err := tc.registry.Resolve(env)
	if err != nil {
		return nil, nil, err
	}
	store, disconnect, err := dbengine.ConnectMongo(ctx, envCfg.Database.URI, envCfg.Database.Name)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { disconnect(ctx) }
	return dbengine.New(store, tc.backups, tc.cfg.BackupRoot, tc.logger), cleanup, nil
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot every non-system collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		env, err := resolveEnv(tc, dbEnv)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		engine, cleanup, err := dbEngineFor(ctx, tc, env)
		if err != nil {
			return err
		}
		defer cleanup()

		if dbDryRun {
			plan, err := engine.Plan(ctx)
			if err != nil {
				return err
			}
			output.Info(fmt.Sprintf("dry run: would capture %s", strings.Join(plan, ", ")))
			return nil
		}

		record, err := engine.Backup(ctx, env)
		if err != nil {
			return err
		}
		output.Success(fmt.Sprintf("Backup %s created (%d collections)", record.ID, len(record.Contents)))
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore collections from a snapshot",
	Long: `Restore is destructive per collection: each selected collection is
dropped, recreated and bulk-inserted from the snapshot — never merged. It is
irreversible without a prior backup, which is why a fresh backup of the live
state is always taken first.

With --collections, only the listed collections are restored; collections
absent from the backup produce a warning and everything else proceeds.
--dry-run reports the full plan without writing anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbBackupID == "" {
			return fmt.Errorf("--backup is required")
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		env, err := resolveEnv(tc, dbEnv)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		engine, cleanup, err := dbEngineFor(ctx, tc, env)
		if err != nil {
			return err
		}
		defer cleanup()

		var collections []string
		if dbCollections != "" {
			for _, name := range strings.Split(dbCollections, ",") {
				if trimmed := strings.TrimSpace(name); trimmed != "" {
					collections = append(collections, trimmed)
				}
			}
		}

		report, err := engine.Restore(ctx, env, dbBackupID, collections, dbDryRun)
		if err != nil {
			return err
		}
		for _, name := range report.Missing {
			output.Warn(fmt.Sprintf("collection %s not present in backup %s", name, dbBackupID))
		}
		if report.DryRun {
			output.Info(fmt.Sprintf("dry run: would restore %s", strings.Join(report.Restored, ", ")))
			return nil
		}
		output.Success(fmt.Sprintf("Restored %d collection(s); pre-restore state saved as %s",
			len(report.Restored), report.PreBackupID))
		return nil
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the migrations stored alongside a snapshot",
	Long: `Migrations are applied in lexical filename order. A failing migration
aborts the remaining sequence but leaves already-restored collections and
already-applied migrations in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dbBackupID == "" {
			return fmt.Errorf("--backup is required")
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		env, err := resolveEnv(tc, dbEnv)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		engine, cleanup, err := dbEngineFor(ctx, tc, env)
		if err != nil {
			return err
		}
		defer cleanup()

		applied, err := engine.ApplyMigrations(ctx, env, dbBackupID, dbDryRun)
		for _, name := range applied {
			verb := "applied"
			if dbDryRun {
				verb = "would apply"
			}
			output.Info(fmt.Sprintf("%s %s", verb, name))
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			output.Info("no migrations found")
		}
		return nil
	},
}

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List database snapshots for an environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		env, err := resolveEnv(tc, dbEnv)
		if err != nil {
			return err
		}
		records, err := tc.backups.List(env, backup.DomainDatabase)
		if err != nil {
			return err
		}

		headers := []string{"ID", "CREATED", "COLLECTIONS"}
		var rows [][]string
		for _, record := range records {
			rows = append(rows, []string{
				record.ID,
				record.CreatedAt.Format("2006-01-02 15:04:05"),
				strings.Join(record.Contents, ","),
			})
		}
		output.PrintTable(headers, rows)
		return nil
	},
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbEnv, "env", "", "target environment (defaults to the active environment)")
	dbCmd.PersistentFlags().BoolVar(&dbDryRun, "dry-run", false, "report what would happen without writing")

	dbRestoreCmd.Flags().StringVar(&dbBackupID, "backup", "", "backup id to restore from")
	dbRestoreCmd.Flags().StringVar(&dbCollections, "collections", "", "comma-separated subset of collections to restore")
	dbMigrateCmd.Flags().StringVar(&dbBackupID, "backup", "", "backup id whose migrations to apply")

	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbRestoreCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbListCmd)
	rootCmd.AddCommand(dbCmd)
}
