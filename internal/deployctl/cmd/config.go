package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/configmgr"
	"github.com/tradewatch/deployctl/internal/deployctl/output"
)

var (
	configForce  bool
	configOutput string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage environment configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List environments and the active pointer",
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		active, err := tc.registry.ActiveEnvironment()
		if err != nil {
			return err
		}

		headers := []string{"ENVIRONMENT", "ACTIVE", "CONFIG FILE"}
		var rows [][]string
		for _, env := range config.Environments() {
			marker := ""
			if env == active {
				marker = "*"
			}
			rows = append(rows, []string{string(env), marker, tc.registry.EnvironmentFile(env)})
		}
		output.PrintTable(headers, rows)
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [environment]",
	Short: "Switch the active environment and regenerate artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ParseEnvironment(args[0])
		if err != nil {
			return err
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(configForce), tc.logger)
		if err := mgr.Use(env, configForce); err != nil {
			return err
		}
		output.Success(fmt.Sprintf("Active environment is now %s", env))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [environment]",
	Short: "Validate an environment document",
	Long: `Validate checks required sections for every environment and, for
production, the hardening rules: sensitive fields must be non-empty and free
of placeholder values, session cookies must be secure, and the log level must
be info or warn. --force downgrades failures to logged warnings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ParseEnvironment(args[0])
		if err != nil {
			return err
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(true), tc.logger)
		if err := mgr.Validate(env, configForce); err != nil {
			return err
		}
		output.Success(fmt.Sprintf("%s configuration is valid", env))
		return nil
	},
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate [environment]",
	Short: "Generate deployment artifacts from the environment document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ParseEnvironment(args[0])
		if err != nil {
			return err
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(true), tc.logger)
		paths, err := mgr.Generate(env)
		if err != nil {
			return err
		}
		for _, p := range paths {
			output.Info("generated " + p)
		}
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [environment]",
	Short: "Show an environment document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ParseEnvironment(args[0])
		if err != nil {
			return err
		}
		format, err := output.ParseFormat(configOutput)
		if err != nil {
			return err
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(true), tc.logger)
		cfg, err := mgr.Show(env)
		if err != nil {
			return err
		}

		masked, err := configmgr.RenderMaskedYAML(cfg)
		if err != nil {
			return err
		}
		return output.Print(format, cfg, func() {
			fmt.Print(string(masked))
		})
	},
}

var configDiffCmd = &cobra.Command{
	Use:   "diff [environmentA] [environmentB]",
	Short: "Diff two environment documents",
	Long: `Diff reports every leaf whose serialized form differs between the two
documents. Sensitive values are masked in the table; json and yaml output
carry real values for automation.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		envA, err := config.ParseEnvironment(args[0])
		if err != nil {
			return err
		}
		envB, err := config.ParseEnvironment(args[1])
		if err != nil {
			return err
		}
		format, err := output.ParseFormat(configOutput)
		if err != nil {
			return err
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(true), tc.logger)
		entries, err := mgr.Diff(envA, envB)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			output.Info("no differences")
			return nil
		}

		return output.Print(format, entries, func() {
			headers := []string{"PATH", string(envA), string(envB)}
			var rows [][]string
			for _, entry := range entries {
				masked := entry.Masked()
				rows = append(rows, []string{masked.Path, masked.ValueA, masked.ValueB})
			}
			output.PrintTable(headers, rows)
		})
	},
}

var configBackupCmd = &cobra.Command{
	Use:   "backup [environment]",
	Short: "Back up the environment document and generated artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.ParseEnvironment(args[0])
		if err != nil {
			return err
		}
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(true), tc.logger)
		record, err := mgr.Backup(env)
		if err != nil {
			return err
		}
		output.Success(fmt.Sprintf("Backup %s created (%d items)", record.ID, len(record.Contents)))
		return nil
	},
}

var configRestoreCmd = &cobra.Command{
	Use:   "restore [backupId]",
	Short: "Restore a configuration backup",
	Long: `Restore writes the backup's items back to their live locations. The
backup's own manifest decides which environment is touched. A fresh backup of
the current state is taken first, so the restore is itself undoable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		mgr := configmgr.New(tc.cfg, tc.registry, tc.backups, confirmer(configForce), tc.logger)
		pre, err := mgr.Restore(args[0])
		if err != nil {
			return err
		}
		output.Success(fmt.Sprintf("Restored %s (pre-restore state saved as %s)", args[0], pre.ID))
		return nil
	},
}

func init() {
	configCmd.PersistentFlags().BoolVar(&configForce, "force", false, "downgrade validation failures to warnings and skip confirmation")
	configCmd.PersistentFlags().StringVar(&configOutput, "output", "table", "output format (table, json, yaml)")

	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configUseCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configGenerateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configDiffCmd)
	configCmd.AddCommand(configBackupCmd)
	configCmd.AddCommand(configRestoreCmd)
	rootCmd.AddCommand(configCmd)
}
