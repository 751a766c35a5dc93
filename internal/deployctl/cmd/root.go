package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradewatch/deployctl/backup"
	"github.com/tradewatch/deployctl/config"
	"github.com/tradewatch/deployctl/confirm"
	"github.com/tradewatch/deployctl/internal/deployctl/output"
	"github.com/tradewatch/deployctl/logging"
	"github.com/tradewatch/deployctl/operr"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "deployctl",
	Short: "Deployment and rollback orchestrator for the dashboard stack",
	Long: `deployctl coordinates backup, deployment and rollback across the three
stateful domains of the dashboard stack: environment configuration, the
document database, and the application code.

Every destructive operation takes a mandatory backup of the domain it is
about to touch, so each restore is itself individually undoable.

Configuration:
  deployctl.yaml in the working directory (override with --config), with
  per-environment documents under <config_dir>/environments/.

Example usage:
  deployctl config validate production
  deployctl deploy -e staging
  deployctl db restore --env=staging --backup=backup-20260801-120000
  deployctl rollback -e production -t application -v 2.4.1`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree and maps errors to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.Error(err.Error())
		os.Exit(operr.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "deployctl.yaml", "path to the deployctl configuration file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose logging to the console")
}

// toolchain bundles the shared collaborators every command wires up.
type toolchain struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *config.Registry
	backups  *backup.Store
}

func loadToolchain() (*toolchain, error) {
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = "debug"
		logCfg.Format = "console"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	return &toolchain{
		cfg:      cfg,
		logger:   logger,
		registry: config.NewRegistry(cfg.ConfigDir),
		backups:  backup.NewStore(cfg.BackupRoot),
	}, nil
}

// resolveEnv parses the -e flag, falling back to the persisted active
// environment pointer when the flag was not given.
func resolveEnv(tc *toolchain, flagValue string) (config.Environment, error) {
	if flagValue == "" {
		return tc.registry.ActiveEnvironment()
	}
	return config.ParseEnvironment(flagValue)
}

// confirmer returns the interactive prompt, or an auto-accept when the skip
// flag is set.
func confirmer(skip bool) confirm.Confirmer {
	if skip {
		return confirm.Auto(true)
	}
	return confirm.NewStdin()
}
