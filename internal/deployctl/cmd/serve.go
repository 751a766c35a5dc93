package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradewatch/deployctl/api"
	"github.com/tradewatch/deployctl/db"
	"github.com/tradewatch/deployctl/internal/deployctl/output"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only operations status API",
	Long: `Serve exposes what this tool knows over HTTP: deployment history,
the currently live version per environment, and the backup inventory. All
endpoints except /health require a configured API key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tc, err := loadToolchain()
		if err != nil {
			return err
		}
		history, err := db.New(tc.cfg.History.Path)
		if err != nil {
			return err
		}
		defer history.Close()

		output.Info(fmt.Sprintf("Serving status API on port %d", tc.cfg.Server.Port))
		return api.NewServer(tc.cfg, history, tc.backups).Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
