package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/simp-lee/crudboard/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin console",
	Long: `Run the admin console against the API at api.base_url.

The console keeps its access token in the configured database and serves
the list, form and profile pages until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath(cmd))
		if err != nil {
			return err
		}
		a, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("create app: %w", err)
		}
		return a.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
