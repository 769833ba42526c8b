package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/simp-lee/crudboard/internal/app"
	"github.com/simp-lee/crudboard/internal/config"
	"github.com/simp-lee/crudboard/internal/mockapi"
)

var mockapiCmd = &cobra.Command{
	Use:   "mockapi",
	Short: "Run the demo REST API",
	Long: `Run the demo REST API the console manages: token auth, users, roles,
permissions and employees under /api.

Example:
  crudboard mockapi
  crudboard mockapi --seed=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath(cmd))
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("seed") {
			cfg.MockAPI.Seed, _ = cmd.Flags().GetBool("seed")
		}
		return runMockAPI(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(mockapiCmd)
	mockapiCmd.Flags().Bool("seed", true, "insert demo data into empty tables")
}

func runMockAPI(ctx context.Context, cfg *config.Config) error {
	if cfg.MockAPI.Port == 0 {
		return errors.New("mockapi.port is required")
	}

	gin.SetMode(cfg.Server.Mode)
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer log.Close()

	db, err := config.SetupDatabase(&cfg.Database, log.Logger, mockapi.Models()...)
	if err != nil {
		return fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if err := config.CloseDatabase(db); err != nil {
			log.Error("database close error", slog.Any("error", err))
		}
	}()

	if cfg.MockAPI.Seed {
		if err := mockapi.Seed(ctx, db, log.Logger); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	opts := mockapi.OptionsFromConfig(cfg.MockAPI)
	opts.Logger = log.Logger.With(slog.String("component", "mockapi"))
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		opts.Registerer = reg
	}
	engine, err := mockapi.NewServer(db, opts)
	if err != nil {
		return fmt.Errorf("create mock api: %w", err)
	}
	if reg != nil {
		engine.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	addr := fmt.Sprintf("%s:%d", cfg.MockAPI.Host, cfg.MockAPI.Port)
	return app.RunServer(addr, engine, log.Logger, config.MustDuration(cfg.Server.Timeout, 30*time.Second))
}
