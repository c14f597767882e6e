package cmd

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/clipquiz/cmd/analysis"
	"github.com/Taichi-iskw/clipquiz/internal/config"
	"github.com/Taichi-iskw/clipquiz/internal/repository/common"
	"github.com/Taichi-iskw/clipquiz/internal/server"
)

// serveCmd starts the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve /api/analyze-video, /api/transcribe and the provider, analysis and progress endpoints.
Storage endpoints answer 503 when DATABASE_URL is not configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			rt.cfg.Server.Addr = addr
		}

		aiService, cleanup, err := analysis.NewServiceFactory(rt.cfg, rt.logger).CreateService(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		deps := server.Dependencies{AI: aiService, Logger: rt.logger}

		store, err := rt.openStorage(ctx)
		switch {
		case errors.Is(err, config.ErrStorageDisabled):
			rt.logger.Warn("DATABASE_URL is not set, storage endpoints are disabled")
		case err != nil:
			return fmt.Errorf("failed to connect to database: %w", err)
		default:
			defer store.Close()
			if migrateFirst, _ := cmd.Flags().GetBool("migrate"); migrateFirst {
				if err := common.RunMigrations(rt.cfg.DatabaseURL); err != nil {
					return err
				}
				rt.logger.Info("database migrations applied")
			}
			deps.Analyses = store.analyses
			deps.Progress = store.progress
		}

		accessLog := rt.logger.WriterLevel(logrus.InfoLevel)
		defer accessLog.Close()

		rt.logger.WithField("provider", aiService.Provider()).Info("AI service ready")

		srv := server.New(server.Config{
			Addr:           rt.cfg.Server.Addr,
			MaxUploadBytes: rt.cfg.MaxUploadBytes(),
			AllowedOrigins: rt.cfg.Server.AllowedOrigins,
			AccessLog:      accessLog,
		}, deps)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (overrides SERVER_ADDR/PORT)")
	serveCmd.Flags().Bool("migrate", false, "apply database migrations before serving")
}
