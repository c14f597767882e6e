package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/clipquiz/cmd/analysis"
	"github.com/Taichi-iskw/clipquiz/internal/config"
	"github.com/Taichi-iskw/clipquiz/internal/logging"
	"github.com/Taichi-iskw/clipquiz/internal/media"
	analysisRepo "github.com/Taichi-iskw/clipquiz/internal/repository/analysis"
	progressRepo "github.com/Taichi-iskw/clipquiz/internal/repository/progress"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
	"github.com/Taichi-iskw/clipquiz/internal/service/progress"
)

// runtime is the configuration and logger shared by commands
type runtime struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

// storage groups the database-backed collaborators
type storage struct {
	pool     *pgxpool.Pool
	analyses analysisRepo.Repository
	progress progress.Service
}

// openStorage connects to DATABASE_URL. It returns config.ErrStorageDisabled when none is set.
func (r *runtime) openStorage(ctx context.Context) (*storage, error) {
	pool, err := config.NewDatabasePool(ctx, r.cfg)
	if err != nil {
		return nil, err
	}

	return &storage{
		pool:     pool,
		analyses: analysisRepo.NewRepository(pool),
		progress: progress.NewService(progressRepo.NewRepository(pool), r.logger),
	}, nil
}

func (s *storage) Close() {
	s.pool.Close()
}

// serviceProxy lets commands be built before configuration is loaded
type serviceProxy struct {
	ai.Service
	cleanup func()
}

// serviceCreator builds the AI service and the cleanup releasing it
type serviceCreator func(cmd *cobra.Command) (ai.Service, func(), error)

// withAIService builds cmd around a service created from configuration right before it runs
func withAIService(build func(ai.Service) *cobra.Command) *cobra.Command {
	return withService(build, func(cmd *cobra.Command) (ai.Service, func(), error) {
		rt, err := loadRuntime()
		if err != nil {
			return nil, nil, err
		}
		return analysis.NewServiceFactory(rt.cfg, rt.logger).CreateService(cmd.Context())
	})
}

// withService wires create into cmd. The cleanup runs whether or not the command succeeds.
func withService(build func(ai.Service) *cobra.Command, create serviceCreator) *cobra.Command {
	proxy := &serviceProxy{cleanup: func() {}}
	cmd := build(proxy)

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := create(cmd)
		if err != nil {
			return err
		}
		proxy.Service = svc
		proxy.cleanup = cleanup
		return nil
	}

	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		defer proxy.cleanup()
		return run(cmd, args)
	}
	return cmd
}

func init() {
	rootCmd.AddCommand(withAIService(analysis.NewAnalyzeCommand))
	rootCmd.AddCommand(withAIService(func(svc ai.Service) *cobra.Command {
		return analysis.NewTranscribeCommand(svc, media.NewAudioDownloader())
	}))
}
