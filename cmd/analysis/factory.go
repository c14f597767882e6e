package analysis

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/clipquiz/internal/cache"
	"github.com/Taichi-iskw/clipquiz/internal/config"
	"github.com/Taichi-iskw/clipquiz/internal/provider/openai"
	"github.com/Taichi-iskw/clipquiz/internal/provider/qwen"
	"github.com/Taichi-iskw/clipquiz/internal/provider/spark"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
)

// ServiceFactory creates AI service instances from configuration
type ServiceFactory struct {
	cfg    *config.Config
	logger logrus.FieldLogger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(cfg *config.Config, logger logrus.FieldLogger) *ServiceFactory {
	return &ServiceFactory{cfg: cfg, logger: logger}
}

// CreateService wires every provider adapter into the unified AI service.
// When REDIS_URL is set and reachable, analyses are cached.
func (f *ServiceFactory) CreateService(ctx context.Context) (ai.Service, func(), error) {
	qwenClient := qwen.NewClient(qwen.Config{
		APIKey:  f.cfg.Qwen.APIKey,
		Model:   f.cfg.Qwen.Model,
		BaseURL: f.cfg.Qwen.BaseURL,
		Logger:  f.logger,
	})
	sparkClient := spark.NewClient(spark.Config{
		AppID:         f.cfg.Spark.AppID,
		APIKey:        f.cfg.Spark.APIKey,
		APISecret:     f.cfg.Spark.APISecret,
		ChatURL:       f.cfg.Spark.ChatURL,
		TranscribeURL: f.cfg.Spark.TranscribeURL,
		Logger:        f.logger,
	})
	openaiClient := openai.NewClient(openai.Config{
		APIKey:  f.cfg.OpenAI.APIKey,
		Model:   f.cfg.OpenAI.Model,
		BaseURL: f.cfg.OpenAI.BaseURL,
		Logger:  f.logger,
	})

	service, err := ai.NewService(
		[]ai.Provider{qwenClient, sparkClient, openaiClient},
		f.cfg.Provider(),
		ai.WithSpeechProvider(openaiClient),
		ai.WithLogger(f.logger),
	)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	if f.cfg.RedisURL == "" {
		return service, cleanup, nil
	}

	client, err := config.NewRedisClient(ctx, f.cfg)
	if err != nil {
		f.logger.WithError(err).Warn("analysis cache disabled")
		return service, cleanup, nil
	}
	cleanup = func() {
		client.Close()
	}

	return cache.NewAnalysisCache(service, client, f.cfg.CacheTTL, f.logger), cleanup, nil
}
