// Package cache keeps analysis results in Redis so re-analyzing the same transcripts
// does not pay for another provider call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
)

const keyPrefix = "analysis:"

// DefaultTTL is used when no TTL is configured
const DefaultTTL = 24 * time.Hour

type entry struct {
	Provider model.ProviderName   `json:"provider"`
	Result   model.AnalysisResult `json:"result"`
}

// AnalysisCache decorates an AI service with a Redis read-through cache for analyses.
// Cache failures are logged and never fail the request.
type AnalysisCache struct {
	ai.Service
	client redis.Cmdable
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewAnalysisCache wraps svc
func NewAnalysisCache(svc ai.Service, client redis.Cmdable, ttl time.Duration, logger logrus.FieldLogger) *AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AnalysisCache{Service: svc, client: client, ttl: ttl, logger: logger}
}

// Key returns the cache key of an analysis request for a provider
func Key(provider model.ProviderName, req *model.AnalysisRequest) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(provider), []byte(req.Title), req.TranscriptEN, req.TranscriptCN} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// AnalyzeVideoContent serves a cached analysis when present
func (c *AnalysisCache) AnalyzeVideoContent(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	if req == nil {
		return c.Service.AnalyzeVideoContent(ctx, req)
	}

	provider := c.Service.Provider()
	key := Key(provider, req)
	log := c.logger.WithField("key", key)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached entry
		if err := json.Unmarshal(data, &cached); err == nil {
			log.Debug("analysis cache hit")
			cached.Result.Provider = cached.Provider
			return &cached.Result, nil
		}
		log.Warn("discarding unreadable cache entry")
	case !errors.Is(err, redis.Nil):
		log.WithError(err).Warn("analysis cache read failed")
	}

	result, err := c.Service.AnalyzeVideoContent(ctx, req)
	if err != nil {
		return nil, err
	}
	// a fallback answer must not shadow the requested provider once it recovers
	if result.Provider != provider {
		log.WithField("provider", result.Provider).Debug("skipping cache for fallback result")
		return result, nil
	}

	payload, err := json.Marshal(entry{Provider: result.Provider, Result: *result})
	if err != nil {
		log.WithError(err).Warn("failed to encode analysis for cache")
		return result, nil
	}
	if err := c.client.Set(ctx, key, string(payload), c.ttl).Err(); err != nil {
		log.WithError(err).Warn("analysis cache write failed")
	}
	return result, nil
}

// WithProvider keeps the cache in front of the scoped service
func (c *AnalysisCache) WithProvider(name string) (ai.Service, error) {
	scoped, err := c.Service.WithProvider(name)
	if err != nil {
		return nil, err
	}
	return NewAnalysisCache(scoped, c.client, c.ttl, c.logger), nil
}
