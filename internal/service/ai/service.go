// Package ai is the unified AI service. It selects the active provider, falls back once to the
// default provider when a non-default provider fails, fills checkpoints when a provider authors
// none, and estimates request cost.
package ai

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
)

const (
	defaultDifficultyScore = 3
	minDifficultyScore     = 1
	maxDifficultyScore     = 5
	defaultSummary         = "这是一个英语学习视频，包含日常对话和实用表达。"
)

// Provider is one AI vendor adapter
type Provider interface {
	Name() model.ProviderName
	Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error)
	Transcribe(ctx context.Context, audio *model.Audio) (*model.Transcript, error)
}

// Service is the unified AI service
type Service interface {
	AnalyzeVideoContent(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error)
	TranscribeAudio(ctx context.Context, audio *model.Audio) (*model.Transcript, error)
	EstimateCost(tokens int) model.CostEstimate
	Provider() model.ProviderName
	SetProvider(name string) error
	WithProvider(name string) (Service, error)
}

// Option configures the service
type Option func(*aiService)

// WithSpeechProvider sets the adapter used when the active provider cannot transcribe
func WithSpeechProvider(p Provider) Option {
	return func(s *aiService) { s.speech = p }
}

// WithCheckpointGenerator replaces the checkpoint generator
func WithCheckpointGenerator(g *CheckpointGenerator) Option {
	return func(s *aiService) { s.generator = g }
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *aiService) { s.logger = logger }
}

type aiService struct {
	providers map[model.ProviderName]Provider
	// active holds a model.ProviderName. It is read once per call, so a concurrent
	// SetProvider only affects calls that start afterwards.
	active    *atomic.Value
	speech    Provider
	generator *CheckpointGenerator
	logger    logrus.FieldLogger
}

// NewService creates a new AI service with the given adapters and active provider
func NewService(providers []Provider, active model.ProviderName, opts ...Option) (Service, error) {
	s := &aiService{
		providers: make(map[model.ProviderName]Provider, len(providers)),
		active:    &atomic.Value{},
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.generator == nil {
		s.generator = NewCheckpointGenerator(nil)
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}

	if active == "" {
		active = model.DefaultProvider
	}
	if err := s.SetProvider(string(active)); err != nil {
		return nil, err
	}
	return s, nil
}

// Provider returns the active provider name
func (s *aiService) Provider() model.ProviderName {
	return s.active.Load().(model.ProviderName)
}

// SetProvider switches the active provider for subsequent calls
func (s *aiService) SetProvider(name string) error {
	parsed, err := s.resolve(name)
	if err != nil {
		return err
	}
	s.active.Store(parsed)
	return nil
}

// WithProvider returns a service sharing the same adapters with its own selection
func (s *aiService) WithProvider(name string) (Service, error) {
	parsed, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	clone := *s
	clone.active = &atomic.Value{}
	clone.active.Store(parsed)
	return &clone, nil
}

func (s *aiService) resolve(name string) (model.ProviderName, error) {
	parsed, err := model.ParseProviderName(name)
	if err != nil {
		return "", apperrors.Validation(err.Error())
	}
	if _, ok := s.providers[parsed]; !ok {
		return "", apperrors.Validation(fmt.Sprintf("AI provider %q is not registered", parsed))
	}
	return parsed, nil
}

// AnalyzeVideoContent analyzes the transcripts with the active provider.
// A failure of a non-default provider is retried exactly once against the default provider.
func (s *aiService) AnalyzeVideoContent(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	if req == nil || isAbsent(req.TranscriptEN) || isAbsent(req.TranscriptCN) {
		return nil, apperrors.Validation("transcripts are required")
	}

	name := s.Provider()
	result, err := s.analyzeWith(ctx, name, req)
	if err == nil {
		return result, nil
	}

	if name == model.DefaultProvider || isCanceled(ctx) {
		return nil, err
	}
	if _, ok := s.providers[model.DefaultProvider]; !ok {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"provider": name,
		"fallback": model.DefaultProvider,
		"error":    err,
	}).Warn("AI provider failed, falling back")

	return s.analyzeWith(ctx, model.DefaultProvider, req)
}

func (s *aiService) analyzeWith(ctx context.Context, name model.ProviderName, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	result, err := s.providers[name].Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.finalize(name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// finalize fills defaults and enforces the checkpoint invariants
func (s *aiService) finalize(name model.ProviderName, result *model.AnalysisResult) error {
	result.Provider = name

	a := &result.Analysis
	if a.Keywords == nil {
		a.Keywords = []model.Keyword{}
	}
	if a.Phrases == nil {
		a.Phrases = []model.Phrase{}
	}
	if a.Scenarios == nil {
		a.Scenarios = []string{}
	}
	if a.DifficultyScore == 0 {
		a.DifficultyScore = defaultDifficultyScore
	}
	a.DifficultyScore = min(max(a.DifficultyScore, minDifficultyScore), maxDifficultyScore)
	if a.Summary == "" {
		a.Summary = defaultSummary
	}

	if len(result.Checkpoints) == 0 {
		result.Checkpoints = s.generator.Generate(result.Analysis)
	}

	for i := range result.Checkpoints {
		cp := &result.Checkpoints[i]
		if cp.ID == "" {
			cp.ID = fmt.Sprintf("cp%d", i+1)
		}
		if err := cp.Validate(); err != nil {
			return apperrors.Format(err, string(name), "invalid checkpoint")
		}
	}
	sort.SliceStable(result.Checkpoints, func(i, j int) bool {
		return result.Checkpoints[i].TimePercent < result.Checkpoints[j].TimePercent
	})
	return nil
}

// TranscribeAudio transcribes with the active provider, or with the speech provider
// when the active one does not offer speech recognition.
func (s *aiService) TranscribeAudio(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	if audio == nil || len(audio.Data) == 0 {
		return nil, apperrors.Validation("audio file is required")
	}

	name := s.Provider()
	transcript, err := s.providers[name].Transcribe(ctx, audio)
	if apperrors.Is(err, apperrors.CodeUnsupported) && s.speech != nil {
		s.logger.WithFields(logrus.Fields{
			"provider": name,
			"speech":   s.speech.Name(),
		}).Debug("routing transcription to speech provider")
		transcript, err = s.speech.Transcribe(ctx, audio)
	}
	if err != nil {
		return nil, err
	}

	transcript.English = model.NormalizeSegments(transcript.English)
	transcript.Chinese = model.NormalizeSegments(transcript.Chinese)
	if transcript.Duration <= 0 {
		transcript.Duration = max(model.SegmentsDuration(transcript.English), model.SegmentsDuration(transcript.Chinese))
	}
	return transcript, nil
}

// EstimateCost prices tokens at the active provider's rate
func (s *aiService) EstimateCost(tokens int) model.CostEstimate {
	return EstimateCostFor(s.Provider(), tokens)
}

func isAbsent(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// isCanceled reports whether the caller gave up. A vendor's own client timeout also
// surfaces as context.DeadlineExceeded but still earns the fallback.
func isCanceled(ctx context.Context) bool {
	return ctx.Err() != nil
}
