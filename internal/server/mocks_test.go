package server

import (
	"context"

	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
)

type mockAIService struct {
	AnalyzeFunc     func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error)
	TranscribeFunc  func(ctx context.Context, audio *model.Audio) (*model.Transcript, error)
	SetProviderFunc func(name string) error
	provider        model.ProviderName
	scoped          []string
}

func (m *mockAIService) AnalyzeVideoContent(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	return m.AnalyzeFunc(ctx, req)
}

func (m *mockAIService) TranscribeAudio(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	return m.TranscribeFunc(ctx, audio)
}

func (m *mockAIService) EstimateCost(tokens int) model.CostEstimate {
	return ai.EstimateCostFor(m.Provider(), tokens)
}

func (m *mockAIService) Provider() model.ProviderName {
	if m.provider == "" {
		return model.DefaultProvider
	}
	return m.provider
}

func (m *mockAIService) SetProvider(name string) error {
	if m.SetProviderFunc != nil {
		if err := m.SetProviderFunc(name); err != nil {
			return err
		}
	}
	m.provider = model.ProviderName(name)
	return nil
}

func (m *mockAIService) WithProvider(name string) (ai.Service, error) {
	m.scoped = append(m.scoped, name)
	if _, err := model.ParseProviderName(name); err != nil {
		return nil, err
	}
	return m, nil
}

type mockAnalysisRepository struct {
	SaveFunc         func(ctx context.Context, stored *model.StoredAnalysis) error
	GetByVideoIDFunc func(ctx context.Context, videoID string) (*model.StoredAnalysis, error)
}

func (m *mockAnalysisRepository) Save(ctx context.Context, stored *model.StoredAnalysis) error {
	return m.SaveFunc(ctx, stored)
}

func (m *mockAnalysisRepository) GetByVideoID(ctx context.Context, videoID string) (*model.StoredAnalysis, error) {
	return m.GetByVideoIDFunc(ctx, videoID)
}

func (m *mockAnalysisRepository) Delete(ctx context.Context, videoID string) error {
	return nil
}

type mockProgressService struct {
	RecordCheckpointFunc func(ctx context.Context, userID, videoID string, result model.CheckpointResult) (*model.LearningRecord, error)
	StatsFunc            func(ctx context.Context, userID string) (*model.UserStats, error)
}

func (m *mockProgressService) RecordCheckpoint(ctx context.Context, userID, videoID string, result model.CheckpointResult) (*model.LearningRecord, error) {
	return m.RecordCheckpointFunc(ctx, userID, videoID, result)
}

func (m *mockProgressService) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	return m.StatsFunc(ctx, userID)
}

// stubProvider is a provider adapter that never authors checkpoints
type stubProvider struct {
	name model.ProviderName
}

func (p *stubProvider) Name() model.ProviderName { return p.name }

func (p *stubProvider) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	return &model.AnalysisResult{TokensUsed: 120}, nil
}

func (p *stubProvider) Transcribe(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	return &model.Transcript{
		English: []model.Segment{{Start: 0, End: 1.5, Text: " Hello "}},
		Chinese: []model.Segment{{Start: 0, End: 1.5, Text: "你好"}},
	}, nil
}
