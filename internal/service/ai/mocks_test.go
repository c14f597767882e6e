package ai

import (
	"context"
	"sync/atomic"

	"github.com/Taichi-iskw/clipquiz/internal/model"
)

// mockProvider mocks Provider and counts calls
type mockProvider struct {
	name           model.ProviderName
	AnalyzeFunc    func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error)
	TranscribeFunc func(ctx context.Context, audio *model.Audio) (*model.Transcript, error)

	analyzeCalls    atomic.Int32
	transcribeCalls atomic.Int32
}

func (m *mockProvider) Name() model.ProviderName {
	return m.name
}

func (m *mockProvider) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	m.analyzeCalls.Add(1)
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return &model.AnalysisResult{}, nil
}

func (m *mockProvider) Transcribe(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	m.transcribeCalls.Add(1)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio)
	}
	return &model.Transcript{}, nil
}
