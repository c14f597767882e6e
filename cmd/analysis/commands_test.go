package analysis

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
)

// Mock AI service
type mockAIService struct {
	AnalyzeFunc    func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error)
	TranscribeFunc func(ctx context.Context, audio *model.Audio) (*model.Transcript, error)
	provider       model.ProviderName
}

func (m *mockAIService) AnalyzeVideoContent(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockAIService) TranscribeAudio(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio)
	}
	return nil, nil
}

func (m *mockAIService) EstimateCost(tokens int) model.CostEstimate {
	return ai.EstimateCostFor(m.Provider(), tokens)
}

func (m *mockAIService) Provider() model.ProviderName {
	if m.provider == "" {
		return model.ProviderQwen
	}
	return m.provider
}

func (m *mockAIService) SetProvider(name string) error {
	p, err := model.ParseProviderName(name)
	if err != nil {
		return err
	}
	m.provider = p
	return nil
}

func (m *mockAIService) WithProvider(name string) (ai.Service, error) {
	p, err := model.ParseProviderName(name)
	if err != nil {
		return nil, err
	}
	clone := *m
	clone.provider = p
	return &clone, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func sampleResult() *model.AnalysisResult {
	return &model.AnalysisResult{
		Analysis: model.VideoAnalysis{
			Keywords:        []model.Keyword{{Word: "latte", Translation: "拿铁", Frequency: 3, Difficulty: model.DifficultyEasy}},
			Scenarios:       []string{"café"},
			DifficultyScore: 2,
			Summary:         "点咖啡",
		},
		Checkpoints: []model.Checkpoint{
			{ID: "cp1", TimePercent: 30, Type: model.CheckpointVocabulary, Question: "latte?", Options: []string{"拿铁", "茶", "水"}, CorrectAnswer: 0, Points: 20},
		},
		Provider:   model.ProviderSpark,
		TokensUsed: 1_000_000,
	}
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	en := writeFile(t, dir, "en.json", `[{"start":0,"end":2,"text":"A latte please"}]`)
	cn := writeFile(t, dir, "cn.json", `[{"start":0,"end":2,"text":"请来一杯拿铁"}]`)
	broken := writeFile(t, dir, "broken.json", `[{"start":`)

	tests := []struct {
		name           string
		args           []string
		setupMock      func(*mockAIService)
		expectedOutput []string
		wantErr        bool
	}{
		{
			name: "text output with cost",
			args: []string{"--en", en, "--cn", cn, "--title", "Coffee", "--provider", "spark"},
			setupMock: func(m *mockAIService) {
				m.AnalyzeFunc = func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
					assert.Equal(t, "Coffee", req.Title)
					assert.JSONEq(t, `[{"start":0,"end":2,"text":"A latte please"}]`, string(req.TranscriptEN))
					return sampleResult(), nil
				}
			},
			expectedOutput: []string{"Provider: spark", "- latte (easy) 拿铁 x3", "[cp1] 30% vocabulary: latte?", "* 1) 拿铁", "CNY 10.0000"},
		},
		{
			name: "json output",
			args: []string{"--en", en, "--cn", cn, "--format", "json"},
			setupMock: func(m *mockAIService) {
				m.AnalyzeFunc = func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
					return sampleResult(), nil
				}
			},
			expectedOutput: []string{`"ai_analysis"`, `"checkpoints"`},
		},
		{
			name: "dry run",
			args: []string{"--en", en, "--cn", cn, "--dry-run"},
			setupMock: func(m *mockAIService) {
				m.AnalyzeFunc = func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
					t.Error("dry run must not call the provider")
					return nil, nil
				}
			},
			expectedOutput: []string{"DRY RUN"},
		},
		{
			name:      "invalid transcript JSON",
			args:      []string{"--en", broken, "--cn", cn},
			setupMock: func(m *mockAIService) {},
			wantErr:   true,
		},
		{
			name:      "missing transcript flag",
			args:      []string{"--en", en},
			setupMock: func(m *mockAIService) {},
			wantErr:   true,
		},
		{
			name:      "unknown provider",
			args:      []string{"--en", en, "--cn", cn, "--provider", "gemini"},
			setupMock: func(m *mockAIService) {},
			wantErr:   true,
		},
		{
			name: "service error",
			args: []string{"--en", en, "--cn", cn},
			setupMock: func(m *mockAIService) {
				m.AnalyzeFunc = func(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
					return nil, errors.New("provider unavailable")
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &mockAIService{}
			tt.setupMock(mockService)

			cmd := NewAnalyzeCommand(mockService)
			var output bytes.Buffer
			cmd.SetOut(&output)
			cmd.SetErr(&output)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.expectedOutput {
				assert.Contains(t, output.String(), want)
			}
		})
	}
}

func TestTranscribeCommand(t *testing.T) {
	dir := t.TempDir()
	audio := writeFile(t, dir, "clip.mp3", "ID3")

	mockService := &mockAIService{
		TranscribeFunc: func(ctx context.Context, a *model.Audio) (*model.Transcript, error) {
			assert.Equal(t, "clip.mp3", a.Filename)
			assert.Equal(t, []byte("ID3"), a.Data)
			return &model.Transcript{
				English:  []model.Segment{{Start: 1.25, End: 3.5, Text: "Hello there"}},
				Chinese:  []model.Segment{{Start: 1.25, End: 3.5, Text: "你好"}},
				Duration: 4,
			}, nil
		},
	}

	cmd := NewTranscribeCommand(mockService, nil)
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs([]string{audio, "--format", "srt"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "1\n00:00:01,250 --> 00:00:03,500\nHello there\n\n", output.String())

	cmd = NewTranscribeCommand(mockService, nil)
	cmd.SetOut(&output)
	cmd.SetArgs([]string{filepath.Join(dir, "missing.mp3")})
	assert.Error(t, cmd.Execute())
}

type mockDownloader struct {
	DownloadFunc func(ctx context.Context, videoURL, outputDir string) (string, error)
}

func (m *mockDownloader) Download(ctx context.Context, videoURL, outputDir string) (string, error) {
	return m.DownloadFunc(ctx, videoURL, outputDir)
}

func TestTranscribeCommand_URL(t *testing.T) {
	downloader := &mockDownloader{
		DownloadFunc: func(ctx context.Context, videoURL, outputDir string) (string, error) {
			assert.Equal(t, "https://www.youtube.com/watch?v=abc", videoURL)
			return writeFile(t, outputDir, "abc.mp3", "MP3"), nil
		},
	}
	mockService := &mockAIService{
		TranscribeFunc: func(ctx context.Context, a *model.Audio) (*model.Transcript, error) {
			assert.Equal(t, "abc.mp3", a.Filename)
			assert.Equal(t, []byte("MP3"), a.Data)
			return &model.Transcript{English: []model.Segment{{Start: 0, End: 1, Text: "Hi"}}}, nil
		},
	}

	cmd := NewTranscribeCommand(mockService, downloader)
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--url", "https://www.youtube.com/watch?v=abc", "--format", "json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, output.String(), `"Hi"`)
}

func TestTranscribeCommand_SourceErrors(t *testing.T) {
	failing := &mockDownloader{
		DownloadFunc: func(ctx context.Context, videoURL, outputDir string) (string, error) {
			return "", errors.New("video is private")
		},
	}

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{name: "no source", args: []string{}, wantMsg: "either an audio file or --url"},
		{name: "both sources", args: []string{"clip.mp3", "--url", "https://x"}, wantMsg: "either an audio file or --url"},
		{name: "download fails", args: []string{"--url", "https://x"}, wantMsg: "failed to download audio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewTranscribeCommand(&mockAIService{}, failing)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
