package progress

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
)

// mockRepository keeps records in memory
type mockRepository struct {
	records        map[string]*model.LearningRecord
	ListByUserFunc func(ctx context.Context, userID string) ([]*model.LearningRecord, error)
}

func newMockRepository() *mockRepository {
	return &mockRepository{records: map[string]*model.LearningRecord{}}
}

func (m *mockRepository) Update(ctx context.Context, userID, videoID string, fn func(*model.LearningRecord) error) (*model.LearningRecord, error) {
	key := userID + "/" + videoID
	record, ok := m.records[key]
	if !ok {
		record = &model.LearningRecord{UserID: userID, VideoID: videoID, CheckpointsPassed: []string{}}
	}
	copied := *record
	copied.CheckpointsPassed = append([]string(nil), record.CheckpointsPassed...)
	if err := fn(&copied); err != nil {
		return nil, err
	}
	m.records[key] = &copied
	return &copied, nil
}

func (m *mockRepository) ListByUser(ctx context.Context, userID string) ([]*model.LearningRecord, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	var out []*model.LearningRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestService() (Service, *mockRepository) {
	repo := newMockRepository()
	logger, _ := test.NewNullLogger()
	return NewService(repo, logger), repo
}

func result(id string, outcome model.CheckpointOutcome, delta int) model.CheckpointResult {
	return model.CheckpointResult{CheckpointID: id, Outcome: outcome, PointsDelta: delta}
}

func TestProgressService_RecordCheckpoint(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	steps := []struct {
		result     model.CheckpointResult
		wantPoints int
		wantPassed []string
	}{
		{result: result("cp1", model.OutcomeIncorrect, -5), wantPoints: 0, wantPassed: []string{}},
		{result: result("cp1", model.OutcomeCorrect, 20), wantPoints: 20, wantPassed: []string{"cp1"}},
		{result: result("cp1", model.OutcomeCorrect, 20), wantPoints: 20, wantPassed: []string{"cp1"}},
		{result: result("cp2", model.OutcomeTimeout, -5), wantPoints: 15, wantPassed: []string{"cp1"}},
		{result: result("cp2", model.OutcomeCorrect, 10), wantPoints: 25, wantPassed: []string{"cp1", "cp2"}},
	}

	var record *model.LearningRecord
	for _, step := range steps {
		var err error
		record, err = svc.RecordCheckpoint(ctx, "u1", "v1", step.result)
		require.NoError(t, err)
		assert.Equal(t, step.wantPoints, record.PointsEarned)
		assert.Equal(t, step.wantPassed, record.CheckpointsPassed)
	}
	assert.Equal(t, 5, record.Attempts)
	assert.Equal(t, 3, record.CorrectAnswers)
}

func TestProgressService_RecordCheckpoint_Validation(t *testing.T) {
	svc, repo := newTestService()

	tests := []struct {
		name    string
		userID  string
		videoID string
		result  model.CheckpointResult
	}{
		{name: "missing user", videoID: "v1", result: result("cp1", model.OutcomeCorrect, 10)},
		{name: "missing checkpoint", userID: "u1", videoID: "v1", result: result("", model.OutcomeCorrect, 10)},
		{name: "unknown outcome", userID: "u1", videoID: "v1", result: result("cp1", "skipped", 0)},
		{name: "penalty on correct", userID: "u1", videoID: "v1", result: result("cp1", model.OutcomeCorrect, -5)},
		{name: "points on timeout", userID: "u1", videoID: "v1", result: result("cp1", model.OutcomeTimeout, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordCheckpoint(context.Background(), tt.userID, tt.videoID, tt.result)
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArg))
		})
	}
	assert.Empty(t, repo.records)
}

func TestProgressService_Stats(t *testing.T) {
	svc, repo := newTestService()
	repo.ListByUserFunc = func(ctx context.Context, userID string) ([]*model.LearningRecord, error) {
		return []*model.LearningRecord{
			{UserID: userID, VideoID: "v1", PointsEarned: 40, CheckpointsPassed: []string{"cp1", "cp2"}, Attempts: 3, CorrectAnswers: 2},
			{UserID: userID, VideoID: "v2", PointsEarned: 20, CheckpointsPassed: []string{"cp1"}, Attempts: 1, CorrectAnswers: 1},
		}, nil
	}

	stats, err := svc.Stats(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, &model.UserStats{
		UserID:            "u1",
		TotalVideos:       2,
		TotalPoints:       60,
		CheckpointsPassed: 3,
		Attempts:          4,
		Mastery:           0.75,
	}, stats)

	_, err = svc.Stats(context.Background(), " ")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArg))
}

func TestProgressService_Stats_NoRecords(t *testing.T) {
	svc, _ := newTestService()

	stats, err := svc.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, stats.Mastery)
	assert.Zero(t, stats.TotalVideos)
}
