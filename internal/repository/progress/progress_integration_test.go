//go:build integration

package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/repository/common"
)

func TestProgressRepository_Integration(t *testing.T) {
	pool := common.SetupTestDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	apply := func(result model.CheckpointResult) func(*model.LearningRecord) error {
		return func(r *model.LearningRecord) error {
			r.Apply(result)
			return nil
		}
	}

	// concurrent updates of one record serialize on the row lock
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "user-1", "video-1", apply(model.CheckpointResult{CheckpointID: "cp1", Outcome: model.OutcomeIncorrect, PointsDelta: -5}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	record, err := repo.Update(ctx, "user-1", "video-1", apply(model.CheckpointResult{CheckpointID: "cp1", Outcome: model.OutcomeCorrect, PointsDelta: 20}))
	require.NoError(t, err)
	assert.Equal(t, 6, record.Attempts)
	assert.Equal(t, 1, record.CorrectAnswers)
	assert.Equal(t, 20, record.PointsEarned)
	assert.Equal(t, []string{"cp1"}, record.CheckpointsPassed)

	_, err = repo.Update(ctx, "user-1", "video-2", apply(model.CheckpointResult{CheckpointID: "cp2", Outcome: model.OutcomeTimeout, PointsDelta: -5}))
	require.NoError(t, err)

	records, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	got, err := repo.Get(ctx, "user-1", "video-1")
	require.NoError(t, err)
	assert.Equal(t, record.PointsEarned, got.PointsEarned)
}
