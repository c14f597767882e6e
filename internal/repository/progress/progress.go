package progress

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/repository/common"
)

// Repository persists learning records keyed by (user, video)
type Repository interface {
	Get(ctx context.Context, userID, videoID string) (*model.LearningRecord, error)
	// Update locks the record, creating it when absent, applies fn and saves the result
	Update(ctx context.Context, userID, videoID string, fn func(*model.LearningRecord) error) (*model.LearningRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*model.LearningRecord, error)
}

const selectColumns = "user_id, video_id, points_earned, checkpoints_passed, attempts, correct_answers, updated_at"

type progressRepository struct {
	pool common.Pool
	now  func() time.Time
}

// NewRepository creates a new learning record repository
func NewRepository(pool common.Pool) Repository {
	return &progressRepository{pool: pool, now: time.Now}
}

func scanRecord(row pgx.Row) (*model.LearningRecord, error) {
	var record model.LearningRecord
	err := row.Scan(
		&record.UserID,
		&record.VideoID,
		&record.PointsEarned,
		&record.CheckpointsPassed,
		&record.Attempts,
		&record.CorrectAnswers,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if record.CheckpointsPassed == nil {
		record.CheckpointsPassed = []string{}
	}
	return &record, nil
}

func (r *progressRepository) Get(ctx context.Context, userID, videoID string) (*model.LearningRecord, error) {
	sql := "SELECT " + selectColumns + " FROM learning_records WHERE user_id = $1 AND video_id = $2"

	record, err := scanRecord(r.pool.QueryRow(ctx, sql, userID, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "learning record not found")
		}
		return nil, common.HandlePostgreSQLError(err, "failed to get learning record")
	}
	return record, nil
}

func (r *progressRepository) Update(ctx context.Context, userID, videoID string, fn func(*model.LearningRecord) error) (*model.LearningRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to begin transaction")
	}

	record, err := r.updateTx(ctx, tx, userID, videoID, fn)
	if err != nil {
		tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to commit learning record")
	}
	return record, nil
}

func (r *progressRepository) updateTx(ctx context.Context, tx pgx.Tx, userID, videoID string, fn func(*model.LearningRecord) error) (*model.LearningRecord, error) {
	_, err := tx.Exec(ctx,
		"INSERT INTO learning_records (user_id, video_id) VALUES ($1, $2) ON CONFLICT (user_id, video_id) DO NOTHING",
		userID, videoID)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to create learning record")
	}

	sql := "SELECT " + selectColumns + " FROM learning_records WHERE user_id = $1 AND video_id = $2 FOR UPDATE"
	record, err := scanRecord(tx.QueryRow(ctx, sql, userID, videoID))
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to lock learning record")
	}

	if err := fn(record); err != nil {
		return nil, err
	}
	record.UpdatedAt = r.now().UTC()

	_, err = tx.Exec(ctx,
		`UPDATE learning_records
		SET points_earned = $3, checkpoints_passed = $4, attempts = $5, correct_answers = $6, updated_at = $7
		WHERE user_id = $1 AND video_id = $2`,
		userID, videoID, record.PointsEarned, record.CheckpointsPassed, record.Attempts, record.CorrectAnswers, record.UpdatedAt)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to update learning record")
	}
	return record, nil
}

func (r *progressRepository) ListByUser(ctx context.Context, userID string) ([]*model.LearningRecord, error) {
	sql := "SELECT " + selectColumns + " FROM learning_records WHERE user_id = $1 ORDER BY updated_at DESC"

	rows, err := r.pool.Query(ctx, sql, userID)
	if err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to list learning records")
	}
	defer rows.Close()

	records := []*model.LearningRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, common.HandlePostgreSQLError(err, "failed to scan learning record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, common.HandlePostgreSQLError(err, "failed to iterate learning records")
	}
	return records, nil
}
