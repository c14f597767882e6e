package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/repository/common"
)

// Repository persists one analysis per video
type Repository interface {
	// Save stores the analysis, replacing any previous analysis of the same video wholesale
	Save(ctx context.Context, analysis *model.StoredAnalysis) error
	GetByVideoID(ctx context.Context, videoID string) (*model.StoredAnalysis, error)
	Delete(ctx context.Context, videoID string) error
}

type analysisRepository struct {
	pool common.Pool
	now  func() time.Time
}

// NewRepository creates a new analysis repository
func NewRepository(pool common.Pool) Repository {
	return &analysisRepository{pool: pool, now: time.Now}
}

func (r *analysisRepository) Save(ctx context.Context, stored *model.StoredAnalysis) error {
	if stored.VideoID == "" {
		return apperrors.Validation("video id is required")
	}
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	analysisJSON, err := json.Marshal(stored.Result.Analysis)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode analysis")
	}
	checkpoints := stored.Result.Checkpoints
	if checkpoints == nil {
		checkpoints = []model.Checkpoint{}
	}
	checkpointsJSON, err := json.Marshal(checkpoints)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode checkpoints")
	}

	stored.UpdatedAt = r.now().UTC()

	sql := `INSERT INTO video_analyses (id, video_id, provider, analysis, checkpoints, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (video_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			analysis = EXCLUDED.analysis,
			checkpoints = EXCLUDED.checkpoints,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	row := r.pool.QueryRow(ctx, sql,
		stored.ID, stored.VideoID, string(stored.Provider), analysisJSON, checkpointsJSON, stored.UpdatedAt)
	if err := row.Scan(&stored.ID); err != nil {
		return common.HandlePostgreSQLError(err, "failed to save analysis")
	}
	return nil
}

func (r *analysisRepository) GetByVideoID(ctx context.Context, videoID string) (*model.StoredAnalysis, error) {
	sql := `SELECT id, video_id, provider, analysis, checkpoints, updated_at
		FROM video_analyses WHERE video_id = $1`

	var (
		stored          model.StoredAnalysis
		provider        string
		analysisJSON    []byte
		checkpointsJSON []byte
	)
	err := r.pool.QueryRow(ctx, sql, videoID).Scan(
		&stored.ID, &stored.VideoID, &provider, &analysisJSON, &checkpointsJSON, &stored.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "analysis not found")
		}
		return nil, common.HandlePostgreSQLError(err, "failed to get analysis")
	}

	if err := json.Unmarshal(analysisJSON, &stored.Result.Analysis); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to decode stored analysis")
	}
	if err := json.Unmarshal(checkpointsJSON, &stored.Result.Checkpoints); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to decode stored checkpoints")
	}
	stored.Provider = model.ProviderName(provider)
	stored.Result.Provider = stored.Provider

	return &stored, nil
}

func (r *analysisRepository) Delete(ctx context.Context, videoID string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM video_analyses WHERE video_id = $1", videoID)
	if err != nil {
		return common.HandlePostgreSQLError(err, "failed to delete analysis")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CodeNotFound, "analysis not found")
	}
	return nil
}
