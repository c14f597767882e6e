// Package progress records quiz outcomes against a learner's per-video record.
package progress

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
)

// Repository is the storage the service needs
type Repository interface {
	Update(ctx context.Context, userID, videoID string, fn func(*model.LearningRecord) error) (*model.LearningRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*model.LearningRecord, error)
}

// Service records checkpoint results and reports learner statistics
type Service interface {
	RecordCheckpoint(ctx context.Context, userID, videoID string, result model.CheckpointResult) (*model.LearningRecord, error)
	Stats(ctx context.Context, userID string) (*model.UserStats, error)
}

type progressService struct {
	repo   Repository
	logger logrus.FieldLogger
}

// NewService creates a new progress service
func NewService(repo Repository, logger logrus.FieldLogger) Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &progressService{repo: repo, logger: logger}
}

func (s *progressService) RecordCheckpoint(ctx context.Context, userID, videoID string, result model.CheckpointResult) (*model.LearningRecord, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(videoID) == "" {
		return nil, apperrors.Validation("user id and video id are required")
	}
	if result.CheckpointID == "" {
		return nil, apperrors.Validation("checkpoint id is required")
	}
	switch result.Outcome {
	case model.OutcomeCorrect:
		if result.PointsDelta < 0 {
			return nil, apperrors.Validation("a correct answer cannot lose points")
		}
	case model.OutcomeIncorrect, model.OutcomeTimeout:
		if result.PointsDelta > 0 {
			return nil, apperrors.Validation("a missed checkpoint cannot earn points")
		}
	default:
		return nil, apperrors.Validation("unknown checkpoint outcome " + string(result.Outcome))
	}

	record, err := s.repo.Update(ctx, userID, videoID, func(r *model.LearningRecord) error {
		r.Apply(result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"video_id":      videoID,
		"checkpoint_id": result.CheckpointID,
		"outcome":       result.Outcome,
		"points":        record.PointsEarned,
	}).Info("checkpoint recorded")

	return record, nil
}

func (s *progressService) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("user id is required")
	}

	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &model.UserStats{UserID: userID, TotalVideos: len(records)}
	correct := 0
	for _, r := range records {
		stats.TotalPoints += r.PointsEarned
		stats.CheckpointsPassed += len(r.CheckpointsPassed)
		stats.Attempts += r.Attempts
		correct += r.CorrectAnswers
	}
	if stats.Attempts > 0 {
		stats.Mastery = float64(correct) / float64(stats.Attempts)
	}
	return stats, nil
}
