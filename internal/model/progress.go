package model

import "time"

// LearningRecord is a learner's progress on one video
type LearningRecord struct {
	UserID            string    `json:"user_id" db:"user_id"`
	VideoID           string    `json:"video_id" db:"video_id"`
	PointsEarned      int       `json:"points_earned" db:"points_earned"`
	CheckpointsPassed []string  `json:"checkpoints_passed" db:"checkpoints_passed"`
	Attempts          int       `json:"attempts" db:"attempts"`
	CorrectAnswers    int       `json:"correct_answers" db:"correct_answers"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Apply folds a checkpoint result into the record.
// Points never drop below zero and a checkpoint is counted as passed once.
func (r *LearningRecord) Apply(result CheckpointResult) {
	r.Attempts++
	if result.Correct() {
		r.CorrectAnswers++
		if r.HasPassed(result.CheckpointID) {
			return
		}
		r.CheckpointsPassed = append(r.CheckpointsPassed, result.CheckpointID)
	}

	r.PointsEarned += result.PointsDelta
	if r.PointsEarned < 0 {
		r.PointsEarned = 0
	}
}

// HasPassed reports whether the checkpoint was already answered correctly
func (r *LearningRecord) HasPassed(checkpointID string) bool {
	for _, id := range r.CheckpointsPassed {
		if id == checkpointID {
			return true
		}
	}
	return false
}

// Mastery is the share of attempts answered correctly
func (r *LearningRecord) Mastery() float64 {
	if r.Attempts == 0 {
		return 0
	}
	return float64(r.CorrectAnswers) / float64(r.Attempts)
}

// UserStats aggregates all learning records of a user
type UserStats struct {
	UserID            string  `json:"user_id"`
	TotalVideos       int     `json:"total_videos"`
	TotalPoints       int     `json:"total_points"`
	CheckpointsPassed int     `json:"checkpoints_passed"`
	Attempts          int     `json:"attempts"`
	Mastery           float64 `json:"mastery"`
}

// StoredAnalysis is a persisted analysis of one video
type StoredAnalysis struct {
	ID        string         `json:"id"`
	VideoID   string         `json:"video_id"`
	Provider  ProviderName   `json:"provider"`
	Result    AnalysisResult `json:"result"`
	UpdatedAt time.Time      `json:"updated_at"`
}
