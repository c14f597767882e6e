package model

import (
	"errors"
	"fmt"
	"time"
)

// CheckpointOptionCount is the number of options every checkpoint carries
const CheckpointOptionCount = 3

// CheckpointType is the kind of question asked
type CheckpointType string

const (
	CheckpointVocabulary CheckpointType = "vocabulary"
	CheckpointGrammar    CheckpointType = "grammar"
	CheckpointScene      CheckpointType = "scene"
)

// Checkpoint is a timed quiz question tied to a percentage of the video duration
type Checkpoint struct {
	ID            string         `json:"id"`
	TimePercent   int            `json:"time_percent"`
	Type          CheckpointType `json:"type"`
	Question      string         `json:"question"`
	Options       []string       `json:"options"`
	CorrectAnswer int            `json:"correct_answer"`
	Explanation   string         `json:"explanation"`
	AIHint        string         `json:"ai_hint,omitempty"`
	Points        int            `json:"points"`
}

// Validate checks the checkpoint invariants
func (c *Checkpoint) Validate() error {
	if c.TimePercent < 0 || c.TimePercent > 100 {
		return fmt.Errorf("checkpoint %q: time_percent %d out of range", c.ID, c.TimePercent)
	}
	switch c.Type {
	case CheckpointVocabulary, CheckpointGrammar, CheckpointScene:
	default:
		return fmt.Errorf("checkpoint %q: unknown type %q", c.ID, c.Type)
	}
	if len(c.Options) != CheckpointOptionCount {
		return fmt.Errorf("checkpoint %q: expected %d options, got %d", c.ID, CheckpointOptionCount, len(c.Options))
	}
	if c.CorrectAnswer < 0 || c.CorrectAnswer >= len(c.Options) {
		return fmt.Errorf("checkpoint %q: correct_answer %d out of range", c.ID, c.CorrectAnswer)
	}
	if c.Points < 0 {
		return errors.New("checkpoint points must not be negative")
	}
	return nil
}

// CheckpointOutcome is how a quiz session ended
type CheckpointOutcome string

const (
	OutcomeCorrect   CheckpointOutcome = "correct"
	OutcomeIncorrect CheckpointOutcome = "incorrect"
	OutcomeTimeout   CheckpointOutcome = "timeout"
)

// CheckpointResult is the resolution of one checkpoint presentation
type CheckpointResult struct {
	CheckpointID   string            `json:"checkpoint_id"`
	Outcome        CheckpointOutcome `json:"outcome"`
	SelectedAnswer *int              `json:"selected_answer,omitempty"`
	PointsDelta    int               `json:"points_delta"`
	ResolvedAt     time.Time         `json:"resolved_at"`
}

// Correct reports whether the checkpoint was answered correctly
func (r CheckpointResult) Correct() bool {
	return r.Outcome == OutcomeCorrect
}

// CheckpointTarget is a position and question type to author a checkpoint for
type CheckpointTarget struct {
	TimePercent int
	Type        CheckpointType
}

// DefaultCheckpointTargets places three checkpoints so one video exercises every question type
var DefaultCheckpointTargets = []CheckpointTarget{
	{TimePercent: 30, Type: CheckpointVocabulary},
	{TimePercent: 60, Type: CheckpointGrammar},
	{TimePercent: 90, Type: CheckpointScene},
}
