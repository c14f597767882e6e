package model

import "encoding/json"

// Difficulty of a keyword
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// FormalLevel of a phrase
type FormalLevel string

const (
	FormalCasual  FormalLevel = "casual"
	FormalNeutral FormalLevel = "neutral"
	FormalFormal  FormalLevel = "formal"
)

// Keyword is an important word found in a video
type Keyword struct {
	Word         string     `json:"word"`
	Translation  string     `json:"translation"`
	Frequency    int        `json:"frequency"`
	UsageContext string     `json:"usage_context"`
	Difficulty   Difficulty `json:"difficulty"`
}

// Phrase is a key expression found in a video
type Phrase struct {
	Phrase       string      `json:"phrase"`
	Translation  string      `json:"translation"`
	UsageExample string      `json:"usage_example"`
	FormalLevel  FormalLevel `json:"formal_level"`
}

// VideoAnalysis is the structured learning material extracted from a transcript
type VideoAnalysis struct {
	Keywords        []Keyword `json:"keywords"`
	Phrases         []Phrase  `json:"phrases"`
	Scenarios       []string  `json:"scenarios"`
	DifficultyScore float64   `json:"difficulty_score"`
	Summary         string    `json:"summary"`
}

// AnalysisRequest carries the transcripts of one video.
// Transcripts are kept as raw JSON because callers may send any shape.
type AnalysisRequest struct {
	VideoID      string          `json:"video_id,omitempty"`
	Title        string          `json:"title"`
	TranscriptEN json.RawMessage `json:"transcript_en"`
	TranscriptCN json.RawMessage `json:"transcript_cn"`
}

// AnalysisResult is returned by the analyze endpoint
type AnalysisResult struct {
	Analysis    VideoAnalysis `json:"ai_analysis"`
	Checkpoints []Checkpoint  `json:"checkpoints"`

	Provider   ProviderName `json:"-"`
	TokensUsed int          `json:"-"`
}
