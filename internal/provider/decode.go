package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
)

// maxErrorBody bounds how much of a failed response body is kept for diagnostics
const maxErrorBody = 4 << 10

// analysisPayload is the flat JSON shape the models are asked to produce
type analysisPayload struct {
	Keywords        []model.Keyword    `json:"keywords"`
	Phrases         []model.Phrase     `json:"phrases"`
	Scenarios       []string           `json:"scenarios"`
	DifficultyScore float64            `json:"difficulty_score"`
	Summary         string             `json:"summary"`
	Checkpoints     []model.Checkpoint `json:"checkpoints"`
}

// ExtractJSON returns the JSON object embedded in a model answer.
// Markdown fences and leading or trailing prose are removed.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return text[start : end+1], nil
}

// DecodeAnalysis parses a model answer into an analysis result
func DecodeAnalysis(name model.ProviderName, text string) (*model.AnalysisResult, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, apperrors.Format(err, string(name), "invalid analysis response")
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, apperrors.Format(err, string(name), "invalid analysis response")
	}

	return &model.AnalysisResult{
		Analysis: model.VideoAnalysis{
			Keywords:        payload.Keywords,
			Phrases:         payload.Phrases,
			Scenarios:       payload.Scenarios,
			DifficultyScore: payload.DifficultyScore,
			Summary:         payload.Summary,
		},
		Checkpoints: payload.Checkpoints,
		Provider:    name,
	}, nil
}

// DecodeCheckpoint parses a model answer into a single checkpoint
func DecodeCheckpoint(name model.ProviderName, text string) (*model.Checkpoint, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, apperrors.Format(err, string(name), "invalid quiz response")
	}

	var cp model.Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return nil, apperrors.Format(err, string(name), "invalid quiz response")
	}
	return &cp, nil
}

// DecodeTranslations parses {"translations": [...]} and checks the line count
func DecodeTranslations(name model.ProviderName, text string, want int) ([]string, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, apperrors.Format(err, string(name), "invalid translation response")
	}

	var payload struct {
		Translations []string `json:"translations"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, apperrors.Format(err, string(name), "invalid translation response")
	}
	if len(payload.Translations) != want {
		return nil, apperrors.Format(
			fmt.Errorf("got %d lines, want %d", len(payload.Translations), want),
			string(name), "translation line count mismatch")
	}
	return payload.Translations, nil
}

// CheckResponse converts a non-2xx HTTP response into a provider error
func CheckResponse(name model.ProviderName, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.Provider(cause, string(name), "authentication rejected")
	case http.StatusTooManyRequests:
		return apperrors.Provider(cause, string(name), "rate limited")
	default:
		return apperrors.Provider(cause, string(name), "request failed")
	}
}

// MissingCredentials is returned when an adapter is used without its keys
func MissingCredentials(name model.ProviderName) error {
	return apperrors.New(apperrors.CodeProvider, string(name)+": credentials not configured")
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}
