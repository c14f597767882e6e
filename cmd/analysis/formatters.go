package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Taichi-iskw/clipquiz/internal/model"
)

// Formatter defines interface for analysis output formatting
type Formatter interface {
	Format(result *model.AnalysisResult) (string, error)
}

// TextFormatter formats an analysis as readable text
type TextFormatter struct{}

// Format formats analysis as plain text
func (f *TextFormatter) Format(result *model.AnalysisResult) (string, error) {
	var output strings.Builder
	a := result.Analysis

	output.WriteString(fmt.Sprintf("Provider: %s\n", result.Provider))
	output.WriteString(fmt.Sprintf("Difficulty: %.1f / 5\n", a.DifficultyScore))
	output.WriteString(fmt.Sprintf("Summary: %s\n", a.Summary))

	if len(a.Scenarios) > 0 {
		output.WriteString(fmt.Sprintf("Scenarios: %s\n", strings.Join(a.Scenarios, ", ")))
	}

	if len(a.Keywords) > 0 {
		output.WriteString("\nKeywords:\n")
		output.WriteString("=========\n")
		for _, kw := range a.Keywords {
			output.WriteString(fmt.Sprintf("- %s (%s) %s x%d\n", kw.Word, kw.Difficulty, kw.Translation, kw.Frequency))
		}
	}

	if len(a.Phrases) > 0 {
		output.WriteString("\nPhrases:\n")
		output.WriteString("========\n")
		for _, p := range a.Phrases {
			output.WriteString(fmt.Sprintf("- %s → %s [%s]\n", p.Phrase, p.Translation, p.FormalLevel))
		}
	}

	output.WriteString("\nCheckpoints:\n")
	output.WriteString("============\n")
	for _, cp := range result.Checkpoints {
		output.WriteString(fmt.Sprintf("[%s] %d%% %s: %s\n", cp.ID, cp.TimePercent, cp.Type, cp.Question))
		for i, opt := range cp.Options {
			marker := " "
			if i == cp.CorrectAnswer {
				marker = "*"
			}
			output.WriteString(fmt.Sprintf("    %s %d) %s\n", marker, i+1, opt))
		}
	}

	return output.String(), nil
}

// JSONFormatter formats an analysis as the analyze endpoint would return it
type JSONFormatter struct{}

// Format formats analysis as JSON
func (f *JSONFormatter) Format(result *model.AnalysisResult) (string, error) {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

// GetFormatter returns the appropriate formatter based on format string
func GetFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "text", "txt":
		return &TextFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// TranscriptFormatter formats a bilingual transcript
type TranscriptFormatter interface {
	Format(transcript *model.Transcript) (string, error)
}

// TranscriptTextFormatter prints aligned English and Chinese lines
type TranscriptTextFormatter struct{}

// Format formats the transcript as plain text
func (f *TranscriptTextFormatter) Format(transcript *model.Transcript) (string, error) {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("Duration: %ds\n\n", transcript.Duration))

	for i, seg := range transcript.English {
		output.WriteString(fmt.Sprintf("[%s] %s\n", formatClock(seg.Start), seg.Text))
		if i < len(transcript.Chinese) {
			output.WriteString(fmt.Sprintf("    → %s\n", transcript.Chinese[i].Text))
		}
	}
	return output.String(), nil
}

// TranscriptJSONFormatter prints the transcribe endpoint payload
type TranscriptJSONFormatter struct{}

// Format formats the transcript as JSON
func (f *TranscriptJSONFormatter) Format(transcript *model.Transcript) (string, error) {
	jsonBytes, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

// SRTFormatter writes one track as SRT subtitles
type SRTFormatter struct {
	Chinese bool
}

// Format formats the selected track as SRT
func (f *SRTFormatter) Format(transcript *model.Transcript) (string, error) {
	segments := transcript.English
	if f.Chinese {
		segments = transcript.Chinese
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("SRT format requires at least one segment")
	}

	var output strings.Builder
	for i, seg := range segments {
		output.WriteString(fmt.Sprintf("%d\n", i+1))
		output.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTime(seg.Start), formatSRTTime(seg.End)))
		output.WriteString(seg.Text)
		output.WriteString("\n\n")
	}
	return output.String(), nil
}

// formatSRTTime formats seconds into SRT time format (00:00:00,000)
func formatSRTTime(seconds float64) string {
	ms := int(seconds*1000 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

func formatClock(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// GetTranscriptFormatter returns the transcript formatter for format
func GetTranscriptFormatter(format string) (TranscriptFormatter, error) {
	switch strings.ToLower(format) {
	case "text", "txt":
		return &TranscriptTextFormatter{}, nil
	case "json":
		return &TranscriptJSONFormatter{}, nil
	case "srt":
		return &SRTFormatter{}, nil
	case "srt-cn":
		return &SRTFormatter{Chinese: true}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
