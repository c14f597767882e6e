package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/clipquiz/internal/media"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
)

// NewAnalyzeCommand creates the analyze command
func NewAnalyzeCommand(service ai.Service) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze transcripts and generate checkpoints",
		Long: `Send an English and a Chinese transcript (JSON files, usually segment arrays)
to the active AI provider and print keywords, phrases, scenarios and quiz checkpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			enPath, _ := cmd.Flags().GetString("en")
			cnPath, _ := cmd.Flags().GetString("cn")
			videoID, _ := cmd.Flags().GetString("video-id")
			providerName, _ := cmd.Flags().GetString("provider")
			format, _ := cmd.Flags().GetString("format")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			formatter, err := GetFormatter(format)
			if err != nil {
				return err
			}

			en, err := readTranscript(enPath)
			if err != nil {
				return err
			}
			cn, err := readTranscript(cnPath)
			if err != nil {
				return err
			}

			svc := service
			if providerName != "" {
				if svc, err = service.WithProvider(providerName); err != nil {
					return err
				}
			}

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "DRY RUN: Would analyze %q (%d + %d bytes) with %s\n", title, len(en), len(cn), svc.Provider())
				return nil
			}

			result, err := svc.AnalyzeVideoContent(cmd.Context(), &model.AnalysisRequest{
				VideoID:      videoID,
				Title:        title,
				TranscriptEN: en,
				TranscriptCN: cn,
			})
			if err != nil {
				return fmt.Errorf("failed to analyze video: %w", err)
			}

			output, err := formatter.Format(result)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, output)

			if format != "json" {
				cost := ai.EstimateCostFor(result.Provider, result.TokensUsed)
				fmt.Fprintf(out, "Tokens: %d, estimated cost: %s %.4f\n", result.TokensUsed, cost.Currency, cost.Cost)
			}
			return nil
		},
	}

	cmd.Flags().String("title", "", "Video title")
	cmd.Flags().String("en", "", "Path to the English transcript JSON")
	cmd.Flags().String("cn", "", "Path to the Chinese transcript JSON")
	cmd.Flags().String("video-id", "", "Video ID recorded with the analysis")
	cmd.Flags().String("provider", "", "AI provider for this run (qwen, spark, openai)")
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
	cmd.Flags().Bool("dry-run", false, "Validate inputs without calling the provider")
	cmd.MarkFlagRequired("en")
	cmd.MarkFlagRequired("cn")

	return cmd
}

// NewTranscribeCommand creates the transcribe command.
// The audio comes from a local file or, with --url, is extracted from an online video.
func NewTranscribeCommand(service ai.Service, downloader media.AudioDownloader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe [AUDIO_FILE]",
		Short: "Transcribe audio into English and Chinese tracks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			providerName, _ := cmd.Flags().GetString("provider")
			format, _ := cmd.Flags().GetString("format")
			videoURL, _ := cmd.Flags().GetString("url")

			if (len(args) == 1) == (videoURL != "") {
				return fmt.Errorf("provide either an audio file or --url")
			}

			formatter, err := GetTranscriptFormatter(format)
			if err != nil {
				return err
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				tempDir, err := os.MkdirTemp("", "clipquiz-audio-")
				if err != nil {
					return fmt.Errorf("failed to create temp directory: %w", err)
				}
				defer os.RemoveAll(tempDir)

				fmt.Fprintf(cmd.ErrOrStderr(), "Downloading audio from %s...\n", videoURL)
				if path, err = downloader.Download(cmd.Context(), videoURL, tempDir); err != nil {
					return fmt.Errorf("failed to download audio: %w", err)
				}
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read audio file: %w", err)
			}

			svc := service
			if providerName != "" {
				if svc, err = service.WithProvider(providerName); err != nil {
					return err
				}
			}

			transcript, err := svc.TranscribeAudio(cmd.Context(), &model.Audio{
				Filename: filepath.Base(path),
				Data:     data,
			})
			if err != nil {
				return fmt.Errorf("failed to transcribe audio: %w", err)
			}

			output, err := formatter.Format(transcript)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().String("url", "", "Video URL to extract audio from (requires yt-dlp)")
	cmd.Flags().String("provider", "", "AI provider for this run (qwen, spark, openai)")
	cmd.Flags().StringP("format", "f", "text", "Output format (text, json, srt, srt-cn)")

	return cmd
}

func readTranscript(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("transcript %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}
