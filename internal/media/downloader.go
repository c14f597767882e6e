// Package media fetches the audio track of an online video so it can be transcribed.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Taichi-iskw/clipquiz/internal/errors"
)

// audioFormat is accepted by both Whisper and the Spark recognizer
const audioFormat = "mp3"

var audioExtensions = []string{".mp3", ".m4a", ".webm", ".ogg", ".wav", ".opus"}

// AudioDownloader extracts the audio of a video URL
type AudioDownloader interface {
	// Download saves the audio into outputDir and returns the file path
	Download(ctx context.Context, videoURL, outputDir string) (string, error)
}

type ytDlpDownloader struct {
	runner CmdRunner
}

// NewAudioDownloader creates a yt-dlp backed downloader
func NewAudioDownloader() AudioDownloader {
	return &ytDlpDownloader{runner: NewCmdRunner()}
}

// NewAudioDownloaderWithRunner creates a downloader with a custom CmdRunner (for testing)
func NewAudioDownloaderWithRunner(runner CmdRunner) AudioDownloader {
	return &ytDlpDownloader{runner: runner}
}

func (d *ytDlpDownloader) Download(ctx context.Context, videoURL, outputDir string) (string, error) {
	if videoURL == "" {
		return "", errors.Validation("video URL is required")
	}
	if outputDir == "" {
		return "", errors.Validation("output directory is required")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to create output directory")
	}

	args := []string{
		"-x",
		"--audio-format", audioFormat,
		"--audio-quality", "5",
		"--no-playlist",
		"--output", filepath.Join(outputDir, "%(id)s.%(ext)s"),
		videoURL,
	}
	if out, err := d.runner.Run(ctx, "yt-dlp", args...); err != nil {
		return "", errors.Wrap(err, errors.CodeExternal, describeFailure(string(out)+err.Error()))
	}

	path, err := findAudio(outputDir)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "failed to find downloaded audio file")
	}
	return path, nil
}

// findAudio returns the most recently written audio file in dir
func findAudio(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read output directory: %w", err)
	}

	var (
		newest  string
		newestT int64
		seen    []string
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seen = append(seen, entry.Name())
		if !slices.Contains(audioExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().UnixNano() > newestT {
			newest = filepath.Join(dir, entry.Name())
			newestT = info.ModTime().UnixNano()
		}
	}

	if newest == "" {
		if len(seen) == 0 {
			return "", fmt.Errorf("no files found in output directory")
		}
		return "", fmt.Errorf("no audio files found, downloaded files: %v", seen)
	}
	return newest, nil
}

// describeFailure turns common yt-dlp output into a short message
func describeFailure(output string) string {
	switch {
	case strings.Contains(output, "executable file not found"), strings.Contains(output, "No such file or directory") && strings.Contains(output, "yt-dlp"):
		return "yt-dlp is not installed or not found in PATH"
	case strings.Contains(output, "Private video"):
		return "video is private and cannot be downloaded"
	case strings.Contains(output, "Video unavailable"), strings.Contains(output, "HTTP Error 404"):
		return "video is not available"
	case strings.Contains(output, "HTTP Error 403"):
		return "access denied, the video may be region-blocked or require login"
	case strings.Contains(output, "HTTP Error 429"):
		return "rate limited by the video site, try again later"
	default:
		return "audio download failed"
	}
}
