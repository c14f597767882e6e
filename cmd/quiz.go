package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/clipquiz/internal/config"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/quiz"
)

// playheadStep is how far the simulated playhead advances between checks
const playheadStep = 0.25

// quizCmd plays the checkpoints of an analysis in the terminal
var quizCmd = &cobra.Command{
	Use:   "quiz [VIDEO_ID]",
	Short: "Play the checkpoints of an analyzed video",
	Long: `Walk a simulated playhead through the video and answer each checkpoint as it comes up.
Checkpoints are read from --file (output of "analyze --format json") or from the stored
analysis of VIDEO_ID. With --user and a database, results are recorded as learning progress.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")
		userID, _ := cmd.Flags().GetString("user")
		countdown, _ := cmd.Flags().GetDuration("countdown")
		pause, _ := cmd.Flags().GetDuration("pause")
		duration, _ := cmd.Flags().GetFloat64("duration")

		var videoID string
		if len(args) == 1 {
			videoID = args[0]
		}
		if file == "" && videoID == "" {
			return errors.New("either VIDEO_ID or --file is required")
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		var store *storage
		if videoID != "" {
			store, err = rt.openStorage(ctx)
			switch {
			case errors.Is(err, config.ErrStorageDisabled):
				if file == "" {
					return err
				}
				store = nil
			case err != nil:
				return fmt.Errorf("failed to connect to database: %w", err)
			default:
				defer store.Close()
			}
		}

		var checkpoints []model.Checkpoint
		if file != "" {
			checkpoints, err = readCheckpoints(file)
		} else {
			var stored *model.StoredAnalysis
			if stored, err = store.analyses.GetByVideoID(ctx, videoID); err == nil {
				checkpoints = stored.Result.Checkpoints
			}
		}
		if err != nil {
			return err
		}
		if len(checkpoints) == 0 {
			return errors.New("the analysis has no checkpoints")
		}

		player := &quizPlayer{
			in:        cmd.InOrStdin(),
			out:       cmd.OutOrStdout(),
			countdown: countdown,
			pause:     pause,
			duration:  duration,
		}
		if store != nil && userID != "" {
			player.recorder = func(ctx context.Context, result model.CheckpointResult) error {
				_, err := store.progress.RecordCheckpoint(ctx, userID, videoID, result)
				return err
			}
		}
		return player.Play(ctx, checkpoints)
	},
}

func readCheckpoints(path string) ([]model.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis: %w", err)
	}
	var result model.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return result.Checkpoints, nil
}

// quizPlayer drives a quiz.Playback from terminal input
type quizPlayer struct {
	in        io.Reader
	out       io.Writer
	countdown time.Duration
	pause     time.Duration
	duration  float64
	recorder  func(ctx context.Context, result model.CheckpointResult) error
}

// Play presents every checkpoint as the simulated playhead reaches it
func (p *quizPlayer) Play(ctx context.Context, checkpoints []model.Checkpoint) error {
	for i := range checkpoints {
		if err := checkpoints[i].Validate(); err != nil {
			return fmt.Errorf("invalid analysis: %w", err)
		}
	}

	playback := quiz.NewPlayback(checkpoints,
		quiz.WithCountdown(p.countdown),
		quiz.WithOnTick(func(remaining int) {
			if remaining == 10 {
				fmt.Fprintln(p.out, "⏰ 10 seconds left")
			}
		}),
	)

	answers := make(chan string)
	go func() {
		defer close(answers)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			select {
			case answers <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for t := 0.0; t <= p.duration; t += playheadStep {
		cp := playback.Due(t, p.duration)
		if cp == nil {
			continue
		}

		if err := p.present(ctx, playback, *cp, answers); err != nil {
			return err
		}
		// leave the trigger window so a missed checkpoint is not asked twice in a row
		t += 2 * quiz.TriggerWindow
	}

	fmt.Fprintf(p.out, "\nFinal score: %d (%d/%d checkpoints completed)\n",
		playback.Score(), countCompleted(playback), len(playback.Checkpoints()))
	return nil
}

func (p *quizPlayer) present(ctx context.Context, playback *quiz.Playback, cp model.Checkpoint, answers <-chan string) error {
	session, err := playback.Present(cp)
	if err != nil {
		return err
	}

	fmt.Fprintf(p.out, "\n[%d%%] %s (%d points, %ds)\n", cp.TimePercent, cp.Question, cp.Points, session.Remaining())
	for i, opt := range cp.Options {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, opt)
	}

answering:
	for {
		select {
		case <-ctx.Done():
			playback.Dismiss()
			return ctx.Err()
		case <-session.Done():
			break answering
		case line, ok := <-answers:
			if !ok {
				playback.Dismiss()
				return io.ErrUnexpectedEOF
			}
			n, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(p.out, "Enter a number from 1 to %d\n", len(cp.Options))
				continue
			}
			if _, err := session.SubmitAnswer(n - 1); err != nil {
				if errors.Is(err, quiz.ErrInvalidOption) {
					fmt.Fprintf(p.out, "Enter a number from 1 to %d\n", len(cp.Options))
					continue
				}
				if !errors.Is(err, quiz.ErrAlreadyResolved) {
					return err
				}
			}
			<-session.Done()
			break answering
		}
	}

	result, ok := session.Result()
	if !ok {
		return nil
	}

	switch result.Outcome {
	case model.OutcomeCorrect:
		fmt.Fprintf(p.out, "✅ Correct! +%d\n", result.PointsDelta)
	case model.OutcomeIncorrect:
		fmt.Fprintf(p.out, "❌ Incorrect (%d). The answer is %d) %s\n", result.PointsDelta, cp.CorrectAnswer+1, cp.Options[cp.CorrectAnswer])
	case model.OutcomeTimeout:
		fmt.Fprintf(p.out, "⌛ Time is up (%d). The answer is %d) %s\n", result.PointsDelta, cp.CorrectAnswer+1, cp.Options[cp.CorrectAnswer])
	}
	if cp.Explanation != "" {
		fmt.Fprintln(p.out, cp.Explanation)
	}
	if !result.Correct() && cp.AIHint != "" {
		fmt.Fprintf(p.out, "Hint: %s\n", cp.AIHint)
	}

	if p.recorder != nil {
		if err := p.recorder(ctx, result); err != nil {
			fmt.Fprintf(p.out, "Warning: failed to record progress: %v\n", err)
		}
	}

	if p.pause > 0 {
		select {
		case <-time.After(p.pause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func countCompleted(playback *quiz.Playback) int {
	n := 0
	for _, cp := range playback.Checkpoints() {
		if playback.IsCompleted(cp.ID) {
			n++
		}
	}
	return n
}

func init() {
	rootCmd.AddCommand(quizCmd)
	quizCmd.Flags().String("file", "", "analysis JSON file")
	quizCmd.Flags().String("user", "", "learner ID used to record progress")
	quizCmd.Flags().Duration("countdown", quiz.DefaultCountdown, "time to answer each checkpoint")
	quizCmd.Flags().Duration("pause", quiz.DisplayWindow, "how long the outcome stays on screen")
	quizCmd.Flags().Float64("duration", 100, "simulated video length in seconds")
}
