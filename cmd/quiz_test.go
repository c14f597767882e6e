package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taichi-iskw/clipquiz/internal/model"
)

func quizCheckpoints() []model.Checkpoint {
	return []model.Checkpoint{
		{ID: "cp2", TimePercent: 60, Type: model.CheckpointGrammar, Question: "Which is correct?", Options: []string{"a", "b", "c"}, CorrectAnswer: 1, Points: 20, Explanation: "b is right"},
		{ID: "cp1", TimePercent: 30, Type: model.CheckpointVocabulary, Question: "latte?", Options: []string{"拿铁", "茶", "水"}, CorrectAnswer: 0, Points: 20, AIHint: "注意上下文语境"},
	}
}

func TestQuizPlayer_Play(t *testing.T) {
	var out bytes.Buffer
	var recorded []model.CheckpointResult

	player := &quizPlayer{
		in:        strings.NewReader("x\n2\n2\n"),
		out:       &out,
		countdown: time.Minute,
		duration:  100,
		recorder: func(ctx context.Context, result model.CheckpointResult) error {
			recorded = append(recorded, result)
			return nil
		},
	}

	require.NoError(t, player.Play(context.Background(), quizCheckpoints()))

	text := out.String()
	assert.Less(t, strings.Index(text, "latte?"), strings.Index(text, "Which is correct?"))
	assert.Contains(t, text, "Enter a number from 1 to 3")
	assert.Contains(t, text, "❌ Incorrect (-5). The answer is 1) 拿铁")
	assert.Contains(t, text, "Hint: 注意上下文语境")
	assert.Contains(t, text, "✅ Correct! +20")
	assert.Contains(t, text, "b is right")
	assert.Contains(t, text, "Final score: 20 (1/2 checkpoints completed)")

	require.Len(t, recorded, 2)
	assert.Equal(t, model.OutcomeIncorrect, recorded[0].Outcome)
	assert.Equal(t, "cp2", recorded[1].CheckpointID)
}

func TestQuizPlayer_InputClosed(t *testing.T) {
	player := &quizPlayer{
		in:        strings.NewReader(""),
		out:       io.Discard,
		countdown: time.Minute,
		duration:  100,
	}

	err := player.Play(context.Background(), quizCheckpoints())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestQuizPlayer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()

	player := &quizPlayer{in: pr, out: io.Discard, countdown: time.Minute, duration: 100}
	err := player.Play(ctx, quizCheckpoints())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuizPlayer_InvalidCheckpoints(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cp *model.Checkpoint)
	}{
		{name: "answer index past options", mutate: func(cp *model.Checkpoint) { cp.CorrectAnswer = 5 }},
		{name: "two options", mutate: func(cp *model.Checkpoint) { cp.Options = cp.Options[:2]; cp.CorrectAnswer = 2 }},
		{name: "negative answer", mutate: func(cp *model.Checkpoint) { cp.CorrectAnswer = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkpoints := quizCheckpoints()
			tt.mutate(&checkpoints[1])

			var out bytes.Buffer
			player := &quizPlayer{
				in:        strings.NewReader("2\n2\n"),
				out:       &out,
				countdown: time.Minute,
				duration:  100,
			}

			err := player.Play(context.Background(), checkpoints)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid analysis")
			assert.Empty(t, out.String())
		})
	}
}
