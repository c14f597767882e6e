package ai

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Taichi-iskw/clipquiz/internal/model"
)

const (
	generatedPoints      = 20
	generatedExplanation = "这是AI生成的解释，帮助你更好地理解"
	generatedHint        = "注意上下文语境"
)

type placeholder struct {
	question string
	options  []string
}

var placeholders = map[model.CheckpointType]placeholder{
	model.CheckpointVocabulary: {
		question: "这个单词在视频中的意思是什么？",
		options:  []string{"日常用语", "正式用语", "俚语表达"},
	},
	model.CheckpointGrammar: {
		question: "这个句子使用了什么语法结构？",
		options:  []string{"现在进行时", "一般现在时", "现在完成时"},
	},
	model.CheckpointScene: {
		question: "这段对话发生在什么场景？",
		options:  []string{"办公室对话", "餐厅点餐", "街头问路"},
	},
}

// CheckpointGenerator synthesizes checkpoints for providers that do not author a quiz.
// Questions are built from the analysis when it offers enough material, otherwise
// placeholder text with an arbitrary correct option is used.
type CheckpointGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCheckpointGenerator creates a generator. A nil source seeds from the clock.
func NewCheckpointGenerator(src rand.Source) *CheckpointGenerator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>7)
	}
	return &CheckpointGenerator{rnd: rand.New(src)}
}

// Generate returns one checkpoint per default target, ordered by time_percent
func (g *CheckpointGenerator) Generate(analysis model.VideoAnalysis) []model.Checkpoint {
	g.mu.Lock()
	defer g.mu.Unlock()

	checkpoints := make([]model.Checkpoint, 0, len(model.DefaultCheckpointTargets))
	for i, target := range model.DefaultCheckpointTargets {
		cp := model.Checkpoint{
			ID:          fmt.Sprintf("cp%d", i+1),
			TimePercent: target.TimePercent,
			Type:        target.Type,
			Explanation: generatedExplanation,
			AIHint:      generatedHint,
			Points:      generatedPoints,
		}

		grounded := false
		switch target.Type {
		case model.CheckpointVocabulary:
			grounded = g.vocabulary(&cp, analysis.Keywords)
		case model.CheckpointScene:
			grounded = g.scene(&cp, analysis.Scenarios)
		}
		if !grounded {
			p := placeholders[target.Type]
			cp.Question = p.question
			cp.Options = append([]string(nil), p.options...)
			cp.CorrectAnswer = g.rnd.IntN(model.CheckpointOptionCount)
		}

		checkpoints = append(checkpoints, cp)
	}
	return checkpoints
}

// vocabulary asks for the meaning of the most frequent keyword, using other keywords'
// translations as distractors
func (g *CheckpointGenerator) vocabulary(cp *model.Checkpoint, keywords []model.Keyword) bool {
	candidates := make([]model.Keyword, 0, len(keywords))
	seen := make(map[string]bool)
	for _, kw := range keywords {
		if kw.Word == "" || kw.Translation == "" || seen[kw.Translation] {
			continue
		}
		seen[kw.Translation] = true
		candidates = append(candidates, kw)
	}
	if len(candidates) < model.CheckpointOptionCount {
		return false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Frequency > candidates[j].Frequency
	})
	subject := candidates[0]
	distractors := []string{candidates[1].Translation, candidates[2].Translation}

	cp.Question = fmt.Sprintf("单词 \"%s\" 在视频中的意思是什么？", subject.Word)
	cp.Options, cp.CorrectAnswer = g.place(subject.Translation, distractors)
	cp.Explanation = fmt.Sprintf("\"%s\" 的意思是「%s」。", subject.Word, subject.Translation)
	if subject.UsageContext != "" {
		cp.Explanation += "例句：" + subject.UsageContext
	}
	return true
}

// scene asks for the main scenario, padding with placeholder scenes
func (g *CheckpointGenerator) scene(cp *model.Checkpoint, scenarios []string) bool {
	if len(scenarios) == 0 || scenarios[0] == "" {
		return false
	}
	answer := scenarios[0]

	var distractors []string
	for _, s := range slices.Concat(scenarios[1:], placeholders[model.CheckpointScene].options) {
		if s == "" || s == answer || slices.Contains(distractors, s) {
			continue
		}
		distractors = append(distractors, s)
		if len(distractors) == model.CheckpointOptionCount-1 {
			break
		}
	}

	cp.Question = placeholders[model.CheckpointScene].question
	cp.Options, cp.CorrectAnswer = g.place(answer, distractors)
	return true
}

// place inserts the answer among the distractors at a random position
func (g *CheckpointGenerator) place(answer string, distractors []string) ([]string, int) {
	idx := g.rnd.IntN(len(distractors) + 1)
	options := make([]string, 0, len(distractors)+1)
	options = append(options, distractors[:idx]...)
	options = append(options, answer)
	options = append(options, distractors[idx:]...)
	return options, idx
}
