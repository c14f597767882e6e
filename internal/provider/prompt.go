// Package provider holds the pieces shared by the AI vendor adapters:
// prompts, response decoding and HTTP error mapping.
package provider

import (
	"fmt"

	"github.com/Taichi-iskw/clipquiz/internal/model"
)

// AnalysisSystemPrompt fixes the assistant role and the JSON output format
const AnalysisSystemPrompt = "你是一个专业的英语教学AI助手，专门为中国学习者设计英语学习内容。请只用JSON格式返回分析结果，不要输出任何其他文字。"

// TeacherSystemPrompt is used for chat-completion style vendors
const TeacherSystemPrompt = "You are an English teaching assistant for Chinese students. Always answer with a single JSON object."

// AnalysisPrompt builds the analysis instruction.
// When withCheckpoints is set the model is also asked to author the quiz.
func AnalysisPrompt(req *model.AnalysisRequest, withCheckpoints bool) string {
	prompt := fmt.Sprintf(`分析以下英语学习视频内容：

标题: %s
英文字幕: %s
中文字幕: %s

请返回JSON格式的分析结果，包含：
1. keywords: 5-10个关键词（word, translation, frequency, usage_context, difficulty: easy|medium|hard）
2. phrases: 3-5个重要短语（phrase, translation, usage_example, formal_level: casual|neutral|formal）
3. scenarios: 3-5个场景标签
4. difficulty_score: 难度评分(1-5)
5. summary: 50字内容总结`, req.Title, string(req.TranscriptEN), string(req.TranscriptCN))

	if withCheckpoints {
		prompt += `
6. checkpoints: 3道闯关题，分别位于视频进度30%、60%、90%，类型依次为vocabulary、grammar、scene。
   每道题包含 id, time_percent, type, question, options(3个选项), correct_answer(正确选项索引0-2), explanation, ai_hint, points(10-30)`
	}
	return prompt
}

var checkpointTypeNames = map[model.CheckpointType]string{
	model.CheckpointScene:      "场景理解题",
	model.CheckpointVocabulary: "词汇题",
	model.CheckpointGrammar:    "语法题",
}

// QuizPrompt asks for a single checkpoint of the given type
func QuizPrompt(transcript string, timePercent int, kind model.CheckpointType) string {
	return fmt.Sprintf(`你是一位经验丰富的英语教师，专门为中国学生设计有趣的学习题目。

视频内容片段：
%s

请生成1道%s，要求：
1. 符合中国学生的认知习惯
2. 难度适中，有教育意义
3. 选项要有迷惑性但合理
4. 解释要详细且易懂

返回JSON格式：
{
  "id": "唯一ID",
  "time_percent": %d,
  "type": "%s",
  "question": "题目内容",
  "options": ["选项1", "选项2", "选项3"],
  "correct_answer": 正确答案索引(0-2),
  "explanation": "详细解释",
  "ai_hint": "给学生的小提示",
  "points": 分值(10-30)
}`, transcript, checkpointTypeNames[kind], timePercent, kind)
}

// TranslationPrompt asks for a line-by-line Chinese translation of subtitle lines
func TranslationPrompt(lines []string) string {
	return fmt.Sprintf(`Translate each English subtitle line into natural Simplified Chinese.
Return a JSON object {"translations": [...]} with exactly %d strings, in the same order.

Lines: %s`, len(lines), mustJSON(lines))
}
