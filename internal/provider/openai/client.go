package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/provider"
)

const (
	defaultModel        = "gpt-3.5-turbo"
	defaultSpeechModel  = "whisper-1"
	defaultBaseURL      = "https://api.openai.com/v1"
	chatCompletionsPath = "/chat/completions"
	transcriptionsPath  = "/audio/transcriptions"
)

// Config holds OpenAI connection settings
type Config struct {
	APIKey      string
	Model       string
	SpeechModel string
	BaseURL     string
	HTTPClient  *http.Client
	Logger      logrus.FieldLogger
}

// Message is a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// ChatResponse is a chat completion response
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Content returns the first choice's text
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

type verboseTranscription struct {
	Text     string          `json:"text"`
	Language string          `json:"language"`
	Duration float64         `json:"duration"`
	Segments []model.Segment `json:"segments"`
}

// Client talks to the OpenAI chat and audio APIs
type Client struct {
	apiKey      string
	model       string
	speechModel string
	baseURL     string
	httpClient  *http.Client
	logger      logrus.FieldLogger
}

// NewClient creates a new OpenAI client
func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		speechModel: cfg.SpeechModel,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.speechModel == "" {
		c.speechModel = defaultSpeechModel
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	return c
}

// Name returns the provider name
func (c *Client) Name() model.ProviderName {
	return model.ProviderOpenAI
}

// CreateChatCompletion sends one JSON-mode chat completion request
func (c *Client) CreateChatCompletion(ctx context.Context, messages []Message, maxTokens int) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, provider.MissingCredentials(model.ProviderOpenAI)
	}

	payload, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		Temperature:    0.7,
		MaxTokens:      maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode openai request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build openai request")
	}
	req.Header.Set("Content-Type", "application/json")

	var out ChatResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Analyze produces the analysis and the checkpoints in one completion
func (c *Client) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	messages := []Message{
		{Role: "system", Content: provider.TeacherSystemPrompt},
		{Role: "user", Content: provider.AnalysisPrompt(req, true)},
	}

	resp, err := c.CreateChatCompletion(ctx, messages, 2000)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Content()) == "" {
		return nil, apperrors.Format(errors.New("no choices"), string(model.ProviderOpenAI), "invalid analysis response")
	}

	result, err := provider.DecodeAnalysis(model.ProviderOpenAI, resp.Content())
	if err != nil {
		return nil, err
	}
	result.TokensUsed = resp.Usage.TotalTokens
	return result, nil
}

// Transcribe runs speech recognition on the English track, then translates each
// segment so the Chinese track shares the English timings.
func (c *Client) Transcribe(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	english, duration, err := c.recognize(ctx, audio)
	if err != nil {
		return nil, err
	}

	chinese, err := c.Translate(ctx, english)
	if err != nil {
		return nil, err
	}

	return &model.Transcript{English: english, Chinese: chinese, Duration: duration}, nil
}

// Translate returns Chinese segments with the same timings as the input
func (c *Client) Translate(ctx context.Context, segments []model.Segment) ([]model.Segment, error) {
	if len(segments) == 0 {
		return []model.Segment{}, nil
	}

	lines := make([]string, len(segments))
	for i, seg := range segments {
		lines[i] = seg.Text
	}

	resp, err := c.CreateChatCompletion(ctx, []Message{
		{Role: "system", Content: provider.TeacherSystemPrompt},
		{Role: "user", Content: provider.TranslationPrompt(lines)},
	}, 4000)
	if err != nil {
		return nil, err
	}

	translated, err := provider.DecodeTranslations(model.ProviderOpenAI, resp.Content(), len(segments))
	if err != nil {
		return nil, err
	}

	result := make([]model.Segment, len(segments))
	for i, seg := range segments {
		result[i] = model.Segment{Start: seg.Start, End: seg.End, Text: translated[i]}
	}
	return result, nil
}

func (c *Client) recognize(ctx context.Context, audio *model.Audio) ([]model.Segment, int, error) {
	if c.apiKey == "" {
		return nil, 0, provider.MissingCredentials(model.ProviderOpenAI)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	filename := audio.Filename
	if filename == "" {
		filename = "audio.mp3"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err == nil {
		_, err = part.Write(audio.Data)
	}
	for _, field := range [][2]string{
		{"model", c.speechModel},
		{"response_format", "verbose_json"},
		{"language", "en"},
	} {
		if err == nil {
			err = writer.WriteField(field[0], field[1])
		}
	}
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build openai upload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transcriptionsPath, &body)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build openai request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out verboseTranscription
	if err := c.do(req, &out); err != nil {
		return nil, 0, err
	}

	segments := model.NormalizeSegments(out.Segments)
	if len(segments) == 0 {
		return nil, 0, apperrors.Format(errors.New("no segments"), string(model.ProviderOpenAI), "empty transcription")
	}

	duration := int(out.Duration + 0.5)
	if duration == 0 {
		duration = model.SegmentsDuration(segments)
	}
	return segments, duration, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Provider(err, string(model.ProviderOpenAI), "request failed")
	}
	defer resp.Body.Close()

	if err := provider.CheckResponse(model.ProviderOpenAI, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Format(err, string(model.ProviderOpenAI), "invalid response body")
	}

	c.logger.WithFields(logrus.Fields{
		"provider": model.ProviderOpenAI,
		"path":     req.URL.Path,
		"duration": time.Since(started).String(),
	}).Debug("openai request finished")
	return nil
}
