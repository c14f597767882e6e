package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/provider"
)

const (
	defaultModel   = "qwen-turbo"
	defaultBaseURL = "https://dashscope.aliyuncs.com"
	generationPath = "/api/v1/services/aigc/text-generation/generation"
)

// Config holds DashScope connection settings
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Message is a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a completion request
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

type generationRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []Message `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Temperature  float64 `json:"temperature"`
		MaxTokens    int     `json:"max_tokens"`
		TopP         float64 `json:"top_p"`
		ResultFormat string  `json:"result_format"`
	} `json:"parameters"`
}

// Response is the DashScope generation response
type Response struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
		Choices      []struct {
			FinishReason string  `json:"finish_reason"`
			Message      Message `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Content returns the assistant text regardless of result_format
func (r *Response) Content() string {
	if len(r.Output.Choices) > 0 && r.Output.Choices[0].Message.Content != "" {
		return r.Output.Choices[0].Message.Content
	}
	return r.Output.Text
}

// Tokens returns the total token usage
func (r *Response) Tokens() int {
	if r.Usage.TotalTokens > 0 {
		return r.Usage.TotalTokens
	}
	return r.Usage.InputTokens + r.Usage.OutputTokens
}

// Client talks to the Qwen text-generation REST API
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewClient creates a new Qwen client
func NewClient(cfg Config) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	return c
}

// Name returns the provider name
func (c *Client) Name() model.ProviderName {
	return model.ProviderQwen
}

// CreateCompletion sends one generation request
func (c *Client) CreateCompletion(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	if c.apiKey == "" {
		return nil, provider.MissingCredentials(model.ProviderQwen)
	}

	reqBody := generationRequest{Model: c.model}
	reqBody.Input.Messages = messages
	reqBody.Parameters.Temperature = orDefault(opts.Temperature, 0.7)
	reqBody.Parameters.MaxTokens = int(orDefault(float64(opts.MaxTokens), 2000))
	reqBody.Parameters.TopP = orDefault(opts.TopP, 0.8)
	reqBody.Parameters.ResultFormat = "message"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode qwen request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+generationPath, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build qwen request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Provider(err, string(model.ProviderQwen), "request failed")
	}
	defer resp.Body.Close()

	if err := provider.CheckResponse(model.ProviderQwen, resp); err != nil {
		return nil, err
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Format(err, string(model.ProviderQwen), "invalid response body")
	}

	c.logger.WithFields(logrus.Fields{
		"provider":   model.ProviderQwen,
		"request_id": out.RequestID,
		"tokens":     out.Tokens(),
		"duration":   time.Since(started).String(),
	}).Debug("qwen completion finished")

	return &out, nil
}

// Analyze extracts keywords, phrases, scenarios and a summary.
// Qwen does not author checkpoints; the result carries none.
func (c *Client) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	messages := []Message{
		{Role: "system", Content: provider.AnalysisSystemPrompt},
		{Role: "user", Content: provider.AnalysisPrompt(req, false)},
	}

	resp, err := c.CreateCompletion(ctx, messages, Options{Temperature: 0.7, MaxTokens: 1500})
	if err != nil {
		return nil, err
	}

	content := resp.Content()
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.Format(errors.New("empty content"), string(model.ProviderQwen), "invalid analysis response")
	}

	result, err := provider.DecodeAnalysis(model.ProviderQwen, content)
	if err != nil {
		return nil, err
	}
	result.Checkpoints = nil
	result.TokensUsed = resp.Tokens()
	return result, nil
}

// Transcribe is not offered by the Qwen text API
func (c *Client) Transcribe(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	return nil, apperrors.New(apperrors.CodeUnsupported, "qwen: speech recognition is not supported")
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
