package spark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/provider"
)

const (
	defaultChatURL       = "wss://spark-api.xf-yun.com/v3.5/chat"
	defaultDomain        = "generalv3.5"
	defaultTranscribeURL = "https://api.xf-yun.com/v1/service/v1/iat"

	// statusLast marks the final frame of a streamed answer
	statusLast = 2
)

// Config holds iFlytek Spark credentials and endpoints
type Config struct {
	AppID         string
	APIKey        string
	APISecret     string
	ChatURL       string
	Domain        string
	TranscribeURL string
	Dialer        *websocket.Dialer
	HTTPClient    *http.Client
	Logger        logrus.FieldLogger
	Now           func() time.Time
}

type requestFrame struct {
	Header struct {
		AppID string `json:"app_id"`
		UID   string `json:"uid"`
	} `json:"header"`
	Parameter struct {
		Chat struct {
			Domain      string  `json:"domain"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		} `json:"chat"`
	} `json:"parameter"`
	Payload struct {
		Message struct {
			Text []textItem `json:"text"`
		} `json:"message"`
	} `json:"payload"`
}

type textItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFrame struct {
	Header struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		SID     string `json:"sid"`
		Status  int    `json:"status"`
	} `json:"header"`
	Payload struct {
		Choices struct {
			Status int        `json:"status"`
			Seq    int        `json:"seq"`
			Text   []textItem `json:"text"`
		} `json:"choices"`
		Usage struct {
			Text struct {
				TotalTokens int `json:"total_tokens"`
			} `json:"text"`
		} `json:"usage"`
	} `json:"payload"`
}

// completion is the accumulated answer of one socket session
type completion struct {
	Text   string
	Tokens int
}

// Client speaks the Spark streaming chat protocol
type Client struct {
	cfg        Config
	dialer     *websocket.Dialer
	httpClient *http.Client
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewClient creates a new Spark client
func NewClient(cfg Config) *Client {
	if cfg.ChatURL == "" {
		cfg.ChatURL = defaultChatURL
	}
	if cfg.Domain == "" {
		cfg.Domain = defaultDomain
	}
	if cfg.TranscribeURL == "" {
		cfg.TranscribeURL = defaultTranscribeURL
	}

	c := &Client{
		cfg:        cfg,
		dialer:     cfg.Dialer,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Name returns the provider name
func (c *Client) Name() model.ProviderName {
	return model.ProviderSpark
}

func (c *Client) configured() bool {
	return c.cfg.AppID != "" && c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

// Analyze runs one analysis session and one quiz session per checkpoint target
func (c *Client) Analyze(ctx context.Context, req *model.AnalysisRequest) (*model.AnalysisResult, error) {
	if !c.configured() {
		return nil, provider.MissingCredentials(model.ProviderSpark)
	}

	answer, err := c.Complete(ctx, provider.AnalysisSystemPrompt+"\n\n"+provider.AnalysisPrompt(req, false))
	if err != nil {
		return nil, err
	}
	result, err := provider.DecodeAnalysis(model.ProviderSpark, answer.Text)
	if err != nil {
		return nil, err
	}
	result.Checkpoints = nil
	result.TokensUsed = answer.Tokens

	for i, target := range model.DefaultCheckpointTargets {
		cp, tokens, err := c.GenerateQuizQuestion(ctx, string(req.TranscriptEN), target)
		if err != nil {
			return nil, err
		}
		if cp.ID == "" {
			cp.ID = fmt.Sprintf("cp%d", i+1)
		}
		result.Checkpoints = append(result.Checkpoints, *cp)
		result.TokensUsed += tokens
	}

	return result, nil
}

// GenerateQuizQuestion authors a single checkpoint at the given target
func (c *Client) GenerateQuizQuestion(ctx context.Context, transcript string, target model.CheckpointTarget) (*model.Checkpoint, int, error) {
	answer, err := c.Complete(ctx, provider.QuizPrompt(transcript, target.TimePercent, target.Type))
	if err != nil {
		return nil, 0, err
	}

	cp, err := provider.DecodeCheckpoint(model.ProviderSpark, answer.Text)
	if err != nil {
		return nil, 0, err
	}
	cp.TimePercent = target.TimePercent
	cp.Type = target.Type
	return cp, answer.Tokens, nil
}

// Complete opens a socket, sends one prompt and accumulates the streamed answer until the
// terminal status frame. Partial text is discarded on any error.
func (c *Client) Complete(ctx context.Context, content string) (*completion, error) {
	if !c.configured() {
		return nil, provider.MissingCredentials(model.ProviderSpark)
	}

	signedURL, err := SignURL(c.cfg.ChatURL, c.cfg.APIKey, c.cfg.APISecret, c.now())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to sign spark URL")
	}

	started := time.Now()
	conn, resp, err := c.dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, apperrors.Provider(err, string(model.ProviderSpark), "authentication rejected")
		}
		return nil, apperrors.Provider(err, string(model.ProviderSpark), "connection failed")
	}
	defer conn.Close()

	// unblock ReadMessage when the caller gives up
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	frame := c.newFrame(content)
	if err := conn.WriteJSON(frame); err != nil {
		return nil, apperrors.Provider(err, string(model.ProviderSpark), "failed to send prompt")
	}

	var (
		buf    strings.Builder
		tokens int
	)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, apperrors.Provider(err, string(model.ProviderSpark), "stream interrupted")
		}

		var msg responseFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, apperrors.Format(err, string(model.ProviderSpark), "invalid stream frame")
		}
		if msg.Header.Code != 0 {
			return nil, apperrors.Provider(
				fmt.Errorf("code %d: %s", msg.Header.Code, msg.Header.Message),
				string(model.ProviderSpark), "API error")
		}

		for _, item := range msg.Payload.Choices.Text {
			buf.WriteString(item.Content)
		}
		if msg.Payload.Usage.Text.TotalTokens > 0 {
			tokens = msg.Payload.Usage.Text.TotalTokens
		}

		if msg.Header.Status == statusLast {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

			c.logger.WithFields(logrus.Fields{
				"provider": model.ProviderSpark,
				"sid":      msg.Header.SID,
				"tokens":   tokens,
				"duration": time.Since(started).String(),
			}).Debug("spark completion finished")

			return &completion{Text: buf.String(), Tokens: tokens}, nil
		}
	}
}

func (c *Client) newFrame(content string) requestFrame {
	var frame requestFrame
	frame.Header.AppID = c.cfg.AppID
	frame.Header.UID = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	frame.Parameter.Chat.Domain = c.cfg.Domain
	frame.Parameter.Chat.Temperature = 0.5
	frame.Parameter.Chat.MaxTokens = 1024
	frame.Payload.Message.Text = []textItem{{Role: "user", Content: content}}
	return frame
}

type transcribeResponse struct {
	EnglishSegments []model.Segment `json:"english_segments"`
	ChineseSegments []model.Segment `json:"chinese_segments"`
	Duration        float64         `json:"duration"`
}

// Transcribe returns both language tracks from a single recognition call
func (c *Client) Transcribe(ctx context.Context, audio *model.Audio) (*model.Transcript, error) {
	if c.cfg.AppID == "" || c.cfg.APIKey == "" {
		return nil, provider.MissingCredentials(model.ProviderSpark)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	filename := audio.Filename
	if filename == "" {
		filename = "audio.mp3"
	}
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build spark upload")
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build spark upload")
	}
	if err := writer.WriteField("language", "en-US,zh-CN"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build spark upload")
	}
	if err := writer.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build spark upload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranscribeURL, &body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to build spark request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Appid", c.cfg.AppID)
	req.Header.Set("X-ApiKey", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Provider(err, string(model.ProviderSpark), "transcription request failed")
	}
	defer resp.Body.Close()

	if err := provider.CheckResponse(model.ProviderSpark, resp); err != nil {
		return nil, err
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.Format(err, string(model.ProviderSpark), "invalid transcription response")
	}
	if len(out.EnglishSegments) == 0 && len(out.ChineseSegments) == 0 {
		return nil, apperrors.Format(errors.New("no segments"), string(model.ProviderSpark), "empty transcription")
	}

	return &model.Transcript{
		English:  out.EnglishSegments,
		Chinese:  out.ChineseSegments,
		Duration: int(out.Duration + 0.5),
	}, nil
}
