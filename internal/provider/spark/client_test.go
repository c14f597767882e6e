package spark

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
)

const analysisJSON = `{"keywords":[{"word":"latte","translation":"拿铁","frequency":3,"usage_context":"a latte please","difficulty":"easy"}],"phrases":[],"scenarios":["café"],"difficulty_score":2,"summary":"点咖啡"}`

const quizJSON = `{"id":"","time_percent":0,"type":"","question":"latte 是什么意思？","options":["拿铁","茶","果汁"],"correct_answer":0,"explanation":"latte 指拿铁咖啡","ai_hint":"咖啡","points":20}`

var upgrader = websocket.Upgrader{}

// frame builds one streamed response frame
func frame(code, status int, content string, tokens int) map[string]any {
	f := map[string]any{
		"header": map[string]any{"code": code, "message": "", "sid": "sid-1", "status": status},
		"payload": map[string]any{
			"choices": map[string]any{
				"status": status,
				"text":   []map[string]string{{"role": "assistant", "content": content}},
			},
		},
	}
	if tokens > 0 {
		f["payload"].(map[string]any)["usage"] = map[string]any{"text": map[string]int{"total_tokens": tokens}}
	}
	return f
}

// chunks splits s into n roughly equal parts
func chunks(s string, n int) []string {
	r := []rune(s)
	size := (len(r) + n - 1) / n
	var out []string
	for i := 0; i < len(r); i += size {
		end := i + size
		if end > len(r) {
			end = len(r)
		}
		out = append(out, string(r[i:end]))
	}
	return out
}

type sessionFunc func(t *testing.T, conn *websocket.Conn, req requestFrame)

func newSocketServer(t *testing.T, session sessionFunc) (*httptest.Server, *int32) {
	t.Helper()
	var sessions int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("authorization"))
		assert.NotEmpty(t, r.URL.Query().Get("date"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		atomic.AddInt32(&sessions, 1)

		var req requestFrame
		if err := conn.ReadJSON(&req); err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		session(t, conn, req)
	}))
	t.Cleanup(server.Close)
	return server, &sessions
}

func newTestClient(server *httptest.Server) *Client {
	logger, _ := test.NewNullLogger()
	return NewClient(Config{
		AppID:     "app-1",
		APIKey:    "key-1",
		APISecret: "secret-1",
		ChatURL:   "ws" + strings.TrimPrefix(server.URL, "http") + "/v3.5/chat",
		Logger:    logger,
	})
}

func streamAnswer(conn *websocket.Conn, answer string, tokens int) {
	parts := chunks(answer, 3)
	for i, part := range parts {
		status := 1
		if i == 0 {
			status = 0
		}
		if i == len(parts)-1 {
			conn.WriteJSON(frame(0, statusLast, part, tokens))
			return
		}
		conn.WriteJSON(frame(0, status, part, 0))
	}
}

func TestClient_Complete_Streaming(t *testing.T) {
	server, _ := newSocketServer(t, func(t *testing.T, conn *websocket.Conn, req requestFrame) {
		assert.Equal(t, "app-1", req.Header.AppID)
		assert.Len(t, req.Header.UID, 16)
		assert.Equal(t, "generalv3.5", req.Parameter.Chat.Domain)
		assert.Equal(t, 0.5, req.Parameter.Chat.Temperature)
		assert.Equal(t, 1024, req.Parameter.Chat.MaxTokens)
		require.Len(t, req.Payload.Message.Text, 1)
		assert.Equal(t, "user", req.Payload.Message.Text[0].Role)
		assert.Equal(t, "hello", req.Payload.Message.Text[0].Content)

		streamAnswer(conn, "Hello there, learner!", 42)
	})

	answer, err := newTestClient(server).Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello there, learner!", answer.Text)
	assert.Equal(t, 42, answer.Tokens)
}

func TestClient_Complete_Errors(t *testing.T) {
	tests := []struct {
		name     string
		session  sessionFunc
		wantCode string
		wantMsg  string
	}{
		{
			name: "non-zero code mid-stream",
			session: func(t *testing.T, conn *websocket.Conn, req requestFrame) {
				conn.WriteJSON(frame(0, 0, "partial ", 0))
				conn.WriteJSON(frame(10013, 1, "", 0))
			},
			wantCode: apperrors.CodeProvider,
			wantMsg:  "10013",
		},
		{
			name: "connection closed before final frame",
			session: func(t *testing.T, conn *websocket.Conn, req requestFrame) {
				conn.WriteJSON(frame(0, 0, "partial ", 0))
			},
			wantCode: apperrors.CodeProvider,
			wantMsg:  "stream interrupted",
		},
		{
			name: "frame is not JSON",
			session: func(t *testing.T, conn *websocket.Conn, req requestFrame) {
				conn.WriteMessage(websocket.TextMessage, []byte("garbage"))
			},
			wantCode: apperrors.CodeFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newSocketServer(t, tt.session)

			answer, err := newTestClient(server).Complete(context.Background(), "hello")
			require.Error(t, err)
			assert.Nil(t, answer)
			assert.Equal(t, tt.wantCode, apperrors.CodeOf(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_Complete_HandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "HMAC signature does not match", http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	_, err := newTestClient(server).Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeProvider))
	assert.Contains(t, err.Error(), "authentication rejected")
}

func TestClient_Complete_ContextCanceled(t *testing.T) {
	release := make(chan struct{})
	server, _ := newSocketServer(t, func(t *testing.T, conn *websocket.Conn, req requestFrame) {
		conn.WriteJSON(frame(0, 0, "partial", 0))
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server).Complete(ctx, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Complete_MissingCredentials(t *testing.T) {
	client := NewClient(Config{AppID: "app-1"})

	_, err := client.Complete(context.Background(), "hello")
	assert.True(t, apperrors.Is(err, apperrors.CodeProvider))
	assert.Contains(t, err.Error(), "credentials not configured")
}

func TestClient_Analyze(t *testing.T) {
	server, sessions := newSocketServer(t, func(t *testing.T, conn *websocket.Conn, req requestFrame) {
		prompt := req.Payload.Message.Text[0].Content
		if strings.Contains(prompt, "分析以下英语学习视频内容") {
			streamAnswer(conn, "```json\n"+analysisJSON+"\n```", 100)
			return
		}
		streamAnswer(conn, quizJSON, 30)
	})

	result, err := newTestClient(server).Analyze(context.Background(), &model.AnalysisRequest{
		Title:        "Ordering coffee",
		TranscriptEN: json.RawMessage(`[{"start":0,"end":2,"text":"A latte please"}]`),
		TranscriptCN: json.RawMessage(`[]`),
	})
	require.NoError(t, err)

	assert.Equal(t, int32(4), atomic.LoadInt32(sessions))
	assert.Equal(t, model.ProviderSpark, result.Provider)
	assert.Equal(t, 190, result.TokensUsed)
	assert.Equal(t, "点咖啡", result.Analysis.Summary)

	require.Len(t, result.Checkpoints, 3)
	for i, target := range model.DefaultCheckpointTargets {
		cp := result.Checkpoints[i]
		assert.Equal(t, target.TimePercent, cp.TimePercent)
		assert.Equal(t, target.Type, cp.Type)
		assert.NoError(t, cp.Validate())
	}
	assert.Equal(t, "cp1", result.Checkpoints[0].ID)
}

func TestClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "app-1", r.Header.Get("X-Appid"))
		assert.Equal(t, "key-1", r.Header.Get("X-ApiKey"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "en-US,zh-CN", r.FormValue("language"))

		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "clip.mp3", header.Filename)
		assert.Equal(t, []byte("ID3"), data)

		json.NewEncoder(w).Encode(map[string]any{
			"english_segments": []model.Segment{{Start: 0, End: 2.4, Text: "Hello"}},
			"chinese_segments": []model.Segment{{Start: 0, End: 2.4, Text: "你好"}},
			"duration":         2.4,
		})
	}))
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	client := NewClient(Config{AppID: "app-1", APIKey: "key-1", TranscribeURL: server.URL, Logger: logger})

	transcript, err := client.Transcribe(context.Background(), &model.Audio{Filename: "clip.mp3", Data: []byte("ID3")})
	require.NoError(t, err)
	assert.Equal(t, "Hello", transcript.English[0].Text)
	assert.Equal(t, "你好", transcript.Chinese[0].Text)
	assert.Equal(t, 2, transcript.Duration)
}

func TestClient_Transcribe_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{AppID: "app-1", APIKey: "key-1", TranscribeURL: server.URL})

	_, err := client.Transcribe(context.Background(), &model.Audio{Data: []byte("ID3")})
	assert.True(t, apperrors.Is(err, apperrors.CodeProvider))
	assert.Contains(t, err.Error(), "rate limited")
}
