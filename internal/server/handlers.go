package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/repository/analysis"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
	"github.com/Taichi-iskw/clipquiz/internal/service/progress"
)

// Client-facing messages. Underlying causes are logged, never returned.
const (
	msgTranscriptsRequired = "Transcripts are required"
	msgAnalyzeFailed       = "Failed to analyze video"
	msgAudioRequired       = "Audio file is required"
	msgAudioTooLarge       = "Audio file is too large"
	msgTranscribeFailed    = "Failed to transcribe audio"
	msgInvalidBody         = "Invalid request body"
	msgBodyTooLarge        = "Request body is too large"
	msgUnknownProvider     = "Unknown AI provider"
	msgInvalidTokens       = "Invalid token count"
	msgStorageDisabled     = "Storage is not configured"
	msgAnalysisNotFound    = "Analysis not found"
	msgLoadAnalysisFailed  = "Failed to load analysis"
	msgInvalidResult       = "Invalid checkpoint result"
	msgRecordFailed        = "Failed to record progress"
	msgStatsFailed         = "Failed to load statistics"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory
const multipartMemory = 8 << 20

// Handler implements the HTTP endpoints
type Handler struct {
	ai             ai.Service
	analyses       analysis.Repository
	progress       progress.Service
	logger         logrus.FieldLogger
	maxUploadBytes int64
	now            func() time.Time
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// Health reports liveness and the active provider
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": h.ai.Provider(),
		"storage":  h.analyses != nil,
	})
}

type analyzeRequest struct {
	model.AnalysisRequest
	Provider string `json:"provider,omitempty"`
}

// AnalyzeVideo handles POST /api/analyze-video
func (h *Handler) AnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if missing(req.TranscriptEN) || missing(req.TranscriptCN) {
		writeError(w, http.StatusBadRequest, msgTranscriptsRequired)
		return
	}

	svc := h.ai
	if req.Provider != "" {
		scoped, err := h.ai.WithProvider(req.Provider)
		if err != nil {
			writeError(w, http.StatusBadRequest, msgUnknownProvider)
			return
		}
		svc = scoped
	}

	result, err := svc.AnalyzeVideoContent(r.Context(), &req.AnalysisRequest)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeInvalidArg) {
			writeError(w, http.StatusBadRequest, msgTranscriptsRequired)
			return
		}
		h.logger.WithError(err).WithField("title", req.Title).Error("video analysis failed")
		writeError(w, http.StatusInternalServerError, msgAnalyzeFailed)
		return
	}

	tokens := result.TokensUsed
	if tokens == 0 {
		tokens = len(req.TranscriptEN) + len(req.TranscriptCN)
	}
	cost := ai.EstimateCostFor(result.Provider, tokens)
	h.logger.WithFields(logrus.Fields{
		"provider":    cost.Provider,
		"tokens":      tokens,
		"cost":        strconv.FormatFloat(cost.Cost, 'f', 4, 64),
		"currency":    cost.Currency,
		"checkpoints": len(result.Checkpoints),
	}).Info("analysis completed")

	if req.VideoID != "" && h.analyses != nil {
		stored := &model.StoredAnalysis{VideoID: req.VideoID, Provider: result.Provider, Result: *result}
		if err := h.analyses.Save(r.Context(), stored); err != nil {
			h.logger.WithError(err).WithField("video_id", req.VideoID).Warn("failed to persist analysis")
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// missing mirrors a falsy check: absent, null and "" all count as missing
func missing(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`:
		return true
	}
	return false
}

// Transcribe handles POST /api/transcribe
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, msgAudioTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgAudioTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, msgAudioRequired)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, msgAudioRequired)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.WithError(err).Error("failed to read audio upload")
		writeError(w, http.StatusInternalServerError, msgTranscribeFailed)
		return
	}

	audio := &model.Audio{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	transcript, err := h.ai.TranscribeAudio(r.Context(), audio)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeInvalidArg) {
			writeError(w, http.StatusBadRequest, msgAudioRequired)
			return
		}
		h.logger.WithError(err).WithField("filename", header.Filename).Error("transcription failed")
		writeError(w, http.StatusInternalServerError, msgTranscribeFailed)
		return
	}

	writeJSON(w, http.StatusOK, transcript)
}

// GetProvider handles GET /api/ai/provider
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"provider":  h.ai.Provider(),
		"providers": model.KnownProviders,
	})
}

// SetProvider handles PUT /api/ai/provider
func (h *Handler) SetProvider(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := h.ai.SetProvider(body.Provider); err != nil {
		writeError(w, http.StatusBadRequest, msgUnknownProvider)
		return
	}

	h.logger.WithField("provider", body.Provider).Info("active AI provider changed")
	writeJSON(w, http.StatusOK, map[string]any{"provider": h.ai.Provider()})
}

// EstimateCost handles GET /api/ai/cost?tokens=N[&provider=name]
func (h *Handler) EstimateCost(w http.ResponseWriter, r *http.Request) {
	tokens, err := strconv.Atoi(r.URL.Query().Get("tokens"))
	if err != nil || tokens < 0 {
		writeError(w, http.StatusBadRequest, msgInvalidTokens)
		return
	}

	if name := r.URL.Query().Get("provider"); name != "" {
		provider, err := model.ParseProviderName(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, msgUnknownProvider)
			return
		}
		writeJSON(w, http.StatusOK, ai.EstimateCostFor(provider, tokens))
		return
	}
	writeJSON(w, http.StatusOK, h.ai.EstimateCost(tokens))
}

// GetAnalysis handles GET /api/videos/{id}/analysis
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.analyses == nil {
		writeError(w, http.StatusServiceUnavailable, msgStorageDisabled)
		return
	}

	videoID := mux.Vars(r)["id"]
	stored, err := h.analyses.GetByVideoID(r.Context(), videoID)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			writeError(w, http.StatusNotFound, msgAnalysisNotFound)
			return
		}
		h.logger.WithError(err).WithField("video_id", videoID).Error("failed to load analysis")
		writeError(w, http.StatusInternalServerError, msgLoadAnalysisFailed)
		return
	}

	writeJSON(w, http.StatusOK, stored)
}

type checkpointRequest struct {
	UserID  string `json:"user_id"`
	VideoID string `json:"video_id"`
	model.CheckpointResult
}

// RecordCheckpoint handles POST /api/progress/checkpoints
func (h *Handler) RecordCheckpoint(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		writeError(w, http.StatusServiceUnavailable, msgStorageDisabled)
		return
	}

	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if req.ResolvedAt.IsZero() {
		req.ResolvedAt = h.now()
	}

	record, err := h.progress.RecordCheckpoint(r.Context(), req.UserID, req.VideoID, req.CheckpointResult)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeInvalidArg) {
			writeError(w, http.StatusBadRequest, msgInvalidResult)
			return
		}
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("failed to record checkpoint")
		writeError(w, http.StatusInternalServerError, msgRecordFailed)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// Stats handles GET /api/progress/{userID}/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil {
		writeError(w, http.StatusServiceUnavailable, msgStorageDisabled)
		return
	}

	userID := mux.Vars(r)["userID"]
	stats, err := h.progress.Stats(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("failed to load statistics")
		writeError(w, http.StatusInternalServerError, msgStatsFailed)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
