package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
	speechmodel "github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
	chatservice "github.com/zhouzirui/fluent-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/conversation"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
	"github.com/zhouzirui/fluent-tutor/backend/pkg/utils"
)

// maxAudioUpload 限制单次上传录音大小
const maxAudioUpload = 32 << 20

// Handler 会话与对话的HTTP处理器
type Handler struct {
	sessions *chatservice.Service
	conv     *conversation.Service
}

// New 创建会话处理器
func New(sessions *chatservice.Service, conv *conversation.Service) *Handler {
	return &Handler{sessions: sessions, conv: conv}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(sr chi.Router) {
		sr.Post("/", h.handleCreateSession)
		sr.Get("/{sessionID}", h.handleGetSession)
		sr.Delete("/{sessionID}", h.handleEndSession)
		sr.Post("/{sessionID}/utterances", h.handleUtterance)
		sr.Post("/{sessionID}/retry", h.handleRetry)
		sr.Post("/{sessionID}/voice", h.handleVoice)
	})
}

type sessionResponse struct {
	chatservice.Info
	Archived bool `json:"archived,omitempty"`
}

type utteranceRequest struct {
	Text     string `json:"text"`
	Speak    bool   `json:"speak"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

type voiceResponse struct {
	Transcript string `json:"transcript"`
	*conversation.Reply
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("create session failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, sessionResponse{Info: info})
}

// handleGetSession 返回会话记录，已结束的会话从归档读取
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	info, err := h.sessions.Get(r.Context(), sessionID)
	if err == nil {
		utils.RespondJSON(w, http.StatusOK, sessionResponse{Info: info})
		return
	}

	turns, err := h.sessions.Transcript(r.Context(), sessionID)
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case err != nil:
		log.Error().Err(err).Str("session", sessionID).Msg("load transcript failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
	case len(turns) == 0:
		utils.RespondError(w, http.StatusNotFound, "session not found")
	default:
		utils.RespondJSON(w, http.StatusOK, sessionResponse{
			Info:     chatservice.Info{ID: sessionID, CreatedAt: turns[0].CreatedAt, Turns: turns},
			Archived: true,
		})
	}
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUtterance(w http.ResponseWriter, r *http.Request) {
	var payload utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.conv.Say(r.Context(), chi.URLParam(r, "sessionID"), payload.Text, conversation.Options{
		Speak:    payload.Speak,
		Voice:    payload.Voice,
		Language: payload.Language,
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleRetry 重试上一次失败的输入，请求体可为空
func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	var payload utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.conv.Retry(r.Context(), chi.URLParam(r, "sessionID"), conversation.Options{
		Speak:    payload.Speak,
		Voice:    payload.Voice,
		Language: payload.Language,
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleVoice 识别上传的录音后按普通输入处理
func (h *Handler) handleVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	format := strings.TrimSpace(r.FormValue("format"))
	if format == "" {
		format = speechmodel.FormatFromFilename(header.Filename)
	}

	transcript, reply, err := h.conv.Listen(r.Context(), chi.URLParam(r, "sessionID"), speechmodel.ASRRequest{
		Audio:    audio,
		Format:   format,
		Language: r.FormValue("language"),
	}, conversation.Options{
		Speak:    r.FormValue("speak") == "true",
		Voice:    r.FormValue("voice"),
		Language: r.FormValue("language"),
	})
	if err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, voiceResponse{Transcript: transcript, Reply: reply})
}

func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, tutor.ErrNothingPending):
		utils.RespondError(w, http.StatusConflict, "nothing to retry")
	case errors.Is(err, chat.ErrUnknownRole):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondDialogueError(w, err)
	}
}
