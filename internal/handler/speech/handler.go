package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/model/vocabulary"
	speechsvc "github.com/zhouzirui/fluent-tutor/backend/internal/service/speech"
	"github.com/zhouzirui/fluent-tutor/backend/pkg/utils"
)

const maxAudioUpload = 32 << 20

// SpeechService 抽象语音业务，便于测试与替换实现
type SpeechService interface {
	Enabled() bool
	Transcribe(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error)
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
	Pronounce(ctx context.Context, req speech.PronounceRequest) (*speech.Pronunciation, error)
}

// Handler 语音服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	lookup    func(term string) (vocabulary.Item, bool)
}

// New 创建语音处理器。lookup 用于为发音请求补全词库中的例句，可以为 nil。
func New(speechSvc SpeechService, lookup func(term string) (vocabulary.Item, bool)) *Handler {
	return &Handler{speechSvc: speechSvc, lookup: lookup}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/speech", func(sr chi.Router) {
		sr.Use(h.requireEnabled)
		sr.Post("/transcribe", h.handleTranscribe)
		sr.Post("/synthesize", h.handleSynthesize)
		sr.Post("/pronounce", h.handlePronounce)
	})
}

func (h *Handler) requireEnabled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.speechSvc == nil || !h.speechSvc.Enabled() {
			utils.RespondError(w, http.StatusServiceUnavailable, "speech service is not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleTranscribe 处理语音转文本请求
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
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
		format = speech.FormatFromFilename(header.Filename)
	}

	resp, err := h.speechSvc.Transcribe(r.Context(), &speech.ASRRequest{
		SessionID: r.FormValue("sessionId"),
		Audio:     audio,
		Format:    format,
		Language:  r.FormValue("language"),
	})
	if err != nil {
		utils.RespondDialogueError(w, speechsvc.CaptureError(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSynthesize 处理文本转语音请求，直接返回音频字节
func (h *Handler) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.TTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	resp, err := h.speechSvc.Synthesize(r.Context(), &req)
	if err != nil {
		utils.RespondDialogueError(w, speechsvc.SynthesisError(err))
		return
	}

	format := resp.Format
	if format == "" {
		format = "mpeg"
	}
	w.Header().Set("Content-Type", "audio/"+format)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.AudioData)))
	w.Header().Set("Content-Disposition", "inline; filename=speech."+resp.Format)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.AudioData); err != nil {
		log.Warn().Err(err).Msg("failed to write audio response")
	}
}

// handlePronounce 合成单词及例句发音，例句缺省时从词库补全
func (h *Handler) handlePronounce(w http.ResponseWriter, r *http.Request) {
	var req speech.PronounceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Term = strings.TrimSpace(req.Term)
	if req.Term == "" {
		utils.RespondError(w, http.StatusBadRequest, "term is required")
		return
	}
	if strings.TrimSpace(req.Example) == "" && h.lookup != nil {
		if item, ok := h.lookup(req.Term); ok {
			req.Term = item.Term
			req.Example = item.Example
		}
	}

	out, err := h.speechSvc.Pronounce(r.Context(), req)
	if err != nil {
		if errors.Is(err, speechsvc.ErrEmptyText) {
			utils.RespondError(w, http.StatusBadRequest, "term is required")
			return
		}
		utils.RespondDialogueError(w, speechsvc.SynthesisError(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
