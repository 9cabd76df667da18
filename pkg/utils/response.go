package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

// ErrorBody 是错误响应体
type ErrorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message})
}

// StatusForKind 将对话错误类别映射为 HTTP 状态码
func StatusForKind(kind tutor.Kind) int {
	switch kind {
	case tutor.KindEmptyUtterance:
		return http.StatusBadRequest
	case tutor.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	case tutor.KindProviderRejected:
		return http.StatusBadGateway
	case tutor.KindCaptureUnavailable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondDialogueError 发送对话错误；非 DialogueError 一律按 500 处理且不暴露细节。
func RespondDialogueError(w http.ResponseWriter, err error) {
	var de *tutor.DialogueError
	if !errors.As(err, &de) {
		log.Error().Err(err).Msg("unexpected dialogue failure")
		RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	RespondJSON(w, StatusForKind(de.Kind), ErrorBody{
		Error:     de.Message,
		Kind:      string(de.Kind),
		Retryable: de.Retryable(),
	})
}
