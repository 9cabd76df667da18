package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/fluent-tutor/backend/internal/model/vocabulary"
	"github.com/zhouzirui/fluent-tutor/backend/internal/observability"
	chatService "github.com/zhouzirui/fluent-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/conversation"
	speechService "github.com/zhouzirui/fluent-tutor/backend/internal/service/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
	vocabService "github.com/zhouzirui/fluent-tutor/backend/internal/service/vocabulary"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	metrics := observability.NewMetrics("test")
	sessions := chatService.NewService(chatService.Options{Instruction: tutor.DefaultInstruction, Hooks: metrics})
	completer := tutor.CompleterFunc(func(context.Context, []tutor.Message) (string, error) {
		return "Nice to meet you! What do you like to do?", nil
	})
	controller := tutor.NewController(tutor.Config{}, tutor.WithRecorder(metrics))

	return NewRouter(Deps{
		Sessions:     sessions,
		Conversation: conversation.NewService(sessions, controller, completer, nil),
		Vocabulary:   vocabService.NewService(model.Default(), vocabService.Config{}),
		Speech:       speechService.NewService(nil),
		Metrics:      metrics.Handler(),
		Logger:       zerolog.Nop(),
	})
}

func TestRouterEndToEnd(t *testing.T) {
	r := newTestRouter(t)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions/", nil))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sessions/"+created.ID+"/utterances", strings.NewReader(`{"text":"Hi, I am Ana"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Nice to meet you")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/vocabulary/daily", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/speech/synthesize", strings.NewReader(`{"text":"hi"}`)))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"sessions":1`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "test_active_sessions 1")
}

func TestRouterCORSPreflight(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/sessions/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
