package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/fluent-tutor/backend/internal/handler/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/handler/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/handler/vocabulary"
	middlewarePkg "github.com/zhouzirui/fluent-tutor/backend/internal/middleware"
	chatService "github.com/zhouzirui/fluent-tutor/backend/internal/service/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/conversation"
	speechService "github.com/zhouzirui/fluent-tutor/backend/internal/service/speech"
	vocabService "github.com/zhouzirui/fluent-tutor/backend/internal/service/vocabulary"
	"github.com/zhouzirui/fluent-tutor/backend/pkg/utils"
)

// Deps 是路由需要的全部服务
type Deps struct {
	Sessions     *chatService.Service
	Conversation *conversation.Service
	Vocabulary   *vocabService.Service
	Speech       *speechService.Service
	Metrics      http.Handler
	Logger       zerolog.Logger
}

// NewRouter 组装中间件与各业务路由
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Sessions.Len(),
			"speech":   deps.Speech.Enabled(),
		})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		chat.New(deps.Sessions, deps.Conversation).RegisterRoutes(api)
		vocabulary.New(deps.Vocabulary).RegisterRoutes(api)
		speech.New(deps.Speech, deps.Vocabulary.Catalog().Lookup).RegisterRoutes(api)
		speech.NewWebSocketHandler(deps.Sessions, deps.Conversation).RegisterWebSocketRoutes(api)
	})

	return r
}
