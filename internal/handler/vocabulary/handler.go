package vocabulary

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	vocabsvc "github.com/zhouzirui/fluent-tutor/backend/internal/service/vocabulary"
	"github.com/zhouzirui/fluent-tutor/backend/pkg/utils"
)

// Handler 每日词汇与图卡的HTTP处理器
type Handler struct {
	svc *vocabsvc.Service
}

// New 创建词汇处理器
func New(svc *vocabsvc.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册词汇相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/vocabulary/daily", h.handleDaily)
	r.Get("/visual/daily", h.handleVisual)
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	date, count, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.Daily(date, count))
}

func (h *Handler) handleVisual(w http.ResponseWriter, r *http.Request) {
	date, count, ok := h.parseQuery(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.svc.Visual(date, count))
}

// parseQuery 解析 ?date=YYYY-MM-DD&count=N，count 缺省为 0 表示使用配置值
func (h *Handler) parseQuery(w http.ResponseWriter, r *http.Request) (date time.Time, count int, ok bool) {
	query := r.URL.Query()

	date, err := h.svc.ParseDate(query.Get("date"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return date, 0, false
	}

	if raw := strings.TrimSpace(query.Get("count")); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 0 {
			utils.RespondError(w, http.StatusBadRequest, "count must be a non-negative integer")
			return date, 0, false
		}
	}
	return date, count, true
}
