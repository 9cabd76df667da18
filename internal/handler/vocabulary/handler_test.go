package vocabulary

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/fluent-tutor/backend/internal/model/vocabulary"
	vocabsvc "github.com/zhouzirui/fluent-tutor/backend/internal/service/vocabulary"
)

func setupRouter() *chi.Mux {
	svc := vocabsvc.NewService(model.Default(), vocabsvc.Config{
		DailyCount:  5,
		VisualCount: 4,
		Now:         func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) },
	})
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestDailyVocabulary(t *testing.T) {
	r := setupRouter()

	rr := get(r, "/vocabulary/daily")
	require.Equal(t, http.StatusOK, rr.Code)
	var today vocabsvc.DailyWords
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &today))
	require.Equal(t, "2025-03-14", today.Date)
	require.Len(t, today.Items, 5)

	// 同一天结果稳定
	rr = get(r, "/vocabulary/daily?date=2025-03-14")
	var again vocabsvc.DailyWords
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &again))
	require.Equal(t, today, again)

	rr = get(r, "/vocabulary/daily?date=2025-03-14&count=100")
	var all vocabsvc.DailyWords
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	require.Len(t, all.Items, len(model.Default().Words))
}

func TestVisualCards(t *testing.T) {
	rr := get(setupRouter(), "/visual/daily?date=2024-12-25&count=3")
	require.Equal(t, http.StatusOK, rr.Code)

	var cards vocabsvc.DailyCards
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cards))
	require.Equal(t, "2024-12-25", cards.Date)
	require.Len(t, cards.Cards, 3)
	for _, c := range cards.Cards {
		require.NotEmpty(t, c.Icon)
		require.NotEmpty(t, c.Term)
	}
}

func TestInvalidQuery(t *testing.T) {
	r := setupRouter()
	for _, path := range []string{
		"/vocabulary/daily?date=14-03-2025",
		"/vocabulary/daily?count=-1",
		"/visual/daily?count=many",
	} {
		require.Equal(t, http.StatusBadRequest, get(r, path).Code, path)
	}
}
