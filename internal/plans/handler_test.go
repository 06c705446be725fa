package plans

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fco71/myworkoutapp/internal/sessions"
	"github.com/fco71/myworkoutapp/internal/telemetry/metrics"
)

type handlerFixture struct {
	router       *mux.Router
	handler      *Handler
	plansRepo    *MockPlansRepo
	sessionsRepo *sessions.RepoMock
	catalogRepo  *MockCatalogRepo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	plansRepo := NewMockPlansRepo()
	sessionsRepo := sessions.NewMockSessionsRepo()
	catalogRepo := NewMockCatalogRepo()
	reconciler := NewReconciler(plansRepo, sessionsRepo, metrics.NewTestManager())
	loader := NewLoader(plansRepo)

	handler := NewHandler(reconciler, loader, plansRepo, catalogRepo, testAccount, 4)
	// pin the clock to a Wednesday of the 2026-08-24 week
	handler.now = func() time.Time {
		return time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC)
	}

	r := mux.NewRouter()
	r.HandleFunc("/weekly/current", handler.HandleGetCurrent).Methods("GET")
	r.HandleFunc("/weekly/history/{lookback}", handler.HandleHistory).Methods("GET")
	r.HandleFunc("/weekly/toggle", handler.HandleToggle).Methods("POST")
	r.HandleFunc("/weekly/type", handler.HandleAddType).Methods("POST")
	r.HandleFunc("/weekly/type/{name}", handler.HandleRemoveType).Methods("DELETE")
	r.HandleFunc("/weekly/benchmarks", handler.HandleSetBenchmarks).Methods("PUT")
	r.HandleFunc("/weekly/benchmarks/progress", handler.HandleProgress).Methods("GET")
	r.HandleFunc("/sessions/complete", handler.HandleCompleteWorkout).Methods("POST")
	r.HandleFunc("/settings/types", handler.HandleGetCatalog).Methods("GET")
	r.HandleFunc("/settings/types", handler.HandleSaveCatalog).Methods("PUT")

	return &handlerFixture{
		router:       r,
		handler:      handler,
		plansRepo:    plansRepo,
		sessionsRepo: sessionsRepo,
		catalogRepo:  catalogRepo,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestHandleGetCurrent_lazyCreate(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(t, "GET", "/weekly/current", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var plan WeeklyPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Equal(t, "2026-08-24", plan.WeekOfISO)
	assert.Len(t, plan.Days, 7)

	// first touch stores the default plan
	stored, err := f.plansRepo.Get(context.Background(), testAccount, "2026-08-24")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-24", stored.WeekOfISO)
}

func TestHandleGetCurrent_newWeekAdoptsCatalog(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.catalogRepo.Save(context.Background(), testAccount, TypesCatalog{
		Types:      []string{"strength"},
		Categories: map[string]Category{"strength": CategoryResistance},
	}))

	rr := f.do(t, "GET", "/weekly/current", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var plan WeeklyPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Equal(t, []string{"strength"}, plan.CustomTypes)
	assert.Equal(t, CategoryResistance, plan.TypeCategories["strength"])
}

func TestHandleGetCurrent_rebuild(t *testing.T) {
	f := newHandlerFixture(t)

	plan := testPlan("2026-08-24")
	plan.Days[0].SessionsList = []SessionRef{{ID: "ghost", SessionTypes: []string{"x"}}}
	require.NoError(t, f.plansRepo.Save(context.Background(), testAccount, plan))

	real, err := f.sessionsRepo.Add(context.Background(), testAccount, sessions.Session{
		DateISO:      "2026-08-24",
		SessionTypes: []string{"strength"},
	})
	require.NoError(t, err)

	rr := f.do(t, "GET", "/weekly/current?rebuild=true", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var rebuilt WeeklyPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rebuilt))
	require.Len(t, rebuilt.Days[0].SessionsList, 1)
	assert.Equal(t, real.ID, rebuilt.Days[0].SessionsList[0].ID)

	// rebuilt plan is persisted
	stored, err := f.plansRepo.Get(context.Background(), testAccount, "2026-08-24")
	require.NoError(t, err)
	require.Len(t, stored.Days[0].SessionsList, 1)
	assert.Equal(t, real.ID, stored.Days[0].SessionsList[0].ID)
}

func TestHandleToggle(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.plansRepo.Save(context.Background(), testAccount, testPlan("2026-08-24")))

	rr := f.do(t, "POST", "/weekly/toggle",
		`{"weekOf": "2026-08-24", "dayIndex": 0, "type": "strength"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var plan WeeklyPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.True(t, plan.Days[0].Types["strength"])
	require.Len(t, plan.Days[0].SessionsList, 1)
	assert.True(t, plan.Days[0].SessionsList[0].Placeholder)
}

func TestHandleToggle_badRequest(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(t, "POST", "/weekly/toggle", `{"weekOf": "2026-08-24", "dayIndex": 9, "type": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "POST", "/weekly/toggle", `{"weekOf": "2026-08-24", "dayIndex": 0, "type": ""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "POST", "/weekly/toggle", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleCompleteWorkout(t *testing.T) {
	f := newHandlerFixture(t)

	rr := f.do(t, "POST", "/sessions/complete", `{
		"id": "w1",
		"dateISO": "2026-08-26",
		"sessionName": "push day",
		"sessionTypes": ["strength"],
		"durationSec": 2400
	}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp completeWorkoutResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "w1", resp.Session.ID)
	assert.True(t, resp.Plan.Days[2].Types["strength"])

	// duplicate trigger is acknowledged, not re-applied
	rr = f.do(t, "POST", "/sessions/complete", `{"id": "w1", "dateISO": "2026-08-26"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"alreadyProcessed": true}`, rr.Body.String())
}

func TestHandleHistory(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.plansRepo.Save(context.Background(), testAccount, testPlan("2026-08-24")))
	require.NoError(t, f.plansRepo.Save(context.Background(), testAccount, testPlan("2026-08-17")))

	rr := f.do(t, "GET", "/weekly/history/4", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var history History
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	assert.Equal(t, "2026-08-24", history.Current.WeekOfISO)
	require.Len(t, history.Previous, 1)
	assert.Equal(t, 2, history.Current.WeekNumber)

	rr = f.do(t, "GET", "/weekly/history/bogus", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleAddAndRemoveType(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.plansRepo.Save(context.Background(), testAccount, testPlan("2026-08-24")))

	rr := f.do(t, "POST", "/weekly/type",
		`{"weekOf": "2026-08-24", "name": "yoga", "category": "mindfulness", "goal": 2}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var plan WeeklyPlan
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.Contains(t, plan.CustomTypes, "yoga")
	assert.Equal(t, CategoryMindfulness, plan.TypeCategories["yoga"])
	assert.Equal(t, 2, plan.Benchmarks["yoga"])

	// the catalog picked it up for future weeks
	catalog, err := f.catalogRepo.Get(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Contains(t, catalog.Types, "yoga")

	// check the type on a day so removal has stale keys to prune
	rr = f.do(t, "POST", "/weekly/toggle",
		`{"weekOf": "2026-08-24", "dayIndex": 0, "type": "yoga"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "DELETE", "/weekly/type/yoga?weekOf=2026-08-24", "")
	require.Equal(t, http.StatusOK, rr.Code)
	plan = WeeklyPlan{} // decoding into a used struct would merge the maps
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
	assert.NotContains(t, plan.CustomTypes, "yoga")
	assert.NotContains(t, plan.TypeCategories, "yoga")
	assert.NotContains(t, plan.Benchmarks, "yoga")
	assert.NotContains(t, plan.Days[0].Types, "yoga")

	stored, err := f.plansRepo.Get(context.Background(), testAccount, "2026-08-24")
	require.NoError(t, err)
	assert.NotContains(t, stored.Days[0].Types, "yoga")
	assert.NotContains(t, stored.Days[0].Comments, "yoga")

	rr = f.do(t, "POST", "/weekly/type", `{"name": "", "category": "cardio"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "POST", "/weekly/type", `{"name": "x", "category": "bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleSetBenchmarksAndProgress(t *testing.T) {
	f := newHandlerFixture(t)
	plan := testPlan("2026-08-24")
	plan.Days[0].Types["strength"] = true
	plan.Days[2].Types["strength"] = true
	require.NoError(t, f.plansRepo.Save(context.Background(), testAccount, plan))

	rr := f.do(t, "PUT", "/weekly/benchmarks",
		`{"weekOf": "2026-08-24", "benchmarks": {"strength": 3}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "PUT", "/weekly/benchmarks",
		`{"weekOf": "2026-08-24", "benchmarks": {"strength": -1}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, "GET", "/weekly/benchmarks/progress?weekOf=2026-08-24", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var report ProgressReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.NotEmpty(t, report.Types)
	assert.Equal(t, "strength", report.Types[0].Type)
	assert.Equal(t, 3, report.Types[0].Goal)
	assert.Equal(t, 2, report.Types[0].Done)
}

func TestHandleCatalog(t *testing.T) {
	f := newHandlerFixture(t)

	// empty catalog before any save
	rr := f.do(t, "GET", "/settings/types", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var catalog TypesCatalog
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &catalog))
	assert.Empty(t, catalog.Types)

	rr = f.do(t, "PUT", "/settings/types",
		`{"types": ["strength"], "categories": {"strength": "resistance"}, "benchmarks": {"strength": 3}}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, "GET", "/settings/types", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &catalog))
	assert.Equal(t, []string{"strength"}, catalog.Types)

	rr = f.do(t, "PUT", "/settings/types", `{"categories": {"x": "bogus"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
