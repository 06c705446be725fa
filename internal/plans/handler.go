package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fco71/myworkoutapp/internal/sessions"
	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
	"github.com/fco71/myworkoutapp/pkg"
)

type catalogStore interface {
	Get(ctx context.Context, accountID string) (*TypesCatalog, error)
	Save(ctx context.Context, accountID string, catalog TypesCatalog) error
}

type Handler struct {
	reconciler *Reconciler
	loader     *Loader
	plans      planStore
	catalog    catalogStore

	accountID       string
	defaultLookback int

	now func() time.Time
}

func NewHandler(
	reconciler *Reconciler,
	loader *Loader,
	plans planStore,
	catalog catalogStore,
	accountID string,
	defaultLookback int,
) *Handler {
	return &Handler{
		reconciler:      reconciler,
		loader:          loader,
		plans:           plans,
		catalog:         catalog,
		accountID:       accountID,
		defaultLookback: defaultLookback,
		now:             time.Now,
	}
}

// HandleGetCurrent returns this week's plan, lazily creating and storing a
// default one on first touch. With ?rebuild=true the session refs are
// rederived from the session log before returning.
func (handler *Handler) HandleGetCurrent(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.current")
	defer span.End()

	plan, created, err := handler.currentPlan(ctx)
	if err != nil {
		log.Errorf("get current plan: %s", err)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("rebuild") == "true" {
		rebuilt, err := handler.reconciler.RebuildSessionsList(ctx, handler.accountID, plan)
		if err != nil {
			log.Errorf("rebuild sessions list: %s", err)
			http.Error(w, "failed to rebuild plan", http.StatusInternalServerError)
			return
		}
		plan = rebuilt
		if err := handler.plans.Save(ctx, handler.accountID, plan); err != nil {
			log.Errorf("save rebuilt plan: %s", err)
			http.Error(w, "failed to save plan", http.StatusInternalServerError)
			return
		}
	} else if created {
		if err := handler.plans.Save(ctx, handler.accountID, plan); err != nil {
			log.Errorf("save new week plan: %s", err)
			http.Error(w, "failed to save plan", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, plan, http.StatusOK)
}

// HandleHistory returns the current week plus stored prior weeks.
func (handler *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.history")
	defer span.End()

	lookback := handler.defaultLookback
	if raw := mux.Vars(r)["lookback"]; raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid lookback", http.StatusBadRequest)
			return
		}
		lookback = parsed
	}

	history, err := handler.loader.LoadHistory(
		ctx, handler.accountID, WeekStartISO(handler.now()), lookback,
	)
	if err != nil {
		log.Errorf("load history: %s", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, history, http.StatusOK)
}

type toggleRequest struct {
	WeekOf   string `json:"weekOf"`
	DayIndex int    `json:"dayIndex"`
	Type     string `json:"type"`
}

// HandleToggle flips one checkbox on one day and returns the updated plan.
func (handler *Handler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.toggle")
	defer span.End()

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	plan, err := handler.planForWeek(ctx, req.WeekOf)
	if err != nil {
		log.Errorf("toggle type, load plan: %s", err)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}

	updated, err := handler.reconciler.ToggleType(
		ctx, handler.accountID, plan, req.DayIndex, req.Type,
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, ErrDayNotFound):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrPartialPersist):
			log.Errorf("toggle type: %s", err)
			// The side that persisted stays; clients recover via rebuild.
			http.Error(w, "plan and session log out of sync, rebuild needed", http.StatusInternalServerError)
		default:
			log.Errorf("toggle type: %s", err)
			http.Error(w, "failed to toggle type", http.StatusInternalServerError)
		}
		return
	}

	handler.loader.InvalidateWeek(handler.accountID, updated.WeekOfISO)
	writeJSON(w, updated, http.StatusOK)
}

type completeWorkoutResponse struct {
	Plan    WeeklyPlan        `json:"plan"`
	Session *sessions.Session `json:"session"`
}

// HandleCompleteWorkout records a finished workout session and folds it into
// the plan of the week the session belongs to.
func (handler *Handler) HandleCompleteWorkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.complete")
	defer span.End()

	var s sessions.Session
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	weekOf := WeekStartISO(handler.now())
	if s.DateISO != "" {
		date, err := time.Parse(DateLayout, s.DateISO)
		if err != nil {
			http.Error(w, "invalid session date", http.StatusBadRequest)
			return
		}
		weekOf = WeekStartISO(date)
	}

	plan, err := handler.planForWeek(ctx, weekOf)
	if err != nil {
		log.Errorf("complete workout, load plan: %s", err)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}

	updated, added, err := handler.reconciler.CompleteWorkout(ctx, handler.accountID, plan, s)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyProcessed):
			pkg.WriteResponseBytes(
				w, pkg.ContentType.JSON,
				[]byte(`{"alreadyProcessed":true}`),
				http.StatusOK,
			)
		case errors.Is(err, ErrPartialPersist):
			log.Errorf("complete workout: %s", err)
			http.Error(w, "session saved, plan update failed, rebuild needed", http.StatusInternalServerError)
		default:
			log.Errorf("complete workout: %s", err)
			http.Error(w, "failed to complete workout", http.StatusInternalServerError)
		}
		return
	}

	handler.loader.InvalidateWeek(handler.accountID, updated.WeekOfISO)
	writeJSON(w, completeWorkoutResponse{Plan: updated, Session: added}, http.StatusCreated)
}

type addTypeRequest struct {
	WeekOf   string   `json:"weekOf"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Goal     int      `json:"goal"`
}

// HandleAddType adds a workout type to the week's custom types and to the
// account catalog, so future weeks pick it up.
func (handler *Handler) HandleAddType(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.addType")
	defer span.End()

	var req addTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "type name is required", http.StatusBadRequest)
		return
	}
	if !req.Category.IsValid() {
		http.Error(w, "invalid category", http.StatusBadRequest)
		return
	}

	plan, err := handler.planForWeek(ctx, req.WeekOf)
	if err != nil {
		log.Errorf("add type, load plan: %s", err)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}

	plan.CustomTypes = append(plan.CustomTypes, req.Name)
	if req.Category != CategoryNone {
		plan.TypeCategories[req.Name] = req.Category
	}
	if req.Goal > 0 {
		plan.Benchmarks[req.Name] = req.Goal
	}
	plan = Normalize(plan)

	if err := handler.plans.Save(ctx, handler.accountID, plan); err != nil {
		log.Errorf("add type, save plan: %s", err)
		http.Error(w, "failed to save plan", http.StatusInternalServerError)
		return
	}

	if err := handler.addTypeToCatalog(ctx, req); err != nil {
		log.Errorf("add type, update catalog: %s", err)
	}

	handler.loader.InvalidateWeek(handler.accountID, plan.WeekOfISO)
	writeJSON(w, plan, http.StatusOK)
}

// HandleRemoveType removes a type from the week's custom types and catalog,
// pruning its stale checkbox and comment keys from every day. The benchmark
// entry goes too; only the stored session log still remembers the type.
func (handler *Handler) HandleRemoveType(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.removeType")
	defer span.End()

	name := strings.TrimSpace(mux.Vars(r)["name"])
	if name == "" {
		http.Error(w, "type name is required", http.StatusBadRequest)
		return
	}
	weekOf := r.URL.Query().Get("weekOf")

	plan, err := handler.planForWeek(ctx, weekOf)
	if err != nil {
		log.Errorf("remove type, load plan: %s", err)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}

	kept := make([]string, 0, len(plan.CustomTypes))
	for _, t := range plan.CustomTypes {
		if t != name {
			kept = append(kept, t)
		}
	}
	plan.CustomTypes = kept
	delete(plan.TypeCategories, name)
	delete(plan.Benchmarks, name)
	for i := range plan.Days {
		delete(plan.Days[i].Types, name)
		delete(plan.Days[i].Comments, name)
	}
	plan = Normalize(plan)

	if err := handler.plans.Save(ctx, handler.accountID, plan); err != nil {
		log.Errorf("remove type, save plan: %s", err)
		http.Error(w, "failed to save plan", http.StatusInternalServerError)
		return
	}

	if err := handler.removeTypeFromCatalog(ctx, name); err != nil {
		log.Errorf("remove type, update catalog: %s", err)
	}

	handler.loader.InvalidateWeek(handler.accountID, plan.WeekOfISO)
	writeJSON(w, plan, http.StatusOK)
}

type setBenchmarksRequest struct {
	WeekOf     string         `json:"weekOf"`
	Benchmarks map[string]int `json:"benchmarks"`
}

// HandleSetBenchmarks replaces the week's per-type goals.
func (handler *Handler) HandleSetBenchmarks(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.setBenchmarks")
	defer span.End()

	var req setBenchmarksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for t, goal := range req.Benchmarks {
		if goal < 0 {
			http.Error(w, fmt.Sprintf("negative goal for type %q", t), http.StatusBadRequest)
			return
		}
	}

	plan, err := handler.planForWeek(ctx, req.WeekOf)
	if err != nil {
		log.Errorf("set benchmarks, load plan: %s", err)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}

	plan.Benchmarks = req.Benchmarks
	plan = Normalize(plan)

	if err := handler.plans.Save(ctx, handler.accountID, plan); err != nil {
		log.Errorf("set benchmarks, save plan: %s", err)
		http.Error(w, "failed to save plan", http.StatusInternalServerError)
		return
	}

	handler.loader.InvalidateWeek(handler.accountID, plan.WeekOfISO)
	writeJSON(w, plan, http.StatusOK)
}

// HandleProgress returns the derived benchmark report for a week.
func (handler *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.weekly.progress")
	defer span.End()

	plan, err := handler.planForWeek(ctx, r.URL.Query().Get("weekOf"))
	if err != nil {
		log.Errorf("progress, load plan: %s", err)
		http.Error(w, "failed to load plan", http.StatusInternalServerError)
		return
	}

	writeJSON(w, Progress(plan), http.StatusOK)
}

// HandleGetCatalog returns the account-level workout types setup.
func (handler *Handler) HandleGetCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.settings.types.get")
	defer span.End()

	catalog, err := handler.catalog.Get(ctx, handler.accountID)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			writeJSON(w, TypesCatalog{}.Normalize(), http.StatusOK)
			return
		}
		log.Errorf("get types catalog: %s", err)
		http.Error(w, "failed to load types setup", http.StatusInternalServerError)
		return
	}

	writeJSON(w, catalog.Normalize(), http.StatusOK)
}

// HandleSaveCatalog replaces the account-level workout types setup.
func (handler *Handler) HandleSaveCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.settings.types.save")
	defer span.End()

	var catalog TypesCatalog
	if err := json.NewDecoder(r.Body).Decode(&catalog); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	for _, cat := range catalog.Categories {
		if !cat.IsValid() {
			http.Error(w, "invalid category", http.StatusBadRequest)
			return
		}
	}

	if err := handler.catalog.Save(ctx, handler.accountID, catalog); err != nil {
		log.Errorf("save types catalog: %s", err)
		http.Error(w, "failed to save types setup", http.StatusInternalServerError)
		return
	}

	writeJSON(w, catalog.Normalize(), http.StatusOK)
}

func (handler *Handler) addTypeToCatalog(ctx context.Context, req addTypeRequest) error {
	catalog, err := handler.catalog.Get(ctx, handler.accountID)
	if err != nil {
		if !errors.Is(err, ErrCatalogNotFound) {
			return err
		}
		catalog = &TypesCatalog{}
	}

	c := catalog.Normalize()
	c.Types = append(c.Types, req.Name)
	if req.Category != CategoryNone {
		c.Categories[req.Name] = req.Category
	}
	if req.Goal > 0 {
		c.Benchmarks[req.Name] = req.Goal
	}
	return handler.catalog.Save(ctx, handler.accountID, c)
}

func (handler *Handler) removeTypeFromCatalog(ctx context.Context, name string) error {
	catalog, err := handler.catalog.Get(ctx, handler.accountID)
	if err != nil {
		if errors.Is(err, ErrCatalogNotFound) {
			return nil
		}
		return err
	}

	c := catalog.Normalize()
	kept := make([]string, 0, len(c.Types))
	for _, t := range c.Types {
		if t != name {
			kept = append(kept, t)
		}
	}
	c.Types = kept
	delete(c.Categories, name)
	delete(c.Benchmarks, name)
	return handler.catalog.Save(ctx, handler.accountID, c)
}

func (handler *Handler) currentPlan(ctx context.Context) (WeeklyPlan, bool, error) {
	weekOf := WeekStartISO(handler.now())
	plan, err := handler.plans.Get(ctx, handler.accountID, weekOf)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			fresh := NewDefaultPlan(weekOf)
			if catalog, catErr := handler.catalog.Get(ctx, handler.accountID); catErr == nil {
				fresh = ApplyCatalog(fresh, *catalog)
			} else if !errors.Is(catErr, ErrCatalogNotFound) {
				log.Warnf("new week plan, types catalog unavailable: %s", catErr)
			}
			return fresh, true, nil
		}
		return WeeklyPlan{}, false, err
	}
	return Normalize(*plan), false, nil
}

func (handler *Handler) planForWeek(ctx context.Context, weekOf string) (WeeklyPlan, error) {
	if weekOf == "" {
		plan, _, err := handler.currentPlan(ctx)
		return plan, err
	}
	plan, err := handler.plans.Get(ctx, handler.accountID, weekOf)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return NewDefaultPlan(weekOf), nil
		}
		return WeeklyPlan{}, err
	}
	return Normalize(*plan), nil
}

func writeJSON(w http.ResponseWriter, payload any, statusCode int) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("marshal response: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, data, statusCode)
}
