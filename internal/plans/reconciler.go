package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/fco71/myworkoutapp/internal/sessions"
	"github.com/fco71/myworkoutapp/internal/telemetry/metrics"
	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
)

var (
	ErrAlreadyProcessed = errors.New("workout completion already processed")
	ErrDayNotFound      = errors.New("day not found in plan")
	// ErrPartialPersist marks mutations where the plan document and the
	// session log ended up out of sync. The rebuild path repairs these.
	ErrPartialPersist = errors.New("partial persist failure")
)

type sessionLog interface {
	Add(ctx context.Context, accountID string, s sessions.Session) (*sessions.Session, error)
	Update(ctx context.Context, accountID string, s sessions.Session) error
	Delete(ctx context.Context, accountID, id string) error
	ListByDate(ctx context.Context, accountID, dateISO string) ([]sessions.Session, error)
}

type planStore interface {
	Get(ctx context.Context, accountID, weekOfISO string) (*WeeklyPlan, error)
	Save(ctx context.Context, accountID string, plan WeeklyPlan) error
}

// Reconciler keeps the weekly checkbox grid and the session log consistent.
// Every mutation goes through it so the two stores never drift silently.
type Reconciler struct {
	plans   planStore
	log     sessionLog
	metrics *metrics.Manager

	// completedIDs guards against double submission of the same workout
	// from rapid UI triggers. Process-wide, reset on restart.
	mu           sync.Mutex
	completedIDs map[string]struct{}
}

func NewReconciler(plans planStore, sessionLog sessionLog, m *metrics.Manager) *Reconciler {
	return &Reconciler{
		plans:        plans,
		log:          sessionLog,
		metrics:      m,
		completedIDs: make(map[string]struct{}),
	}
}

// ToggleType flips one checkbox and reconciles the day's placeholder session:
// checked types and no real session means exactly one placeholder mirroring
// the checked set; an empty checked set removes it. Days with a real session
// never get their session log touched by checkbox edits.
func (r *Reconciler) ToggleType(
	ctx context.Context, accountID string, plan WeeklyPlan, dayIndex int, typeName string,
) (_ WeeklyPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "reconciler.toggleType")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	typeName = strings.TrimSpace(typeName)
	if typeName == "" {
		return plan, fmt.Errorf("%w: empty type name", ErrValidation)
	}

	plan = Normalize(plan)
	if dayIndex < 0 || dayIndex >= len(plan.Days) {
		return plan, fmt.Errorf("%w: day index %d", ErrDayNotFound, dayIndex)
	}

	day := &plan.Days[dayIndex]
	day.Types[typeName] = !day.Types[typeName]
	if r.metrics != nil {
		r.metrics.CounterTypeToggles.Inc()
	}

	var sessionErr error
	if day.RealSessionRef() == nil {
		sessionErr = r.reconcilePlaceholder(ctx, accountID, &plan, dayIndex)
	}
	day.Sessions = len(day.SessionsList)

	planErr := r.plans.Save(ctx, accountID, plan)
	if err := r.combinePersistErrors(sessionErr, planErr); err != nil {
		return plan, err
	}
	return plan, nil
}

func (r *Reconciler) reconcilePlaceholder(
	ctx context.Context, accountID string, plan *WeeklyPlan, dayIndex int,
) error {
	day := &plan.Days[dayIndex]
	checked := plan.CheckedTypes(dayIndex)
	placeholders := day.PlaceholderRefs()

	if len(checked) == 0 {
		var errs error
		for _, ref := range placeholders {
			if err := r.log.Delete(ctx, accountID, ref.ID); err != nil &&
				!errors.Is(err, sessions.ErrSessionNotFound) {
				errs = multierr.Append(errs, fmt.Errorf("delete placeholder %s: %w", ref.ID, err))
			}
		}
		if errs == nil {
			day.SessionsList = []SessionRef{}
		}
		return errs
	}

	if len(placeholders) > 0 {
		ref := placeholders[0]
		err := r.log.Update(ctx, accountID, sessions.Session{
			ID:           ref.ID,
			DateISO:      day.DateISO,
			SessionName:  "Manual",
			SessionTypes: checked,
			Manual:       true,
		})
		if err != nil {
			return fmt.Errorf("update placeholder %s: %w", ref.ID, err)
		}
		for i := range day.SessionsList {
			if day.SessionsList[i].ID == ref.ID {
				day.SessionsList[i].SessionTypes = checked
			}
		}
		return nil
	}

	added, err := r.log.Add(ctx, accountID, sessions.Session{
		ID:           sessions.NewManualID(),
		DateISO:      day.DateISO,
		SessionName:  "Manual",
		SessionTypes: checked,
		Manual:       true,
		CompletedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("add placeholder: %w", err)
	}
	day.SessionsList = append(day.SessionsList, SessionRef{
		ID:           added.ID,
		Placeholder:  true,
		SessionTypes: checked,
	})
	if r.metrics != nil {
		r.metrics.CounterPlaceholdersCreated.Inc()
	}
	return nil
}

// CompleteWorkout records a finished workout: persists the session as a real
// log entry, then unions its types into the day's checkboxes and appends a
// real ref. A repeated submission of the same session id is rejected.
func (r *Reconciler) CompleteWorkout(
	ctx context.Context, accountID string, plan WeeklyPlan, s sessions.Session,
) (_ WeeklyPlan, _ *sessions.Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "reconciler.completeWorkout")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	// A completed workout is never a placeholder; refuse to reuse a
	// placeholder id so the log entry survives later checkbox edits.
	if s.ID == "" || sessions.IsManualID(s.ID) {
		if s.ID != "" {
			log.Warnf("complete workout: discarding placeholder id %s", s.ID)
		}
		s.ID = uuid.NewString()
	}
	s.Manual = false
	if s.CompletedAt.IsZero() {
		s.CompletedAt = time.Now()
	}
	if s.DateISO == "" {
		s.DateISO = s.CompletedAt.UTC().Format(DateLayout)
	}

	if !r.markCompleted(s.ID) {
		return plan, nil, ErrAlreadyProcessed
	}

	added, err := r.log.Add(ctx, accountID, s)
	if err != nil {
		r.unmarkCompleted(s.ID)
		return plan, nil, fmt.Errorf("persist session: %w", err)
	}
	if r.metrics != nil {
		r.metrics.CounterWorkoutsCompleted.Inc()
	}

	plan = Normalize(plan)
	dayIndex := plan.DayIndex(added.DateISO)
	if dayIndex < 0 {
		log.Warnf(
			"complete workout: session %s date %s not in plan week %s, plan left unchanged",
			added.ID, added.DateISO, plan.WeekOfISO,
		)
		return plan, added, nil
	}

	day := &plan.Days[dayIndex]
	for _, t := range added.SessionTypes {
		day.Types[t] = true
	}
	day.SessionsList = append(day.SessionsList, SessionRef{
		ID:           added.ID,
		SessionTypes: append([]string(nil), added.SessionTypes...),
	})
	day.SessionsList = dedupRefs(day.SessionsList)
	day.Sessions = len(day.SessionsList)

	if planErr := r.plans.Save(ctx, accountID, plan); planErr != nil {
		return plan, added, r.combinePersistErrors(nil, planErr)
	}
	return plan, added, nil
}

// RebuildSessionsList rederives every day's refs from the session log, the
// source of truth. The checkbox grid is left untouched.
func (r *Reconciler) RebuildSessionsList(
	ctx context.Context, accountID string, plan WeeklyPlan,
) (_ WeeklyPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "reconciler.rebuildSessionsList")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	plan = Normalize(plan)
	for i := range plan.Days {
		day := &plan.Days[i]
		logged, err := r.log.ListByDate(ctx, accountID, day.DateISO)
		if err != nil {
			return plan, fmt.Errorf("list sessions for %s: %w", day.DateISO, err)
		}
		refs := make([]SessionRef, 0, len(logged))
		for _, s := range logged {
			refs = append(refs, SessionRef{
				ID:           s.ID,
				Placeholder:  s.Manual,
				SessionTypes: append([]string(nil), s.SessionTypes...),
			})
		}
		day.SessionsList = dedupRefs(refs)
		day.Sessions = len(day.SessionsList)
	}
	return plan, nil
}

// RemoveSessionRef drops a deleted session's ref from the plan covering its
// date. A missing plan or ref is not an error.
func (r *Reconciler) RemoveSessionRef(
	ctx context.Context, accountID, dateISO, sessionID string,
) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "reconciler.removeSessionRef")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	date, err := time.Parse(DateLayout, dateISO)
	if err != nil {
		return fmt.Errorf("parse session date %q: %w", dateISO, err)
	}

	plan, err := r.plans.Get(ctx, accountID, WeekStartISO(date))
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil
		}
		return fmt.Errorf("get plan for session date %s: %w", dateISO, err)
	}

	p := Normalize(*plan)
	dayIndex := p.DayIndex(dateISO)
	if dayIndex < 0 {
		return nil
	}

	day := &p.Days[dayIndex]
	kept := make([]SessionRef, 0, len(day.SessionsList))
	for _, ref := range day.SessionsList {
		if ref.ID != sessionID {
			kept = append(kept, ref)
		}
	}
	if len(kept) == len(day.SessionsList) {
		return nil
	}
	day.SessionsList = kept
	day.Sessions = len(kept)

	return r.plans.Save(ctx, accountID, p)
}

func (r *Reconciler) markCompleted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.completedIDs[id]; seen {
		return false
	}
	r.completedIDs[id] = struct{}{}
	return true
}

func (r *Reconciler) unmarkCompleted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.completedIDs, id)
}

func (r *Reconciler) combinePersistErrors(sessionErr, planErr error) error {
	if sessionErr == nil && planErr == nil {
		return nil
	}
	if sessionErr != nil && planErr != nil {
		return multierr.Append(sessionErr, planErr)
	}
	if r.metrics != nil {
		r.metrics.CounterPartialPersists.Inc()
	}
	return fmt.Errorf("%w: %s", ErrPartialPersist, multierr.Combine(sessionErr, planErr))
}
