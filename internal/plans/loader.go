package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"

	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
)

const (
	loaderCacheSize     = 10 * 1024 * 1024
	loaderCacheTTLSecs  = 60
	loaderCacheKeyScope = "plans"
)

// History is the current week plus the stored prior weeks, newest first.
type History struct {
	Current  WeeklyPlan   `json:"current"`
	Previous []WeeklyPlan `json:"previous"`
}

// Loader assembles the weekly history view. Prior weeks are immutable in
// practice, so they go through a short-lived read cache; the current week
// is always read fresh.
type Loader struct {
	plans planStore
	cache *freecache.Cache
}

func NewLoader(plans planStore) *Loader {
	return &Loader{
		plans: plans,
		cache: freecache.NewCache(loaderCacheSize),
	}
}

// LoadHistory loads the current week (a fresh default if none is stored yet)
// and up to lookback prior stored weeks. Missing prior weeks are skipped, so
// gaps in usage never produce empty filler plans. Week numbers are relabeled
// on every load: with N loaded prior weeks the current week is N+1 and the
// i-th week back is N+1-i.
func (l *Loader) LoadHistory(
	ctx context.Context, accountID, currentWeekOfISO string, lookback int,
) (_ *History, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "loader.loadHistory")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if lookback < 0 {
		lookback = 0
	}

	current, err := l.loadOrDefault(ctx, accountID, currentWeekOfISO)
	if err != nil {
		return nil, err
	}

	previous := make([]WeeklyPlan, 0, lookback)
	for i := 1; i <= lookback; i++ {
		weekOf, err := AddDaysISO(currentWeekOfISO, -7*i)
		if err != nil {
			return nil, err
		}
		plan, err := l.loadPrior(ctx, accountID, weekOf)
		if err != nil {
			if errors.Is(err, ErrPlanNotFound) {
				continue
			}
			return nil, fmt.Errorf("load prior week %s: %w", weekOf, err)
		}
		previous = append(previous, *plan)
	}

	sort.Slice(previous, func(i, j int) bool {
		return previous[i].WeekOfISO > previous[j].WeekOfISO
	})

	current.WeekNumber = len(previous) + 1
	for i := range previous {
		previous[i].WeekNumber = len(previous) - i
	}

	return &History{Current: current, Previous: previous}, nil
}

func (l *Loader) loadOrDefault(ctx context.Context, accountID, weekOfISO string) (WeeklyPlan, error) {
	plan, err := l.plans.Get(ctx, accountID, weekOfISO)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return NewDefaultPlan(weekOfISO), nil
		}
		return WeeklyPlan{}, fmt.Errorf("load current week %s: %w", weekOfISO, err)
	}
	return Normalize(*plan), nil
}

func (l *Loader) loadPrior(ctx context.Context, accountID, weekOfISO string) (*WeeklyPlan, error) {
	cacheKey := []byte(loaderCacheKeyScope + "::" + accountID + "::" + weekOfISO)
	if cached, err := l.cache.Get(cacheKey); err == nil {
		var plan WeeklyPlan
		if err := json.Unmarshal(cached, &plan); err == nil {
			return &plan, nil
		}
		log.Warnf("loader: dropping undecodable cache entry for week %s", weekOfISO)
		l.cache.Del(cacheKey)
	}

	plan, err := l.plans.Get(ctx, accountID, weekOfISO)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(*plan)
	if doc, err := json.Marshal(normalized); err == nil {
		if err := l.cache.Set(cacheKey, doc, loaderCacheTTLSecs); err != nil {
			log.Debugf("loader: cache set for week %s: %s", weekOfISO, err)
		}
	}
	return &normalized, nil
}

// InvalidateWeek drops a week from the prior-weeks cache after a mutation.
func (l *Loader) InvalidateWeek(accountID, weekOfISO string) {
	l.cache.Del([]byte(loaderCacheKeyScope + "::" + accountID + "::" + weekOfISO))
}
