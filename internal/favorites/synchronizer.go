package favorites

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fco71/myworkoutapp/internal/telemetry/metrics"
	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
)

type favoritesStore interface {
	Add(ctx context.Context, accountID string, f Favorite) error
	Remove(ctx context.Context, accountID, itemType, itemID string) error
	List(ctx context.Context, accountID string) ([]Favorite, error)
}

// ToggleState reports what a toggle did.
type ToggleState string

const (
	ToggleCommitted  ToggleState = "committed"
	ToggleRolledBack ToggleState = "rolledBack"
	ToggleInFlight   ToggleState = "inFlight"
)

// Synchronizer applies favorite toggles optimistically: the shared view
// flips first, then the store write follows. A failed write rolls the view
// back. While a key's write is in flight, further toggles of the same key
// are no-ops, so button mashing settles on one state.
type Synchronizer struct {
	store   favoritesStore
	cache   *Cache
	events  publisher
	metrics *metrics.Manager

	mu       sync.Mutex
	inFlight map[string]bool
}

type publisher interface {
	PublishUpdate(ctx context.Context, accountID string) error
}

func NewSynchronizer(store favoritesStore, cache *Cache, events publisher, m *metrics.Manager) *Synchronizer {
	return &Synchronizer{
		store:    store,
		cache:    cache,
		events:   events,
		metrics:  m,
		inFlight: make(map[string]bool),
	}
}

// Toggle flips one favorite on or off and reports how the toggle settled.
func (s *Synchronizer) Toggle(ctx context.Context, accountID string, f Favorite) (_ ToggleState, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "favorites.toggle")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err = f.Validate(); err != nil {
		return ToggleRolledBack, err
	}

	key := f.Key()
	if !s.markInFlight(key) {
		return ToggleInFlight, nil
	}
	defer s.clearInFlight(key)

	if s.metrics != nil {
		s.metrics.CounterFavoriteToggles.Inc()
	}

	if s.cache.Has(key) {
		return s.remove(ctx, accountID, f)
	}
	return s.add(ctx, accountID, f)
}

func (s *Synchronizer) add(ctx context.Context, accountID string, f Favorite) (ToggleState, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.cache.Put(f)

	if err := s.store.Add(ctx, accountID, f); err != nil {
		s.cache.Drop(f.Key())
		if s.metrics != nil {
			s.metrics.CounterFavoriteRollbacks.Inc()
		}
		return ToggleRolledBack, fmt.Errorf("persist favorite %s: %w", f.Key(), err)
	}

	s.publish(ctx, accountID)
	return ToggleCommitted, nil
}

func (s *Synchronizer) remove(ctx context.Context, accountID string, f Favorite) (ToggleState, error) {
	s.cache.Drop(f.Key())

	if err := s.store.Remove(ctx, accountID, f.ItemType, f.ItemID); err != nil {
		s.cache.Put(f)
		if s.metrics != nil {
			s.metrics.CounterFavoriteRollbacks.Inc()
		}
		return ToggleRolledBack, fmt.Errorf("unpersist favorite %s: %w", f.Key(), err)
	}

	s.publish(ctx, accountID)
	return ToggleCommitted, nil
}

// Reload replaces the shared view from the store, used at startup and on
// remote update notifications.
func (s *Synchronizer) Reload(ctx context.Context, accountID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "favorites.reload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	favorites, err := s.store.List(ctx, accountID)
	if err != nil {
		return fmt.Errorf("reload favorites: %w", err)
	}
	s.cache.ReplaceAll(favorites)
	return nil
}

func (s *Synchronizer) publish(ctx context.Context, accountID string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishUpdate(ctx, accountID); err != nil {
		log.Warnf("favorites: publish update: %s", err)
	}
}

func (s *Synchronizer) markInFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	return true
}

func (s *Synchronizer) clearInFlight(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}
