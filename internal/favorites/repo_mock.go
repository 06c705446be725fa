package favorites

import (
	"context"
	"sort"
	"sync"
	"time"
)

// RepoMock is an in-memory favorites store used in unit tests.
type RepoMock struct {
	mu    sync.Mutex
	items map[string]Favorite

	FailAdd    error
	FailRemove error
	FailList   error
}

func NewMockFavoritesRepo() *RepoMock {
	return &RepoMock{items: make(map[string]Favorite)}
}

func (r *RepoMock) Add(_ context.Context, _ string, f Favorite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAdd != nil {
		return r.FailAdd
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if _, exists := r.items[f.Key()]; exists {
		return nil
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	r.items[f.Key()] = f
	return nil
}

func (r *RepoMock) Remove(_ context.Context, _ string, itemType, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailRemove != nil {
		return r.FailRemove
	}
	key := Favorite{ItemType: itemType, ItemID: itemID}.Key()
	if _, exists := r.items[key]; !exists {
		return ErrFavoriteNotFound
	}
	delete(r.items, key)
	return nil
}

func (r *RepoMock) List(_ context.Context, _ string) ([]Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailList != nil {
		return nil, r.FailList
	}
	out := make([]Favorite, 0, len(r.items))
	for _, f := range r.items {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key() < out[j].Key()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
