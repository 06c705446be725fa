package favorites

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fco71/myworkoutapp/internal/telemetry/metrics"
)

const testAccount = "test-account"

type publisherMock struct {
	mu        sync.Mutex
	published int
	err       error
}

func (p *publisherMock) PublishUpdate(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published++
	return p.err
}

func (p *publisherMock) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

func newTestSynchronizer() (*Synchronizer, *RepoMock, *Cache, *publisherMock) {
	repo := NewMockFavoritesRepo()
	cache := NewCache()
	events := &publisherMock{}
	s := NewSynchronizer(repo, cache, events, metrics.NewTestManager())
	return s, repo, cache, events
}

func TestToggle_onAndOff(t *testing.T) {
	s, repo, cache, events := newTestSynchronizer()
	f := Favorite{ItemType: ItemTypeExercise, ItemID: "strength"}

	state, err := s.Toggle(context.Background(), testAccount, f)
	require.NoError(t, err)
	assert.Equal(t, ToggleCommitted, state)
	assert.True(t, cache.Has("exercise::strength"))

	stored, err := repo.List(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 1, events.count())
	// the persisted timestamp is the one the optimistic entry carries
	assert.Equal(t, cache.Snapshot()[0].CreatedAt, stored[0].CreatedAt)

	state, err = s.Toggle(context.Background(), testAccount, f)
	require.NoError(t, err)
	assert.Equal(t, ToggleCommitted, state)
	assert.False(t, cache.Has("exercise::strength"))

	stored, err = repo.List(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, 2, events.count())
}

func TestToggle_addFailureRollsBack(t *testing.T) {
	s, repo, cache, events := newTestSynchronizer()
	repo.FailAdd = errors.New("store down")

	state, err := s.Toggle(context.Background(), testAccount, Favorite{ItemType: ItemTypeExercise, ItemID: "strength"})
	require.Error(t, err)
	assert.Equal(t, ToggleRolledBack, state)
	// the optimistic flip was undone
	assert.False(t, cache.Has("exercise::strength"))
	assert.Equal(t, 0, events.count())
}

func TestToggle_removeFailureRollsBack(t *testing.T) {
	s, repo, cache, _ := newTestSynchronizer()
	f := Favorite{ItemType: ItemTypeExercise, ItemID: "strength"}

	_, err := s.Toggle(context.Background(), testAccount, f)
	require.NoError(t, err)

	repo.FailRemove = errors.New("store down")
	state, err := s.Toggle(context.Background(), testAccount, f)
	require.Error(t, err)
	assert.Equal(t, ToggleRolledBack, state)
	// still favorited, the removal never took
	assert.True(t, cache.Has("exercise::strength"))
}

func TestToggle_inFlightKeyIsNoop(t *testing.T) {
	s, _, _, _ := newTestSynchronizer()
	f := Favorite{ItemType: ItemTypeExercise, ItemID: "strength"}

	s.mu.Lock()
	s.inFlight[f.Key()] = true
	s.mu.Unlock()

	state, err := s.Toggle(context.Background(), testAccount, f)
	require.NoError(t, err)
	assert.Equal(t, ToggleInFlight, state)
}

func TestToggle_validation(t *testing.T) {
	s, _, _, _ := newTestSynchronizer()
	_, err := s.Toggle(context.Background(), testAccount, Favorite{ItemType: "", ItemID: "x"})
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	s, repo, cache, _ := newTestSynchronizer()
	require.NoError(t, repo.Add(context.Background(), testAccount, Favorite{ItemType: ItemTypeExercise, ItemID: "yoga"}))

	// a stale optimistic entry the store does not back
	cache.Put(Favorite{ItemType: ItemTypeExercise, ItemID: "ghost"})

	require.NoError(t, s.Reload(context.Background(), testAccount))
	assert.True(t, cache.Has("exercise::yoga"))
	assert.False(t, cache.Has("exercise::ghost"))
}
