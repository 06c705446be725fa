package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RepoMock is an in-memory session log used in unit tests,
// and as a stand-in store in dev tooling.
type RepoMock struct {
	mu       sync.Mutex
	sessions map[string]*Session

	// failure injection
	FailAdd    error
	FailUpdate error
	FailDelete error
	FailList   error
}

func NewMockSessionsRepo() *RepoMock {
	return &RepoMock{
		sessions: make(map[string]*Session),
	}
}

func (r *RepoMock) Add(_ context.Context, _ string, session Session) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAdd != nil {
		return nil, r.FailAdd
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CompletedAt.IsZero() {
		session.CompletedAt = time.Now()
	}
	r.sessions[session.ID] = &session
	return &session, nil
}

func (r *RepoMock) Update(_ context.Context, _ string, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailUpdate != nil {
		return r.FailUpdate
	}
	if _, ok := r.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	r.sessions[session.ID] = &session
	return nil
}

func (r *RepoMock) Get(_ context.Context, _ string, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sCopy := *s
	return &sCopy, nil
}

func (r *RepoMock) Delete(_ context.Context, _ string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDelete != nil {
		return r.FailDelete
	}
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *RepoMock) ListByDate(_ context.Context, _ string, dateISO string) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailList != nil {
		return nil, r.FailList
	}
	sessions := make([]Session, 0)
	for _, s := range r.sessions {
		if s.DateISO == dateISO {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CompletedAt.Before(sessions[j].CompletedAt)
	})
	return sessions, nil
}

func (r *RepoMock) List(_ context.Context, _ string, params ListParams) ([]Session, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailList != nil {
		return nil, -1, r.FailList
	}
	all := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CompletedAt.After(all[j].CompletedAt)
	})

	total := len(all)
	start := (params.Page - 1) * params.Size
	if start >= total {
		return []Session{}, total, nil
	}
	end := start + params.Size
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *RepoMock) Count(_ context.Context, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), nil
}
