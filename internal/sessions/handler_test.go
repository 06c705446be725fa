package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type refsCleanerMock struct {
	removed []string
	err     error
}

func (rc *refsCleanerMock) RemoveSessionRef(_ context.Context, _, dateISO, sessionID string) error {
	rc.removed = append(rc.removed, dateISO+"/"+sessionID)
	return rc.err
}

func newTestRouter(repo *RepoMock, refs *refsCleanerMock) *mux.Router {
	handler := NewHandler(repo, refs, "test-account")
	r := mux.NewRouter()
	r.HandleFunc("/sessions/list/page/{page}/size/{size}", handler.HandleList).Methods("GET")
	r.HandleFunc("/sessions/{id}", handler.HandleGet).Methods("GET")
	r.HandleFunc("/sessions/{id}", handler.HandleDelete).Methods("DELETE")
	return r
}

func addTestSessions(t *testing.T, repo *RepoMock, count int) []Session {
	t.Helper()
	added := make([]Session, 0, count)
	for i := 0; i < count; i++ {
		s, err := repo.Add(context.Background(), "test-account", Session{
			DateISO:      "2026-08-24",
			SessionName:  fmt.Sprintf("workout %d", i),
			SessionTypes: []string{"strength"},
			CompletedAt:  time.Date(2026, 8, 24, 10+i, 0, 0, 0, time.UTC),
			DurationSec:  3600,
		})
		require.NoError(t, err)
		added = append(added, *s)
	}
	return added
}

func TestHandler_List(t *testing.T) {
	repo := NewMockSessionsRepo()
	router := newTestRouter(repo, &refsCleanerMock{})
	addTestSessions(t, repo, 5)

	req := httptest.NewRequest("GET", "/sessions/list/page/1/size/3", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Total)
	require.Len(t, resp.Sessions, 3)
	// newest first
	assert.Equal(t, "workout 4", resp.Sessions[0].SessionName)
}

func TestHandler_List_invalidParams(t *testing.T) {
	repo := NewMockSessionsRepo()
	router := newTestRouter(repo, &refsCleanerMock{})

	for _, path := range []string{
		"/sessions/list/page/0/size/10",
		"/sessions/list/page/1/size/0",
		"/sessions/list/page/x/size/10",
	} {
		req := httptest.NewRequest("GET", path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestHandler_Get(t *testing.T) {
	repo := NewMockSessionsRepo()
	router := newTestRouter(repo, &refsCleanerMock{})
	added := addTestSessions(t, repo, 1)

	req := httptest.NewRequest("GET", "/sessions/"+added[0].ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, added[0].ID, got.ID)
	assert.Equal(t, "workout 0", got.SessionName)
}

func TestHandler_Get_notFound(t *testing.T) {
	repo := NewMockSessionsRepo()
	router := newTestRouter(repo, &refsCleanerMock{})

	req := httptest.NewRequest("GET", "/sessions/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandler_Delete(t *testing.T) {
	repo := NewMockSessionsRepo()
	refs := &refsCleanerMock{}
	router := newTestRouter(repo, refs)
	added := addTestSessions(t, repo, 1)

	req := httptest.NewRequest("DELETE", "/sessions/"+added[0].ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "deleted:"))

	_, err := repo.Get(context.Background(), "test-account", added[0].ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.Len(t, refs.removed, 1)
	assert.Equal(t, "2026-08-24/"+added[0].ID, refs.removed[0])
}

func TestHandler_Delete_refsCleanupFailureKeepsDelete(t *testing.T) {
	repo := NewMockSessionsRepo()
	refs := &refsCleanerMock{err: fmt.Errorf("plan store down")}
	router := newTestRouter(repo, refs)
	added := addTestSessions(t, repo, 1)

	req := httptest.NewRequest("DELETE", "/sessions/"+added[0].ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// ref cleanup is best effort, the delete itself stands
	require.Equal(t, http.StatusOK, rr.Code)
	_, err := repo.Get(context.Background(), "test-account", added[0].ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
