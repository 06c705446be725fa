package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fco71/myworkoutapp/pkg"
)

func newTestAuthHandler(t *testing.T, mockSetup func(redismock.ClientMock)) *Handler {
	t.Helper()

	db, mock := redismock.NewClientMock()
	if mockSetup != nil {
		mockSetup(mock)
	}

	service := NewService(time.Hour, db)
	service.RandStringFunc = func(s int) (string, error) {
		return "test-token", nil
	}

	passwordHash, err := pkg.HashPassword("test-pass")
	require.NoError(t, err)

	return NewHandler(&Admin{
		Username:     "admin",
		PasswordHash: passwordHash,
	}, service, "test-version")
}

func TestHandler_Login(t *testing.T) {
	handler := newTestAuthHandler(t, func(mock redismock.ClientMock) {
		mock.Regexp().ExpectSet(sessionKeyPrefix+"test-token", `\d+`, 0).SetVal("OK")
		mock.ExpectSAdd(tokensSetKey, "test-token").SetVal(1)
	})

	req := httptest.NewRequest("POST", "/a/login",
		strings.NewReader(`{"username": "admin", "password": "test-pass"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.HandleLogin(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "test-token", resp.Token)
}

func TestHandler_Login_form(t *testing.T) {
	handler := newTestAuthHandler(t, func(mock redismock.ClientMock) {
		mock.Regexp().ExpectSet(sessionKeyPrefix+"test-token", `\d+`, 0).SetVal("OK")
		mock.ExpectSAdd(tokensSetKey, "test-token").SetVal(1)
	})

	req := httptest.NewRequest("POST", "/a/login",
		strings.NewReader("username=admin&password=test-pass"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.HandleLogin(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandler_Login_wrongCredentials(t *testing.T) {
	cases := []string{
		`{"username": "admin", "password": "wrong"}`,
		`{"username": "intruder", "password": "test-pass"}`,
		`{"username": "", "password": "test-pass"}`,
		`{"username": "admin", "password": ""}`,
	}
	for _, body := range cases {
		handler := newTestAuthHandler(t, nil)
		req := httptest.NewRequest("POST", "/a/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		handler.HandleLogin(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestHandler_Logout(t *testing.T) {
	handler := newTestAuthHandler(t, func(mock redismock.ClientMock) {
		mock.ExpectGet(sessionKeyPrefix + "test-token").SetVal("1700000000")
		mock.ExpectSet(sessionKeyPrefix+"test-token", 0, 0).SetVal("OK")
		mock.ExpectSRem(tokensSetKey, "test-token").SetVal(1)
	})

	req := httptest.NewRequest("GET", "/a/logout", nil)
	req.Header.Set("X-WORKOUT-TOKEN", "test-token")
	rr := httptest.NewRecorder()
	handler.HandleLogout(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "logged-out", rr.Body.String())
}

func TestHandler_Logout_noToken(t *testing.T) {
	handler := newTestAuthHandler(t, nil)

	req := httptest.NewRequest("GET", "/a/logout", nil)
	rr := httptest.NewRecorder()
	handler.HandleLogout(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandler_VersionInfo(t *testing.T) {
	handler := newTestAuthHandler(t, nil)

	req := httptest.NewRequest("GET", "/version", nil)
	rr := httptest.NewRecorder()
	handler.HandleGetVersionInfo(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "test-version", rr.Body.String())
}
