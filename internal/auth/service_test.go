package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_Login(t *testing.T) {
	db, mock := redismock.NewClientMock()

	service := NewService(time.Hour, db)
	require.NotNil(t, service)
	service.RandStringFunc = func(s int) (string, error) {
		return "test-token", nil
	}

	now := time.Now()
	sessionKey := sessionKeyPrefix + "test-token"
	mock.ExpectSet(sessionKey, now.Unix(), 0).SetVal("OK")
	mock.ExpectSAdd(tokensSetKey, "test-token").SetVal(1)

	token, err := service.Login(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Logout(t *testing.T) {
	db, mock := redismock.NewClientMock()

	service := NewService(time.Hour, db)
	require.NotNil(t, service)

	now := time.Now()
	sessionKey := sessionKeyPrefix + "test-token"
	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("%d", now.Unix()))
	mock.ExpectSet(sessionKey, 0, 0).SetVal("OK")
	mock.ExpectSRem(tokensSetKey, "test-token").SetVal(1)

	loggedOut, err := service.Logout(context.Background(), "test-token")
	require.NoError(t, err)
	assert.True(t, loggedOut)
	assert.NoError(t, mock.ExpectationsWereMet())
}
