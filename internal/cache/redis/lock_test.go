package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cricbot/internal/domain"
)

func TestLockManager_AcquireHeld(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lm := NewLockManager(Wrap(db, "cricbot:"))
	lm.newToken = func() string { return "tok-1" }

	mock.ExpectSetNX("cricbot:lock:ledger", "tok-1", 30*time.Second).SetVal(false)

	unlock, err := lm.Acquire(context.Background(), "ledger", 30*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Nil(t, unlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockManager_AcquireError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lm := NewLockManager(Wrap(db, ""))
	lm.newToken = func() string { return "tok-1" }

	mock.ExpectSetNX("lock:ledger", "tok-1", time.Second).SetErr(assert.AnError)

	_, err := lm.Acquire(context.Background(), "ledger", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLockManager_Acquired(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lm := NewLockManager(Wrap(db, "cricbot:"))
	lm.newToken = func() string { return "tok-2" }

	mock.ExpectSetNX("cricbot:lock:ledger", "tok-2", 30*time.Second).SetVal(true)

	unlock, err := lm.Acquire(context.Background(), "ledger", 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, unlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}
