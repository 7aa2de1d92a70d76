package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func TestScanThrottle_AllowsUnderLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	throttle := NewScanThrottle(db, 30, time.Minute)

	mock.ExpectIncr("scanlimit:10.0.0.1").SetVal(1)
	mock.ExpectExpire("scanlimit:10.0.0.1", time.Minute).SetVal(true)

	allowed := throttle.Allow(context.Background(), "10.0.0.1")

	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanThrottle_ExpiresOnlyOnFirstHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	throttle := NewScanThrottle(db, 30, time.Minute)

	mock.ExpectIncr("scanlimit:10.0.0.1").SetVal(5)

	allowed := throttle.Allow(context.Background(), "10.0.0.1")

	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanThrottle_RejectsOverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	throttle := NewScanThrottle(db, 30, time.Minute)

	mock.ExpectIncr("scanlimit:10.0.0.1").SetVal(31)

	allowed := throttle.Allow(context.Background(), "10.0.0.1")

	assert.False(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanThrottle_DropsCounterWhenExpireFails(t *testing.T) {
	db, mock := redismock.NewClientMock()
	throttle := NewScanThrottle(db, 30, time.Minute)

	mock.ExpectIncr("scanlimit:10.0.0.1").SetVal(1)
	mock.ExpectExpire("scanlimit:10.0.0.1", time.Minute).SetErr(errors.New("connection refused"))
	mock.ExpectDel("scanlimit:10.0.0.1").SetVal(1)

	allowed := throttle.Allow(context.Background(), "10.0.0.1")

	assert.True(t, allowed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanThrottle_FailsOpenOnRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	throttle := NewScanThrottle(db, 30, time.Minute)

	mock.ExpectIncr("scanlimit:10.0.0.1").SetErr(errors.New("connection refused"))

	allowed := throttle.Allow(context.Background(), "10.0.0.1")

	assert.True(t, allowed)
}
