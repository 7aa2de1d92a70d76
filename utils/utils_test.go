package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Random code tests

func TestGenerateCode_LengthAndCharset(t *testing.T) {
	code, err := GenerateCode(2)

	require.NoError(t, err)
	assert.Len(t, code, 4)
	assert.Regexp(t, `^[0-9A-F]+$`, code)
}

func TestGenerateCode_Varies(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(4)
		require.NoError(t, err)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

// Breaker tests

func TestBreaker_NewBreaker(t *testing.T) {
	b := NewBreaker("test")

	assert.Equal(t, "test", b.name)
	assert.Equal(t, 60*time.Second, b.interval)
	assert.Equal(t, 60*time.Second, b.cooldown)
	assert.Equal(t, uint32(5), b.minRequests)
	assert.Equal(t, 0.6, b.failureRatio)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	b := NewBreaker("test")

	err := b.Do(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_ReturnsUnderlyingError(t *testing.T) {
	b := NewBreaker("test")
	wantErr := errors.New("smtp down")

	err := b.Do(func() error { return wantErr })

	assert.Equal(t, wantErr, err)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_OpensAfterFailureRatio(t *testing.T) {
	b := NewBreaker("test")
	b.minRequests = 3

	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return errors.New("smtp down") })
	}

	assert.Equal(t, BreakerOpen, b.State())

	err := b.Do(func() error {
		t.Fatal("call must not pass through an open breaker")
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	b := NewBreaker("test")
	b.minRequests = 1
	b.cooldown = 10 * time.Millisecond

	_ = b.Do(func() error { return errors.New("smtp down") })
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, BreakerHalfOpen, b.State())

	err := b.Do(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := NewBreaker("test")
	b.minRequests = 1
	b.cooldown = 10 * time.Millisecond

	_ = b.Do(func() error { return errors.New("smtp down") })
	require.Equal(t, BreakerOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	err := b.Do(func() error { return errors.New("still down") })

	assert.Error(t, err)
	assert.Equal(t, BreakerOpen, b.State())
}
