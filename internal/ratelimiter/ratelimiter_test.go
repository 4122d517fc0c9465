package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		enabled   bool
	}{
		{"ZeroRateIsUnlimited", 0, 10, false},
		{"NegativeRateIsUnlimited", -1, 10, false},
		{"Limited", 100, 10, true},
		{"ZeroBurstRaised", 100, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.perSecond, tt.burst)
			assert.Equal(t, tt.enabled, l.Enabled())
		})
	}
}

func TestNilLimiterNeverThrottles(t *testing.T) {
	var l *Limiter

	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Zero(t, l.Delay())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestBurstThenThrottle(t *testing.T) {
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		assert.Zero(t, l.Delay(), "token %d should be available from the burst", i)
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Greater(t, l.Delay(), time.Duration(0))
}

func TestWaitDelaysInsteadOfDropping(t *testing.T) {
	l := New(50, 1)
	require.NoError(t, l.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitHonoursContext(t *testing.T) {
	l := New(0.001, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

func TestDelayDoesNotConsume(t *testing.T) {
	l := New(1, 1)
	assert.Zero(t, l.Delay())
	assert.Zero(t, l.Delay())

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Greater(t, l.Delay(), time.Duration(0))
}
