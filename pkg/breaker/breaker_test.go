package breaker_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookden/library-service/pkg/breaker"
)

func TestCircuitBreaker_Call(t *testing.T) {
	okService := func() error { return nil }
	failingService := func() error { return errors.New("service error") }

	cb := breaker.New(10, 50*time.Millisecond, 0.30, 3)

	for i := 0; i < 20; i++ {
		require.NoError(t, cb.Call(okService))
	}

	// push the failure share over the percentile: breaker must trip
	for i := 0; i < 10; i++ {
		_ = cb.Call(failingService)
	}
	require.ErrorIs(t, cb.Call(okService), breaker.ErrOpen)

	// after the timeout the breaker probes in half-open and recovers
	time.Sleep(80 * time.Millisecond)
	cb.Reset()
	for i := 0; i < 5; i++ {
		require.NoError(t, cb.Call(okService))
	}
}

func TestCircuitBreaker_HalfOpenReopens(t *testing.T) {
	failingService := func() error { return errors.New("service error") }

	cb := breaker.New(4, 30*time.Millisecond, 0.5, 2)

	for i := 0; i < 4; i++ {
		_ = cb.Call(failingService)
	}
	require.ErrorIs(t, cb.Call(failingService), breaker.ErrOpen)

	time.Sleep(50 * time.Millisecond)
	// first probe call passes through and fails: back to open
	err := cb.Call(failingService)
	require.Error(t, err)
	require.NotErrorIs(t, err, breaker.ErrOpen)
	require.ErrorIs(t, cb.Call(failingService), breaker.ErrOpen)
}
