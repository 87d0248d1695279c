package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(now *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})
	cb.now = func() time.Time { return *now }
	return cb
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	cb := newTestBreaker(&now)

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	cb := newTestBreaker(&now)
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, cb.GetState())

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	cb := newTestBreaker(&now)
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(Config{
		FailureThreshold: 1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, []string{"closed->open"}, transitions)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}
