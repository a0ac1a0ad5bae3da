package resilience

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceBreaker_PassesThroughWhileClosed(t *testing.T) {
	b := NewServiceBreaker("mkcert")

	calls := 0
	err := b.Execute(func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "closed", b.State())
	assert.False(t, b.IsOpen())
}

func TestServiceBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewServiceBreaker("mkcert", WithFailureThreshold(3))

	calls := 0
	failing := func() error {
		calls++
		return fmt.Errorf("tool is broken")
	}

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(failing))
	}
	assert.True(t, b.IsOpen())

	// While open, the operation itself is never invoked.
	err := b.Execute(failing)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestServiceBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewServiceBreaker("mkcert", WithFailureThreshold(2))

	fail := func() error { return fmt.Errorf("flaky") }
	ok := func() error { return nil }

	require.Error(t, b.Execute(fail))
	require.NoError(t, b.Execute(ok))
	require.Error(t, b.Execute(fail))

	assert.False(t, b.IsOpen(), "non-consecutive failures must not trip the breaker")
}

func TestServiceBreaker_ReportsStateTransitions(t *testing.T) {
	var transitions []string
	b := NewServiceBreaker("mkcert",
		WithFailureThreshold(1),
		WithOnStateChange(func(name, from, to string) {
			transitions = append(transitions, from+"->"+to)
		}),
	)

	require.Error(t, b.Execute(func() error { return fmt.Errorf("boom") }))
	assert.Equal(t, []string{"closed->open"}, transitions)
	assert.Equal(t, "mkcert", b.Name())
}
