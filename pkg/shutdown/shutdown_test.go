package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/keeper/pkg/retry"
)

func TestManager_RunsHandlersInOrder(t *testing.T) {
	m := NewManager(nil)
	var order []string
	m.OnShutdown("first", retry.Times(1, 0), func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.OnShutdown("second", retry.Times(1, 0), func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_RetriesUnboundedHandlerUntilSuccess(t *testing.T) {
	m := NewManager(nil)
	attempts := 0
	m.OnShutdown("cancel-all", retry.Forever(time.Millisecond), func(context.Context) error {
		attempts++
		if attempts < 5 {
			return errors.New("rpc down")
		}
		return nil
	})

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 5, attempts)
}

func TestManager_FailedBoundedHandlerDoesNotBlockOthers(t *testing.T) {
	m := NewManager(nil)
	ran := false
	m.OnShutdown("close-feed", retry.Times(2, time.Millisecond), func(context.Context) error {
		return errors.New("already closed")
	})
	m.OnShutdown("after", retry.Times(1, 0), func(context.Context) error {
		ran = true
		return nil
	})

	err := m.Shutdown(context.Background())
	require.Error(t, err)
	assert.True(t, ran)
}

func TestManager_ShutdownOnlyOnce(t *testing.T) {
	m := NewManager(nil)
	calls := 0
	m.OnShutdown("once", retry.Times(1, 0), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.Len())
}
