package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_Shutdown(t *testing.T) {
	t.Run("drains server then runs functions", func(t *testing.T) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		server := &http.Server{Handler: http.NotFoundHandler()}
		served := make(chan error, 1)
		go func() { served <- server.Serve(listener) }()

		sm := NewShutdownManager(NopLogger(), server, time.Second)

		var calls atomic.Int32
		sm.RegisterShutdownFunc("cache", func(context.Context) error {
			calls.Add(1)
			return nil
		})
		sm.RegisterShutdownFunc("janitor", func(context.Context) error {
			calls.Add(1)
			return nil
		})

		require.NoError(t, sm.Shutdown(context.Background()))
		assert.Equal(t, int32(2), calls.Load())
		assert.ErrorIs(t, <-served, http.ErrServerClosed)
	})

	t.Run("collects function errors", func(t *testing.T) {
		sm := NewShutdownManager(NopLogger(), nil, time.Second)
		sm.RegisterShutdownFunc("redis", func(context.Context) error {
			return errors.New("close failed")
		})
		sm.RegisterShutdownFunc("otel", func(context.Context) error { return nil })

		err := sm.Shutdown(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 errors")
		assert.Contains(t, err.Error(), "redis: close failed")
	})

	t.Run("times out on slow functions", func(t *testing.T) {
		sm := NewShutdownManager(NopLogger(), nil, time.Second)
		release := make(chan struct{})
		defer close(release)
		sm.RegisterShutdownFunc("stuck", func(context.Context) error {
			<-release
			return nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := sm.Shutdown(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
	})
}

func TestShutdownManager_WaitForShutdown_Context(t *testing.T) {
	sm := NewShutdownManager(NopLogger(), nil, 0)

	var called atomic.Bool
	sm.RegisterShutdownFunc("flag", func(context.Context) error {
		called.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, called.Load())
	assert.Equal(t, 30*time.Second, sm.shutdownTimeout)
}

func TestRecoverPanic(t *testing.T) {
	func() {
		defer RecoverPanic(NopLogger(), "test")
		panic("boom")
	}()

	var cleaned bool
	func() {
		defer RecoverPanicWithCallback(NopLogger(), "test", func() { cleaned = true })
		panic("boom")
	}()
	assert.True(t, cleaned)

	cleaned = false
	func() {
		defer RecoverPanicWithCallback(NopLogger(), "test", func() { cleaned = true })
	}()
	assert.False(t, cleaned)

	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("bad state"), "panic: bad state")
}
