package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopJoinsCooperativeLoop(t *testing.T) {
	var ticks atomic.Int32
	h := Go(context.Background(), "loop", func(ctx context.Context) {
		for Sleep(ctx, time.Millisecond) {
			ticks.Add(1)
		}
	})

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.Stop(time.Second))
	assert.True(t, h.Finished())
	assert.Greater(t, ticks.Load(), int32(0))
	assert.Equal(t, "loop", h.Name())

	// second stop is a no-op
	require.NoError(t, h.Stop(time.Second))
}

func TestJoinTimeoutIsSoft(t *testing.T) {
	release := make(chan struct{})
	h := Go(context.Background(), "stubborn", func(ctx context.Context) {
		<-release
	})

	err := h.Stop(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrJoinTimeout)
	assert.False(t, h.Finished())

	close(release)
	require.NoError(t, h.Join(time.Second))
	assert.True(t, h.Finished())
}

func TestParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	h := Go(parent, "child", func(ctx context.Context) {
		<-ctx.Done()
	})
	cancel()
	require.NoError(t, h.Join(time.Second))
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.True(t, Sleep(ctx, time.Millisecond))
	assert.True(t, Sleep(ctx, 0))
	cancel()
	assert.False(t, Sleep(ctx, time.Hour))
	assert.False(t, Sleep(ctx, 0))
}

func TestCancelledWhileWindingDown(t *testing.T) {
	release := make(chan struct{})
	h := Go(context.Background(), "slow", func(ctx context.Context) {
		<-ctx.Done()
		<-release
	})
	assert.False(t, h.Cancelled())

	assert.ErrorIs(t, h.Stop(time.Millisecond), ErrJoinTimeout)
	assert.True(t, h.Cancelled())
	assert.False(t, h.Finished(), "still running after a timed out join")

	close(release)
	require.NoError(t, h.Join(time.Second))
	assert.True(t, h.Finished())
}
