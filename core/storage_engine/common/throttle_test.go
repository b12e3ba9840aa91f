package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottle_DisabledNeverBlocks(t *testing.T) {
	var nilThrottle *Throttle
	require.False(t, nilThrottle.Enabled())
	require.NoError(t, nilThrottle.WaitN(context.Background(), 1<<30))

	off := NewThrottle(0, 512)
	require.False(t, off.Enabled())
	require.NoError(t, off.WaitN(context.Background(), 1<<30))
}

func TestThrottle_SplitsRequestsLargerThanBurst(t *testing.T) {
	th := NewThrottle(1<<20, 512)
	require.True(t, th.Enabled())
	// Larger than the burst, but well within one second at 1 MiB/s.
	require.NoError(t, th.WaitN(context.Background(), 4096))
}

func TestThrottle_WaitRespectsContext(t *testing.T) {
	th := NewThrottle(100, 100)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, th.WaitN(ctx, 100)) // drains the initial burst
	err := th.WaitN(ctx, 100)
	require.ErrorIs(t, err, ErrRateLimiterWait)
}
