package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/lmapd/lmapd/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialPolicyDoublesAndCaps(t *testing.T) {
	p := &retry.ExponentialPolicy{
		InitialInterval: 100 * time.Millisecond,
		Factor:          2.0,
		MaxInterval:     time.Second,
	}
	assert.Equal(t, 100*time.Millisecond, p.NextInterval(0))
	assert.Equal(t, 200*time.Millisecond, p.NextInterval(1))
	assert.Equal(t, 400*time.Millisecond, p.NextInterval(2))
	assert.Equal(t, time.Second, p.NextInterval(10))
}

func TestPacerWaitAdvancesCount(t *testing.T) {
	pacer := retry.NewPacer(&retry.ExponentialPolicy{
		InitialInterval: time.Millisecond,
		Factor:          1.0,
		MaxInterval:     10 * time.Millisecond,
	})
	ctx := context.Background()
	require.NoError(t, pacer.Wait(ctx))
	require.NoError(t, pacer.Wait(ctx))
}

func TestPacerWaitCanceled(t *testing.T) {
	pacer := retry.NewPacer(retry.NewExponentialPolicy(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pacer.Wait(ctx)
	require.ErrorIs(t, err, retry.ErrOperationCanceled)
}

func TestPacerReset(t *testing.T) {
	pacer := retry.NewPacer(retry.NewExponentialPolicy(time.Millisecond))
	ctx := context.Background()
	require.NoError(t, pacer.Wait(ctx))
	pacer.Reset()
	require.NoError(t, pacer.Wait(ctx))
}
