package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test intervals.
const (
	testTimeout = 10 * time.Second

	testIvl     = 5 * time.Millisecond
	testIvlLong = 1 * time.Hour
)

// newWorkerConfig returns a worker configuration refreshing refr.
func newWorkerConfig(
	refr runner.Refresher,
	ivl time.Duration,
	onStart bool,
) (conf *runner.RefreshWorkerConfig) {
	return &runner.RefreshWorkerConfig{
		Context: func() (ctx context.Context, cancel context.CancelFunc) {
			return context.WithTimeout(context.Background(), testTimeout)
		},
		Refresher:      refr,
		Logger:         slogutil.NewDiscardLogger(),
		Interval:       ivl,
		RefreshOnStart: onStart,
	}
}

// newSignalRefresher returns a refresher signaling ch on every refresh.
func newSignalRefresher(ch chan<- struct{}) (refr runner.Refresher) {
	return runner.RefresherFunc(func(_ context.Context) (err error) {
		select {
		case ch <- struct{}{}:
		default:
		}

		return nil
	})
}

func TestRefreshWorker(t *testing.T) {
	t.Run("tick", func(t *testing.T) {
		ch := make(chan struct{}, 16)
		w := runner.NewRefreshWorker(newWorkerConfig(newSignalRefresher(ch), testIvl, false))

		ctx := testutil.ContextWithTimeout(t, testTimeout)
		require.NoError(t, w.Start(ctx))

		testutil.RequireReceive(t, ch, testTimeout)

		require.NoError(t, w.Shutdown(ctx))
	})

	t.Run("on_start", func(t *testing.T) {
		ch := make(chan struct{}, 16)
		w := runner.NewRefreshWorker(newWorkerConfig(newSignalRefresher(ch), testIvlLong, true))

		ctx := testutil.ContextWithTimeout(t, testTimeout)
		require.NoError(t, w.Start(ctx))

		testutil.RequireReceive(t, ch, testTimeout)

		require.NoError(t, w.Shutdown(ctx))
	})
}

func TestRefresherWithErrColl(t *testing.T) {
	const testError errors.Error = "test error"

	var collected error
	refr := runner.NewRefresherWithErrColl(
		runner.RefresherFunc(func(_ context.Context) (err error) { return testError }),
		func(_ context.Context, err error) { collected = err },
		"test refresh",
	)

	err := refr.Refresh(context.Background())
	assert.ErrorIs(t, err, testError)
	assert.ErrorIs(t, collected, testError)
}
