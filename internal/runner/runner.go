// Package runner contains the worker that repeats pipeline runs on a fixed
// interval.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/service"
)

// Refresher is the interface for entities that can update themselves.
type Refresher interface {
	// Refresh is called by a [RefreshWorker].  The error returned by Refresh
	// is ignored; refreshers must handle error reporting themselves.
	Refresh(ctx context.Context) (err error)
}

// RefresherFunc is an adapter to allow the use of ordinary functions as
// [Refresher].
type RefresherFunc func(ctx context.Context) (err error)

// type check
var _ Refresher = RefresherFunc(nil)

// Refresh implements the [Refresher] interface for RefresherFunc.
func (f RefresherFunc) Refresh(ctx context.Context) (err error) {
	return f(ctx)
}

// RefreshWorker is a [service.Interface] implementation that refreshes its
// [Refresher] on every tick of the interval, and also once on start when
// RefreshOnStart is set.
type RefreshWorker struct {
	logger  *slog.Logger
	done    chan struct{}
	context func() (ctx context.Context, cancel context.CancelFunc)
	tick    *time.Ticker
	refr    Refresher

	refrOnStart bool
}

// RefreshWorkerConfig is the configuration structure for a *RefreshWorker.
type RefreshWorkerConfig struct {
	// Context is used to provide a context for the Refresh method of
	// Refresher.
	Context func() (ctx context.Context, cancel context.CancelFunc)

	// Refresher is the entity being refreshed.
	Refresher Refresher

	// Logger is used for logging the operation of the worker.
	Logger *slog.Logger

	// Interval is the refresh interval.  Must be greater than zero.
	Interval time.Duration

	// RefreshOnStart, if true, instructs the worker to refresh immediately
	// instead of waiting out the first whole interval.
	RefreshOnStart bool
}

// NewRefreshWorker returns a new valid *RefreshWorker with the provided
// parameters.  c must not be nil.
func NewRefreshWorker(c *RefreshWorkerConfig) (w *RefreshWorker) {
	return &RefreshWorker{
		logger:      c.Logger,
		done:        make(chan struct{}),
		context:     c.Context,
		tick:        time.NewTicker(c.Interval),
		refr:        c.Refresher,
		refrOnStart: c.RefreshOnStart,
	}
}

// type check
var _ service.Interface = (*RefreshWorker)(nil)

// Start implements the [service.Interface] interface for *RefreshWorker.  err
// is always nil.
func (w *RefreshWorker) Start(_ context.Context) (err error) {
	go w.refreshInALoop()

	return nil
}

// Shutdown implements the [service.Interface] interface for *RefreshWorker.
func (w *RefreshWorker) Shutdown(ctx context.Context) (err error) {
	close(w.done)
	w.tick.Stop()

	w.logger.InfoContext(ctx, "shut down successfully")

	return nil
}

// refreshInALoop refreshes the entity every tick of w.tick until Shutdown is
// called.
func (w *RefreshWorker) refreshInALoop() {
	ctx := context.Background()
	defer slogutil.RecoverAndLog(ctx, w.logger)

	w.logger.InfoContext(ctx, "starting refresh loop")

	if w.refrOnStart {
		w.refresh()
	}

	for {
		select {
		case <-w.done:
			w.logger.InfoContext(ctx, "finished refresh loop")

			return
		case <-w.tick.C:
			w.refresh()
		}
	}
}

// refresh refreshes the entity and logs the status of the refresh.
func (w *RefreshWorker) refresh() {
	ctx, cancel := w.context()
	defer cancel()

	ctx = slogutil.ContextWithLogger(ctx, w.logger)

	_ = w.refr.Refresh(ctx)
}

// RefresherWithErrColl reports all refresh errors through a collecting
// function.
type RefresherWithErrColl struct {
	refr    Refresher
	collect func(ctx context.Context, err error)
	prefix  string
}

// NewRefresherWithErrColl wraps refr into a refresher that reports errors
// through collect.
func NewRefresherWithErrColl(
	refr Refresher,
	collect func(ctx context.Context, err error),
	prefix string,
) (wrapped *RefresherWithErrColl) {
	return &RefresherWithErrColl{
		refr:    refr,
		collect: collect,
		prefix:  prefix,
	}
}

// type check
var _ Refresher = (*RefresherWithErrColl)(nil)

// Refresh implements the [Refresher] interface for *RefresherWithErrColl.
func (r *RefresherWithErrColl) Refresh(ctx context.Context) (err error) {
	err = r.refr.Refresh(ctx)
	if err != nil {
		r.collect(ctx, fmt.Errorf("%s: %w", r.prefix, err))
	}

	return err
}
