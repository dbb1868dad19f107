// Package orchestrator wires the feeds, the URL stores, the hash-prefix
// store, and the Safe Browsing API clients into one run of the pre-filter
// pipeline.  A run proceeds in strictly ordered phases separated by barriers:
// ingest, prefix refresh, pre-filter, confirm, persist, export.  Within a
// phase, work is dispatched onto a bounded worker pool; a failing worker
// degrades its own result and never aborts the run.
package orchestrator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/feed"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/metrics"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/prefixdb"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/safebrowsing"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urldb"
	"golang.org/x/sync/errgroup"
)

// Orchestrator drives the whole pipeline.
type Orchestrator struct {
	logger     *slog.Logger
	errColl    errcoll.Interface
	prefixes   *prefixdb.Store
	stores     map[string]*urldb.Store
	clients    []*safebrowsing.Client
	sources    []feed.Source
	updateTime int64
	maxWorkers int
	fetch      bool
}

// Config is the configuration structure for an *Orchestrator.
type Config struct {
	// Logger is used for logging the operation of the orchestrator.
	Logger *slog.Logger

	// ErrColl is used to collect non-critical errors.
	ErrColl errcoll.Interface

	// Prefixes is the hash-prefix store.
	Prefixes *prefixdb.Store

	// Stores maps each store name to its URL store.  Every source in Sources
	// must have a store under its name.
	Stores map[string]*urldb.Store

	// Clients are the Safe Browsing API clients of the enabled vendors.
	Clients []*safebrowsing.Client

	// Sources are the enabled feed sources.
	Sources []feed.Source

	// UpdateTime is the epoch-second stamp written as listed_at on ingest and
	// as the flag timestamp on confirmation.  Zero means every run stamps
	// itself with the wall clock at its start.
	UpdateTime int64

	// MaxWorkers bounds the worker pool of every phase.
	MaxWorkers int

	// Fetch enables HTTP downloads for the feeds that support them.
	Fetch bool
}

// New returns a new orchestrator.  c must not be nil.
func New(c *Config) (o *Orchestrator) {
	return &Orchestrator{
		logger:     c.Logger,
		errColl:    c.ErrColl,
		prefixes:   c.Prefixes,
		stores:     c.Stores,
		clients:    c.Clients,
		sources:    c.Sources,
		updateTime: c.UpdateTime,
		maxWorkers: c.MaxWorkers,
		fetch:      c.Fetch,
	}
}

// suspectKey identifies the suspect set of one (store, vendor) pair.
type suspectKey struct {
	name   string
	vendor dnsbl.Vendor
}

// Run performs one full pipeline run and returns the urls confirmed malicious
// in the most recent run, deduplicated and sorted.  Every phase degrades on
// partial failure rather than aborting, so the returned set can be smaller
// than expected but Run itself fails only on context cancellation.
func (o *Orchestrator) Run(ctx context.Context) (flagged []string, err error) {
	at := o.updateTime
	if at == 0 {
		at = time.Now().Unix()
	}

	o.ingest(ctx, at)
	o.refreshPrefixes(ctx)

	suspects := o.preFilter(ctx)
	confirmed := o.confirm(ctx, suspects)
	o.persist(ctx, suspects, confirmed, at)

	return o.export(ctx), ctx.Err()
}

// newPool returns a worker pool for one phase.
func (o *Orchestrator) newPool() (g *errgroup.Group) {
	g = &errgroup.Group{}
	g.SetLimit(o.maxWorkers)

	return g
}

// ingest streams every enabled source into its store.  Each store has exactly
// one writer; distinct stores ingest concurrently.
func (o *Orchestrator) ingest(ctx context.Context, at int64) {
	o.logger.InfoContext(ctx, "ingest phase", "sources", len(o.sources))

	g := o.newPool()
	for _, src := range o.sources {
		g.Go(func() (taskErr error) {
			o.ingestSource(ctx, src, at)

			return nil
		})
	}

	_ = g.Wait()
}

// ingestSource ingests one source, degrading on failure.
func (o *Orchestrator) ingestSource(ctx context.Context, src feed.Source, at int64) {
	s := o.stores[src.Name()]

	if src.Kind() == feed.KindIPv4 {
		err := s.BulkInsertIPs(ctx)
		if err != nil {
			errcoll.Collect(ctx, o.errColl, o.logger, "populating ipv4 store", err)
		}

		return
	}

	if !o.fetch && src.Kind() != feed.KindLocalFile {
		o.logger.DebugContext(ctx, "fetch disabled, skipping source", "feed", src.Name())

		return
	}

	err := src.Stream(ctx, func(batchCtx context.Context, batch []string) (batchErr error) {
		upErr := s.UpsertBatch(batchCtx, at, batch)
		if upErr != nil {
			// Skip the batch and keep streaming.
			errcoll.Collect(batchCtx, o.errColl, o.logger, "upserting batch", upErr)

			return nil
		}

		metrics.URLsIngested.WithLabelValues(src.Name()).Add(float64(len(batch)))

		return nil
	})
	if err != nil {
		errcoll.Collect(ctx, o.errColl, o.logger, "streaming feed", err)
	}
}

// refreshPrefixes fetches the current hash prefixes of every vendor and
// replaces the vendor's stored set.  A failed fetch replaces the set with
// nothing, disarming the vendor for the rest of the run.
func (o *Orchestrator) refreshPrefixes(ctx context.Context) {
	o.logger.InfoContext(ctx, "prefix refresh phase", "vendors", len(o.clients))

	g := o.newPool()
	for _, cli := range o.clients {
		g.Go(func() (taskErr error) {
			vendor := cli.Vendor()

			prefixes, err := cli.FetchPrefixes(ctx)
			metrics.SetStatusGauge(metrics.UpdateStatus.WithLabelValues(string(vendor)), err)
			if err != nil {
				errcoll.Collect(ctx, o.errColl, o.logger, "fetching prefixes", err)
			}

			err = o.prefixes.ReplaceVendor(ctx, vendor, prefixes)
			if err != nil {
				errcoll.Collect(ctx, o.errColl, o.logger, "replacing prefixes", err)

				return nil
			}

			metrics.HashPrefixes.WithLabelValues(string(vendor)).Set(float64(len(prefixes)))

			return nil
		})
	}

	_ = g.Wait()
}

// preFilter joins every store against every vendor's prefix set and returns
// the suspect sets.
func (o *Orchestrator) preFilter(ctx context.Context) (suspects map[suspectKey][]string) {
	o.logger.InfoContext(ctx, "pre-filter phase")

	suspects = map[suspectKey][]string{}
	mu := &sync.Mutex{}

	g := o.newPool()
	for name, s := range o.stores {
		for _, cli := range o.clients {
			g.Go(func() (taskErr error) {
				vendor := cli.Vendor()
				urls := o.suspectsFor(ctx, s, vendor)

				metrics.Suspects.WithLabelValues(name, string(vendor)).Set(float64(len(urls)))
				o.logger.InfoContext(
					ctx,
					"suspects found",
					"feed", name,
					"vendor", vendor,
					"count", len(urls),
				)

				mu.Lock()
				defer mu.Unlock()
				suspects[suspectKey{name: name, vendor: vendor}] = urls

				return nil
			})
		}
	}

	_ = g.Wait()

	return suspects
}

// suspectsFor returns the urls of store s whose hash prefix of any size used
// by vendor appears in the vendor's prefix set.  The per-size queries run
// concurrently.
func (o *Orchestrator) suspectsFor(
	ctx context.Context,
	s *urldb.Store,
	vendor dnsbl.Vendor,
) (urls []string) {
	sizes, err := o.prefixes.DistinctSizes(ctx, vendor)
	if err != nil {
		errcoll.Collect(ctx, o.errColl, o.logger, "listing prefix sizes", err)

		return nil
	}

	seen := map[string]struct{}{}
	mu := &sync.Mutex{}

	g := o.newPool()
	for _, size := range sizes {
		g.Go(func() (taskErr error) {
			sizeURLs, queryErr := s.SelectSuspects(ctx, size, vendor)
			if queryErr != nil {
				errcoll.Collect(ctx, o.errColl, o.logger, "selecting suspects", queryErr)

				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, u := range sizeURLs {
				seen[u] = struct{}{}
			}

			return nil
		})
	}

	_ = g.Wait()

	urls = make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}

	return urls
}

// confirm submits the per-vendor union of suspects to the Lookup API and
// returns the confirmed urls by vendor.
func (o *Orchestrator) confirm(
	ctx context.Context,
	suspects map[suspectKey][]string,
) (confirmed map[dnsbl.Vendor][]string) {
	o.logger.InfoContext(ctx, "confirm phase")

	confirmed = map[dnsbl.Vendor][]string{}
	for _, cli := range o.clients {
		vendor := cli.Vendor()

		seen := map[string]struct{}{}
		for k, urls := range suspects {
			if k.vendor != vendor {
				continue
			}

			for _, u := range urls {
				seen[u] = struct{}{}
			}
		}

		union := make([]string, 0, len(seen))
		for u := range seen {
			union = append(union, u)
		}

		vendorConfirmed := cli.ConfirmMalicious(ctx, union)
		metrics.ConfirmedURLs.WithLabelValues(string(vendor)).Set(float64(len(vendorConfirmed)))
		confirmed[vendor] = vendorConfirmed
	}

	return confirmed
}

// persist writes the flag timestamps of the confirmed urls back into each
// store.  Only the urls suspected from a store are marked in it.
func (o *Orchestrator) persist(
	ctx context.Context,
	suspects map[suspectKey][]string,
	confirmed map[dnsbl.Vendor][]string,
	at int64,
) {
	o.logger.InfoContext(ctx, "persist phase")

	g := o.newPool()
	for name, s := range o.stores {
		for vendor, vendorConfirmed := range confirmed {
			urls := intersect(suspects[suspectKey{name: name, vendor: vendor}], vendorConfirmed)
			if len(urls) == 0 {
				continue
			}

			g.Go(func() (taskErr error) {
				err := s.MarkFlagged(ctx, vendor, urls, at)
				if err != nil {
					errcoll.Collect(ctx, o.errColl, o.logger, "marking flagged", err)
				}

				return nil
			})
		}
	}

	_ = g.Wait()
}

// export collects the urls most recently confirmed malicious across all
// stores, deduplicated and sorted.
func (o *Orchestrator) export(ctx context.Context) (flagged []string) {
	o.logger.InfoContext(ctx, "export phase")

	seen := map[string]struct{}{}
	mu := &sync.Mutex{}

	g := o.newPool()
	for _, s := range o.stores {
		g.Go(func() (taskErr error) {
			urls, err := s.LatestFlagged(ctx)
			if err != nil {
				errcoll.Collect(ctx, o.errColl, o.logger, "exporting flagged urls", err)

				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			for _, u := range urls {
				seen[u] = struct{}{}
			}

			return nil
		})
	}

	_ = g.Wait()

	flagged = make([]string, 0, len(seen))
	for u := range seen {
		flagged = append(flagged, u)
	}

	slices.Sort(flagged)

	return flagged
}

// intersect returns the elements of a that are also in b.  The lookup url of
// a confirmation may carry a trailing slash the store key does not, so both
// spellings of b are considered.
func intersect(a, b []string) (both []string) {
	inB := make(map[string]struct{}, len(b))
	for _, u := range b {
		inB[u] = struct{}{}
	}

	for _, u := range a {
		if _, ok := inB[u]; ok {
			both = append(both, u)

			continue
		}

		if _, ok := inB[u+"/"]; ok {
			both = append(both, u)
		}
	}

	return both
}
