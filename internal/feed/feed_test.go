package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/feed"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
)

// testTimeout is the common timeout for tests.
const testTimeout = 10 * time.Second

// testContext returns a context with [testTimeout] that is canceled on test
// cleanup.
func testContext(tb testing.TB) (ctx context.Context) {
	return testutil.ContextWithTimeout(tb, testTimeout)
}

// newTestHTTPClient returns a transport suitable for tests.
func newTestHTTPClient() (c *sbhttp.Client) {
	return sbhttp.NewClient(&sbhttp.ClientConfig{
		Logger:  slogutil.NewDiscardLogger(),
		Timeout: testTimeout,
		Backoff: 1 * time.Millisecond,
		Retries: 1,
	})
}

// collectBatches returns a [feed.BatchFunc] appending into batches.
func collectBatches(batches *[][]string) (yield feed.BatchFunc) {
	return func(_ context.Context, batch []string) (err error) {
		cp := make([]string, len(batch))
		copy(cp, batch)
		*batches = append(*batches, cp)

		return nil
	}
}
