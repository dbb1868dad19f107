package safebrowsing_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/safebrowsing"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 30 * time.Second

// testContext returns a context with [testTimeout] that is canceled on test
// cleanup.
func testContext(tb testing.TB) (ctx context.Context) {
	return testutil.ContextWithTimeout(tb, testTimeout)
}

// discardErrColl is an error collector that ignores everything, for tests
// that exercise the degraded paths.
type discardErrColl struct{}

// type check
var _ errcoll.Interface = discardErrColl{}

// Collect implements the [errcoll.Interface] interface for discardErrColl.
func (discardErrColl) Collect(_ context.Context, _ error) {}

// newTestClient returns a client for vendor pointed at the test server srv,
// with no lookup pause and a minimal retry budget.
func newTestClient(tb testing.TB, srv *httptest.Server, vendor dnsbl.Vendor) (c *safebrowsing.Client) {
	tb.Helper()

	base, err := url.Parse(srv.URL + "/")
	require.NoError(tb, err)

	c, err = safebrowsing.NewClient(&safebrowsing.ClientConfig{
		Logger:  slogutil.NewDiscardLogger(),
		ErrColl: discardErrColl{},
		HTTPClient: sbhttp.NewClient(&sbhttp.ClientConfig{
			Logger:  slogutil.NewDiscardLogger(),
			Timeout: testTimeout,
			Backoff: 1 * time.Millisecond,
			Retries: 1,
		}),
		BaseEndpoint: base,
		Vendor:       vendor,
		APIKey:       "test-key",
		LookupPause:  0,
		MaxWorkers:   4,
	})
	require.NoError(tb, err)

	return c
}
