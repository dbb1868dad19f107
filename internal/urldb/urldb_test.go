package urldb_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/prefixdb"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urldb"
	"github.com/stretchr/testify/require"
)

// testTimeout is the common timeout for tests.
const testTimeout = 30 * time.Second

// testContext returns a context with [testTimeout] that is canceled on test
// cleanup.
func testContext(tb testing.TB) (ctx context.Context) {
	return testutil.ContextWithTimeout(tb, testTimeout)
}

// newTestStores returns a feed store named "test_urls" and the hash-prefix
// store, both under one temporary databases directory.
func newTestStores(tb testing.TB) (s *urldb.Store, prefixes *prefixdb.Store) {
	tb.Helper()

	dir := tb.TempDir()

	prefixes, err := prefixdb.NewStore(&prefixdb.StoreConfig{
		Logger: slogutil.NewDiscardLogger(),
		Dir:    dir,
	})
	require.NoError(tb, err)
	testutil.CleanupAndRequireSuccess(tb, prefixes.Close)

	s, err = urldb.NewStore(&urldb.StoreConfig{
		Logger:       slogutil.NewDiscardLogger(),
		Dir:          dir,
		Name:         "test_urls",
		PrefixDBPath: prefixes.Path(),
	})
	require.NoError(tb, err)
	testutil.CleanupAndRequireSuccess(tb, s.Close)

	return s, prefixes
}
