package sbhttp_test

import (
	"context"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/testutil"
)

// testTimeout is the common timeout for tests.
const testTimeout = 10 * time.Second

// testContext returns a context with [testTimeout] that is canceled on test
// cleanup.
func testContext(tb testing.TB) (ctx context.Context) {
	return testutil.ContextWithTimeout(tb, testTimeout)
}
