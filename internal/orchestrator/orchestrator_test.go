package orchestrator_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/feed"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/orchestrator"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/prefixdb"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/safebrowsing"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urldb"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urlhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Common test constants.
const (
	testTimeout    = 30 * time.Second
	testUpdateTime = int64(12_345)
	testFeedName   = "test_urls"
)

// testContext returns a context with [testTimeout] that is canceled on test
// cleanup.
func testContext(tb testing.TB) (ctx context.Context) {
	return testutil.ContextWithTimeout(tb, testTimeout)
}

// testSource is a [feed.Source] that yields fixed batches.
type testSource struct {
	name    string
	batches [][]string
}

// type check
var _ feed.Source = (*testSource)(nil)

// Name implements the [feed.Source] interface for *testSource.
func (s *testSource) Name() (name string) { return s.name }

// Kind implements the [feed.Source] interface for *testSource.
func (s *testSource) Kind() (kind feed.Kind) { return feed.KindLocalFile }

// Stream implements the [feed.Source] interface for *testSource.
func (s *testSource) Stream(ctx context.Context, yield feed.BatchFunc) (err error) {
	for _, b := range s.batches {
		err = yield(ctx, b)
		if err != nil {
			return err
		}
	}

	return nil
}

// discardErrColl is an error collector that ignores everything.
type discardErrColl struct{}

// type check
var _ errcoll.Interface = discardErrColl{}

// Collect implements the [errcoll.Interface] interface for discardErrColl.
func (discardErrColl) Collect(_ context.Context, _ error) {}

// vendorHandler is a Safe Browsing API mock serving all three endpoints of a
// vendor.
type vendorHandler struct {
	tb testing.TB

	// prefixes are returned by the update endpoints, all of one size.
	prefixes [][]byte

	// prefixSize is the size of every entry in prefixes.
	prefixSize int

	// matches are the urls echoed by the lookup endpoint, scheme included.
	matches []string

	// lookupCode, when non-zero, makes the lookup endpoint fail persistently.
	lookupCode int
}

// ServeHTTP implements the http.Handler interface for *vendorHandler.
func (h *vendorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.Contains(r.URL.Path, "threatMatches"):
		if h.lookupCode != 0 {
			http.Error(w, "lookup failure", h.lookupCode)

			return
		}

		matches := make([]map[string]any, 0, len(h.matches))
		for _, m := range h.matches {
			matches = append(matches, map[string]any{"threat": map[string]any{"url": m}})
		}

		err := json.NewEncoder(w).Encode(map[string]any{"matches": matches})
		require.NoError(h.tb, err)
	case strings.Contains(r.URL.Path, "threatListUpdates"):
		var concat []byte
		for _, p := range h.prefixes {
			concat = append(concat, p...)
		}

		resp := map[string]any{
			"listUpdateResponses": []map[string]any{{
				"additions": []map[string]any{{
					"rawHashes": map[string]any{
						"prefixSize": h.prefixSize,
						"rawHashes":  base64.StdEncoding.EncodeToString(concat),
					},
				}},
			}},
			"minimumWaitDuration": "1s",
		}

		err := json.NewEncoder(w).Encode(resp)
		require.NoError(h.tb, err)
	case strings.Contains(r.URL.Path, "threatLists"):
		err := json.NewEncoder(w).Encode(map[string]any{
			"threatLists": []map[string]any{{"threatEntryType": "URL"}},
		})
		require.NoError(h.tb, err)
	default:
		http.NotFound(w, r)
	}
}

// newTestPipeline assembles an orchestrator over a temporary databases
// directory, a single test feed, and a single Google client served by h.
func newTestPipeline(
	tb testing.TB,
	h *vendorHandler,
	batches [][]string,
) (orch *orchestrator.Orchestrator, s *urldb.Store) {
	tb.Helper()

	srv := httptest.NewServer(h)
	tb.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL + "/")
	require.NoError(tb, err)

	logger := slogutil.NewDiscardLogger()

	cli, err := safebrowsing.NewClient(&safebrowsing.ClientConfig{
		Logger:  logger,
		ErrColl: discardErrColl{},
		HTTPClient: sbhttp.NewClient(&sbhttp.ClientConfig{
			Logger:  logger,
			Timeout: testTimeout,
			Backoff: 1 * time.Millisecond,
			Retries: 1,
		}),
		BaseEndpoint: base,
		Vendor:       dnsbl.VendorGoogle,
		APIKey:       "test-key",
		LookupPause:  0,
		MaxWorkers:   4,
	})
	require.NoError(tb, err)

	dir := tb.TempDir()

	prefixes, err := prefixdb.NewStore(&prefixdb.StoreConfig{
		Logger: logger,
		Dir:    dir,
	})
	require.NoError(tb, err)
	testutil.CleanupAndRequireSuccess(tb, prefixes.Close)

	s, err = urldb.NewStore(&urldb.StoreConfig{
		Logger:       logger,
		Dir:          dir,
		Name:         testFeedName,
		PrefixDBPath: prefixes.Path(),
	})
	require.NoError(tb, err)
	testutil.CleanupAndRequireSuccess(tb, s.Close)

	orch = orchestrator.New(&orchestrator.Config{
		Logger:     logger,
		ErrColl:    discardErrColl{},
		Prefixes:   prefixes,
		Stores:     map[string]*urldb.Store{testFeedName: s},
		Clients:    []*safebrowsing.Client{cli},
		Sources:    []feed.Source{&testSource{name: testFeedName, batches: batches}},
		UpdateTime: testUpdateTime,
		MaxWorkers: 4,
		Fetch:      true,
	})

	return orch, s
}

func TestOrchestrator_Run_emptyFeed(t *testing.T) {
	orch, s := newTestPipeline(t, &vendorHandler{tb: t, prefixSize: 4}, nil)

	flagged, err := orch.Run(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, flagged)

	n, err := s.Count(testContext(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrchestrator_Run_knownBadURL(t *testing.T) {
	const badURL = "malware.test"

	badHash := urlhash.Sum(badURL)
	h := &vendorHandler{
		tb:         t,
		prefixes:   [][]byte{urlhash.Prefix(badHash, 4)},
		prefixSize: 4,
		matches:    []string{"http://" + badURL + "/"},
	}

	orch, s := newTestPipeline(t, h, [][]string{{badURL, "benign.test"}})

	flagged, err := orch.Run(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{badURL}, flagged)

	got, err := s.LatestFlagged(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{badURL}, got)
}

func TestOrchestrator_Run_lookupFailure(t *testing.T) {
	const badURL = "malware.test"

	badHash := urlhash.Sum(badURL)
	h := &vendorHandler{
		tb:         t,
		prefixes:   [][]byte{urlhash.Prefix(badHash, 4)},
		prefixSize: 4,
		lookupCode: http.StatusServiceUnavailable,
	}

	orch, s := newTestPipeline(t, h, [][]string{{badURL}})

	// The run completes with nothing flagged and no error surfacing.
	flagged, err := orch.Run(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, flagged)

	n, err := s.Count(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOrchestrator_Run_noMatchingPrefix(t *testing.T) {
	h := &vendorHandler{
		tb:         t,
		prefixes:   [][]byte{{0xDE, 0xAD, 0xBE, 0xEF}},
		prefixSize: 4,
		matches:    []string{"http://unrelated.test/"},
	}

	orch, _ := newTestPipeline(t, h, [][]string{{"benign.test"}})

	// No suspects means nothing reaches the Lookup API and nothing is
	// flagged.
	flagged, err := orch.Run(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, flagged)
}
