package safebrowsing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
	"golang.org/x/sync/errgroup"
)

// Lookup API enumeration values.  Requesting every threat class, platform,
// and entry type makes a match mean "flagged for anything at all".
var (
	lookupThreatTypes = []string{
		"THREAT_TYPE_UNSPECIFIED",
		"MALWARE",
		"SOCIAL_ENGINEERING",
		"UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION",
	}

	lookupPlatformTypes = []string{
		"PLATFORM_TYPE_UNSPECIFIED",
		"WINDOWS",
		"LINUX",
		"ANDROID",
		"OSX",
		"IOS",
		"ANY_PLATFORM",
		"ALL_PLATFORMS",
		"CHROME",
	}

	lookupThreatEntryTypes = []string{
		"THREAT_ENTRY_TYPE_UNSPECIFIED",
		"URL",
		"EXECUTABLE",
	}
)

// threatEntry is a single URL inside a Lookup request or response.
type threatEntry struct {
	URL string `json:"url"`
}

// threatInfo is the threat selection of a Lookup request.
type threatInfo struct {
	ThreatTypes      []string       `json:"threatTypes"`
	PlatformTypes    []string       `json:"platformTypes"`
	ThreatEntryTypes []string       `json:"threatEntryTypes"`
	ThreatEntries    []*threatEntry `json:"threatEntries"`
}

// threatMatchesReq is the body of a threatMatches:find request.
type threatMatchesReq struct {
	Client     *clientInfo `json:"client"`
	ThreatInfo *threatInfo `json:"threatInfo"`
}

// threatMatchesResp is the body of a threatMatches:find response.
type threatMatchesResp struct {
	Matches []*threatMatch `json:"matches"`
}

// threatMatch is a single confirmed threat within a Lookup response.
type threatMatch struct {
	Threat *threatEntry `json:"threat"`
}

// ConfirmMalicious submits suspects to the Lookup API in batches no larger
// than the vendor's cap and returns the deduplicated union of the confirmed
// urls, scheme-free.  Batches run in parallel on a bounded pool, each worker
// pausing between submissions.  A batch that fails permanently contributes
// nothing; a failure never aborts the run.
func (c *Client) ConfirmMalicious(ctx context.Context, suspects []string) (confirmed []string) {
	if len(suspects) == 0 {
		return nil
	}

	c.logger.InfoContext(
		ctx,
		"verifying suspected urls",
		"vendor", c.vendor,
		"count", len(suspects),
		"batches", (len(suspects)+c.maxBatchSize-1)/c.maxBatchSize,
	)

	seen := map[string]struct{}{}
	mu := &sync.Mutex{}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	for len(suspects) > 0 {
		batch := suspects
		if len(batch) > c.maxBatchSize {
			batch = batch[:c.maxBatchSize]
		}
		suspects = suspects[len(batch):]

		g.Go(func() (err error) {
			urls, lookupErr := c.lookupBatch(gCtx, batch)
			if lookupErr != nil {
				errcoll.Collect(gCtx, c.errColl, c.logger, "looking up batch", lookupErr)
			}

			mu.Lock()
			for _, u := range urls {
				seen[u] = struct{}{}
			}
			mu.Unlock()

			// Pause before releasing the worker slot to keep the per-worker
			// submission rate under the server's limit.
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-time.After(c.lookupPause):
				return nil
			}
		})
	}

	// The only error a worker returns is context cancellation; partial
	// results still count.
	_ = g.Wait()

	confirmed = make([]string, 0, len(seen))
	for u := range seen {
		confirmed = append(confirmed, u)
	}

	c.logger.InfoContext(ctx, "confirmed urls", "vendor", c.vendor, "count", len(confirmed))

	return confirmed
}

// lookupBatch submits one batch and returns the confirmed urls within it,
// scheme-free.
func (c *Client) lookupBatch(ctx context.Context, batch []string) (urls []string, err error) {
	entries := make([]*threatEntry, 0, len(batch))
	for _, u := range batch {
		// The API requires a scheme and the stores hold scheme-free hostname
		// expressions.
		entries = append(entries, &threatEntry{URL: "http://" + u})
	}

	body, err := json.Marshal(&threatMatchesReq{
		Client: newClientInfo(),
		ThreatInfo: &threatInfo{
			ThreatTypes:      lookupThreatTypes,
			PlatformTypes:    lookupPlatformTypes,
			ThreatEntryTypes: lookupThreatEntryTypes,
			ThreatEntries:    entries,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding lookup request: %w", err)
	}

	httpResp, err := c.http.Post(ctx, c.threatMatchesURL, sbhttp.HdrValApplicationJSON, body)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, httpResp.Body.Close()) }()

	err = sbhttp.CheckStatus(httpResp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	resp := &threatMatchesResp{}
	err = json.NewDecoder(httpResp.Body).Decode(resp)
	if err != nil {
		return nil, fmt.Errorf("decoding lookup response: %w", err)
	}

	for _, m := range resp.Matches {
		if m.Threat == nil {
			continue
		}

		u := strings.TrimPrefix(m.Threat.URL, "https://")
		u = strings.TrimPrefix(u, "http://")
		urls = append(urls, u)
	}

	return urls, nil
}
