package safebrowsing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urlhash"
)

// threatListCombination is one (threatType, platformType, threatEntryType)
// tuple, both as listed by the threatLists endpoint and as requested from the
// threatListUpdates endpoint.
type threatListCombination struct {
	ThreatType      string `json:"threatType,omitempty"`
	PlatformType    string `json:"platformType,omitempty"`
	ThreatEntryType string `json:"threatEntryType,omitempty"`
	State           string `json:"state"`
}

// threatListsResp is the body of a threatLists response.
type threatListsResp struct {
	ThreatLists []*threatListCombination `json:"threatLists"`
}

// listUpdateReq is the body of a threatListUpdates:fetch request.
type listUpdateReq struct {
	Client             *clientInfo              `json:"client"`
	ListUpdateRequests []*threatListCombination `json:"listUpdateRequests"`
}

// listUpdateResp is the body of a threatListUpdates:fetch response.
type listUpdateResp struct {
	ListUpdateResponses []*listUpdateResponse `json:"listUpdateResponses"`
	MinimumWaitDuration string                `json:"minimumWaitDuration"`
}

// listUpdateResponse is the update of a single threat-list combination.
type listUpdateResponse struct {
	Additions []*threatEntrySet `json:"additions"`
}

// threatEntrySet is one batch of raw hash prefixes within an update.
type threatEntrySet struct {
	RawHashes *rawHashes `json:"rawHashes"`
}

// rawHashes is the base64 concatenation of hash prefixes of one size.
type rawHashes struct {
	RawHashes  string `json:"rawHashes"`
	PrefixSize int    `json:"prefixSize"`
}

// yandexCombinations is the fixed request shape used instead of the Yandex
// threatLists listing, which makes the server respond 204 with no body when
// requested in full.
var yandexCombinations = []*threatListCombination{{
	ThreatType:      "ANY",
	PlatformType:    "ANY_PLATFORM",
	ThreatEntryType: "URL",
}, {
	ThreatType:      "UNWANTED_SOFTWARE",
	PlatformType:    "PLATFORM_TYPE_UNSPECIFIED",
	ThreatEntryType: "URL",
}, {
	ThreatType:      "MALWARE",
	PlatformType:    "PLATFORM_TYPE_UNSPECIFIED",
	ThreatEntryType: "URL",
}, {
	ThreatType:      "SOCIAL_ENGINEERING",
	PlatformType:    "PLATFORM_TYPE_UNSPECIFIED",
	ThreatEntryType: "URL",
}}

// FetchPrefixes downloads the current malicious hash prefixes of the vendor
// through the Update API.  The union of all newly listed prefixes is returned
// deduplicated.  On any protocol failure it returns a non-nil error and no
// prefixes; the caller treats that as "no update this run".
func (c *Client) FetchPrefixes(ctx context.Context) (prefixes [][]byte, err error) {
	combos, err := c.listCombinations(ctx)
	if err != nil {
		return nil, fmt.Errorf("safebrowsing: %s: listing threat lists: %w", c.vendor, err)
	}

	resp, err := c.fetchListUpdates(ctx, combos)
	if err != nil {
		return nil, fmt.Errorf("safebrowsing: %s: fetching list updates: %w", c.vendor, err)
	}

	c.logger.InfoContext(ctx, "minimum wait duration", "vendor", c.vendor, "dur", resp.MinimumWaitDuration)

	return c.collectPrefixes(ctx, resp.ListUpdateResponses), nil
}

// listCombinations returns the threat-list combinations to request updates
// for, applying the listing policy of the vendor.
func (c *Client) listCombinations(ctx context.Context) (combos []*threatListCombination, err error) {
	httpResp, err := c.http.Get(ctx, c.threatListsURL)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, httpResp.Body.Close()) }()

	err = sbhttp.CheckStatus(httpResp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	listing := &threatListsResp{}
	err = json.NewDecoder(httpResp.Body).Decode(listing)
	if err != nil {
		return nil, fmt.Errorf("decoding threat lists: %w", err)
	}

	if c.vendor == dnsbl.VendorYandex {
		// The full listing makes the Yandex server respond 204 with no body,
		// so the listing result is discarded.
		return yandexCombinations, nil
	}

	for _, tlc := range listing.ThreatLists {
		switch tlc.ThreatEntryType {
		case "URL", "IP_RANGE":
			// State stays empty, which requests a full replace.
			tlc.State = ""
			combos = append(combos, tlc)
		default:
			// Skip hash-per-executable and other non-URL combinations.
		}
	}

	return combos, nil
}

// fetchListUpdates posts the update request and decodes the response.
func (c *Client) fetchListUpdates(
	ctx context.Context,
	combos []*threatListCombination,
) (resp *listUpdateResp, err error) {
	body, err := json.Marshal(&listUpdateReq{
		Client:             newClientInfo(),
		ListUpdateRequests: combos,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding update request: %w", err)
	}

	httpResp, err := c.http.Post(ctx, c.threatListUpdatesURL, sbhttp.HdrValApplicationJSON, body)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, httpResp.Body.Close()) }()

	err = sbhttp.CheckStatus(httpResp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	resp = &listUpdateResp{}
	err = json.NewDecoder(httpResp.Body).Decode(resp)
	if err != nil {
		return nil, fmt.Errorf("decoding update response: %w", err)
	}

	if resp.ListUpdateResponses == nil {
		return nil, errors.Error("no list update responses")
	}

	return resp, nil
}

// collectPrefixes decodes every addition into its hash prefixes and unions
// them.  A malformed addition is skipped and reported, not fatal.
func (c *Client) collectPrefixes(
	ctx context.Context,
	updates []*listUpdateResponse,
) (prefixes [][]byte) {
	seen := map[string]struct{}{}

	for _, upd := range updates {
		for _, add := range upd.Additions {
			chunks, err := decodeRawHashes(add.RawHashes)
			if err != nil {
				errcoll.Collect(ctx, c.errColl, c.logger, "decoding addition", err)

				continue
			}

			for _, chunk := range chunks {
				seen[string(chunk)] = struct{}{}
			}
		}
	}

	prefixes = make([][]byte, 0, len(seen))
	for p := range seen {
		prefixes = append(prefixes, []byte(p))
	}

	sort.Slice(prefixes, func(i, j int) bool { return bytes.Compare(prefixes[i], prefixes[j]) < 0 })

	return prefixes
}

// decodeRawHashes splits the base64 raw-hash blob of rh into its equal-size
// prefix chunks.
func decodeRawHashes(rh *rawHashes) (chunks [][]byte, err error) {
	if rh == nil {
		return nil, errors.Error("no raw hashes")
	}

	data, err := base64.StdEncoding.DecodeString(rh.RawHashes)
	if err != nil {
		return nil, fmt.Errorf("decoding raw hashes: %w", err)
	}

	size := rh.PrefixSize
	if size < urlhash.MinPrefixLen || size > urlhash.MaxPrefixLen || len(data)%size != 0 {
		return nil, fmt.Errorf("bad raw hashes: %d bytes with prefix size %d", len(data), size)
	}

	for i := 0; i < len(data); i += size {
		chunks = append(chunks, data[i:i+size])
	}

	return chunks, nil
}
