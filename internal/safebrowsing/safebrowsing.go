// Package safebrowsing contains the clients for the Safe Browsing API Update
// and Lookup protocols of the supported vendors.
package safebrowsing

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
)

// Safe Browsing API client identification.
const (
	clientID      = "dnsblgenerator"
	clientVersion = "1.0"
)

// Default vendor API properties.
const (
	googleEndpoint = "https://safebrowsing.googleapis.com/v4/"
	yandexEndpoint = "https://sba.yandex.net/v4/"

	// googleMaxBatchSize is the documented Lookup API request limit.
	googleMaxBatchSize = 500

	// yandexMaxBatchSize is far below the documented limit of 500, which the
	// server does not actually sustain.  Batches of 200 are stable.
	yandexMaxBatchSize = 200
)

// DefaultLookupPause is the pause a worker takes between Lookup submissions
// to stay clear of server-side rate limiting.
const DefaultLookupPause = 2 * time.Second

// Client speaks both Safe Browsing protocols of a single vendor.  It is safe
// for concurrent use.
type Client struct {
	logger               *slog.Logger
	errColl              errcoll.Interface
	http                 *sbhttp.Client
	threatListsURL       *url.URL
	threatListUpdatesURL *url.URL
	threatMatchesURL     *url.URL
	vendor               dnsbl.Vendor
	lookupPause          time.Duration
	maxBatchSize         int
	maxWorkers           int
}

// ClientConfig is the configuration structure for a *Client.
type ClientConfig struct {
	// Logger is used for logging the operation of the client.
	Logger *slog.Logger

	// ErrColl is used to collect non-critical errors.
	ErrColl errcoll.Interface

	// HTTPClient is the transport used for all requests.
	HTTPClient *sbhttp.Client

	// BaseEndpoint, when non-nil, overrides the vendor's default API
	// endpoint.  Intended for tests.
	BaseEndpoint *url.URL

	// Vendor selects the endpoints, the Update-API listing policy, and the
	// Lookup batch cap.
	Vendor dnsbl.Vendor

	// APIKey authenticates all requests as a query parameter.
	APIKey string

	// LookupPause is the pause a worker takes between Lookup submissions.
	LookupPause time.Duration

	// MaxWorkers bounds the number of concurrent Lookup requests.
	MaxWorkers int
}

// NewClient returns a new client for c.Vendor.  c must not be nil.
func NewClient(c *ClientConfig) (cli *Client, err error) {
	var endpoint string
	var maxBatchSize int
	switch c.Vendor {
	case dnsbl.VendorGoogle:
		endpoint, maxBatchSize = googleEndpoint, googleMaxBatchSize
	case dnsbl.VendorYandex:
		endpoint, maxBatchSize = yandexEndpoint, yandexMaxBatchSize
	default:
		return nil, fmt.Errorf("safebrowsing: %w: vendor %q", errors.ErrBadEnumValue, c.Vendor)
	}

	base := c.BaseEndpoint
	if base == nil {
		base, err = url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("safebrowsing: parsing endpoint: %w", err)
		}
	}

	keyed := func(p string) (u *url.URL) {
		u = base.JoinPath(p)
		q := u.Query()
		q.Set("key", c.APIKey)
		u.RawQuery = q.Encode()

		return u
	}

	return &Client{
		logger:               c.Logger,
		errColl:              c.ErrColl,
		http:                 c.HTTPClient,
		threatListsURL:       keyed("threatLists"),
		threatListUpdatesURL: keyed("threatListUpdates:fetch"),
		threatMatchesURL:     keyed("threatMatches:find"),
		vendor:               c.Vendor,
		lookupPause:          c.LookupPause,
		maxBatchSize:         maxBatchSize,
		maxWorkers:           c.MaxWorkers,
	}, nil
}

// Vendor returns the vendor of the client.
func (c *Client) Vendor() (v dnsbl.Vendor) {
	return c.vendor
}

// clientInfo identifies this application to the API.
type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

// newClientInfo returns the client metadata sent with every request body.
func newClientInfo() (ci *clientInfo) {
	return &clientInfo{
		ClientID:      clientID,
		ClientVersion: clientVersion,
	}
}
