package cmd

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/feed"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/prefixdb"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/safebrowsing"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urldb"
)

// Feed source tags recognized in the SOURCES environment variable.
const (
	srcTagTop10M    = "top10m"
	srcTagBlocklist = "blocklist"
	srcTagHostlist  = "hostlist"
	srcTagIPv4      = "ipv4"
)

// maxFeedSize bounds the size of a downloaded feed body.
const maxFeedSize = 512 * datasize.MB

// HTTP transport defaults.
const (
	httpTimeout = 3 * time.Minute
	httpBackoff = 1 * time.Second
	httpRetries = 4
)

// splitTags splits a comma-separated tag list, trimming whitespace and
// dropping empty entries.
func splitTags(s string) (tags []string) {
	for _, tag := range strings.Split(s, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}

	return tags
}

// buildHTTPClient returns the shared HTTP transport.
func (envs *environments) buildHTTPClient(logger *slog.Logger) (cli *sbhttp.Client) {
	return sbhttp.NewClient(&sbhttp.ClientConfig{
		Logger:  logger.With(slogutil.KeyPrefix, "sbhttp"),
		Timeout: httpTimeout,
		Backoff: httpBackoff,
		Retries: httpRetries,
	})
}

// apiKey returns the configured API key of vendor, which may be empty.
func (envs *environments) apiKey(vendor dnsbl.Vendor) (key string) {
	switch vendor {
	case dnsbl.VendorGoogle:
		return envs.GoogleAPIKey
	case dnsbl.VendorYandex:
		return envs.YandexAPIKey
	default:
		return ""
	}
}

// buildVendorClients returns a Safe Browsing API client per enabled vendor.
// An unknown vendor tag or a missing API key is a configuration error.
func (envs *environments) buildVendorClients(
	logger *slog.Logger,
	errColl errcoll.Interface,
	httpCli *sbhttp.Client,
	maxWorkers int,
) (clients []*safebrowsing.Client, err error) {
	for _, tag := range splitTags(envs.Vendors) {
		vendor, vErr := dnsbl.NewVendor(tag)
		if vErr != nil {
			return nil, vErr
		}

		key := envs.apiKey(vendor)
		if key == "" {
			return nil, fmt.Errorf("vendor %s: api key is required", vendor)
		}

		cli, cErr := safebrowsing.NewClient(&safebrowsing.ClientConfig{
			Logger:      logger.With(slogutil.KeyPrefix, "safebrowsing"),
			ErrColl:     errColl,
			HTTPClient:  httpCli,
			Vendor:      vendor,
			APIKey:      key,
			LookupPause: safebrowsing.DefaultLookupPause,
			MaxWorkers:  maxWorkers,
		})
		if cErr != nil {
			return nil, cErr
		}

		clients = append(clients, cli)
	}

	return clients, nil
}

// buildSources returns a feed source per enabled source tag.  An unknown tag
// or a tag missing its configuration is a configuration error.
func (envs *environments) buildSources(
	logger *slog.Logger,
	httpCli *sbhttp.Client,
) (sources []feed.Source, err error) {
	feedLogger := logger.With(slogutil.KeyPrefix, "feed")

	for _, tag := range splitTags(envs.Sources) {
		switch tag {
		case srcTagTop10M:
			var u *url.URL
			if envs.Top10MURL != nil {
				u = &envs.Top10MURL.URL
			} else {
				u, err = url.Parse(feed.DefaultTop10MURL)
				if err != nil {
					return nil, fmt.Errorf("source %s: %w", tag, err)
				}
			}

			sources = append(sources, feed.NewTop10M(&feed.Top10MConfig{
				Logger:     feedLogger,
				HTTPClient: httpCli,
				URL:        u,
				MaxSize:    maxFeedSize,
			}))
		case srcTagBlocklist:
			if envs.BlocklistPath == "" {
				return nil, fmt.Errorf("source %s: BLOCKLIST_PATH is required", tag)
			}

			sources = append(sources, feed.NewLocalFile(&feed.LocalFileConfig{
				Logger: feedLogger,
				Path:   envs.BlocklistPath,
				Name:   "blocklist_urls",
			}))
		case srcTagHostlist:
			if envs.HostlistURL == nil {
				return nil, fmt.Errorf("source %s: HOSTLIST_URL is required", tag)
			}

			sources = append(sources, feed.NewHTTPText(&feed.HTTPTextConfig{
				Logger:     feedLogger,
				HTTPClient: httpCli,
				URL:        &envs.HostlistURL.URL,
				Name:       "hostlist_urls",
				MaxSize:    maxFeedSize,
			}))
		case srcTagIPv4:
			sources = append(sources, feed.NewIPv4())
		default:
			return nil, fmt.Errorf("source: %w: %q", errors.ErrBadEnumValue, tag)
		}
	}

	return sources, nil
}

// buildStores opens the hash-prefix store and one URL store per source.
func (envs *environments) buildStores(
	logger *slog.Logger,
	sources []feed.Source,
) (stores map[string]*urldb.Store, prefixes *prefixdb.Store, err error) {
	prefixes, err = prefixdb.NewStore(&prefixdb.StoreConfig{
		Logger: logger.With(slogutil.KeyPrefix, "prefixdb"),
		Dir:    envs.DatabasesDir,
	})
	if err != nil {
		return nil, nil, err
	}

	storeLogger := logger.With(slogutil.KeyPrefix, "urldb")

	stores = map[string]*urldb.Store{}
	for _, src := range sources {
		stores[src.Name()], err = urldb.NewStore(&urldb.StoreConfig{
			Logger:        storeLogger,
			Dir:           envs.DatabasesDir,
			Name:          src.Name(),
			PrefixDBPath:  prefixes.Path(),
			SyntheticIPv4: src.Kind() == feed.KindIPv4,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return stores, prefixes, nil
}
