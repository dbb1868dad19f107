package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/c2h5oh/datasize"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
)

// HTTPText fetches hostname expressions from a plain text list over HTTP, one
// per line.
type HTTPText struct {
	logger  *slog.Logger
	http    *sbhttp.Client
	url     *url.URL
	name    string
	maxSize datasize.ByteSize
}

// HTTPTextConfig is the configuration structure for an *HTTPText.
type HTTPTextConfig struct {
	// Logger is used for logging the operation of the source.
	Logger *slog.Logger

	// HTTPClient is the transport used for the download.
	HTTPClient *sbhttp.Client

	// URL is the location of the list.
	URL *url.URL

	// Name is the name of the URL store this source feeds.
	Name string

	// MaxSize bounds the size of the downloaded list.
	MaxSize datasize.ByteSize
}

// NewHTTPText returns a new plain-text-list source.  c must not be nil.
func NewHTTPText(c *HTTPTextConfig) (f *HTTPText) {
	return &HTTPText{
		logger:  c.Logger,
		http:    c.HTTPClient,
		url:     c.URL,
		name:    c.Name,
		maxSize: c.MaxSize,
	}
}

// type check
var _ Source = (*HTTPText)(nil)

// Name implements the [Source] interface for *HTTPText.
func (f *HTTPText) Name() (name string) {
	return f.name
}

// Kind implements the [Source] interface for *HTTPText.
func (f *HTTPText) Kind() (kind Kind) {
	return KindHTTPText
}

// Stream implements the [Source] interface for *HTTPText.
func (f *HTTPText) Stream(ctx context.Context, yield BatchFunc) (err error) {
	f.logger.InfoContext(ctx, "downloading list", "feed", f.name)

	resp, err := f.http.Get(ctx, f.url)
	if err != nil {
		return fmt.Errorf("feed %q: downloading: %w", f.name, err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	err = sbhttp.CheckStatus(resp, http.StatusOK)
	if err != nil {
		return fmt.Errorf("feed %q: %w", f.name, err)
	}

	b := newBatcher(yield)

	sc := bufio.NewScanner(io.LimitReader(resp.Body, int64(f.maxSize.Bytes())))
	for sc.Scan() {
		host := normalize(sc.Text())
		if host == "" {
			continue
		}

		err = b.add(ctx, host)
		if err != nil {
			return fmt.Errorf("feed %q: %w", f.name, err)
		}
	}

	err = sc.Err()
	if err != nil {
		return fmt.Errorf("feed %q: scanning: %w", f.name, err)
	}

	return b.flush(ctx)
}
