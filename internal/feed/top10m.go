package feed

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/c2h5oh/datasize"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/sbhttp"
)

// DefaultTop10MURL is the published location of the DomCop top-ten-million
// domains dump.
const DefaultTop10MURL = "https://www.domcop.com/files/top/top10milliondomains.csv.zip"

// Top10M fetches the DomCop top-domains dump, a CSV of (rank, domain, score)
// rows inside a ZIP archive.
type Top10M struct {
	logger  *slog.Logger
	http    *sbhttp.Client
	url     *url.URL
	maxSize datasize.ByteSize
}

// Top10MConfig is the configuration structure for a *Top10M.
type Top10MConfig struct {
	// Logger is used for logging the operation of the source.
	Logger *slog.Logger

	// HTTPClient is the transport used for the download.
	HTTPClient *sbhttp.Client

	// URL is the location of the ZIP archive.
	URL *url.URL

	// MaxSize bounds the size of the downloaded archive.
	MaxSize datasize.ByteSize
}

// NewTop10M returns a new top-ten-million-domains source.  c must not be nil.
func NewTop10M(c *Top10MConfig) (f *Top10M) {
	return &Top10M{
		logger:  c.Logger,
		http:    c.HTTPClient,
		url:     c.URL,
		maxSize: c.MaxSize,
	}
}

// type check
var _ Source = (*Top10M)(nil)

// Name implements the [Source] interface for *Top10M.
func (f *Top10M) Name() (name string) {
	return "top10m_urls"
}

// Kind implements the [Source] interface for *Top10M.
func (f *Top10M) Kind() (kind Kind) {
	return KindHTTPZip
}

// Stream implements the [Source] interface for *Top10M.
func (f *Top10M) Stream(ctx context.Context, yield BatchFunc) (err error) {
	f.logger.InfoContext(ctx, "downloading top10m list")

	data, err := f.download(ctx)
	if err != nil {
		return fmt.Errorf("feed top10m: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("feed top10m: opening archive: %w", err)
	}

	if len(zr.File) == 0 {
		return errors.Error("feed top10m: empty archive")
	}

	csvFile, err := zr.File[0].Open()
	if err != nil {
		return fmt.Errorf("feed top10m: opening csv: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, csvFile.Close()) }()

	f.logger.InfoContext(ctx, "downloading top10m list done", "size", len(data))

	return f.scanCSV(ctx, csvFile, yield)
}

// download fetches the whole archive into memory, bounded by the configured
// maximum size.
func (f *Top10M) download(ctx context.Context) (data []byte, err error) {
	resp, err := f.http.Get(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("downloading: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	err = sbhttp.CheckStatus(resp, http.StatusOK)
	if err != nil {
		// Don't wrap the error, because it's informative enough as is.
		return nil, err
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, int64(f.maxSize.Bytes())))
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	return data, nil
}

// scanCSV yields the domain column of every data row in batches.
func (f *Top10M) scanCSV(ctx context.Context, r io.Reader, yield BatchFunc) (err error) {
	b := newBatcher(yield)

	sc := bufio.NewScanner(r)
	header := true
	for sc.Scan() {
		if header {
			header = false

			continue
		}

		fields := strings.Split(sc.Text(), ",")
		if len(fields) < 2 {
			continue
		}

		host := normalize(strings.Trim(fields[1], `"`))
		if host == "" {
			continue
		}

		err = b.add(ctx, host)
		if err != nil {
			return fmt.Errorf("feed top10m: %w", err)
		}
	}

	err = sc.Err()
	if err != nil {
		return fmt.Errorf("feed top10m: scanning csv: %w", err)
	}

	return b.flush(ctx)
}
