package feed_test

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zipWithCSV builds an in-memory ZIP archive holding a single CSV file.
func zipWithCSV(tb testing.TB, csv string) (data []byte) {
	tb.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	w, err := zw.Create("top10milliondomains.csv")
	require.NoError(tb, err)

	_, err = w.Write([]byte(csv))
	require.NoError(tb, err)

	require.NoError(tb, zw.Close())

	return buf.Bytes()
}

func TestTop10M_Stream(t *testing.T) {
	const csv = `"Rank","Domain","Open Page Rank"
"1","Example.COM","10.00"
"2","another.test","9.99"

"3","THIRD.test","9.98"
`

	archive := zipWithCSV(t, csv)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := feed.NewTop10M(&feed.Top10MConfig{
		Logger:     slogutil.NewDiscardLogger(),
		HTTPClient: newTestHTTPClient(),
		URL:        u,
		MaxSize:    1 * datasize.MB,
	})

	assert.Equal(t, "top10m_urls", f.Name())
	assert.Equal(t, feed.KindHTTPZip, f.Kind())

	var batches [][]string
	err = f.Stream(testContext(t), collectBatches(&batches))
	require.NoError(t, err)

	require.Len(t, batches, 1)
	assert.Equal(t, []string{"example.com", "another.test", "third.test"}, batches[0])
}

func TestTop10M_Stream_failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := feed.NewTop10M(&feed.Top10MConfig{
		Logger:     slogutil.NewDiscardLogger(),
		HTTPClient: newTestHTTPClient(),
		URL:        u,
		MaxSize:    1 * datasize.MB,
	})

	var batches [][]string
	err = f.Stream(testContext(t), collectBatches(&batches))
	assert.Error(t, err)
	assert.Empty(t, batches)
}
