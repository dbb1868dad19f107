package feed_test

import (
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

func TestHTTPText_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# hosts\nMalware.TEST\n\nphishing.test\n"))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	f := feed.NewHTTPText(&feed.HTTPTextConfig{
		Logger:     slogutil.NewDiscardLogger(),
		HTTPClient: newTestHTTPClient(),
		URL:        u,
		Name:       "hostlist_urls",
		MaxSize:    1 * datasize.MB,
	})

	assert.Equal(t, "hostlist_urls", f.Name())
	assert.Equal(t, feed.KindHTTPText, f.Kind())

	var batches [][]string
	err = f.Stream(testContext(t), collectBatches(&batches))
	require.NoError(t, err)

	require.Len(t, batches, 1)
	assert.Equal(t, []string{"malware.test", "phishing.test"}, batches[0])
}
