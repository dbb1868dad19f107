package errcoll_test

import (
	"context"
	"strings"
	"testing"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/errcoll"
	"github.com/stretchr/testify/assert"
)

func TestWriterErrorCollector(t *testing.T) {
	sb := &strings.Builder{}
	c := errcoll.NewWriterErrorCollector(sb)

	c.Collect(context.Background(), errors.Error("test error"))

	got := sb.String()
	assert.Contains(t, got, "caught error")
	assert.Contains(t, got, "test error")
}
