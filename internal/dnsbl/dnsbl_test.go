package dnsbl_test

import (
	"testing"

	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVendor(t *testing.T) {
	v, err := dnsbl.NewVendor("Google")
	require.NoError(t, err)
	assert.Equal(t, dnsbl.VendorGoogle, v)

	v, err = dnsbl.NewVendor("Yandex")
	require.NoError(t, err)
	assert.Equal(t, dnsbl.VendorYandex, v)

	_, err = dnsbl.NewVendor("google")
	assert.Error(t, err)

	_, err = dnsbl.NewVendor("")
	assert.Error(t, err)
}
