// Package dnsbl contains the common domain entities of the DNSBL generator.
package dnsbl

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
)

// Vendor is the identifier of a Safe Browsing API vendor.
type Vendor string

// Supported Safe Browsing API vendors.
const (
	VendorGoogle Vendor = "Google"
	VendorYandex Vendor = "Yandex"
)

// NewVendor converts s into a Vendor.  It returns an error if s is not a
// supported vendor name.
func NewVendor(s string) (v Vendor, err error) {
	switch v = Vendor(s); v {
	case VendorGoogle, VendorYandex:
		return v, nil
	default:
		return "", fmt.Errorf("vendor: %w: %q", errors.ErrBadEnumValue, s)
	}
}
