// Package sbhttp contains the HTTP client used to talk to the Safe Browsing
// APIs and the URL feeds, with status checking and a bounded retry policy.
package sbhttp

import (
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/version"
)

// HTTP header value constants.
const (
	HdrValApplicationJSON = "application/json"
)

// userAgent is the cached User-Agent string for the DNSBL generator.
var userAgent = version.Name() + "/" + version.Version()

// UserAgent returns the ID of the application as a User-Agent string.
func UserAgent() (ua string) {
	return userAgent
}
