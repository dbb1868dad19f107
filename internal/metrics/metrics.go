// Package metrics contains definitions of the prometheus metrics of the DNSBL
// generator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// constants with the namespace and the subsystem names that we use in our
// prometheus metrics.
const (
	namespace = "dnsbl"

	subsystemFeed         = "feed"
	subsystemSafeBrowsing = "safebrowsing"
)

// URLsIngested is the total number of urls ingested into the stores, by feed.
var URLsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "urls_ingested_total",
	Namespace: namespace,
	Subsystem: subsystemFeed,
	Help:      "Total number of urls ingested into the url stores.",
}, []string{"feed"})

// HashPrefixes is the number of hash prefixes most recently stored, by
// vendor.
var HashPrefixes = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name:      "hash_prefixes",
	Namespace: namespace,
	Subsystem: subsystemSafeBrowsing,
	Help:      "Number of hash prefixes stored after the last update.",
}, []string{"vendor"})

// UpdateStatus is 1 when the last Update-API fetch of the vendor succeeded
// and 0 otherwise.
var UpdateStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name:      "update_status",
	Namespace: namespace,
	Subsystem: subsystemSafeBrowsing,
	Help:      "Status of the last hash-prefix update, 1 for success.",
}, []string{"vendor"})

// Suspects is the number of suspected urls found in the last pre-filter pass,
// by feed and vendor.
var Suspects = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name:      "suspects",
	Namespace: namespace,
	Subsystem: subsystemSafeBrowsing,
	Help:      "Number of suspected urls in the last pre-filter pass.",
}, []string{"feed", "vendor"})

// ConfirmedURLs is the number of urls confirmed malicious in the last run, by
// vendor.
var ConfirmedURLs = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name:      "confirmed_urls",
	Namespace: namespace,
	Subsystem: subsystemSafeBrowsing,
	Help:      "Number of urls confirmed malicious in the last run.",
}, []string{"vendor"})

// SetStatusGauge is a helper function that automatically checks if there's an
// error and sets the gauge to either 1 (success) or 0 (error).
func SetStatusGauge(gauge prometheus.Gauge, err error) {
	if err == nil {
		gauge.Set(1)
	} else {
		gauge.Set(0)
	}
}
