package feed

import "context"

// IPv4 is the synthetic feed covering the whole IPv4 address space.  It
// streams nothing itself; the store of this feed bulk-generates its rows.
type IPv4 struct{}

// NewIPv4 returns the synthetic IPv4 source.
func NewIPv4() (f *IPv4) {
	return &IPv4{}
}

// type check
var _ Source = (*IPv4)(nil)

// Name implements the [Source] interface for *IPv4.
func (f *IPv4) Name() (name string) {
	return "ipv4"
}

// Kind implements the [Source] interface for *IPv4.
func (f *IPv4) Kind() (kind Kind) {
	return KindIPv4
}

// Stream implements the [Source] interface for *IPv4.  It yields nothing.
func (f *IPv4) Stream(_ context.Context, _ BatchFunc) (err error) {
	return nil
}
