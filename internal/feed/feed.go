// Package feed contains the sources of candidate URLs.  A source yields
// batches of normalized hostname expressions, lowercased and scheme-free,
// destined for the URL store named by the source.  The synthetic IPv4 source
// is a tag only; its population is bulk-generated by the store itself.
package feed

import (
	"context"
	"strings"
)

// Kind is the kind of a feed source.
type Kind uint8

// Feed source kinds.
const (
	KindLocalFile Kind = iota + 1
	KindHTTPZip
	KindHTTPText
	KindIPv4
)

// BatchSize is the number of hostname expressions in a full batch yielded by
// the streaming sources.
const BatchSize = 15_000

// BatchFunc is called by a source for every batch of normalized hostname
// expressions.  Returning an error stops the stream.
type BatchFunc func(ctx context.Context, batch []string) (err error)

// Source is a single feed of candidate URLs.
type Source interface {
	// Name returns the name of the URL store this source feeds.
	Name() (name string)

	// Kind returns the kind tag of this source.
	Kind() (kind Kind)

	// Stream produces all batches of the feed in order, calling yield for
	// each.  Sources of [KindIPv4] produce nothing.
	Stream(ctx context.Context, yield BatchFunc) (err error)
}

// normalize converts a raw feed line into a normalized hostname expression.
// It returns an empty string for lines that carry none, such as blanks and
// comments.
func normalize(line string) (host string) {
	host = strings.ToLower(strings.TrimSpace(line))
	if host == "" || host[0] == '#' {
		return ""
	}

	return host
}

// batcher accumulates hostname expressions and flushes them in batches of
// [BatchSize] through yield.
type batcher struct {
	yield BatchFunc
	buf   []string
}

// newBatcher returns a batcher flushing into yield.
func newBatcher(yield BatchFunc) (b *batcher) {
	return &batcher{
		yield: yield,
		buf:   make([]string, 0, BatchSize),
	}
}

// add appends host to the current batch, flushing it if full.
func (b *batcher) add(ctx context.Context, host string) (err error) {
	b.buf = append(b.buf, host)
	if len(b.buf) < BatchSize {
		return nil
	}

	return b.flush(ctx)
}

// flush yields the current batch, if any.
func (b *batcher) flush(ctx context.Context) (err error) {
	if len(b.buf) == 0 {
		return nil
	}

	err = b.yield(ctx, b.buf)
	b.buf = make([]string, 0, BatchSize)

	return err
}
