// Package urlhash computes the Safe Browsing canonical hashes of hostname
// expressions and extracts hash prefixes from them.
package urlhash

import (
	"crypto/sha256"
	"strconv"
)

// Hash and hash part length constants.
const (
	// Size is the length of the whole hash of a hostname expression.
	Size = sha256.Size

	// MinPrefixLen is the smallest hash-prefix length published by the Safe
	// Browsing API.
	MinPrefixLen = 4

	// MaxPrefixLen is the largest hash-prefix length published by the Safe
	// Browsing API, which is the whole hash.
	MaxPrefixLen = Size
)

// Sum returns the SHA-256 hash of the canonical form of url, which is the
// hostname expression as stored, lowercased and scheme-free, with a single
// trailing slash appended.  url must already be normalized; Sum performs no
// further normalization.
func Sum(url string) (h [Size]byte) {
	return sha256.Sum256([]byte(url + "/"))
}

// Prefix returns the leading n bytes of h.  n must be between [MinPrefixLen]
// and [MaxPrefixLen].  The result shares no storage with h.
func Prefix(h [Size]byte, n int) (p []byte) {
	p = make([]byte, n)
	copy(p, h[:n])

	return p
}

// IPv4Text renders addr as a big-endian dotted quad, e.g. 0x7F000001 becomes
// "127.0.0.1".
func IPv4Text(addr uint32) (text string) {
	b := make([]byte, 0, 15)
	b = strconv.AppendUint(b, uint64(addr>>24), 10)
	b = append(b, '.')
	b = strconv.AppendUint(b, uint64(addr>>16&0xFF), 10)
	b = append(b, '.')
	b = strconv.AppendUint(b, uint64(addr>>8&0xFF), 10)
	b = append(b, '.')
	b = strconv.AppendUint(b, uint64(addr&0xFF), 10)

	return string(b)
}
