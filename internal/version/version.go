// Package version contains the DNSBL generator version information.
package version

// These can be set by the linker.  Unfortunately, we cannot set constants
// during linking, and Go doesn't have a concept of immutable variables, so to
// be thorough we have to only export them through getters.
var (
	revision string
	version  string

	name = "SafeBrowsingDNSBLGenerator"
)

// Revision returns the compiled-in value of the Git revision.
func Revision() (r string) {
	return revision
}

// Version returns the compiled-in value of the version as a string.
func Version() (v string) {
	return version
}

// Name returns the compiled-in value of the application name.
func Name() (n string) {
	return name
}
