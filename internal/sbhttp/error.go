package sbhttp

import (
	"fmt"
	"net/http"
)

// StatusError is returned by methods when the HTTP status code is different
// from the expected.
type StatusError struct {
	Expected int
	Got      int
}

// type check
var _ error = (*StatusError)(nil)

// Error implements the error interface for *StatusError.
func (err *StatusError) Error() (msg string) {
	if err.Expected == 0 {
		return fmt.Sprintf("status code error: got %d", err.Got)
	}

	return fmt.Sprintf("status code error: expected %d, got %d", err.Expected, err.Got)
}

// CheckStatus returns a non-nil error with the data from resp if the status
// code in resp is not equal to expected.  resp must be non-nil.
//
// Any error returned will have the underlying type of *StatusError.
func CheckStatus(resp *http.Response, expected int) (err error) {
	if resp.StatusCode == expected {
		return nil
	}

	return &StatusError{
		Expected: expected,
		Got:      resp.StatusCode,
	}
}
