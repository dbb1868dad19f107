package errcoll

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"
)

// WriterErrorCollector is an [Interface] implementation that writes errors to
// an io.Writer.
type WriterErrorCollector struct {
	w io.Writer
}

// NewWriterErrorCollector returns a new properly initialized
// *WriterErrorCollector.
func NewWriterErrorCollector(w io.Writer) (c *WriterErrorCollector) {
	return &WriterErrorCollector{
		w: w,
	}
}

// type check
var _ Interface = (*WriterErrorCollector)(nil)

// Collect implements the [Interface] interface for *WriterErrorCollector.
func (c *WriterErrorCollector) Collect(ctx context.Context, err error) {
	_, _ = fmt.Fprintf(c.w, "%s: %s: caught error: %s\n", time.Now(), caller(2), err)
}

// caller returns the caller position as a "file:line" string.  depth is the
// number of stack frames to skip, not counting caller itself.
func caller(depth int) (callerPos string) {
	_, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return "<position unknown>"
	}

	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}

	return fmt.Sprintf("%s:%d", file, line)
}
