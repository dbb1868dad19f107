package feed

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/AdguardTeam/golibs/errors"
)

// LocalFile reads hostname expressions from a plain text file on disk, one
// per line.  Blank lines and comments are skipped.
type LocalFile struct {
	logger *slog.Logger
	path   string
	name   string
}

// LocalFileConfig is the configuration structure for a *LocalFile.
type LocalFileConfig struct {
	// Logger is used for logging the operation of the source.
	Logger *slog.Logger

	// Path is the path to the text file.
	Path string

	// Name is the name of the URL store this source feeds.
	Name string
}

// NewLocalFile returns a new local-file source.  c must not be nil.
func NewLocalFile(c *LocalFileConfig) (f *LocalFile) {
	return &LocalFile{
		logger: c.Logger,
		path:   c.Path,
		name:   c.Name,
	}
}

// type check
var _ Source = (*LocalFile)(nil)

// Name implements the [Source] interface for *LocalFile.
func (f *LocalFile) Name() (name string) {
	return f.name
}

// Kind implements the [Source] interface for *LocalFile.
func (f *LocalFile) Kind() (kind Kind) {
	return KindLocalFile
}

// Stream implements the [Source] interface for *LocalFile.
func (f *LocalFile) Stream(ctx context.Context, yield BatchFunc) (err error) {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("feed %q: %w", f.name, err)
	}
	defer func() { err = errors.WithDeferred(err, file.Close()) }()

	b := newBatcher(yield)

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		host := normalize(sc.Text())
		if host == "" {
			continue
		}

		err = b.add(ctx, host)
		if err != nil {
			return fmt.Errorf("feed %q: %w", f.name, err)
		}
	}

	err = sc.Err()
	if err != nil {
		return fmt.Errorf("feed %q: scanning: %w", f.name, err)
	}

	return b.flush(ctx)
}
