// Package urldb contains the SQLite-backed URL stores.  Each feed owns one
// physical database file with a single urls table; a dedicated store holds the
// synthetic IPv4 address space.  All files live under one databases directory
// and are opened with write-ahead logging and auto-vacuum enabled, so a single
// writer can run alongside concurrent readers.
package urldb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	// Register the SQLite database/sql driver.
	_ "modernc.org/sqlite"
)

// DefaultDirPerm is the default permission mode for the databases directory.
const DefaultDirPerm = 0o755

// ipv4Space is the number of addresses in the full IPv4 address space.
const ipv4Space = int64(1) << 32

// Feed-store and IPv4-store schemas.  The IPv4 table carries no UNIQUE
// constraint and no listed_at column, since its rows are synthetic and only
// ever fully regenerated.
const (
	schemaFeedSQL = `CREATE TABLE IF NOT EXISTS urls (
	url TEXT UNIQUE,
	listed_at INT,
	google_flagged_at INT,
	yandex_flagged_at INT,
	hash BLOB
)`

	schemaIPv4SQL = `CREATE TABLE IF NOT EXISTS urls (
	url TEXT,
	google_flagged_at INT,
	yandex_flagged_at INT,
	hash BLOB
)`
)

// Store is a single URL store.  Store methods are safe for concurrent use as
// long as at most one logical writer operates on the store at a time.
type Store struct {
	logger       *slog.Logger
	db           *sql.DB
	name         string
	prefixDBPath string
	ipSpace      int64
	ipv4         bool
}

// StoreConfig is the configuration structure for a *Store.
type StoreConfig struct {
	// Logger is used for logging the operation of the store.
	Logger *slog.Logger

	// Dir is the path to the databases directory.  It is created if it does
	// not exist yet.
	Dir string

	// Name is the name of the store and of its database file, without the
	// ".db" extension.
	Name string

	// PrefixDBPath is the path to the hash-prefix database file that suspect
	// queries attach.
	PrefixDBPath string

	// SyntheticIPv4 selects the IPv4 store schema and enables
	// [Store.BulkInsertIPs].
	SyntheticIPv4 bool
}

// NewStore opens the database file of the store named c.Name under c.Dir,
// creating the directory, the file, and the schema as necessary.  c must not
// be nil.
func NewStore(c *StoreConfig) (s *Store, err error) {
	err = os.MkdirAll(c.Dir, DefaultDirPerm)
	if err != nil {
		return nil, fmt.Errorf("store %q: creating databases dir: %w", c.Name, err)
	}

	db, err := openDB(filepath.Join(c.Dir, c.Name+".db"))
	if err != nil {
		return nil, fmt.Errorf("store %q: %w", c.Name, err)
	}

	schema := schemaFeedSQL
	if c.SyntheticIPv4 {
		schema = schemaIPv4SQL
	}

	_, err = db.Exec(schema)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("store %q: creating schema: %w", c.Name, err)
	}

	return &Store{
		logger:       c.Logger,
		db:           db,
		name:         c.Name,
		prefixDBPath: c.PrefixDBPath,
		ipSpace:      ipv4Space,
		ipv4:         c.SyntheticIPv4,
	}, nil
}

// openDB opens the SQLite file at dbPath with write-ahead logging,
// auto-vacuum, and a busy timeout for the concurrent reader case.
func openDB(dbPath string) (db *sql.DB, err error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=auto_vacuum(1)&_pragma=busy_timeout(10000)",
		dbPath,
	)

	db, err = sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", dbPath, err)
	}

	return db, nil
}

// Name returns the name of the store.
func (s *Store) Name() (name string) {
	return s.name
}

// Close closes the underlying database.
func (s *Store) Close() (err error) {
	return s.db.Close()
}
