// Package prefixdb contains the SQLite-backed store of the malicious hash
// prefixes published by the Safe Browsing API vendors.  The store is written
// by whole-vendor replacement only and is read by the suspect queries of
// package urldb through a temporary cross-file attach.
package prefixdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"

	// Register the SQLite database/sql driver.
	_ "modernc.org/sqlite"
)

// DefaultName is the name of the hash-prefix database file, without the ".db"
// extension.
const DefaultName = "malicious"

// schemaSQL creates the hash-prefix table.
const schemaSQL = `CREATE TABLE IF NOT EXISTS maliciousHashPrefixes (
	prefix BLOB,
	prefix_size INT,
	vendor TEXT
)`

// Store is the hash-prefix store.  It is safe for concurrent use.
type Store struct {
	logger *slog.Logger
	db     *sql.DB
	path   string
}

// StoreConfig is the configuration structure for a *Store.
type StoreConfig struct {
	// Logger is used for logging the operation of the store.
	Logger *slog.Logger

	// Dir is the path to the databases directory.  It is created if it does
	// not exist yet.
	Dir string
}

// NewStore opens the hash-prefix database under c.Dir, creating the
// directory, the file, and the schema as necessary.  c must not be nil.
func NewStore(c *StoreConfig) (s *Store, err error) {
	err = os.MkdirAll(c.Dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("prefixdb: creating databases dir: %w", err)
	}

	dbPath := filepath.Join(c.Dir, DefaultName+".db")
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=auto_vacuum(1)&_pragma=busy_timeout(10000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("prefixdb: opening %q: %w", dbPath, err)
	}

	_, err = db.Exec(schemaSQL)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("prefixdb: creating schema: %w", err)
	}

	return &Store{
		logger: c.Logger,
		db:     db,
		path:   dbPath,
	}, nil
}

// Path returns the filesystem path of the database file, for cross-file
// attaching.
func (s *Store) Path() (dbPath string) {
	return s.path
}

// Close closes the underlying database.
func (s *Store) Close() (err error) {
	return s.db.Close()
}

// ReplaceVendor replaces all prefixes of vendor with prefixes within a single
// transaction, so that no reader ever observes a partially replaced vendor.
func (s *Store) ReplaceVendor(
	ctx context.Context,
	vendor dnsbl.Vendor,
	prefixes [][]byte,
) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("prefixdb: replace %q: begin: %w", vendor, err)
	}
	defer func() {
		if err != nil {
			err = errors.WithDeferred(err, tx.Rollback())
		} else {
			err = tx.Commit()
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM maliciousHashPrefixes WHERE vendor = ?`, vendor)
	if err != nil {
		return fmt.Errorf("prefixdb: replace %q: delete: %w", vendor, err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO maliciousHashPrefixes (prefix, prefix_size, vendor) VALUES (?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prefixdb: replace %q: prepare: %w", vendor, err)
	}
	defer func() { err = errors.WithDeferred(err, stmt.Close()) }()

	for _, p := range prefixes {
		_, err = stmt.ExecContext(ctx, p, len(p), vendor)
		if err != nil {
			return fmt.Errorf("prefixdb: replace %q: insert: %w", vendor, err)
		}
	}

	s.logger.InfoContext(ctx, "replaced vendor prefixes", "vendor", vendor, "count", len(prefixes))

	return nil
}

// DistinctSizes returns the distinct prefix sizes stored for vendor in
// ascending order.  A vendor with no prefixes yields an empty slice.
func (s *Store) DistinctSizes(ctx context.Context, vendor dnsbl.Vendor) (sizes []int, err error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT prefix_size FROM maliciousHashPrefixes WHERE vendor = ? ORDER BY prefix_size`,
		vendor,
	)
	if err != nil {
		return nil, fmt.Errorf("prefixdb: distinct sizes %q: %w", vendor, err)
	}
	defer func() { err = errors.WithDeferred(err, rows.Close()) }()

	for rows.Next() {
		var n int
		err = rows.Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("prefixdb: distinct sizes %q: scan: %w", vendor, err)
		}

		sizes = append(sizes, n)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("prefixdb: distinct sizes %q: rows: %w", vendor, err)
	}

	return sizes, nil
}
