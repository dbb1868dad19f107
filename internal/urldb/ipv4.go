package urldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urlhash"
)

// ErrNotIPv4 is returned by [Store.BulkInsertIPs] when the store was not
// created with SyntheticIPv4.
const ErrNotIPv4 errors.Error = "not an ipv4 store"

// ipv4ProgressStep is how many inserted addresses pass between progress log
// lines during a full regeneration.
const ipv4ProgressStep = int64(1) << 24

// BulkInsertIPs fills the store with the dotted-quad text and hash of every
// address in the IPv4 space.  When the table already holds the full space the
// call is a no-op; any other row count purges the table and regenerates it.
// Addresses are streamed straight into the insert statement, so peak memory
// does not depend on the size of the space.
func (s *Store) BulkInsertIPs(ctx context.Context) (err error) {
	if !s.ipv4 {
		return fmt.Errorf("store %q: %w", s.name, ErrNotIPv4)
	}

	var rowCount sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT MAX(_rowid_) FROM urls`).Scan(&rowCount)
	if err != nil {
		return fmt.Errorf("store %q: bulk insert ips: count: %w", s.name, err)
	}

	if rowCount.Valid && rowCount.Int64 == s.ipSpace {
		s.logger.DebugContext(ctx, "ipv4 store already populated")

		return nil
	}

	s.logger.InfoContext(ctx, "regenerating ipv4 store", "addrs", s.ipSpace)

	_, err = s.db.ExecContext(ctx, `DELETE FROM urls`)
	if err != nil {
		return fmt.Errorf("store %q: bulk insert ips: purge: %w", s.name, err)
	}

	err = s.insertAllIPs(ctx)
	if err != nil {
		return fmt.Errorf("store %q: bulk insert ips: %w", s.name, err)
	}

	s.logger.InfoContext(ctx, "regenerating ipv4 store done", "addrs", s.ipSpace)

	return nil
}

// insertAllIPs inserts the whole address space within one transaction.
func (s *Store) insertAllIPs(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, finishTx(tx, err)) }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO urls (url, hash) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, stmt.Close()) }()

	for addr := int64(0); addr < s.ipSpace; addr++ {
		text := urlhash.IPv4Text(uint32(addr))
		h := urlhash.Sum(text)
		_, err = stmt.ExecContext(ctx, text, h[:])
		if err != nil {
			return fmt.Errorf("inserting %q: %w", text, err)
		}

		if addr%ipv4ProgressStep == 0 && addr > 0 {
			s.logger.InfoContext(ctx, "ipv4 progress", "inserted", addr, "total", s.ipSpace)
		}
	}

	return nil
}
