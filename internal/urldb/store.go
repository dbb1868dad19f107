package urldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/dnsbl"
	"github.com/elliotwutingfeng/Google-Safe-Browsing-DNSBL-Generator/internal/urlhash"
)

// markFlaggedChunkSize is the largest number of urls put into a single
// IN-clause by [Store.MarkFlagged], keeping the statement well under the
// SQLite bound-parameter ceiling.
const markFlaggedChunkSize = 30_000

// flagColumn returns the column holding the flag timestamp of vendor.
func flagColumn(vendor dnsbl.Vendor) (col string, err error) {
	switch vendor {
	case dnsbl.VendorGoogle:
		return "google_flagged_at", nil
	case dnsbl.VendorYandex:
		return "yandex_flagged_at", nil
	default:
		return "", fmt.Errorf("flag column: %w: %q", errors.ErrBadEnumValue, vendor)
	}
}

// UpsertBatch inserts every url in urls together with its hash and listedAt
// within a single transaction.  A url already present only has its listed_at
// advanced; listed_at never regresses and the stored hash is left untouched.
func (s *Store) UpsertBatch(ctx context.Context, listedAt int64, urls []string) (err error) {
	if len(urls) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store %q: upsert: begin: %w", s.name, err)
	}
	defer func() { err = errors.WithDeferred(err, finishTx(tx, err)) }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO urls (url, listed_at, hash)
	VALUES (?, ?, ?)
	ON CONFLICT(url)
	DO UPDATE SET listed_at = MAX(listed_at, excluded.listed_at)`)
	if err != nil {
		return fmt.Errorf("store %q: upsert: prepare: %w", s.name, err)
	}
	defer func() { err = errors.WithDeferred(err, stmt.Close()) }()

	for _, u := range urls {
		h := urlhash.Sum(u)
		_, err = stmt.ExecContext(ctx, u, listedAt, h[:])
		if err != nil {
			return fmt.Errorf("store %q: upsert %q: %w", s.name, u, err)
		}
	}

	return nil
}

// MarkFlagged sets the flag column of vendor to at for every row whose url is
// in urls.  The statement is chunked to respect the bound-parameter ceiling.
func (s *Store) MarkFlagged(
	ctx context.Context,
	vendor dnsbl.Vendor,
	urls []string,
	at int64,
) (err error) {
	col, err := flagColumn(vendor)
	if err != nil {
		return fmt.Errorf("store %q: mark flagged: %w", s.name, err)
	}

	for len(urls) > 0 {
		chunk := urls
		if len(chunk) > markFlaggedChunkSize {
			chunk = chunk[:markFlaggedChunkSize]
		}
		urls = urls[len(chunk):]

		err = s.markFlaggedChunk(ctx, col, chunk, at)
		if err != nil {
			return fmt.Errorf("store %q: mark flagged: %w", s.name, err)
		}
	}

	return nil
}

// markFlaggedChunk updates one IN-clause chunk within its own transaction.
func (s *Store) markFlaggedChunk(
	ctx context.Context,
	col string,
	chunk []string,
	at int64,
) (err error) {
	q := fmt.Sprintf(
		`UPDATE urls SET %s = ? WHERE url IN (%s)`,
		col,
		strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ","),
	)

	args := make([]any, 0, len(chunk)+1)
	args = append(args, at)
	for _, u := range chunk {
		args = append(args, u)
	}

	_, err = s.db.ExecContext(ctx, q, args...)

	return err
}

// LatestFlagged returns the urls whose google_flagged_at or yandex_flagged_at
// equals the per-column maximum, that is, the urls confirmed malicious in the
// most recent run.  A store with no flagged rows yields nothing.
func (s *Store) LatestFlagged(ctx context.Context) (urls []string, err error) {
	var googleMax, yandexMax sql.NullInt64
	err = s.db.QueryRowContext(
		ctx,
		`SELECT MAX(google_flagged_at), MAX(yandex_flagged_at) FROM urls`,
	).Scan(&googleMax, &yandexMax)
	if err != nil {
		return nil, fmt.Errorf("store %q: latest flagged: maxima: %w", s.name, err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT url FROM urls WHERE google_flagged_at = ? OR yandex_flagged_at = ?`,
		googleMax,
		yandexMax,
	)
	if err != nil {
		return nil, fmt.Errorf("store %q: latest flagged: %w", s.name, err)
	}
	defer func() { err = errors.WithDeferred(err, rows.Close()) }()

	for rows.Next() {
		var u string
		err = rows.Scan(&u)
		if err != nil {
			return nil, fmt.Errorf("store %q: latest flagged: scan: %w", s.name, err)
		}

		urls = append(urls, u)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("store %q: latest flagged: rows: %w", s.name, err)
	}

	return urls, nil
}

// attachCounter distinguishes the schema names under which concurrent suspect
// queries attach the hash-prefix database.
var attachCounter atomic.Uint64

// SelectSuspects returns the distinct urls whose hash's leading prefixSize
// bytes appear in the hash-prefix store restricted to vendor.  The hash-prefix
// database is attached under a worker-local name for the duration of the
// query.
func (s *Store) SelectSuspects(
	ctx context.Context,
	prefixSize int,
	vendor dnsbl.Vendor,
) (urls []string, err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store %q: suspects: conn: %w", s.name, err)
	}
	defer func() { err = errors.WithDeferred(err, conn.Close()) }()

	attachName := fmt.Sprintf("malicious_%d", attachCounter.Add(1))
	_, err = conn.ExecContext(ctx, fmt.Sprintf("ATTACH DATABASE ? AS %s", attachName), s.prefixDBPath)
	if err != nil {
		return nil, fmt.Errorf("store %q: suspects: attach: %w", s.name, err)
	}
	defer func() {
		_, detachErr := conn.ExecContext(ctx, fmt.Sprintf("DETACH DATABASE %s", attachName))
		err = errors.WithDeferred(err, detachErr)
	}()

	q := fmt.Sprintf(`SELECT DISTINCT url FROM urls
	WHERE substr(urls.hash, 1, ?) IN (
		SELECT prefix FROM %s.maliciousHashPrefixes
		WHERE vendor = ? AND prefix_size = ?
	)`, attachName)

	rows, err := conn.QueryContext(ctx, q, prefixSize, vendor, prefixSize)
	if err != nil {
		return nil, fmt.Errorf("store %q: suspects: query: %w", s.name, err)
	}
	defer func() { err = errors.WithDeferred(err, rows.Close()) }()

	for rows.Next() {
		var u string
		err = rows.Scan(&u)
		if err != nil {
			return nil, fmt.Errorf("store %q: suspects: scan: %w", s.name, err)
		}

		urls = append(urls, u)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("store %q: suspects: rows: %w", s.name, err)
	}

	return urls, nil
}

// Count returns the number of rows in the urls table.
func (s *Store) Count(ctx context.Context) (n int64, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM urls`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store %q: count: %w", s.name, err)
	}

	return n, nil
}

// finishTx commits tx when opErr is nil and rolls it back otherwise.
func finishTx(tx *sql.Tx, opErr error) (err error) {
	if opErr != nil {
		return tx.Rollback()
	}

	return tx.Commit()
}
