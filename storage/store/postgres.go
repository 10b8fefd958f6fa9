package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresStore implements the Store interface on PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string, minConns, maxConns int, logger *log.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database DSN: %w", err)
	}
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Printf("Database pool created (min: %d, max: %d)", minConns, maxConns)
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// InsertPending inserts a PENDING entry, first writer wins.
func (s *PostgresStore) InsertPending(ctx context.Context, e Entry) (bool, error) {
	const query = `
		INSERT INTO delivery_ledger (delivery_id, sender, message_type, status, attempts, payload, first_seen_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $6)
		ON CONFLICT (delivery_id) DO NOTHING
	`

	firstSeen := e.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, query, e.DeliveryID, e.Sender, e.MessageType, StatusPending, e.Payload, firstSeen)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ClaimForProcessing claims the entry for this worker, bumping attempts.
// A PROCESSING row is only claimable once its claim has gone stale, so two
// workers handed the same delivery ID concurrently cannot both win. Entries
// over the attempt budget are flipped to FAILED in the same statement so the
// caller can drop them without a second round trip.
func (s *PostgresStore) ClaimForProcessing(ctx context.Context, deliveryID string, maxAttempts int, staleAfter time.Duration) (*Entry, bool, error) {
	const query = `
		UPDATE delivery_ledger
		SET status = CASE WHEN attempts >= $2 THEN 'FAILED' ELSE 'PROCESSING' END,
		    last_error = CASE WHEN attempts >= $2 THEN 'attempt budget exhausted' ELSE last_error END,
		    attempts = attempts + 1,
		    updated_at = NOW()
		WHERE delivery_id = $1
		  AND (status = 'PENDING'
		       OR (status = 'PROCESSING' AND updated_at < NOW() - make_interval(secs => $3)))
		RETURNING delivery_id, sender, message_type, status, attempts, COALESCE(last_error, ''), first_seen_at, updated_at
	`

	e := &Entry{}
	err := s.pool.QueryRow(ctx, query, deliveryID, maxAttempts, staleAfter.Seconds()).Scan(
		&e.DeliveryID, &e.Sender, &e.MessageType, &e.Status, &e.Attempts, &e.LastError, &e.FirstSeenAt, &e.UpdatedAt,
	)
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("claim ledger entry: %w", err)
	}

	// No claimable row: the entry is already terminal, held by a live claim,
	// or never reached the ledger. Report what we see without claiming it.
	const lookup = `
		SELECT delivery_id, sender, message_type, status, attempts, COALESCE(last_error, ''), first_seen_at, updated_at
		FROM delivery_ledger
		WHERE delivery_id = $1
	`
	err = s.pool.QueryRow(ctx, lookup, deliveryID).Scan(
		&e.DeliveryID, &e.Sender, &e.MessageType, &e.Status, &e.Attempts, &e.LastError, &e.FirstSeenAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup ledger entry: %w", err)
	}
	return e, false, nil
}

// MarkSucceeded records a terminal success.
func (s *PostgresStore) MarkSucceeded(ctx context.Context, deliveryID string) error {
	const query = `
		UPDATE delivery_ledger
		SET status = 'SUCCEEDED', last_error = NULL, updated_at = NOW()
		WHERE delivery_id = $1
	`
	if _, err := s.pool.Exec(ctx, query, deliveryID); err != nil {
		return fmt.Errorf("mark ledger entry succeeded: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure.
func (s *PostgresStore) MarkFailed(ctx context.Context, deliveryID string, reason string) error {
	const query = `
		UPDATE delivery_ledger
		SET status = 'FAILED', last_error = $2, updated_at = NOW()
		WHERE delivery_id = $1
	`
	if _, err := s.pool.Exec(ctx, query, deliveryID, reason); err != nil {
		return fmt.Errorf("mark ledger entry failed: %w", err)
	}
	return nil
}

// ReclaimStuck resets entries stuck past the grace window back to PENDING
// and returns them. PENDING rows that old lost their queue publish; stale
// PROCESSING rows belong to a worker that died or to a broker whose
// acknowledgement path cannot redeliver, so the sweep is their only way back
// into the queue. The reset bumps updated_at, which keeps the same row out of
// the next sweep until the window passes again.
func (s *PostgresStore) ReclaimStuck(ctx context.Context, olderThan time.Duration, limit int) ([]Entry, error) {
	const query = `
		UPDATE delivery_ledger
		SET status = 'PENDING', updated_at = NOW()
		WHERE delivery_id IN (
			SELECT delivery_id
			FROM delivery_ledger
			WHERE status IN ('PENDING', 'PROCESSING')
			  AND updated_at < NOW() - make_interval(secs => $1)
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING delivery_id, sender, message_type, status, attempts, COALESCE(last_error, ''), payload, first_seen_at, updated_at
	`

	rows, err := s.pool.Query(ctx, query, olderThan.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("reclaim stuck ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.DeliveryID, &e.Sender, &e.MessageType, &e.Status, &e.Attempts, &e.LastError, &e.Payload, &e.FirstSeenAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stuck ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeOlderThan deletes entries past the retention window.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	const query = `DELETE FROM delivery_ledger WHERE first_seen_at < NOW() - make_interval(secs => $1)`

	tag, err := s.pool.Exec(ctx, query, age.Seconds())
	if err != nil {
		return 0, fmt.Errorf("purge ledger entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.logger.Println("Closing database pool...")
	s.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
