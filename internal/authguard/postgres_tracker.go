package authguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobdeck/jobdeck/integration/database/pg"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresTracker implements Tracker on PostgreSQL. The database is the
// single cross-instance source of truth for login protection: transaction
// isolation serializes concurrent writers, and the partial unique index on
// account_lockouts enforces the single-active-lock invariant even when two
// instances race to lock the same account.
type PostgresTracker struct {
	pool *pgxpool.Pool
}

// NewPostgresTracker creates a tracker over an established pool.
func NewPostgresTracker(pool *pgxpool.Pool) (*PostgresTracker, error) {
	if pool == nil {
		return nil, fmt.Errorf("authguard: pgx pool is required")
	}
	return &PostgresTracker{pool: pool}, nil
}

// db resolves the querier for ctx: the caller's transaction when one is
// attached via pg.WithTx, the pool otherwise.
func (pt *PostgresTracker) db(ctx context.Context) querier {
	if tx, ok := pg.TxFromContext(ctx); ok {
		return tx
	}
	return pt.pool
}

// RecordFailure implements Tracker. Empty IP/agent values are stored as
// NULL rather than empty strings.
func (pt *PostgresTracker) RecordFailure(ctx context.Context, username, ipAddress, userAgent string) error {
	_, err := pt.db(ctx).Exec(ctx, `
		INSERT INTO failed_login_attempts (id, username, attempt_time, ip_address, user_agent)
		VALUES ($1, $2, now(), NULLIF($3, ''), NULLIF($4, ''))`,
		uuid.New(), username, ipAddress, userAgent)
	if err != nil {
		return fmt.Errorf("insert failed attempt: %w", err)
	}
	return nil
}

// RecentFailureCount implements Tracker.
func (pt *PostgresTracker) RecentFailureCount(ctx context.Context, username string, since time.Time) (int, error) {
	var count int
	err := pt.db(ctx).QueryRow(ctx, `
		SELECT count(*) FROM failed_login_attempts
		WHERE username = $1 AND attempt_time > $2`,
		username, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent attempts: %w", err)
	}
	return count, nil
}

// OldestFailureSince implements Tracker.
func (pt *PostgresTracker) OldestFailureSince(ctx context.Context, username string, since time.Time) (time.Time, bool, error) {
	var oldest *time.Time
	err := pt.db(ctx).QueryRow(ctx, `
		SELECT min(attempt_time) FROM failed_login_attempts
		WHERE username = $1 AND attempt_time > $2`,
		username, since).Scan(&oldest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest attempt: %w", err)
	}
	if oldest == nil {
		return time.Time{}, false, nil
	}
	return *oldest, true, nil
}

// TotalFailureCount implements Tracker.
func (pt *PostgresTracker) TotalFailureCount(ctx context.Context, username string) (int, error) {
	var count int
	err := pt.db(ctx).QueryRow(ctx, `
		SELECT count(*) FROM failed_login_attempts WHERE username = $1`,
		username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

// ActiveLockout implements Tracker.
func (pt *PostgresTracker) ActiveLockout(ctx context.Context, username string) (*Lockout, error) {
	var lock Lockout
	err := pt.db(ctx).QueryRow(ctx, `
		SELECT id, username, locked_at, lockout_reason, unlocked_at
		FROM account_lockouts
		WHERE username = $1 AND unlocked_at IS NULL`,
		username).Scan(&lock.ID, &lock.Username, &lock.LockedAt, &lock.Reason, &lock.UnlockedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select lockout: %w", err)
	}
	return &lock, nil
}

// Lock implements Tracker. ON CONFLICT against the partial unique index
// makes check-then-insert a single atomic statement: concurrent lockers
// produce exactly one active row and every caller returns success.
func (pt *PostgresTracker) Lock(ctx context.Context, username, reason string) error {
	_, err := pt.db(ctx).Exec(ctx, `
		INSERT INTO account_lockouts (id, username, locked_at, lockout_reason)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (username) WHERE unlocked_at IS NULL DO NOTHING`,
		uuid.New(), username, reason)
	if err != nil {
		return fmt.Errorf("insert lockout: %w", err)
	}
	return nil
}

// Unlock implements Tracker.
func (pt *PostgresTracker) Unlock(ctx context.Context, username string) error {
	_, err := pt.db(ctx).Exec(ctx, `
		UPDATE account_lockouts SET unlocked_at = now()
		WHERE username = $1 AND unlocked_at IS NULL`,
		username)
	if err != nil {
		return fmt.Errorf("close lockout: %w", err)
	}
	return nil
}

// ClearHistory implements Tracker.
func (pt *PostgresTracker) ClearHistory(ctx context.Context, username string) error {
	_, err := pt.db(ctx).Exec(ctx, `
		DELETE FROM failed_login_attempts WHERE username = $1`,
		username)
	if err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}

// PurgeOld implements Tracker.
func (pt *PostgresTracker) PurgeOld(ctx context.Context, before time.Time) (int64, error) {
	tag, err := pt.db(ctx).Exec(ctx, `
		DELETE FROM failed_login_attempts WHERE attempt_time < $1`,
		before)
	if err != nil {
		return 0, fmt.Errorf("purge attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ActiveLockouts implements Tracker.
func (pt *PostgresTracker) ActiveLockouts(ctx context.Context) ([]Lockout, error) {
	rows, err := pt.db(ctx).Query(ctx, `
		SELECT id, username, locked_at, lockout_reason, unlocked_at
		FROM account_lockouts
		WHERE unlocked_at IS NULL
		ORDER BY locked_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list lockouts: %w", err)
	}
	defer rows.Close()

	var out []Lockout
	for rows.Next() {
		var lock Lockout
		if err := rows.Scan(&lock.ID, &lock.Username, &lock.LockedAt, &lock.Reason, &lock.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scan lockout: %w", err)
		}
		out = append(out, lock)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lockouts: %w", err)
	}
	return out, nil
}
