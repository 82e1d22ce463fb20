package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLockHeld = errors.New("product is locked by another owner")
)

// LockRepository grants at-most-one-owner access to a product for a
// bounded window. Workers crash; a lock older than the TTL is fair game
// for any new owner, so no product is stranded forever.
type LockRepository interface {
	// Acquire atomically takes the lock if the product is unlocked or
	// its existing lock has outlived the TTL. Returns ErrLockHeld when
	// another owner holds a live lock.
	Acquire(ctx context.Context, productID int64, owner string) error

	// Release clears the lock unconditionally. Releasing an unlocked
	// product is a no-op.
	Release(ctx context.Context, productID int64) error
}

type lockRepository struct {
	db  *sql.DB
	ttl time.Duration
}

// NewLockRepository creates a new instance of LockRepository.
func NewLockRepository(db *sql.DB, ttl time.Duration) LockRepository {
	return &lockRepository{db: db, ttl: ttl}
}

// Acquire performs a single compare-and-set on the product row. The
// guarded UPDATE is the whole protocol: two concurrent callers race on
// the row lock and exactly one sees the WHERE clause hold.
func (r *lockRepository) Acquire(ctx context.Context, productID int64, owner string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products SET
			lock_owner = $2,
			lock_acquired_at = now()
		WHERE id = $1
		  AND (lock_owner IS NULL
		       OR lock_acquired_at IS NULL
		       OR lock_acquired_at < now() - make_interval(secs => $3))
	`, productID, owner, r.ttl.Seconds())
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Either the row is missing or someone else holds a live lock.
		var exists bool
		err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check product existence: %w", err)
		}
		if !exists {
			return ErrProductNotFound
		}
		return ErrLockHeld
	}

	return nil
}

// Release clears the lock fields. Idempotent by design: a worker that
// is unsure whether it still owns the lock can always release.
func (r *lockRepository) Release(ctx context.Context, productID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products SET
			lock_owner = NULL,
			lock_acquired_at = NULL
		WHERE id = $1
	`, productID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
