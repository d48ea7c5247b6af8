package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// LockRepository serialises critical sections with transaction-scoped Postgres advisory locks.
type LockRepository struct{}

// NewLockRepository constructs the repository.
func NewLockRepository() *LockRepository {
	return &LockRepository{}
}

// ClassLockKey serialises roster and attendance changes of one class.
func ClassLockKey(classID string) string {
	return "class:" + classID
}

// RoomDayLockKey serialises check-then-write bookings of one room on one date.
func RoomDayLockKey(roomID string, date time.Time) string {
	return fmt.Sprintf("room:%s:%s", roomID, date.Format("2006-01-02"))
}

// Lock acquires every key inside the caller's transaction. Keys are deduplicated
// and taken in sorted order so concurrent callers cannot deadlock. Locks are
// released when the transaction ends.
func (r *LockRepository) Lock(ctx context.Context, exec sqlx.ExtContext, keys ...string) error {
	if exec == nil {
		return fmt.Errorf("advisory lock requires a transaction")
	}
	unique := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, seen := unique[key]; seen || key == "" {
			continue
		}
		unique[key] = struct{}{}
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	for _, key := range ordered {
		if _, err := exec.ExecContext(ctx, query, key); err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
	}
	return nil
}
