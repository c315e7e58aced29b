package rebuild

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// userLock holds a single pooled connection for the lifetime of one
// pg_advisory_lock acquisition. Advisory locks are session-scoped, so the
// connection that took the lock must be the one that releases it —
// borrowing ad hoc from the pool for each call would let a different
// session "release" a lock it never held.
type userLock struct {
	conn *pgxpool.Conn
	key  int64
}

// acquireUserLock serializes rebuilds per user: while one rebuild holds
// the lock for a user, a second trigger for the same user blocks here
// rather than racing the first's reads and writes.
func acquireUserLock(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID) (*userLock, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	key := advisoryKey(userID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, err
	}
	return &userLock{conn: conn, key: key}, nil
}

func (l *userLock) release(ctx context.Context) {
	l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
}

// advisoryKey folds a user UUID into the int64 space pg_advisory_lock
// takes. Collisions between two users are a liveness cost (one rebuild
// waits on another's lock unnecessarily), never a correctness problem,
// since every rebuild under a given key still serializes.
func advisoryKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(h.Sum64())
}
