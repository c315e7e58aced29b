package calsync

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// connectionLock mirrors internal/rebuild's userLock: one pooled
// connection held for the duration of a single pg_advisory_lock, released
// by the same session that took it.
type connectionLock struct {
	conn *pgxpool.Conn
	key  int64
}

// acquireConnectionLock serializes synchronizer runs per calendar
// connection, so a slow run and the next poll tick never reconcile the
// same connection's events concurrently.
func acquireConnectionLock(ctx context.Context, pool *pgxpool.Pool, connectionID uuid.UUID) (*connectionLock, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	key := advisoryKey(connectionID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, err
	}
	return &connectionLock{conn: conn, key: key}, nil
}

func (l *connectionLock) release(ctx context.Context) {
	l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
}

func advisoryKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(h.Sum64())
}
