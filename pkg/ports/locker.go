package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serialises the turns of one thread across gateway replicas
// that share a state store. The in-process lock of session.Manager is always
// taken first; the distributed one is layered on top.
type DistributedLocker interface {
	// Lock blocks until threadID is held by the caller or ctx is done. The lock
	// expires after ttl so a crashed replica cannot wedge a thread forever.
	// The returned UnlockFunc must be called once the turn is committed.
	Lock(ctx context.Context, threadID string, ttl time.Duration) (UnlockFunc, error)
}
