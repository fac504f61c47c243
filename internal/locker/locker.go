// Package locker provides per-key mutual exclusion with FIFO queueing and
// stale-lock reclamation. It turns a read-modify-write sequence into an
// atomic unit: operations sharing a key are strictly serialized, operations
// on independent keys interleave freely.
package locker

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrQueueTrimmed is returned to a waiter evicted by the resource manager.
var ErrQueueTrimmed = errors.New("operation queue overflow, request dropped")

type lockState struct {
	acquiredAt time.Time
	gen        uint64
}

type grantResult struct {
	gen uint64
	err error
}

type waiter struct {
	grant      chan grantResult
	enqueuedAt time.Time
}

// KeyedLocker scopes mutual exclusion by operation key (e.g. "balance-update").
type KeyedLocker struct {
	mu      sync.Mutex
	locks   map[string]*lockState
	queues  map[string][]*waiter
	lastGen uint64
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a locker. The logger is used for stale-lock warnings.
func New(logger *zap.Logger) *KeyedLocker {
	return &KeyedLocker{
		locks:  make(map[string]*lockState),
		queues: make(map[string][]*waiter),
		logger: logger,
		now:    time.Now,
	}
}

// WithLock runs fn while holding the key's lock. If the key is held the call
// blocks in FIFO order behind earlier waiters until granted, the context is
// done, or the waiter is evicted by a queue trim. The lock is always released
// when fn returns, success or not.
func (l *KeyedLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	gen, err := l.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer l.release(key, gen)

	return fn()
}

func (l *KeyedLocker) acquire(ctx context.Context, key string) (uint64, error) {
	l.mu.Lock()
	if _, held := l.locks[key]; !held {
		gen := l.grantLocked(key)
		l.mu.Unlock()
		return gen, nil
	}

	w := &waiter{grant: make(chan grantResult, 1), enqueuedAt: l.now()}
	l.queues[key] = append(l.queues[key], w)
	l.mu.Unlock()

	select {
	case res := <-w.grant:
		return res.gen, res.err
	case <-ctx.Done():
		l.mu.Lock()
		removed := l.dequeueLocked(key, w)
		l.mu.Unlock()
		if !removed {
			// the grant raced the cancellation: we own the lock, give it back
			if res := <-w.grant; res.err == nil {
				l.release(key, res.gen)
			}
		}
		return 0, ctx.Err()
	}
}

// grantLocked marks the key locked and returns the acquisition generation.
// Caller holds l.mu.
func (l *KeyedLocker) grantLocked(key string) uint64 {
	l.lastGen++
	l.locks[key] = &lockState{acquiredAt: l.now(), gen: l.lastGen}
	return l.lastGen
}

// release frees the key and hands the lock to the next queued waiter, if any.
// A stale generation is ignored so a reclaimed operation cannot free a lock
// it no longer owns.
func (l *KeyedLocker) release(key string, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, held := l.locks[key]
	if !held || st.gen != gen {
		return
	}
	l.handOverLocked(key)
}

// handOverLocked passes the lock to the head of the queue or clears it.
// Caller holds l.mu.
func (l *KeyedLocker) handOverLocked(key string) {
	queue := l.queues[key]
	if len(queue) == 0 {
		delete(l.locks, key)
		delete(l.queues, key)
		return
	}

	next := queue[0]
	l.queues[key] = queue[1:]
	next.grant <- grantResult{gen: l.grantLocked(key)}
}

// dequeueLocked removes a cancelled waiter; reports false if it already left
// the queue (meaning the lock was granted to it). Caller holds l.mu.
func (l *KeyedLocker) dequeueLocked(key string, target *waiter) bool {
	queue := l.queues[key]
	for i, w := range queue {
		if w == target {
			l.queues[key] = append(queue[:i], queue[i+1:]...)
			return true
		}
	}
	return false
}

// ReclaimStale force-releases every lock held longer than timeout, logging a
// warning. The abandoned operation is not retried and its partial work is not
// rolled back; its late release is a no-op thanks to the generation check.
func (l *KeyedLocker) ReclaimStale(timeout time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	reclaimed := 0
	for key, st := range l.locks {
		if now.Sub(st.acquiredAt) < timeout {
			continue
		}
		l.logger.Warn("reclaiming stale lock",
			zap.String("key", key),
			zap.Duration("held", now.Sub(st.acquiredAt)))
		l.handOverLocked(key)
		reclaimed++
	}
	return reclaimed
}

// TrimQueues evicts the oldest waiters so every key keeps at most max pending
// entries. Evicted waiters fail with ErrQueueTrimmed.
func (l *KeyedLocker) TrimQueues(max int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	trimmed := 0
	for key, queue := range l.queues {
		excess := len(queue) - max
		if excess <= 0 {
			continue
		}
		for _, w := range queue[:excess] {
			w.grant <- grantResult{err: ErrQueueTrimmed}
		}
		l.queues[key] = queue[excess:]
		trimmed += excess
	}
	return trimmed
}

// QueueLen returns the number of waiters pending on the key.
func (l *KeyedLocker) QueueLen(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues[key])
}

// Reset drops all locks and queues; pending waiters fail with ErrQueueTrimmed.
// Used by Dispose.
func (l *KeyedLocker) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, queue := range l.queues {
		for _, w := range queue {
			w.grant <- grantResult{err: ErrQueueTrimmed}
		}
	}
	l.locks = make(map[string]*lockState)
	l.queues = make(map[string][]*waiter)
}
