// Package lock serializes mutating operations per partition.
//
// The original design guarded every mutation with one process-wide lock,
// stalling unrelated editors. A partition is the real contention domain: one
// editor's batch never touches another (user, business unit) pair, so each
// partition gets its own mutex, created on demand and never removed.
package lock

import (
	"sync"

	"github.com/apacbi/budgetportal/internal/services/portal/domain"
)

// PartitionLocks is a table of per-partition mutexes.
// The zero value is ready to use.
type PartitionLocks struct {
	mu    sync.Mutex
	locks map[domain.Partition]*sync.Mutex
}

// NewPartitionLocks creates an empty lock table.
func NewPartitionLocks() *PartitionLocks {
	return &PartitionLocks{}
}

func (l *PartitionLocks) lockFor(p domain.Partition) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[domain.Partition]*sync.Mutex)
	}
	mu, ok := l.locks[p]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[p] = mu
	}
	return mu
}

// Do runs fn while holding the partition's exclusive section. Operations on
// distinct partitions proceed in parallel; operations on the same partition
// run in lock-acquisition order. Not reentrant.
func (l *PartitionLocks) Do(p domain.Partition, fn func() error) error {
	mu := l.lockFor(p)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
