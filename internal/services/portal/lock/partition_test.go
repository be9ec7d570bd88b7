package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/apacbi/budgetportal/internal/services/portal/domain"
)

func TestDoSerializesSamePartition(t *testing.T) {
	locks := NewPartitionLocks()
	p := domain.Partition{UserID: "u1", BusinessUnit: "BU-A"}

	const workers = 16
	counter := 0
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = locks.Do(p, func() error {
				// Non-atomic read-modify-write; only safe under the lock.
				value := counter
				time.Sleep(time.Millisecond)
				counter = value + 1
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d (critical sections interleaved)", counter, workers)
	}
}

func TestDoAllowsDistinctPartitionsInParallel(t *testing.T) {
	locks := NewPartitionLocks()
	blocked := domain.Partition{UserID: "u1", BusinessUnit: "BU-A"}
	free := domain.Partition{UserID: "u2", BusinessUnit: "BU-B"}

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = locks.Do(blocked, func() error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	done := make(chan struct{})
	go func() {
		_ = locks.Do(free, func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("operation on a distinct partition blocked behind an unrelated lock")
	}
}

func TestDoReturnsActionResult(t *testing.T) {
	locks := NewPartitionLocks()
	p := domain.Partition{UserID: "u1", BusinessUnit: "BU-A"}

	want := domainError{}
	err := locks.Do(p, func() error { return want })
	if err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

type domainError struct{}

func (domainError) Error() string { return "boom" }
