package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BloomPull/internal/domain/models"
)

func TestScopeLockKeysSorted(t *testing.T) {
	scope := testScope("MSFT.US", "AAPL.US")
	keys := scopeLockKeys(scope)
	require.Len(t, keys, 2)
	assert.Less(t, keys[0], keys[1])

	macro := models.Scope{Source: models.SourceFRED, MacroIDs: []string{"DGS10"}}
	assert.Equal(t, []string{"macro:fred:DGS10"}, scopeLockKeys(macro))

	// a scope with no symbol or series ids still locks something
	empty := models.Scope{Source: models.SourceGDELT}
	assert.Equal(t, []string{empty.Key()}, scopeLockKeys(empty))
}

// Two scopes sharing an instrument must commit one after the other even when
// the first holds its lock across a delay.
func TestLockScopeSerializesSharedInstrument(t *testing.T) {
	locks := newKeyedLocks()
	shared := testScope("AAPL.US")
	overlapping := testScope("AAPL.US", "MSFT.US")

	var mu sync.Mutex
	var order []string

	unlock := locks.lockScope(shared)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		u := locks.lockScope(overlapping)
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		u()
		close(done)
	}()

	<-started
	time.Sleep(20 * time.Millisecond) // injected hold; the second job must wait
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	unlock()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("overlapping scope never acquired the lock")
	}
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestLockScopeDisjointInstrumentsDoNotBlock(t *testing.T) {
	locks := newKeyedLocks()

	unlock := locks.lockScope(testScope("AAPL.US"))
	defer unlock()

	acquired := make(chan struct{})
	go func() {
		u := locks.lockScope(testScope("MSFT.US"))
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("disjoint scope blocked on an unrelated lock")
	}
}

// Overlapping multi-instrument scopes locking in opposite payload order must
// not deadlock: acquisition is by sorted key, not request order.
func TestLockScopeNoDeadlockOnOpposingOrder(t *testing.T) {
	locks := newKeyedLocks()
	ab := testScope("AAA.US", "BBB.US")
	ba := testScope("BBB.US", "AAA.US")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			u := locks.lockScope(ab)
			u()
		}()
		go func() {
			defer wg.Done()
			u := locks.lockScope(ba)
			u()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("deadlock between opposing lock orders")
	}
}
