package orchestrator

import (
	"sort"
	"sync"

	"BloomPull/internal/domain/models"
)

// keyedLocks serializes normalization and write-through per instrument key.
// Jobs touching disjoint instruments proceed in parallel; two jobs sharing
// an instrument commit one after the other, never interleaved. Locks are
// acquired in sorted key order so overlapping scopes cannot deadlock.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{m: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	return l
}

// lockScope acquires the write locks for every instrument a scope can touch
// and returns the unlock function. Macro and news scopes lock their scope
// key instead: series ids never collide with instrument keys.
func (k *keyedLocks) lockScope(scope models.Scope) func() {
	keys := scopeLockKeys(scope)
	locks := make([]*sync.Mutex, len(keys))
	for i, key := range keys {
		locks[i] = k.get(key)
		locks[i].Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func scopeLockKeys(scope models.Scope) []string {
	var keys []string
	for _, sym := range scope.Symbols {
		keys = append(keys, models.NewInstrumentKey(sym, scope.Class, scope.Venue).String())
	}
	for _, id := range scope.MacroIDs {
		keys = append(keys, "macro:"+string(scope.Source)+":"+id)
	}
	if len(keys) == 0 {
		keys = append(keys, scope.Key())
	}
	sort.Strings(keys)
	return keys
}
