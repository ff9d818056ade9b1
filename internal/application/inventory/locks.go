package inventory

import (
	"sort"
	"sync"
)

// SKULocker mutex por SKU dentro del proceso. Lock adquiere en orden lexicográfico
// para que dos commits con SKUs solapados nunca se bloqueen mutuamente.
type SKULocker struct {
	mu    sync.Mutex
	locks map[string]*skuLock
}

type skuLock struct {
	mu   sync.Mutex
	refs int
}

// NewSKULocker construye el locker.
func NewSKULocker() *SKULocker {
	return &SKULocker{locks: make(map[string]*skuLock)}
}

// Lock bloquea todos los SKUs (duplicados se ignoran) y devuelve la función de liberación.
func (l *SKULocker) Lock(skus []string) (unlock func()) {
	keys := uniqueSorted(skus)
	held := make([]*skuLock, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		lk, ok := l.locks[k]
		if !ok {
			lk = &skuLock{}
			l.locks[k] = lk
		}
		lk.refs++
		l.mu.Unlock()

		lk.mu.Lock()
		held = append(held, lk)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

func uniqueSorted(skus []string) []string {
	seen := make(map[string]struct{}, len(skus))
	out := make([]string, 0, len(skus))
	for _, s := range skus {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
