package ratelimit

import "sync"

// localGuard is the single-process fallback for the calculation lock.
type localGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLocalGuard() *localGuard {
	return &localGuard{held: make(map[string]bool)}
}

func (g *localGuard) tryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return false
	}
	g.held[key] = true
	return true
}

func (g *localGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}
