package service

import "sync"

// chainLocks linearizes the read-head, hash, insert critical section
// per chain key. The journal locks on the org id; the category
// ledger locks on the (org, period, category) tuple. Storage unique
// constraints remain the backstop against writers in other processes.
type chainLocks struct {
	mu    sync.Mutex // protects locks
	locks map[string]*sync.Mutex
}

func newChainLocks() *chainLocks {
	return &chainLocks{locks: make(map[string]*sync.Mutex)}
}

func (c *chainLocks) get(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.locks[key]; !exists {
		c.locks[key] = &sync.Mutex{}
	}
	return c.locks[key]
}

// Lock acquires the mutex for key and returns its unlock func.
func (c *chainLocks) Lock(key string) func() {
	m := c.get(key)
	m.Lock()
	return m.Unlock
}
