package main

import "sync"

// sessionLocks serializes command application per session. Commands for
// different sessions run concurrently, commands within one session do not.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-session mutex, creating it on first use. The
// returned function releases it.
func (l *sessionLocks) Lock(sessionUID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[sessionUID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionUID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
