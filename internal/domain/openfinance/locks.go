package openfinance

import "sync"

// accountLocks serializes writes to one account's sync fields. Never held across network I/O.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *accountLocks) get(accountID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[accountID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[accountID] = m
	}
	return m
}

func (l *accountLocks) with(accountID string, fn func() error) error {
	m := l.get(accountID)
	m.Lock()
	defer m.Unlock()
	return fn()
}
