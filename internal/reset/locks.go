package reset

import "sync"

// userLocks hands out one mutex per user id. Entries are reference counted
// and dropped once no goroutine holds or waits on them, so the map only
// grows with concurrent activity, not with the number of users ever seen.
type userLocks struct {
	mu    sync.Mutex
	locks map[uint64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uint64]*userLock)}
}

// lock blocks until the caller owns userID's mutex and returns the release func.
func (l *userLocks) lock(userID uint64) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
