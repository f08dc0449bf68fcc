package services

import "sync"

// CycleGuard serializes work on the signup sheets. Rotation takes the cycle
// lock exclusively; store phases of registration, removal and sync share it.
// Each user additionally holds a personal lock across a whole
// check-then-write sequence.
type CycleGuard struct {
	cycle sync.RWMutex

	mu    sync.Mutex
	users map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewCycleGuard() *CycleGuard {
	return &CycleGuard{users: make(map[string]*userLock)}
}

// LockUser blocks until the caller owns userID and returns the release func.
func (g *CycleGuard) LockUser(userID string) (unlock func()) {
	g.mu.Lock()
	l, ok := g.users[userID]
	if !ok {
		l = &userLock{}
		g.users[userID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.users, userID)
		}
		g.mu.Unlock()
	}
}

// Shared runs fn while holding the cycle lock for reading.
func (g *CycleGuard) Shared(fn func() error) error {
	g.cycle.RLock()
	defer g.cycle.RUnlock()
	return fn()
}

// Exclusive runs fn while no store phase is in flight.
func (g *CycleGuard) Exclusive(fn func() error) error {
	g.cycle.Lock()
	defer g.cycle.Unlock()
	return fn()
}
