package crawler

import "sync"

// turns lets workers settle artifacts one at a time in the order their
// budget reservations were granted, whatever order their captures finish
// in. Pages are reserved in admission order and the sections of a page in
// document order, so dedup decisions do not depend on worker timing.
//
// Tickets are issued by the scheduler goroutine. Every issued ticket must be
// passed to done exactly once.
type turns struct {
	issued int

	mu      sync.Mutex
	cond    *sync.Cond
	next    int
	passed  map[int]bool
	stopped bool
}

func newTurns() *turns {
	t := &turns{next: 1, passed: make(map[int]bool)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// issue returns the next ticket. Only the scheduler goroutine calls it.
func (t *turns) issue() int {
	t.issued++
	return t.issued
}

// wait blocks until every earlier ticket is done. It returns false once the
// turns are stopped.
func (t *turns) wait(ticket int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for !t.stopped && t.next != ticket {
		t.cond.Wait()
	}
	return !t.stopped
}

// done marks ticket as settled. Tickets without an artifact, such as failed
// captures, call done without waiting.
func (t *turns) done(ticket int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.passed[ticket] = true
	for t.passed[t.next] {
		delete(t.passed, t.next)
		t.next++
	}
	t.cond.Broadcast()
}

// stop releases every waiter.
func (t *turns) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.cond.Broadcast()
}
