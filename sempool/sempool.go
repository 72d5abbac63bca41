// Package sempool provides non-blocking counting semaphores.
package sempool

// Semaphore is a counting semaphore over a buffered channel.
type Semaphore struct {
	inner chan struct{}
}

// NewSemaphore returns a semaphore with capacity tokens.
func NewSemaphore(capacity int) *Semaphore {
	if capacity < 1 {
		panic("sempool: capacity must be positive")
	}
	return &Semaphore{inner: make(chan struct{}, capacity)}
}

// TryAcquire takes a token if one is free and reports whether it did. It never blocks.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.inner <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a token taken by TryAcquire.
func (s *Semaphore) Release() {
	select {
	case <-s.inner:
	default:
		panic("sempool: release before acquire")
	}
}
