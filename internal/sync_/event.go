package sync_

import (
	"context"
	"sync"
)

// Event is a boolean flag that goroutines can wait on, like Python's `threading.Event`. The zero value is unset and
// ready to use.
type Event struct {
	mu  sync.Mutex
	set bool
	// ch is closed while the flag is set, and replaced when it is cleared.
	ch chan struct{}
}

func NewEvent() *Event {
	return &Event{}
}

// IsSet returns the current state of the Event.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Set makes the Event true, waking all waiters. Returns false if it was already set.
func (e *Event) Set() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return false
	}
	e.set = true
	close(e.channel())
	return true
}

// Clear makes the Event false. Returns false if it was already clear.
func (e *Event) Clear() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		return false
	}
	e.set = false
	e.ch = nil
	return true
}

// Wait returns a channel that is closed once the Event is set (which may be already).
func (e *Event) Wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channel()
}

// WaitContext blocks until the Event is set or ctx is done, returning ctx.Err() in the latter case.
func (e *Event) WaitContext(ctx context.Context) error {
	select {
	case <-e.Wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// channel must be called with mu held.
func (e *Event) channel() chan struct{} {
	if e.ch == nil {
		e.ch = make(chan struct{})
	}
	return e.ch
}
