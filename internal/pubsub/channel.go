// Package pubsub fans typed messages out from one publisher to any number of subscribers.
package pubsub

import (
	"sync"

	"github.com/alanbriolat/video-fetcher/internal/sync_"
)

type Sender[T any] interface {
	// Send delivers msg, blocking until there is room, and returns false if the receiving side is closed.
	Send(msg T) bool
}

type Receiver[T any] interface {
	// Receive returns the channel to read messages from. It is closed after Close.
	Receive() <-chan T
}

type Closer interface {
	// Close is idempotent.
	Close()
	// Closed returns a channel that is closed once Close has been called.
	Closed() <-chan struct{}
}

type SenderCloser[T any] interface {
	Sender[T]
	Closer
}

type ReceiverCloser[T any] interface {
	Receiver[T]
	Closer
}

type Channel[T any] interface {
	Sender[T]
	Receiver[T]
	Closer
}

// channel is a chan that can be closed safely while other goroutines are still sending to it.
type channel[T any] struct {
	mu      sync.RWMutex
	ch      chan T
	closing sync_.Event
	senders sync.WaitGroup
}

// NewChannel creates a Channel with the given buffer size.
func NewChannel[T any](bufSize int) Channel[T] {
	return &channel[T]{ch: make(chan T, bufSize)}
}

func (c *channel[T]) Receive() <-chan T {
	return c.ch
}

func (c *channel[T]) Send(msg T) bool {
	if !c.enter() {
		return false
	}
	defer c.senders.Done()
	select {
	case c.ch <- msg:
		return true
	case <-c.closing.Wait():
		return false
	}
}

// enter registers a sender, unless the channel is already closing.
func (c *channel[T]) enter() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closing.IsSet() {
		return false
	}
	c.senders.Add(1)
	return true
}

func (c *channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closing.Set() {
		return
	}
	// Blocked senders give up once closing is set; only then is it safe to close the chan
	c.senders.Wait()
	close(c.ch)
}

func (c *channel[T]) Closed() <-chan struct{} {
	return c.closing.Wait()
}

// filteredSender drops messages that don't pass filter. Dropped messages still count as sent.
type filteredSender[T any] struct {
	SenderCloser[T]
	filter func(T) bool
}

// NewFilteredSender wraps s so that only messages passing f reach it. A nil f passes everything.
func NewFilteredSender[T any](s SenderCloser[T], f func(T) bool) SenderCloser[T] {
	return &filteredSender[T]{SenderCloser: s, filter: f}
}

func (s *filteredSender[T]) Send(msg T) bool {
	select {
	case <-s.Closed():
		return false
	default:
	}
	if s.filter != nil && !s.filter(msg) {
		return true
	}
	return s.SenderCloser.Send(msg)
}
