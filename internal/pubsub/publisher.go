package pubsub

import (
	"errors"
	"sync"

	"github.com/alanbriolat/video-fetcher/generic"
	"github.com/alanbriolat/video-fetcher/internal/sync_"
)

const (
	DefaultPublisherBufSize  = 16
	DefaultSubscriberBufSize = 16
)

var ErrPublisherClosed = errors.New("publisher closed")

// A Publisher delivers every message sent to it to all current subscribers, in order. A subscriber that has been
// closed is dropped on the next message.
type Publisher[T any] interface {
	SenderCloser[T]
	// AddSubscriber adds s; if closeWithPublisher is set, s is closed when the publisher is.
	AddSubscriber(s SenderCloser[T], closeWithPublisher bool) error
	Subscribe() (ReceiverCloser[T], error)
	// SubscribeFunc subscribes to only the messages that pass filter.
	SubscribeFunc(bufSize int, filter func(T) bool) (ReceiverCloser[T], error)
}

type subscriber[T any] struct {
	SenderCloser[T]
	closeWithPublisher bool
}

type publisher[T any] struct {
	mu          sync.Mutex
	closed      bool
	ch          Channel[T]
	subscribers *sync_.Mutexed[generic.Set[*subscriber[T]]]
	// pending counts messages not yet delivered to every subscriber
	pending sync.WaitGroup
	stopped sync_.Event
}

func NewPublisher[T any]() Publisher[T] {
	return NewPublisherBufSize[T](DefaultPublisherBufSize)
}

func NewPublisherBufSize[T any](bufSize int) Publisher[T] {
	p := &publisher[T]{
		ch:          NewChannel[T](bufSize),
		subscribers: sync_.NewMutexed(generic.NewSet[*subscriber[T]]()),
	}
	go p.run()
	return p
}

func (p *publisher[T]) run() {
	defer p.stopped.Set()
	for msg := range p.ch.Receive() {
		// Deliver to a snapshot, so subscribing is never blocked by a slow subscriber
		var snapshot []*subscriber[T]
		_ = p.subscribers.Locked(func(set generic.Set[*subscriber[T]]) error {
			snapshot = set.ToSlice()
			return nil
		})
		for _, s := range snapshot {
			if !s.Send(msg) {
				_ = p.subscribers.Locked(func(set generic.Set[*subscriber[T]]) error {
					set.Remove(s)
					return nil
				})
			}
		}
		p.pending.Done()
	}
}

func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if !p.ch.Send(msg) {
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T], closeWithPublisher bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(set generic.Set[*subscriber[T]]) error {
		set.Add(&subscriber[T]{SenderCloser: s, closeWithPublisher: closeWithPublisher})
		return nil
	})
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeFunc(DefaultSubscriberBufSize, nil)
}

func (p *publisher[T]) SubscribeFunc(bufSize int, filter func(T) bool) (ReceiverCloser[T], error) {
	ch := NewChannel[T](bufSize)
	if err := p.AddSubscriber(NewFilteredSender[T](ch, filter), true); err != nil {
		return nil, err
	}
	return ch, nil
}

// Close flushes pending messages to subscribers, then closes the publisher and the subscribers it owns.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.ch.Close()
	p.pending.Wait()
	<-p.stopped.Wait()
	for _, s := range p.subscribers.Swap(generic.NewSet[*subscriber[T]]()).ToSlice() {
		if s.closeWithPublisher {
			s.Close()
		}
	}
}

func (p *publisher[T]) Closed() <-chan struct{} {
	return p.ch.Closed()
}
