package feed

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the per-subscription queue length used when none is given.
const DefaultBufferSize = 256

// Publisher fans values out to subscribers.
type Publisher[T any] struct {
	bufferSize int

	mu       sync.Mutex
	subs     map[uint64]*Subscription[T]
	nextID   uint64
	finished bool

	// Stats
	published int64
	dropped   atomic.Int64
}

// NewPublisher creates a publisher whose subscriptions buffer up to
// bufferSize values each.
func NewPublisher[T any](bufferSize int) *Publisher[T] {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Publisher[T]{
		bufferSize: bufferSize,
		subs:       make(map[uint64]*Subscription[T]),
	}
}

// Subscribe attaches a new consumer.
func (p *Publisher[T]) Subscribe() *Subscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &Subscription[T]{
		ch:  make(chan T, p.bufferSize),
		pub: p,
	}

	if p.finished {
		s.closed = true
		close(s.ch)
		return s
	}

	p.nextID++
	s.id = p.nextID
	p.subs[s.id] = s
	return s
}

// Publish delivers v to every subscriber without blocking. Returns false if
// the publisher is finished.
func (p *Publisher[T]) Publish(v T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return false
	}

	p.published++
	for _, s := range p.subs {
		if s.offer(v) {
			p.dropped.Add(1)
		}
	}
	return true
}

// Finish ends the sequence for all current subscribers. Safe to call more
// than once.
func (p *Publisher[T]) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}
	p.finished = true

	for id, s := range p.subs {
		delete(p.subs, id)
		s.closed = true
		close(s.ch)
	}
}

// Finished reports whether Finish has been called.
func (p *Publisher[T]) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Stats returns publisher statistics.
func (p *Publisher[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Subscribers: len(p.subs),
		Published:   p.published,
		Dropped:     p.dropped.Load(),
		Finished:    p.finished,
	}
}

// Stats contains publisher statistics.
type Stats struct {
	Subscribers int
	Published   int64
	Dropped     int64
	Finished    bool
}

func (p *Publisher[T]) detach(s *Subscription[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.closed {
		return
	}
	delete(p.subs, s.id)
	s.closed = true
	close(s.ch)
}

// Subscription is one consumer's view of the sequence.
type Subscription[T any] struct {
	id  uint64
	ch  chan T
	pub *Publisher[T]

	closed  bool // guarded by pub.mu
	dropped atomic.Int64
}

// C returns the receive channel. It is closed when the publisher finishes or
// the subscription is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Next blocks for the next value. It returns false when the sequence has
// ended or ctx is done.
func (s *Subscription[T]) Next(ctx context.Context) (T, bool) {
	select {
	case v, ok := <-s.ch:
		return v, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// All returns an iterator over the sequence that stops when ctx is done, the
// sequence ends, or the loop breaks. Breaking does not close the subscription.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok := s.Next(ctx)
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Close detaches the consumer. It does not affect the publisher or any other
// subscription.
func (s *Subscription[T]) Close() {
	s.pub.detach(s)
}

// Dropped returns how many values were discarded for this consumer.
func (s *Subscription[T]) Dropped() int64 {
	return s.dropped.Load()
}

// offer queues v, discarding the oldest queued value when the buffer is full.
// Must be called with pub.mu held; the producer is then the only sender, so
// one discard is always enough to make room.
func (s *Subscription[T]) offer(v T) (dropped bool) {
	for {
		select {
		case s.ch <- v:
			return dropped
		default:
		}

		select {
		case <-s.ch:
			dropped = true
			s.dropped.Add(1)
		default:
		}
	}
}
