package hub

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nerrad567/rrconverter/internal/passing"
)

// Subscription is one consumer's view of the hub.
//
// Recv should be called from a single goroutine. Close and Dropped may be
// called from any goroutine.
type Subscription struct {
	id  string
	hub *Hub

	mu     sync.Mutex
	ring   []passing.Message
	head   int // index of the oldest unread message
	count  int
	closed bool

	notify    chan struct{} // capacity 1; signals "ring may be non-empty"
	done      chan struct{}
	closeOnce sync.Once

	dropped atomic.Uint64
}

func newSubscription(h *Hub, size int) *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		hub:    h,
		ring:   make([]passing.Message, size),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string {
	return s.id
}

// push appends msg, evicting the oldest message when the ring is full.
// It reports whether msg was stored and whether an eviction happened.
func (s *Subscription) push(msg passing.Message) (stored, evicted bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, false
	}
	size := len(s.ring)
	if s.count == size {
		s.ring[s.head] = passing.Message{}
		s.head = (s.head + 1) % size
		s.count--
		evicted = true
	}
	s.ring[(s.head+s.count)%size] = msg
	s.count++
	s.mu.Unlock()

	if evicted {
		s.dropped.Add(1)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true, evicted
}

// pop removes the oldest message. ok is false when the ring is empty.
func (s *Subscription) pop() (msg passing.Message, ok bool, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return passing.Message{}, false, true
	}
	if s.count == 0 {
		return passing.Message{}, false, false
	}
	msg = s.ring[s.head]
	s.ring[s.head] = passing.Message{}
	s.head = (s.head + 1) % len(s.ring)
	s.count--
	return msg, true, false
}

// Recv returns the next message in publish order, blocking until one is
// available.
//
// Returns:
//   - passing.Message: The next message
//   - error: ctx.Err() on cancellation, ErrClosed once the subscription
//     or hub is closed
func (s *Subscription) Recv(ctx context.Context) (passing.Message, error) {
	for {
		msg, ok, closed := s.pop()
		if closed {
			return passing.Message{}, ErrClosed
		}
		if ok {
			return msg, nil
		}

		select {
		case <-s.notify:
		case <-s.done:
			return passing.Message{}, ErrClosed
		case <-ctx.Done():
			return passing.Message{}, ctx.Err()
		}
	}
}

// Len returns the number of buffered, unread messages.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Dropped returns how many messages were discarded because the ring was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes from the hub. Safe to call multiple times.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) markClosed() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		clear(s.ring)
		s.count = 0
		s.mu.Unlock()
		close(s.done)
	})
}
