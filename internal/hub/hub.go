package hub

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/rrconverter/internal/infrastructure/metrics"
	"github.com/nerrad567/rrconverter/internal/passing"
)

// Hub distributes messages to subscriptions.
type Hub struct {
	bufferSize int
	metrics    *metrics.Metrics
	logger     Logger

	// regMu serialises registry writers. Publish reads subs without it.
	regMu  sync.Mutex
	subs   atomic.Pointer[[]*Subscription]
	closed atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Stats is a point-in-time view of hub activity.
type Stats struct {
	Subscribers int
	Published   uint64
	Dropped     uint64
}

// New creates a Hub.
//
// Parameters:
//   - opts: Functional options (buffer size, metrics, logger)
//
// Returns:
//   - *Hub: Ready for Subscribe and Publish
func New(opts ...Option) *Hub {
	h := &Hub{bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(h)
	}
	empty := make([]*Subscription, 0)
	h.subs.Store(&empty)
	return h
}

// Subscribe registers a new subscription that receives every message
// published from now on.
//
// Subscribing to a closed hub returns a subscription that is already
// closed; its Recv returns ErrClosed.
func (h *Hub) Subscribe() *Subscription {
	s := newSubscription(h, h.bufferSize)

	h.regMu.Lock()
	if h.closed.Load() {
		h.regMu.Unlock()
		s.markClosed()
		return s
	}
	cur := *h.subs.Load()
	next := make([]*Subscription, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, s)
	h.subs.Store(&next)
	count := len(next)
	h.regMu.Unlock()

	h.metrics.SetHubSubscribers(count)
	h.logDebug("subscriber added", "subscription_id", s.id, "subscribers", count)
	return s
}

// Unsubscribe removes s from the hub and closes it. Calling it more than
// once, or for a subscription of another hub, is harmless.
func (h *Hub) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}

	h.regMu.Lock()
	cur := *h.subs.Load()
	idx := slices.Index(cur, s)
	if idx >= 0 {
		next := make([]*Subscription, 0, len(cur)-1)
		next = append(next, cur[:idx]...)
		next = append(next, cur[idx+1:]...)
		h.subs.Store(&next)
	}
	count := len(*h.subs.Load())
	h.regMu.Unlock()

	s.markClosed()
	if idx >= 0 {
		h.metrics.SetHubSubscribers(count)
		h.logDebug("subscriber removed", "subscription_id", s.id, "subscribers", count,
			"dropped", s.Dropped())
	}
}

// Publish copies msg into every current subscription without blocking.
//
// Returns:
//   - int: Number of subscriptions that received the message
//   - error: ErrClosed after Close; otherwise nil, including when there
//     are no subscribers
func (h *Hub) Publish(msg passing.Message) (int, error) {
	if h.closed.Load() {
		return 0, ErrClosed
	}

	h.published.Add(1)
	h.metrics.HubPublished(msg.Kind.String())

	delivered := 0
	for _, s := range *h.subs.Load() {
		ok, evicted := s.push(msg)
		if evicted {
			h.dropped.Add(1)
			h.metrics.HubDropped()
		}
		if ok {
			delivered++
		}
	}
	return delivered, nil
}

// SubscriberCount returns the number of registered subscriptions.
func (h *Hub) SubscriberCount() int {
	return len(*h.subs.Load())
}

// Stats returns current hub statistics.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.SubscriberCount(),
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close closes every subscription and rejects further publishes.
// Safe to call multiple times.
func (h *Hub) Close() {
	h.regMu.Lock()
	if h.closed.Swap(true) {
		h.regMu.Unlock()
		return
	}
	cur := *h.subs.Load()
	empty := make([]*Subscription, 0)
	h.subs.Store(&empty)
	h.regMu.Unlock()

	for _, s := range cur {
		s.markClosed()
	}
	h.metrics.SetHubSubscribers(0)
	h.logDebug("hub closed", "subscribers", len(cur))
}

func (h *Hub) logDebug(msg string, keysAndValues ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, keysAndValues...)
	}
}
