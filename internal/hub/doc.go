// Package hub fans passing and status messages out to any number of
// subscribers.
//
// Each Subscription owns a fixed-size ring buffer. Publish copies the
// message into every ring and returns immediately; it never waits for a
// slow subscriber. When a ring is full the oldest unread message is
// discarded to make room, so a lagging consumer sees a gap rather than
// stalling the timing feed. Subscription.Dropped reports how many
// messages a subscriber lost this way.
//
// Subscribers only observe messages published after they subscribed.
// Nothing is replayed.
//
// # Usage
//
//	h := hub.New(hub.WithBufferSize(100))
//	sub := h.Subscribe()
//	defer sub.Close()
//
//	for {
//	    msg, err := sub.Recv(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    deliver(msg)
//	}
//
// # Thread Safety
//
// All methods are safe for concurrent use. The subscriber registry is
// copy-on-write, so Publish reads it without taking a lock; each ring has
// its own mutex held only while a single message is pushed or popped.
package hub
