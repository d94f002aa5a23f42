package hub

import "errors"

// ErrClosed is returned by Publish after Close, and by Recv once the
// subscription or the hub has been closed.
var ErrClosed = errors.New("hub: closed")
