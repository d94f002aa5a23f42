// Package decoder maintains the TCP session with a race-timing decoder.
//
// The decoder speaks a plain-text, newline-terminated protocol on port
// 3601. After connecting, the session switches the device to protocol 2.0
// and asks it to push passings as they happen:
//
//	SETPROTOCOL;2.0
//	SETPUSHPASSINGS;1;1
//
// From then on the decoder streams #P lines, which are normalised into
// passing.Passing records and published. A PING is written every
// PingInterval to keep the link alive.
//
// # Session lifecycle
//
//	Disconnected → Connecting → Handshaking → Streaming → Disconnected
//
// Any read or write failure returns the session to Disconnected. After
// ReconnectDelay the whole cycle starts again, handshake included. The
// session only stops when the context passed to Run is cancelled.
//
// Entering Streaming publishes a "connected" status. Leaving it publishes
// "disconnected", at most once per connected period.
//
// # Addressing
//
// The device address comes from an AddressResolver. A resolver that also
// implements Invalidate() is invalidated after every failed dial, which
// lets a discovery-backed resolver rescan the subnet on the next attempt.
package decoder
