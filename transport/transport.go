/*
The transport package defines the contract between a messaging client and the
wire. A Transport moves raw bytes to and from a remote broker over a single
connection; everything above it (framing, protocol state, reconnect policy)
belongs to higher layers, and everything below it (sockets, IO goroutines,
buffers) belongs to the reactor.

A Transport is single-use: it carries one connection attempt from Connect()
until Close() and never goes back.
*/
package transport

// Listener is the consumer-supplied capability that receives inbound data and
// lifecycle notifications. The transport holds a reference to it, never
// ownership. Callbacks for a single transport are serialized; no two will
// ever run concurrently.
type Listener interface {
	// OnData delivers inbound bytes exactly as they came off the stream.
	// The listener owns the slice.
	OnData(data []byte)

	// OnTransportClosed fires when the connection went away underneath us.
	// It never fires after Close() has returned.
	OnTransportClosed()

	// OnTransportError reports a connection failure observed after a
	// successful connect. It never fires after Close() has returned. The
	// transport does not release its resources on error; the listener is
	// expected to call Close().
	OnTransportError(err error)
}

type Transport interface {
	// Connect establishes the connection, blocking until it is usable or
	// has failed. A listener must be set first.
	Connect() error

	// IsConnected reports whether the transport is currently connected. The
	// answer can be stale the moment it returns if the connection is racing
	// a close or an error.
	IsConnected() bool

	// Send hands the payload to the outbound path, preserving the caller's
	// issue order. It returns without waiting for the bytes to hit the
	// wire. The transport takes ownership of the slice.
	Send(payload []byte) error

	// Close tears the connection down and releases its resources. It is
	// idempotent, callable from any goroutine, and never fails. Once it
	// returns, no lifecycle callback will be dispatched.
	Close()

	Listener() Listener

	// SetListener replaces the listener. The replacement is visible to the
	// next dispatched event; an event already in flight may still reach the
	// previous listener.
	SetListener(listener Listener)
}
