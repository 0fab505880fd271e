package transport

import "fmt"

// A ConfigurationError means the transport was asked to do something before
// it was set up for it, e.g. connecting without a listener. No IO has been
// attempted when one of these is returned.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return e.Reason }

// ConnectFailure classifies why a connection attempt failed
type ConnectFailure string

const (
	// The attempt was abandoned before it resolved, e.g. because the
	// reactor shut down
	ConnectCancelled ConnectFailure = "cancelled"

	// The remote endpoint refused the connection or the configured connect
	// timeout elapsed
	ConnectRefusedOrTimeout ConnectFailure = "refused or timed out"

	// Anything else that went wrong at the IO layer
	ConnectIO ConnectFailure = "io error"
)

// A ConnectError is the synchronous failure of Connect(). The original cause
// is preserved for diagnostics and available through Unwrap.
type ConnectError struct {
	Failure  ConnectFailure
	Endpoint string
	Cause    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s (%s): %s", e.Endpoint, e.Failure, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// A SendError means Send was called while the transport was not connected.
// It is local to the caller; nothing was handed to the wire.
type SendError struct {
	Reason string
}

func (e *SendError) Error() string { return e.Reason }
