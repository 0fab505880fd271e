package tcp

import (
	"fmt"
	"time"

	"github.com/prernay/qpid-jms/reactor"
	"github.com/prernay/qpid-jms/transport"
)

// UseOSDefault leaves a socket option at whatever the operating system picked
const UseOSDefault = -1

// Options configures the socket underneath a TCP transport. The zero value is
// not useful; start from DefaultOptions. Options are immutable once handed to
// a transport.
type Options struct {
	// Disables Nagle batching so small writes leave immediately
	TCPNoDelay bool

	// How long Connect may take before the attempt is abandoned
	ConnectTimeout time.Duration

	TCPKeepAlive bool

	// SO_LINGER in seconds, or UseOSDefault
	SoLinger int

	// SO_SNDBUF in bytes, or UseOSDefault
	SendBufferSize int

	// SO_RCVBUF in bytes, or UseOSDefault. When set, this also bounds the
	// reactor's per-read inbound buffer, which is the transport's only
	// backpressure mechanism.
	ReceiveBufferSize int

	// IP_TOS byte, or UseOSDefault
	TrafficClass int
}

func DefaultOptions() Options {
	return Options{
		TCPNoDelay:        true,
		ConnectTimeout:    60 * time.Second,
		TCPKeepAlive:      false,
		SoLinger:          UseOSDefault,
		SendBufferSize:    UseOSDefault,
		ReceiveBufferSize: UseOSDefault,
		TrafficClass:      UseOSDefault,
	}
}

// Validate rejects option values the socket layer could never apply.
// Negative values other than the UseOSDefault sentinel are always invalid.
func (o Options) Validate() error {
	if o.ConnectTimeout <= 0 {
		return &transport.ConfigurationError{Reason: fmt.Sprintf("connect timeout must be positive, got %s", o.ConnectTimeout)}
	}

	if o.SoLinger < UseOSDefault {
		return &transport.ConfigurationError{Reason: fmt.Sprintf("invalid SO_LINGER value %d", o.SoLinger)}
	}

	if o.SendBufferSize < UseOSDefault {
		return &transport.ConfigurationError{Reason: fmt.Sprintf("invalid send buffer size %d", o.SendBufferSize)}
	}

	if o.ReceiveBufferSize < UseOSDefault {
		return &transport.ConfigurationError{Reason: fmt.Sprintf("invalid receive buffer size %d", o.ReceiveBufferSize)}
	}

	if o.TrafficClass < UseOSDefault || o.TrafficClass > 255 {
		return &transport.ConfigurationError{Reason: fmt.Sprintf("invalid traffic class %d", o.TrafficClass)}
	}

	return nil
}

// socketConfig maps the options into the reactor's vocabulary. Sentinel
// values map to negative fields, which the reactor treats as "don't touch".
func (o Options) socketConfig() reactor.SocketConfig {
	return reactor.SocketConfig{
		NoDelay:           o.TCPNoDelay,
		ConnectTimeout:    o.ConnectTimeout,
		KeepAlive:         o.TCPKeepAlive,
		Linger:            o.SoLinger,
		SendBufferSize:    o.SendBufferSize,
		ReceiveBufferSize: o.ReceiveBufferSize,
		TrafficClass:      o.TrafficClass,
	}
}
