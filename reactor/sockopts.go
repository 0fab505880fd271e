package reactor

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// defaultReadBufferSize bounds a single inbound read when the caller left the
// receive buffer size at the OS default
const defaultReadBufferSize = 32 * 1024

// SocketConfig is the reactor's socket-option vocabulary. Sizes and the
// traffic class use negative values to mean "leave the OS default alone";
// callers with richer option types map down to this struct.
type SocketConfig struct {
	NoDelay        bool
	ConnectTimeout time.Duration
	KeepAlive      bool

	// Linger is in seconds; negative leaves the OS default
	Linger int

	// Socket buffer sizes in bytes; negative leaves the OS default
	SendBufferSize    int
	ReceiveBufferSize int

	// IP_TOS byte; negative leaves it unset
	TrafficClass int
}

// readBufferSize is how much inbound memory a single read may occupy. This is
// the transport layer's only backpressure mechanism: a connection can never
// pull more than one such buffer off the wire per handler callback.
func (c SocketConfig) readBufferSize() int {
	if c.ReceiveBufferSize > 0 {
		return c.ReceiveBufferSize
	}
	return defaultReadBufferSize
}

func dialSocket(ctx context.Context, addr string, config SocketConfig) (*net.TCPConn, error) {
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	// Keep-alive is applied explicitly below instead of through the dialer
	dialer := net.Dialer{KeepAlive: -1}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("dialed %s but did not get a TCP connection", addr)
	}

	if err := applySocketConfig(tcpConn, config); err != nil {
		tcpConn.Close()
		return nil, fmt.Errorf("failed to configure socket for %s: %w", addr, err)
	}

	return tcpConn, nil
}

func applySocketConfig(conn *net.TCPConn, config SocketConfig) error {
	if err := conn.SetNoDelay(config.NoDelay); err != nil {
		return fmt.Errorf("failed to set TCP_NODELAY: %w", err)
	}

	if err := conn.SetKeepAlive(config.KeepAlive); err != nil {
		return fmt.Errorf("failed to set SO_KEEPALIVE: %w", err)
	}

	if config.Linger >= 0 {
		if err := conn.SetLinger(config.Linger); err != nil {
			return fmt.Errorf("failed to set SO_LINGER: %w", err)
		}
	}

	if config.SendBufferSize >= 0 {
		if err := conn.SetWriteBuffer(config.SendBufferSize); err != nil {
			return fmt.Errorf("failed to set SO_SNDBUF: %w", err)
		}
	}

	if config.ReceiveBufferSize >= 0 {
		if err := conn.SetReadBuffer(config.ReceiveBufferSize); err != nil {
			return fmt.Errorf("failed to set SO_RCVBUF: %w", err)
		}
	}

	if config.TrafficClass >= 0 {
		// Try v4 first and fall back to the v6 socket option
		if err := ipv4.NewConn(conn).SetTOS(config.TrafficClass); err != nil {
			if err6 := ipv6.NewConn(conn).SetTrafficClass(config.TrafficClass); err6 != nil {
				return fmt.Errorf("failed to set IP_TOS: %w", err)
			}
		}
	}

	return nil
}
