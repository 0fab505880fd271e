/*
The tcp package is the default transport for talking to a broker: raw bytes
over a single TCP connection. The transport itself owns no IO goroutines; it
asks the reactor for a channel and bridges the channel's events onto the
consumer's listener.

Connect looks synchronous to the caller but is asynchronous underneath: the
calling goroutine parks on the reactor's completion until the dial resolves.
Everything after that flows the other way, from the reactor's dispatch
goroutine through the event bridge into the listener.
*/
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/prernay/qpid-jms/logger"
	"github.com/prernay/qpid-jms/reactor"
	"github.com/prernay/qpid-jms/telemetry/throughputstats"
	"github.com/prernay/qpid-jms/transport"
)

func init() {
	transport.Register("tcp", func(baseLogger *logger.Logger, remote *url.URL, listener transport.Listener) (transport.Transport, error) {
		port, err := strconv.Atoi(remote.Port())
		if err != nil {
			return nil, &transport.ConfigurationError{Reason: fmt.Sprintf("remote url %s has no usable port", remote)}
		}

		t, err := New(baseLogger, remote.Hostname(), port, DefaultOptions())
		if err != nil {
			return nil, err
		}

		t.SetListener(listener)
		return t, nil
	})
}

type Transport struct {
	logger *logger.Logger

	host    string
	port    int
	options Options

	// The reactor doing our socket IO. We create and own one unless the
	// caller injected a shared reactor, which they keep ownership of.
	reactor     *reactor.Reactor
	ownsReactor bool

	lifecycle transport.Lifecycle
	channel   atomic.Pointer[reactor.Channel]

	listenerMu sync.RWMutex
	listener   transport.Listener

	stats    *throughputstats.ThroughputStats
	doneChan chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unconnected transport for the given remote endpoint. The
// options are validated here; nothing touches the network until Connect.
func New(baseLogger *logger.Logger, host string, port int, options Options) (*Transport, error) {
	return newTransport(baseLogger, nil, host, port, options)
}

// NewWithReactor is New for callers that already run a reactor and want this
// transport to share it. The caller keeps ownership of the reactor.
func NewWithReactor(baseLogger *logger.Logger, r *reactor.Reactor, host string, port int, options Options) (*Transport, error) {
	return newTransport(baseLogger, r, host, port, options)
}

func newTransport(baseLogger *logger.Logger, r *reactor.Reactor, host string, port int, options Options) (*Transport, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	doneChan := make(chan struct{})
	transportLogger := baseLogger.GetComponentLogger("TcpTransport").GetTransportLogger(uuid.New().String())

	ownsReactor := r == nil
	if ownsReactor {
		r = reactor.New(transportLogger.GetComponentLogger("Reactor"))
	}

	return &Transport{
		logger:      transportLogger,
		host:        host,
		port:        port,
		options:     options,
		reactor:     r,
		ownsReactor: ownsReactor,
		stats:       throughputstats.New("bytes", doneChan),
		doneChan:    doneChan,
	}, nil
}

func (t *Transport) endpoint() string {
	return fmt.Sprintf("%s:%d", t.host, t.port)
}

// Connect dials the remote endpoint and blocks until the connection is usable
// or has failed. A transport connects at most once; a second call fails
// without touching the network.
func (t *Transport) Connect() error {
	if t.Listener() == nil {
		return &transport.ConfigurationError{Reason: "a transport listener must be set before connection attempts"}
	}

	if !t.lifecycle.Transition(transport.Idle, transport.Connecting) {
		return &transport.ConfigurationError{Reason: fmt.Sprintf("transport is %s and cannot connect again", t.lifecycle.Current())}
	}

	// This is the sync-over-async bridge: the reactor dials on its own
	// goroutine and we park here until it resolves the completion
	completion := t.reactor.Dial(t.host, t.port, t.options.socketConfig())
	result := <-completion.Done()

	if result.Err != nil {
		t.lifecycle.Transition(transport.Connecting, transport.Failed)
		return t.classifyConnectFailure(result.Err)
	}

	t.channel.Store(result.Channel)

	if !t.lifecycle.Transition(transport.Connecting, transport.Connected) {
		// Someone closed us while the dial was in flight; the dial won but
		// the connection must not survive
		result.Channel.Close()
		return &transport.ConnectError{
			Failure:  transport.ConnectCancelled,
			Endpoint: t.endpoint(),
			Cause:    errors.New("transport was closed during connect"),
		}
	}

	if err := result.Channel.Start(&eventBridge{transport: t}); err != nil {
		// A concurrent Close can beat us to the channel; anything else
		// would be a reactor bug
		t.Close()

		failure := transport.ConnectIO
		if errors.Is(err, reactor.ErrChannelClosed) {
			failure = transport.ConnectCancelled
		}
		return &transport.ConnectError{Failure: failure, Endpoint: t.endpoint(), Cause: err}
	}

	t.logger.Infof("Connected to %s", t.endpoint())
	return nil
}

func (t *Transport) classifyConnectFailure(cause error) error {
	failure := transport.ConnectIO

	var netErr net.Error
	switch {
	case errors.Is(cause, context.Canceled):
		failure = transport.ConnectCancelled
	case errors.Is(cause, context.DeadlineExceeded),
		errors.Is(cause, syscall.ECONNREFUSED):
		failure = transport.ConnectRefusedOrTimeout
	case errors.As(cause, &netErr) && netErr.Timeout():
		failure = transport.ConnectRefusedOrTimeout
	}

	return &transport.ConnectError{
		Failure:  failure,
		Endpoint: t.endpoint(),
		Cause:    cause,
	}
}

// IsConnected is a snapshot; it can be stale the moment it returns if an
// error or close is racing us
func (t *Transport) IsConnected() bool {
	return t.lifecycle.Current() == transport.Connected
}

// Send enqueues the payload for the reactor to write and flush, preserving
// the order in which this caller issued its sends. The payload is owned by
// the outbound path from here on.
func (t *Transport) Send(payload []byte) error {
	if state := t.lifecycle.Current(); state != transport.Connected {
		return &transport.SendError{Reason: fmt.Sprintf("cannot send while transport is %s", state)}
	}

	channel := t.channel.Load()
	if channel == nil {
		return &transport.SendError{Reason: "transport has no channel"}
	}

	if err := channel.Write(payload); err != nil {
		return &transport.SendError{Reason: fmt.Sprintf("cannot send: %s", err)}
	}

	t.stats.CountOutbound(len(payload))
	return nil
}

// Close releases the channel and, if we created it, the reactor. The first
// caller wins; everyone else is a no-op. Once Close returns, the event bridge
// will not dispatch another lifecycle callback, even for events the reactor
// had already queued.
func (t *Transport) Close() {
	previous := t.lifecycle.ClaimClose()
	if previous == transport.Closed {
		return
	}

	t.logger.Infof("Closing transport to %s (was %s)", t.endpoint(), previous)

	close(t.doneChan)

	if channel := t.channel.Load(); channel != nil {
		channel.Close()
	}

	if t.ownsReactor && t.reactor != nil {
		t.reactor.Close()
	}
}

func (t *Transport) Listener() transport.Listener {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	return t.listener
}

// SetListener swaps the listener reference. The new listener sees the next
// dispatched event; an event already in flight may still land on the old one.
func (t *Transport) SetListener(listener transport.Listener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.listener = listener
}

// Stats reports how many bytes have moved through this transport
func (t *Transport) Stats() throughputstats.Digest {
	return t.stats.Digest()
}

// eventBridge maps the reactor's channel events onto listener callbacks. It
// runs entirely on the channel's dispatch goroutine, and every lifecycle
// callback is gated by one compare-and-swap against the shared state word:
// if the transport is already closed the swap fails and the event dies here.
type eventBridge struct {
	transport *Transport
}

var _ reactor.Handler = (*eventBridge)(nil)

func (b *eventBridge) ServeActive() {
	// Informational only; the consumer hears about the connection from
	// Connect returning
	b.transport.logger.Debugf("Channel to %s is active", b.transport.endpoint())
}

func (b *eventBridge) ServeInactive() {
	t := b.transport
	if !t.lifecycle.Transition(transport.Connected, transport.Failed) {
		t.logger.Debugf("Suppressing inactive event, transport is %s", t.lifecycle.Current())
		return
	}

	t.logger.Infof("Connection to %s went inactive", t.endpoint())
	if listener := t.Listener(); listener != nil {
		listener.OnTransportClosed()
	}
}

func (b *eventBridge) ServeError(err error) {
	t := b.transport
	if !t.lifecycle.Transition(transport.Connected, transport.Failed) {
		t.logger.Debugf("Suppressing error event (%s), transport is %s", err, t.lifecycle.Current())
		return
	}

	t.logger.Errorf("Connection to %s failed: %s", t.endpoint(), err)
	if listener := t.Listener(); listener != nil {
		listener.OnTransportError(err)
	}
}

func (b *eventBridge) ServeData(data []byte) {
	t := b.transport
	t.stats.CountInbound(len(data))

	// Data is not gated by the closed check; it can only arrive while the
	// channel is still up
	if listener := t.Listener(); listener != nil {
		listener.OnData(data)
	}
}
