/*
The websocket package carries the same transport contract as tcp over a
websocket connection, for brokers that sit behind HTTP infrastructure. Frames
are binary and opaque; one inbound frame becomes one OnData callback. The
read pump goroutine is the only dispatcher, so listener callbacks stay
serialized exactly like they do on the TCP side.
*/
package websocket

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"

	"github.com/prernay/qpid-jms/logger"
	"github.com/prernay/qpid-jms/telemetry/throughputstats"
	"github.com/prernay/qpid-jms/transport"
)

const defaultHandshakeTimeout = 30 * time.Second

func init() {
	factory := func(baseLogger *logger.Logger, remote *url.URL, listener transport.Listener) (transport.Transport, error) {
		t, err := New(baseLogger, remote, http.Header{})
		if err != nil {
			return nil, err
		}

		t.SetListener(listener)
		return t, nil
	}

	transport.Register("ws", factory)
	transport.Register("wss", factory)
}

type Transport struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	remote  *url.URL
	headers http.Header

	// How long the dial plus websocket handshake may take
	HandshakeTimeout time.Duration

	client atomic.Pointer[gorilla.Conn]

	// Gorilla permits only one concurrent writer
	writeMu sync.Mutex

	// Guards the connect/close handoff so a close can never race the read
	// pump being launched
	pumpMu      sync.Mutex
	pumpStarted bool

	lifecycle transport.Lifecycle

	listenerMu sync.RWMutex
	listener   transport.Listener

	stats    *throughputstats.ThroughputStats
	doneChan chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

func New(baseLogger *logger.Logger, remote *url.URL, headers http.Header) (*Transport, error) {
	if remote.Scheme != "ws" && remote.Scheme != "wss" {
		return nil, &transport.ConfigurationError{Reason: fmt.Sprintf("cannot make a websocket connection to %s", remote)}
	}

	doneChan := make(chan struct{})

	return &Transport{
		logger:           baseLogger.GetComponentLogger("WebsocketTransport").GetTransportLogger(uuid.New().String()),
		remote:           remote,
		headers:          headers,
		HandshakeTimeout: defaultHandshakeTimeout,
		stats:            throughputstats.New("bytes", doneChan),
		doneChan:         doneChan,
	}, nil
}

func (t *Transport) Connect() error {
	if t.Listener() == nil {
		return &transport.ConfigurationError{Reason: "a transport listener must be set before connection attempts"}
	}

	if !t.lifecycle.Transition(transport.Idle, transport.Connecting) {
		return &transport.ConfigurationError{Reason: fmt.Sprintf("transport is %s and cannot connect again", t.lifecycle.Current())}
	}

	dialer := gorilla.Dialer{HandshakeTimeout: t.HandshakeTimeout}

	client, _, err := dialer.Dial(t.remote.String(), t.headers)
	if err != nil {
		t.lifecycle.Transition(transport.Connecting, transport.Failed)
		return t.classifyConnectFailure(err)
	}

	t.client.Store(client)

	if !t.lifecycle.Transition(transport.Connecting, transport.Connected) {
		// Closed while the handshake was in flight
		client.Close()
		return &transport.ConnectError{
			Failure:  transport.ConnectCancelled,
			Endpoint: t.remote.String(),
			Cause:    errors.New("transport was closed during connect"),
		}
	}

	t.pumpMu.Lock()
	t.pumpStarted = true
	t.tmb.Go(t.readPump)
	t.pumpMu.Unlock()

	t.logger.Infof("Connected to %s", t.remote)
	return nil
}

func (t *Transport) classifyConnectFailure(cause error) error {
	failure := transport.ConnectIO

	var netErr net.Error
	if errors.As(cause, &netErr) && netErr.Timeout() {
		failure = transport.ConnectRefusedOrTimeout
	} else if errors.Is(cause, gorilla.ErrBadHandshake) {
		failure = transport.ConnectRefusedOrTimeout
	}

	return &transport.ConnectError{
		Failure:  failure,
		Endpoint: t.remote.String(),
		Cause:    cause,
	}
}

func (t *Transport) IsConnected() bool {
	return t.lifecycle.Current() == transport.Connected
}

func (t *Transport) Send(payload []byte) error {
	if state := t.lifecycle.Current(); state != transport.Connected {
		return &transport.SendError{Reason: fmt.Sprintf("cannot send while transport is %s", state)}
	}

	client := t.client.Load()
	if client == nil {
		return &transport.SendError{Reason: "transport has no connection"}
	}

	t.writeMu.Lock()
	err := client.WriteMessage(gorilla.BinaryMessage, payload)
	t.writeMu.Unlock()

	if err != nil {
		return &transport.SendError{Reason: fmt.Sprintf("cannot send: %s", err)}
	}

	t.stats.CountOutbound(len(payload))
	return nil
}

func (t *Transport) Close() {
	previous := t.lifecycle.ClaimClose()
	if previous == transport.Closed {
		return
	}

	t.logger.Infof("Closing transport to %s (was %s)", t.remote, previous)

	close(t.doneChan)

	if client := t.client.Load(); client != nil {
		client.Close()
	}

	// Killing a tomb that never ran a goroutine would leave it dead and
	// panic a later Go, but by now the lifecycle word blocks any connect
	t.pumpMu.Lock()
	if t.pumpStarted {
		t.tmb.Kill(nil)
	}
	t.pumpMu.Unlock()
}

func (t *Transport) Listener() transport.Listener {
	t.listenerMu.RLock()
	defer t.listenerMu.RUnlock()
	return t.listener
}

func (t *Transport) SetListener(listener transport.Listener) {
	t.listenerMu.Lock()
	defer t.listenerMu.Unlock()
	t.listener = listener
}

// Stats reports how many bytes have moved through this transport
func (t *Transport) Stats() throughputstats.Digest {
	return t.stats.Digest()
}

// readPump is the dispatch goroutine: every listener callback happens here,
// gated by the same compare-and-swap rule the TCP bridge uses
func (t *Transport) readPump() error {
	defer t.logger.Debugf("Websocket read pump finished")

	client := t.client.Load()

	for {
		_, message, err := client.ReadMessage()
		if err != nil {
			t.dispatchTerminal(err)
			return nil
		}

		t.stats.CountInbound(len(message))
		if listener := t.Listener(); listener != nil {
			listener.OnData(message)
		}
	}
}

func (t *Transport) dispatchTerminal(err error) {
	if !t.lifecycle.Transition(transport.Connected, transport.Failed) {
		t.logger.Debugf("Suppressing terminal event (%s), transport is %s", err, t.lifecycle.Current())
		return
	}

	listener := t.Listener()
	if listener == nil {
		return
	}

	// A clean close from the peer is an inactive connection, not an error
	if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
		t.logger.Infof("Connection to %s went inactive", t.remote)
		listener.OnTransportClosed()
	} else {
		t.logger.Errorf("Connection to %s failed: %s", t.remote, err)
		listener.OnTransportError(err)
	}
}
