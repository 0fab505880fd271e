package reactor

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"gopkg.in/tomb.v2"

	"github.com/prernay/qpid-jms/logger"
)

var ErrChannelClosed = errors.New("channel is closed")

// Channel is one established connection owned by the reactor. Bytes go out
// through Write, which enqueues onto the channel's pending queue and returns;
// a single writer goroutine drains the queue in FIFO order so that writes
// issued in order hit the wire in order. Bytes and lifecycle events come back
// through the Handler registered with Start.
type Channel struct {
	id     string
	logger *logger.Logger

	reactor *Reactor
	conn    *net.TCPConn

	// Inbound reads are bounded by fixed-size buffers recycled through
	// this pool
	readBuffers    sync.Pool
	readBufferSize int

	handler Handler

	// Guards the start/close handoff so a close can never race the IO
	// goroutines being launched
	lifecycleMu sync.Mutex
	started     bool
	closed      atomic.Bool

	// Outbound payloads waiting for the writer goroutine
	pending   *queue.Queue
	pendingMu sync.Mutex
	wakeup    chan struct{}

	tmb tomb.Tomb
}

func newChannel(reactor *Reactor, baseLogger *logger.Logger, conn *net.TCPConn, config SocketConfig) *Channel {
	id := uuid.New().String()
	bufferSize := config.readBufferSize()

	return &Channel{
		id:      id,
		logger:  baseLogger.GetComponentLogger("Channel").GetTransportLogger(id),
		reactor: reactor,
		conn:    conn,
		readBuffers: sync.Pool{
			New: func() any {
				return make([]byte, bufferSize)
			},
		},
		readBufferSize: bufferSize,
		pending:        queue.New(),
		wakeup:         make(chan struct{}, 1),
	}
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Start registers the handler and spins up the channel's IO goroutines. It
// may only be called once; events begin flowing before it returns.
func (c *Channel) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("cannot start a channel without a handler")
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed.Load() {
		return ErrChannelClosed
	}

	if c.started {
		return fmt.Errorf("channel %s has already been started", c.id)
	}
	c.started = true

	c.handler = handler
	c.tmb.Go(c.readLoop)
	c.tmb.Go(c.writeLoop)

	return nil
}

// Write hands the payload to the writer goroutine and returns. The channel
// takes ownership of the slice; callers must not mutate it afterwards.
func (c *Channel) Write(payload []byte) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	c.pendingMu.Lock()
	c.pending.Add(payload)
	c.pendingMu.Unlock()

	// Nudge the writer if it isn't already awake
	select {
	case c.wakeup <- struct{}{}:
	default:
	}

	return nil
}

// Close shuts the socket down and releases the channel from the reactor.
// Only the first call does anything; it does not wait for the IO goroutines
// to finish.
func (c *Channel) Close() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	c.logger.Debugf("Closing channel to %s", c.conn.RemoteAddr())

	c.conn.Close()

	// Killing a tomb that never ran a goroutine would leave it dead and
	// panic a later Go, but the closed flag above makes Start refuse
	if c.started {
		c.tmb.Kill(nil)
	}

	c.reactor.release(c)
}

// readLoop is the channel's dispatch goroutine: every handler callback for
// this channel happens here, so no two can ever run concurrently
func (c *Channel) readLoop() error {
	c.handler.ServeActive()

	for {
		buffer := c.readBuffers.Get().([]byte)

		n, err := c.conn.Read(buffer)
		if n > 0 {
			// The handler keeps the data beyond this call, so give it its
			// own copy and recycle the read buffer
			data := make([]byte, n)
			copy(data, buffer[:n])
			c.readBuffers.Put(buffer)

			c.handler.ServeData(data)
		} else {
			c.readBuffers.Put(buffer)
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.handler.ServeInactive()
			} else {
				c.handler.ServeError(err)
			}
			return nil
		}
	}
}

func (c *Channel) writeLoop() error {
	for {
		select {
		case <-c.tmb.Dying():
			return nil
		case <-c.wakeup:
			if err := c.drainPending(); err != nil {
				if !c.closed.Load() {
					c.logger.Errorf("write failed: %s", err)
				}

				// Shut the socket down so the read loop observes the
				// failure and reports it; the writer never dispatches
				// events itself
				c.conn.Close()
				return nil
			}
		}
	}
}

func (c *Channel) drainPending() error {
	for {
		c.pendingMu.Lock()
		if c.pending.Length() == 0 {
			c.pendingMu.Unlock()
			return nil
		}
		payload := c.pending.Remove().([]byte)
		c.pendingMu.Unlock()

		if _, err := c.conn.Write(payload); err != nil {
			return err
		}
	}
}
