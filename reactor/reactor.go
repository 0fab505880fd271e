/*
The reactor package owns all socket IO for the transport layer. It dials
outbound connections asynchronously, runs the read and write goroutines for
every channel it hands out, and allocates the inbound buffers those reads land
in. Transports above it never touch a net.Conn directly; they receive events
through a Handler and push bytes through Channel.Write.

Every channel gets exactly one read goroutine, and all handler callbacks for
that channel are invoked from it. That is the serialization guarantee the
transport layer builds its "no callbacks after close" rule on.
*/
package reactor

import (
	"fmt"
	"sync"

	"gopkg.in/tomb.v2"

	"github.com/prernay/qpid-jms/logger"
)

// Handler receives the events the reactor observes on a single channel. All
// four methods are called from the channel's read goroutine, one at a time.
// Exactly one terminal event is delivered per channel: ServeInactive when the
// peer shut the stream down cleanly (or the channel was closed locally),
// ServeError for anything else. Never both.
type Handler interface {
	ServeActive()
	ServeInactive()
	ServeError(err error)
	ServeData(data []byte)
}

type Reactor struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	// All channels this reactor has handed out and not yet released
	channels   map[string]*Channel
	channelsMu sync.Mutex
}

func New(logger *logger.Logger) *Reactor {
	r := &Reactor{
		logger:   logger,
		channels: make(map[string]*Channel),
	}

	// Keep the tomb alive until Close() so that in-flight dials inherit a
	// cancelable context from it
	r.tmb.Go(func() error {
		<-r.tmb.Dying()

		r.channelsMu.Lock()
		channels := make([]*Channel, 0, len(r.channels))
		for _, ch := range r.channels {
			channels = append(channels, ch)
		}
		r.channelsMu.Unlock()

		for _, ch := range channels {
			ch.Close()
		}
		return nil
	})

	return r
}

// Dial asynchronously opens a TCP connection to host:port with the given
// socket configuration. It returns immediately; the caller parks on the
// completion until the reactor resolves it with a ready channel or the dial
// failure.
func (r *Reactor) Dial(host string, port int, config SocketConfig) *Completion {
	completion := newCompletion()

	if !r.tmb.Alive() {
		completion.resolve(DialResult{Err: fmt.Errorf("reactor is closed")})
		return completion
	}

	go r.dial(completion, host, port, config)

	return completion
}

func (r *Reactor) dial(completion *Completion, host string, port int, config SocketConfig) {
	addr := fmt.Sprintf("%s:%d", host, port)
	r.logger.Infof("Dialing %s", addr)

	conn, err := dialSocket(r.tmb.Context(nil), addr, config)
	if err != nil {
		completion.resolve(DialResult{Err: err})
		return
	}

	channel := newChannel(r, r.logger, conn, config)

	r.channelsMu.Lock()
	r.channels[channel.id] = channel
	r.channelsMu.Unlock()

	completion.resolve(DialResult{Channel: channel})
}

func (r *Reactor) release(channel *Channel) {
	r.channelsMu.Lock()
	delete(r.channels, channel.id)
	r.channelsMu.Unlock()
}

// Close tears down every channel the reactor still owns and stops accepting
// new dials. Safe to call more than once.
func (r *Reactor) Close() {
	if !r.tmb.Alive() {
		return
	}

	r.tmb.Kill(nil)
	r.tmb.Wait()
}
