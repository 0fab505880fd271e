package reactor

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prernay/qpid-jms/logger"
	"github.com/prernay/qpid-jms/tests/server"
)

type recordingHandler struct {
	active   chan struct{}
	inactive chan struct{}
	errs     chan error
	data     chan []byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		active:   make(chan struct{}, 1),
		inactive: make(chan struct{}, 4),
		errs:     make(chan error, 4),
		data:     make(chan []byte, 16),
	}
}

func (h *recordingHandler) ServeActive()          { h.active <- struct{}{} }
func (h *recordingHandler) ServeInactive()        { h.inactive <- struct{}{} }
func (h *recordingHandler) ServeError(err error)  { h.errs <- err }
func (h *recordingHandler) ServeData(data []byte) { h.data <- data }

func defaultConfig() SocketConfig {
	return SocketConfig{
		NoDelay:           true,
		ConnectTimeout:    2 * time.Second,
		Linger:            -1,
		SendBufferSize:    -1,
		ReceiveBufferSize: -1,
		TrafficClass:      -1,
	}
}

func dialResult(t *testing.T, r *Reactor, host string, port int) DialResult {
	t.Helper()

	select {
	case result := <-r.Dial(host, port, defaultConfig()).Done():
		return result
	case <-time.After(5 * time.Second):
		t.Fatal("dial never resolved its completion")
		return DialResult{}
	}
}

func TestDialResolvesWithChannel(t *testing.T) {
	log := logger.MockLogger(testWriter{t})
	srv := server.NewEchoServer(log)
	defer srv.Shutdown()

	r := New(log)
	defer r.Close()

	result := dialResult(t, r, srv.Host, srv.Port)
	require.NoError(t, result.Err)
	require.NotNil(t, result.Channel)

	result.Channel.Close()
}

func TestDialFailureResolvesWithError(t *testing.T) {
	log := logger.MockLogger(testWriter{t})
	host, port := server.ClosedPort()

	r := New(log)
	defer r.Close()

	result := dialResult(t, r, host, port)
	require.Error(t, result.Err)
	assert.Nil(t, result.Channel)
}

func TestDialAfterCloseResolvesImmediately(t *testing.T) {
	log := logger.MockLogger(testWriter{t})

	r := New(log)
	r.Close()

	result := dialResult(t, r, "127.0.0.1", 1)
	require.Error(t, result.Err)
}

func TestWritesPreserveIssueOrder(t *testing.T) {
	log := logger.MockLogger(testWriter{t})
	srv := server.NewEchoServer(log)
	defer srv.Shutdown()

	r := New(log)
	defer r.Close()

	result := dialResult(t, r, srv.Host, srv.Port)
	require.NoError(t, result.Err)

	handler := newRecordingHandler()
	require.NoError(t, result.Channel.Start(handler))
	defer result.Channel.Close()

	var sent []byte
	for i := 0; i < 20; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, 10)
		sent = append(sent, payload...)
		require.NoError(t, result.Channel.Write(payload))
	}

	// The echo may arrive in arbitrary chunks; reassemble until we have
	// everything back
	var received []byte
	deadline := time.After(5 * time.Second)
	for len(received) < len(sent) {
		select {
		case data := <-handler.data:
			received = append(received, data...)
		case <-deadline:
			t.Fatalf("only got %d of %d echoed bytes back", len(received), len(sent))
		}
	}

	assert.Equal(t, sent, received)
}

func TestExactlyOneTerminalEvent(t *testing.T) {
	log := logger.MockLogger(testWriter{t})
	srv := server.NewEchoServer(log)
	defer srv.Shutdown()

	r := New(log)
	defer r.Close()

	result := dialResult(t, r, srv.Host, srv.Port)
	require.NoError(t, result.Err)

	handler := newRecordingHandler()
	require.NoError(t, result.Channel.Start(handler))

	srv.DropConnections()

	terminals := 0
	deadline := time.After(3 * time.Second)
	select {
	case <-handler.inactive:
		terminals++
	case <-handler.errs:
		terminals++
	case <-deadline:
	}

	// Give a second event time to show up if the channel were going to
	// misbehave
	time.Sleep(300 * time.Millisecond)
	terminals += len(handler.inactive) + len(handler.errs)

	assert.Equal(t, 1, terminals, "a channel must deliver exactly one terminal event")
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	log := logger.MockLogger(testWriter{t})
	srv := server.NewEchoServer(log)
	defer srv.Shutdown()

	r := New(log)
	defer r.Close()

	result := dialResult(t, r, srv.Host, srv.Port)
	require.NoError(t, result.Err)

	result.Channel.Close()
	result.Channel.Close()

	require.Error(t, result.Channel.Write([]byte("too late")))
}

func TestReadBufferSizeFollowsReceiveBuffer(t *testing.T) {
	config := defaultConfig()
	assert.Equal(t, defaultReadBufferSize, config.readBufferSize())

	config.ReceiveBufferSize = 4096
	assert.Equal(t, 4096, config.readBufferSize())
}

// testWriter routes logger output through the test log
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
