package websocket

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/prernay/qpid-jms/logger"
)

type MockWebsocketServer struct {
	logger   *logger.Logger
	listener net.Listener

	Addr          string
	ReceivedBytes chan []byte

	connsMu sync.Mutex
	conns   []*websocket.Conn
}

// NewMockWebsocketServer starts a loopback websocket endpoint that echoes
// every frame back to the sender
func NewMockWebsocketServer(logger *logger.Logger) *MockWebsocketServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Errorf("failed to setup listener: %s", err)
		return nil
	}

	mockServer := &MockWebsocketServer{
		logger:        logger,
		listener:      listener,
		Addr:          fmt.Sprintf("ws://127.0.0.1:%d", listener.Addr().(*net.TCPAddr).Port),
		ReceivedBytes: make(chan []byte, 64),
	}

	go func() {
		http.Serve(mockServer.listener, mockServer)
	}()

	return mockServer
}

func (m *MockWebsocketServer) Shutdown() {
	m.listener.Close()

	m.connsMu.Lock()
	defer m.connsMu.Unlock()
	for _, conn := range m.conns {
		conn.Close()
	}
	m.conns = nil
}

func (m *MockWebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Errorf("Error during connection upgradation: %s", err)
		return
	}
	defer conn.Close()

	m.connsMu.Lock()
	m.conns = append(m.conns, conn)
	m.connsMu.Unlock()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		m.ReceivedBytes <- message

		if err := conn.WriteMessage(messageType, message); err != nil {
			m.logger.Errorf("Error during message writing: %s", err)
			return
		}
	}
}
