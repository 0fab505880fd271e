/*
Loopback TCP servers for exercising transports in package tests. The echo
server writes every byte it reads straight back; the silent server accepts
connections and then says nothing, which is useful for testing what a
transport does when the wire goes quiet or gets yanked.
*/
package server

import (
	"fmt"
	"net"
	"sync"

	"github.com/prernay/qpid-jms/logger"
)

type TcpServer struct {
	logger   *logger.Logger
	listener net.Listener
	echo     bool

	Host string
	Port int

	// Everything the server has read, one slice per read
	ReceivedBytes chan []byte

	connsMu sync.Mutex
	conns   []net.Conn
}

func NewEchoServer(logger *logger.Logger) *TcpServer {
	return newTcpServer(logger, true)
}

func NewSilentServer(logger *logger.Logger) *TcpServer {
	return newTcpServer(logger, false)
}

func newTcpServer(l *logger.Logger, echo bool) *TcpServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		l.Errorf("failed to setup listener: %s", err)
		return nil
	}

	server := &TcpServer{
		logger:        l,
		listener:      listener,
		echo:          echo,
		Host:          "127.0.0.1",
		Port:          listener.Addr().(*net.TCPAddr).Port,
		ReceivedBytes: make(chan []byte, 64),
	}

	go server.acceptLoop()

	return server
}

func (s *TcpServer) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *TcpServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.connsMu.Lock()
		s.conns = append(s.conns, conn)
		s.connsMu.Unlock()

		go s.serve(conn)
	}
}

func (s *TcpServer) serve(conn net.Conn) {
	defer conn.Close()

	buffer := make([]byte, 4096)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			received := make([]byte, n)
			copy(received, buffer[:n])
			s.ReceivedBytes <- received

			if s.echo {
				if _, err := conn.Write(received); err != nil {
					s.logger.Errorf("error echoing bytes back: %s", err)
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// DropConnections closes every connection the server has accepted, from the
// server side, without stopping the listener
func (s *TcpServer) DropConnections() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

func (s *TcpServer) Shutdown() {
	s.listener.Close()
	s.DropConnections()
}

// ClosedPort returns the address of a loopback port that nothing is listening
// on, for connection-refused tests
func ClosedPort() (string, int) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "127.0.0.1", 1
	}

	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	return "127.0.0.1", port
}
