package tcp

import (
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/prernay/qpid-jms/logger"
	"github.com/prernay/qpid-jms/tests/server"
	"github.com/prernay/qpid-jms/transport"
)

func TestTcpTransport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "TcpTransport Suite")
}

// testListener records callbacks on channels so specs can wait on them
type testListener struct {
	data   chan []byte
	closed chan struct{}
	errs   chan error
}

func newTestListener() *testListener {
	return &testListener{
		data:   make(chan []byte, 16),
		closed: make(chan struct{}, 4),
		errs:   make(chan error, 4),
	}
}

func (l *testListener) OnData(data []byte)        { l.data <- data }
func (l *testListener) OnTransportClosed()        { l.closed <- struct{}{} }
func (l *testListener) OnTransportError(err error) { l.errs <- err }

var _ = Describe("TcpTransport", func() {
	log := logger.MockLogger(GinkgoWriter)

	testSendData := []byte{0x01, 0x02, 0x03}

	Context("Connecting", func() {
		When("no listener is set", func() {
			It("fails with a configuration error before any IO", func() {
				tr, err := New(log, "127.0.0.1", 1, DefaultOptions())
				Expect(err).ShouldNot(HaveOccurred())

				err = tr.Connect()

				var configErr *transport.ConfigurationError
				Expect(errors.As(err, &configErr)).To(BeTrue(), "expected a ConfigurationError but got: %v", err)
				Expect(tr.IsConnected()).To(BeFalse())
			})
		})

		When("the endpoint refuses connections", func() {
			var tr *Transport
			var err error
			var elapsed time.Duration

			BeforeEach(func() {
				host, port := server.ClosedPort()

				options := DefaultOptions()
				options.ConnectTimeout = 2 * time.Second

				tr, err = New(log, host, port, options)
				Expect(err).ShouldNot(HaveOccurred())
				tr.SetListener(newTestListener())

				start := time.Now()
				err = tr.Connect()
				elapsed = time.Since(start)
			})

			AfterEach(func() {
				tr.Close()
			})

			It("fails with a connect error that preserves the cause", func() {
				var connectErr *transport.ConnectError
				Expect(errors.As(err, &connectErr)).To(BeTrue(), "expected a ConnectError but got: %v", err)
				Expect(connectErr.Cause).ShouldNot(BeNil())
			})

			It("resolves within the connect timeout plus slack", func() {
				Expect(elapsed).To(BeNumerically("<", 4*time.Second))
			})

			It("is not connected afterwards", func() {
				Expect(tr.IsConnected()).To(BeFalse())
			})
		})

		When("connecting to a live server", func() {
			var srv *server.TcpServer
			var tr *Transport
			var err error

			BeforeEach(func() {
				srv = server.NewEchoServer(log)

				tr, err = New(log, srv.Host, srv.Port, DefaultOptions())
				Expect(err).ShouldNot(HaveOccurred())
				tr.SetListener(newTestListener())

				err = tr.Connect()
			})

			AfterEach(func() {
				tr.Close()
				srv.Shutdown()
			})

			It("succeeds", func() {
				Expect(err).ShouldNot(HaveOccurred(), "transport was unable to connect: %v", err)
				Expect(tr.IsConnected()).To(BeTrue())
			})

			It("refuses a second connection attempt", func() {
				secondErr := tr.Connect()

				var configErr *transport.ConfigurationError
				Expect(errors.As(secondErr, &configErr)).To(BeTrue(), "expected a ConfigurationError but got: %v", secondErr)
			})
		})
	})

	Context("Sending and receiving", func() {
		var srv *server.TcpServer
		var tr *Transport
		var listener *testListener

		BeforeEach(func() {
			srv = server.NewEchoServer(log)
			listener = newTestListener()

			var err error
			tr, err = New(log, srv.Host, srv.Port, DefaultOptions())
			Expect(err).ShouldNot(HaveOccurred())
			tr.SetListener(listener)

			Expect(tr.Connect()).To(Succeed())
		})

		AfterEach(func() {
			tr.Close()
			srv.Shutdown()
		})

		It("round-trips bytes through the echo server", func() {
			Expect(tr.Send(testSendData)).To(Succeed())

			var received []byte
			Eventually(listener.data, 3*time.Second).Should(Receive(&received))
			Expect(received).To(Equal(testSendData))
		})

		It("preserves the order of writes from one goroutine", func() {
			var sent []byte
			for i := 0; i < 10; i++ {
				payload := []byte(fmt.Sprintf("message-%d;", i))
				sent = append(sent, payload...)
				Expect(tr.Send(payload)).To(Succeed())
			}

			// The stream may arrive in arbitrary chunks, so reassemble
			var received []byte
			Eventually(func() []byte {
				for {
					select {
					case data := <-listener.data:
						received = append(received, data...)
					default:
						return received
					}
				}
			}, 3*time.Second).Should(Equal(sent))
		})

		It("counts the bytes it moves", func() {
			Expect(tr.Send(testSendData)).To(Succeed())
			Eventually(listener.data, 3*time.Second).Should(Receive())

			digest := tr.Stats()
			Expect(digest.Outbound.Total).To(Equal(len(testSendData)))
			Expect(digest.Inbound.Total).To(Equal(len(testSendData)))
		})
	})

	Context("Closing", func() {
		var srv *server.TcpServer
		var tr *Transport
		var listener *testListener

		BeforeEach(func() {
			srv = server.NewEchoServer(log)
			listener = newTestListener()

			var err error
			tr, err = New(log, srv.Host, srv.Port, DefaultOptions())
			Expect(err).ShouldNot(HaveOccurred())
			tr.SetListener(listener)

			Expect(tr.Connect()).To(Succeed())
		})

		AfterEach(func() {
			tr.Close()
			srv.Shutdown()
		})

		It("disconnects and fails subsequent sends", func() {
			tr.Close()

			Expect(tr.IsConnected()).To(BeFalse())

			err := tr.Send([]byte("anything"))
			var sendErr *transport.SendError
			Expect(errors.As(err, &sendErr)).To(BeTrue(), "expected a SendError but got: %v", err)
		})

		It("is idempotent", func() {
			tr.Close()
			tr.Close()
			tr.Close()

			Consistently(listener.closed, 300*time.Millisecond).ShouldNot(Receive())
			Consistently(listener.errs, 50*time.Millisecond).ShouldNot(Receive())
		})

		It("suppresses lifecycle callbacks for events behind the close", func() {
			tr.Close()

			// The server tearing the connection down now must not reach
			// the listener
			srv.DropConnections()

			Consistently(listener.closed, 500*time.Millisecond).ShouldNot(Receive())
			Consistently(listener.errs, 50*time.Millisecond).ShouldNot(Receive())
		})

		It("reports a server-side drop to the listener when not closed", func() {
			srv.DropConnections()

			Eventually(listener.closed, 3*time.Second).Should(Receive())
			Expect(tr.IsConnected()).To(BeFalse())
		})
	})

	Context("Replacing the listener", func() {
		It("delivers the next event to the replacement", func() {
			srv := server.NewEchoServer(log)
			defer srv.Shutdown()

			first := newTestListener()
			second := newTestListener()

			tr, err := New(log, srv.Host, srv.Port, DefaultOptions())
			Expect(err).ShouldNot(HaveOccurred())
			tr.SetListener(first)
			Expect(tr.Connect()).To(Succeed())
			defer tr.Close()

			tr.SetListener(second)
			Expect(tr.Listener()).To(BeIdenticalTo(second))

			Expect(tr.Send(testSendData)).To(Succeed())
			Eventually(second.data, 3*time.Second).Should(Receive())
			Consistently(first.data, 100*time.Millisecond).ShouldNot(Receive())
		})
	})
})
