package transport

import (
	"github.com/stretchr/testify/mock"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTransport) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockTransport) Send(payload []byte) error {
	args := m.Called(payload)
	return args.Error(0)
}

func (m *MockTransport) Close() {
	m.Called()
}

func (m *MockTransport) Listener() Listener {
	args := m.Called()
	return args.Get(0).(Listener)
}

func (m *MockTransport) SetListener(listener Listener) {
	m.Called(listener)
}

type MockListener struct {
	mock.Mock
}

func (m *MockListener) OnData(data []byte) {
	m.Called(data)
}

func (m *MockListener) OnTransportClosed() {
	m.Called()
}

func (m *MockListener) OnTransportError(err error) {
	m.Called(err)
}
