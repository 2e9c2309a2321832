// Package mocktransport is a stretchr/testify/mock-based transport.Mailbox,
// hand-written in the same shape the teacher's mockery-generated
// proxy/mocks/app_conn_mempool.go takes (an embedded mock.Mock, a
// _m.Called(...) per method, typed ret.Get(n) assertions) since there is
// no mockery/protoc invocation available in this environment. Use this
// where a test needs to assert call arguments or script a sequence of
// return values (e.g. "the second SubmitOutbound call returns Busy");
// use faketransport for anything that needs to actually move bytes
// between two engines.
package mocktransport

import (
	"github.com/stretchr/testify/mock"

	"github.com/riomux/chancore/transport"
)

// Mailbox is an autogenerated-shaped mock type for transport.Mailbox.
type Mailbox struct {
	mock.Mock
}

var _ transport.Mailbox = (*Mailbox)(nil)

// RequestOutbound provides a mock function with given fields: port, mbox, ringSize, cb
func (_m *Mailbox) RequestOutbound(port uint32, mbox byte, ringSize int, cb transport.CompletionCallback) error {
	ret := _m.Called(port, mbox, ringSize, cb)
	return ret.Error(0)
}

// ReleaseOutbound provides a mock function with given fields: port, mbox
func (_m *Mailbox) ReleaseOutbound(port uint32, mbox byte) error {
	ret := _m.Called(port, mbox)
	return ret.Error(0)
}

// RequestInbound provides a mock function with given fields: port, mbox, ringSize, cb
func (_m *Mailbox) RequestInbound(port uint32, mbox byte, ringSize int, cb transport.ReadyCallback) error {
	ret := _m.Called(port, mbox, ringSize, cb)
	return ret.Error(0)
}

// ReleaseInbound provides a mock function with given fields: port, mbox
func (_m *Mailbox) ReleaseInbound(port uint32, mbox byte) error {
	ret := _m.Called(port, mbox)
	return ret.Error(0)
}

// AddInboundBuffer provides a mock function with given fields: port, mbox, buf
func (_m *Mailbox) AddInboundBuffer(port uint32, mbox byte, buf []byte) error {
	ret := _m.Called(port, mbox, buf)
	return ret.Error(0)
}

// GetInbound provides a mock function with given fields: port, mbox
func (_m *Mailbox) GetInbound(port uint32, mbox byte) ([]byte, bool) {
	ret := _m.Called(port, mbox)

	var r0 []byte
	if rf, ok := ret.Get(0).(func(uint32, byte) []byte); ok {
		r0 = rf(port, mbox)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]byte)
	}
	return r0, ret.Bool(1)
}

// SubmitOutbound provides a mock function with given fields: port, peer, mbox, buf, length
func (_m *Mailbox) SubmitOutbound(port uint32, peer transport.PeerHandle, mbox byte, buf []byte, length int) error {
	ret := _m.Called(port, peer, mbox, buf, length)
	return ret.Error(0)
}

// IsPortRunning provides a mock function with given fields: port
func (_m *Mailbox) IsPortRunning(port uint32) bool {
	ret := _m.Called(port)
	return ret.Bool(0)
}
