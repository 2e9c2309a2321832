// Package faketransport is an in-memory loopback implementation of
// transport.Mailbox, used by chancore's tests and by cmd/chancored's
// "run" subcommand when no real RapidIO hardware is attached. It plays
// the same role relative to chancore's tests that the teacher's
// proxy.NewLocalClientCreator / kvstore.NewApplication pairing plays in
// test/fuzz/mempool/checktx.go: a minimal, in-process stand-in for an
// external collaborator.
package faketransport

import (
	"fmt"
	"sync"

	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/transport"
)

// Network routes SubmitOutbound calls between Mailboxes registered under
// a destid, emulating the RapidIO switch fabric.
type Network struct {
	mu    sync.Mutex
	nodes map[uint32]*Mailbox
}

// NewNetwork returns an empty fake fabric.
func NewNetwork() *Network {
	return &Network{nodes: make(map[uint32]*Mailbox)}
}

// Register creates and attaches a Mailbox for the given destid.
func (n *Network) Register(destID uint32) *Mailbox {
	mb := &Mailbox{network: n, destID: destID, ports: make(map[portKey]*portState)}
	n.mu.Lock()
	n.nodes[destID] = mb
	n.mu.Unlock()
	return mb
}

type portKey struct {
	port uint32
	mbox byte
}

type portState struct {
	mu sync.Mutex

	outRunning bool
	outHead    int
	outCap     int
	outCB      transport.CompletionCallback

	inRunning bool
	inCap     int
	readyCB   transport.ReadyCallback
	free      [][]byte
	filled    [][]byte
}

// Mailbox is one node's view of the fake fabric: it owns some number of
// local ports, each independently requesting inbound/outbound resources.
type Mailbox struct {
	network *Network
	destID  uint32

	mu    sync.Mutex
	ports map[portKey]*portState
}

func (m *Mailbox) state(port uint32, mbox byte) *portState {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := portKey{port, mbox}
	ps, ok := m.ports[k]
	if !ok {
		ps = &portState{}
		m.ports[k] = ps
	}
	return ps
}

// RequestOutbound implements transport.Mailbox.
func (m *Mailbox) RequestOutbound(port uint32, mbox byte, ringSize int, cb transport.CompletionCallback) error {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.outRunning = true
	ps.outCap = ringSize
	ps.outCB = cb
	return nil
}

// ReleaseOutbound implements transport.Mailbox.
func (m *Mailbox) ReleaseOutbound(port uint32, mbox byte) error {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.outRunning = false
	ps.outCB = nil
	return nil
}

// RequestInbound implements transport.Mailbox.
func (m *Mailbox) RequestInbound(port uint32, mbox byte, ringSize int, cb transport.ReadyCallback) error {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.inRunning = true
	ps.inCap = ringSize
	ps.readyCB = cb
	return nil
}

// ReleaseInbound implements transport.Mailbox.
func (m *Mailbox) ReleaseInbound(port uint32, mbox byte) error {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.inRunning = false
	ps.readyCB = nil
	ps.free = nil
	ps.filled = nil
	return nil
}

// AddInboundBuffer implements transport.Mailbox.
func (m *Mailbox) AddInboundBuffer(port uint32, mbox byte, buf []byte) error {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.inRunning {
		return cherrors.ErrNoDevice
	}
	ps.free = append(ps.free, buf)
	return nil
}

// GetInbound implements transport.Mailbox.
func (m *Mailbox) GetInbound(port uint32, mbox byte) ([]byte, bool) {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.filled) == 0 {
		return nil, false
	}
	buf := ps.filled[0]
	ps.filled = ps.filled[1:]
	return buf, true
}

// SubmitOutbound implements transport.Mailbox. It copies the payload
// (the real driver does the same before returning control to the
// caller), hands the copy to the destination node's matching port/mbox,
// and reports the completion asynchronously on the caller's own
// callback, mirroring the interrupt-driven completion the real mailbox
// driver raises once DMA finishes.
func (m *Mailbox) SubmitOutbound(port uint32, peer transport.PeerHandle, mbox byte, buf []byte, length int) error {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	if !ps.outRunning {
		ps.mu.Unlock()
		return cherrors.ErrNoDevice
	}
	slot := ps.outHead
	if ps.outCap > 0 {
		ps.outHead = (ps.outHead + 1) % ps.outCap
	}
	cb := ps.outCB
	ps.mu.Unlock()

	target, ok := peer.(*Mailbox)
	if !ok {
		return fmt.Errorf("faketransport: peer handle %T is not *faketransport.Mailbox", peer)
	}

	cp := make([]byte, length)
	copy(cp, buf[:length])

	go func() {
		target.deliver(port, mbox, cp)
		if cb != nil {
			cb(port, mbox, slot)
		}
	}()
	return nil
}

// deliver places data into a free pool buffer for (port, mbox) and
// notifies the ready callback. If no pool buffer is free the datagram is
// dropped, emulating a hardware ring that the owner failed to replenish.
func (m *Mailbox) deliver(port uint32, mbox byte, data []byte) {
	ps := m.state(port, mbox)
	ps.mu.Lock()
	if !ps.inRunning || len(ps.free) == 0 {
		ps.mu.Unlock()
		return
	}
	buf := ps.free[0]
	ps.free = ps.free[1:]
	n := copy(buf, data)
	ps.filled = append(ps.filled, buf[:n])
	cb := ps.readyCB
	ps.mu.Unlock()

	if cb != nil {
		cb(port, mbox)
	}
}

// IsPortRunning implements transport.Mailbox. The fake fabric has no
// notion of a port going away independent of its mailboxes, so a port is
// "running" as soon as any mailbox has been requested on it.
func (m *Mailbox) IsPortRunning(port uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, ps := range m.ports {
		if k.port != port {
			continue
		}
		ps.mu.Lock()
		running := ps.inRunning || ps.outRunning
		ps.mu.Unlock()
		if running {
			return true
		}
	}
	return false
}
