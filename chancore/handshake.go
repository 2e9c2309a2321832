package chancore

import (
	"time"

	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/wire"
)

// handshake bundles the registry and port registry the CONN_REQ/ACK/
// CLOSE handlers and the connect/accept/close operations both need, so
// neither engine.go nor control.go has to thread them through every
// call (spec.md §4.4).
type handshake struct {
	registry *Registry
	ports    *PortRegistry
}

func newHandshake(registry *Registry, ports *PortRegistry) *handshake {
	return &handshake{registry: registry, ports: ports}
}

// onControl is the serialized control worker's handler, dispatching by
// ch_op (spec.md §4.8 "the serialized worker executes control handlers
// one at a time").
func (h *handshake) onControl(work controlWorkDecoded) {
	switch work.header.ChOp {
	case wire.ChOpConnReq:
		h.onConnReq(work)
	case wire.ChOpConnAck:
		h.onConnAck(work)
	case wire.ChOpConnClose:
		h.onConnClose(work)
	}
}

// onConnReq handles an inbound CONN_REQ (spec.md §4.3 "Listen | CONN_REQ
// received | Listen"). Unknown destination channel is silently dropped.
func (h *handshake) onConnReq(work controlWorkDecoded) {
	ch, ok := h.registry.Lookup(work.header.DstCh)
	if !ok {
		return
	}
	defer ch.release()

	req := &ConnReq{
		RequesterDestID: work.header.SrcDestID,
		RequesterCh:     work.header.SrcCh,
		Port:            work.port,
	}
	ch.pushConnReq(req)
}

// onConnAck handles an inbound CONN_ACK, completing a pending connect
// (spec.md §4.3 "Connect | CONN_ACK received for this channel |
// Connected").
func (h *handshake) onConnAck(work controlWorkDecoded) {
	ch, ok := h.registry.Lookup(work.header.DstCh)
	if !ok {
		return
	}
	defer ch.release()
	ch.markConnected(work.header.SrcCh)
}

// onConnClose handles an inbound CONN_CLOSE: the channel is unpublished
// first under the same critical section as the lookup, then moved to
// Destroying, its waiters are woken, and the registry's reference is
// dropped (spec.md §4.4 "Remote close received"). Unlike a local close it
// sends no CONN_CLOSE back and does not wait for the channel's
// destruction.
func (h *handshake) onConnClose(work controlWorkDecoded) {
	ch, ok := h.registry.Unpublish(work.header.DstCh)
	if !ok {
		return
	}
	ch.beginDisconnectThenDestroying()
	ch.wakeAll()
	ch.release()
}

// connect implements spec.md §4.4 "Connect".
func (h *handshake) connect(ch *Channel, portID, remoteDestID uint32, remoteCh uint16, connectTimeout time.Duration, localMbox byte) error {
	port, peer, ok := h.ports.resolvePeer(portID, remoteDestID)
	if !ok {
		return cherrors.ErrNotFound
	}

	if err := ch.casConnect(port, peer, port.localDestID); err != nil {
		return err
	}

	hdr := wire.Header{
		SrcDestID: port.localDestID,
		DstDestID: remoteDestID,
		SrcMbox:   localMbox,
		DstMbox:   localMbox,
		PktType:   wire.PacketTypeChannel,
		ChOp:      wire.ChOpConnReq,
		DstCh:     remoteCh,
		SrcCh:     ch.id,
		MsgLen:    wire.HeaderLen,
	}
	buf := make([]byte, wire.HeaderLen)
	if err := hdr.Encode(buf); err != nil {
		ch.casConnectRollback()
		return err
	}

	if err := port.tx.submit(peer.Handle, buf, wire.HeaderLen, true); err != nil && err != cherrors.ErrBusy {
		ch.casConnectRollback()
		return err
	}

	return ch.waitConnect(connectTimeout)
}

// accept implements spec.md §4.4 "Accept".
func (h *handshake) accept(parent *Channel, timeout time.Duration, nonBlocking bool, rxRingSize int, localMbox byte) (*Channel, error) {
	req, err := parent.waitAccept(timeout, nonBlocking)
	if err != nil {
		return nil, err
	}

	parentPort := parent.Port()
	child := newChannel(0, parent.Owner(), rxRingSize)
	id, err := h.registry.Allocate(0, child)
	if err != nil {
		return nil, err
	}
	child.id = id

	_, peer, ok := h.ports.resolvePeer(parentPort.id, req.RequesterDestID)
	if !ok {
		h.registry.Unpublish(id)
		child.release()
		return nil, cherrors.ErrNotFound
	}

	child.completeAccept(parentPort, parentPort.localDestID, req.RequesterDestID, peer.Handle, req.RequesterCh)

	hdr := wire.Header{
		SrcDestID: parentPort.localDestID,
		DstDestID: req.RequesterDestID,
		SrcMbox:   localMbox,
		DstMbox:   localMbox,
		PktType:   wire.PacketTypeChannel,
		ChOp:      wire.ChOpConnAck,
		DstCh:     req.RequesterCh,
		SrcCh:     child.id,
		MsgLen:    wire.HeaderLen,
	}
	buf := make([]byte, wire.HeaderLen)
	if err := hdr.Encode(buf); err == nil {
		_ = parentPort.tx.submit(peer.Handle, buf, wire.HeaderLen, true)
	}

	return child, nil
}

// close implements spec.md §4.4 "Close (local)".
func (h *handshake) close(id uint16, localMbox byte, closeTimeout time.Duration) error {
	ch, ok := h.registry.Unpublish(id)
	if !ok {
		return cherrors.ErrNotFound
	}

	prior := ch.beginClose()
	if prior == StateConnected {
		h.sendConnClose(ch, localMbox)
	}
	ch.wakeAll()
	ch.release()

	err := ch.waitDestroyed(closeTimeout)
	if err != nil {
		return err
	}
	return nil
}

// sendConnClose builds and submits a CONN_CLOSE for ch, allocated on the
// heap so it survives if parked in the deferred queue (spec.md §4.4).
// Transport-level failures are swallowed per spec.md §9: the peer may
// already be gone by the time this fires.
func (h *handshake) sendConnClose(ch *Channel, localMbox byte) {
	port := ch.Port()
	if port == nil {
		return
	}
	peer := ch.PeerHandle()
	if peer == nil {
		return
	}

	hdr := wire.Header{
		SrcDestID: port.localDestID,
		DstDestID: ch.remoteDestIDSnapshot(),
		SrcMbox:   localMbox,
		DstMbox:   localMbox,
		PktType:   wire.PacketTypeChannel,
		ChOp:      wire.ChOpConnClose,
		DstCh:     ch.RemoteChannel(),
		SrcCh:     ch.ID(),
		MsgLen:    wire.HeaderLen,
	}
	buf := make([]byte, wire.HeaderLen)
	if err := hdr.Encode(buf); err != nil {
		return
	}
	_ = port.tx.submit(peer, buf, wire.HeaderLen, true)
}
