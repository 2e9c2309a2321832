package chancore

import (
	"github.com/riomux/chancore/config"
	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/transport"
)

// addPort implements spec.md §4.2 "On add_port(port)". Failure to
// acquire either mailbox is fatal for this port; already-acquired
// resources are released before returning the error.
func (e *Engine) addPort(portID, localDestID uint32) error {
	port := &PortCtx{
		id:          portID,
		localDestID: localDestID,
		mbox:        e.cfg.Mailbox,
		tp:          e.tp,
		log:         e.log.With("port", portID),
		mtrc:        e.mtrc,
		rxPool:      newRxPool(e.cfg.RXRingSize, e.cfg.MaxMsgSize),
		stop:        make(chan struct{}),
	}
	port.tx = newTxEngine(port, e.tp, e.cfg.TXRingSize, port.log, e.mtrc)

	if err := e.tp.RequestOutbound(portID, port.mbox, e.cfg.TXRingSize, e.onCompletion); err != nil {
		return cherrors.Wrap(err, "request outbound mailbox")
	}
	if err := e.tp.RequestInbound(portID, port.mbox, e.cfg.RXRingSize, e.onReady); err != nil {
		_ = e.tp.ReleaseOutbound(portID, port.mbox)
		return cherrors.Wrap(err, "request inbound mailbox")
	}

	for i := 0; i < e.cfg.RXRingSize; i++ {
		buf := port.rxPool.alloc()
		if err := e.tp.AddInboundBuffer(portID, port.mbox, buf); err != nil {
			_ = e.tp.ReleaseInbound(portID, port.mbox)
			_ = e.tp.ReleaseOutbound(portID, port.mbox)
			return cherrors.Wrap(err, "pre-fill inbound pool")
		}
	}

	port.dispatcher = newRxDispatcher(port, config.RXBurst, port.log, e.mtrc, e.control.submit, e.registry.Lookup, e.releaseChannel)
	port.running.Store(true)
	port.dispatcher.start(port.stop)

	e.ports.publish(port)
	return nil
}

// removePort implements spec.md §4.2 "On remove_port(port)".
func (e *Engine) removePort(portID uint32) error {
	port, ok := e.ports.unpublish(portID)
	if !ok {
		return cherrors.ErrNotFound
	}
	port.running.Store(false)
	port.quiesce()

	e.registry.ForEach(func(ch *Channel) bool {
		if ch.Port() != port {
			return true
		}
		if _, unpub := e.registry.Unpublish(ch.ID()); unpub {
			ch.beginDisconnectThenDestroying()
			ch.wakeAll()
			ch.release()
		}
		return true
	})

	port.tx.flush()
	_ = e.tp.ReleaseInbound(portID, port.mbox)
	_ = e.tp.ReleaseOutbound(portID, port.mbox)
	return nil
}

// addPeer implements spec.md §4.2 "On add_peer(peer)".
func (e *Engine) addPeer(portID uint32, peer transport.Peer) bool {
	return e.ports.addPeer(portID, peer)
}

// removePeer implements spec.md §4.2 "On remove_peer(peer)": every
// channel whose cached peer handle matches is transitioned to
// Disconnect and closed, unless it is already being torn down. A
// CONN_CLOSE is attempted for every such channel that was Connected;
// sendConnClose swallows transport errors.
func (e *Engine) removePeer(portID uint32, handle transport.PeerHandle) {
	_, _ = e.ports.removePeer(portID, handle)

	e.registry.ForEach(func(ch *Channel) bool {
		if ch.PeerHandle() != handle {
			return true
		}
		if _, unpub := e.registry.Unpublish(ch.ID()); unpub {
			if ch.beginDisconnectThenDestroying() == StateConnected {
				e.handshake.sendConnClose(ch, e.cfg.Mailbox)
			}
			ch.wakeAll()
			ch.release()
		}
		return true
	})
}

// shutdownNotice implements spec.md §6 "shutdown_notice()": every
// Connected channel in the registry is sent a CONN_CLOSE. Transport
// errors are swallowed, matching sendConnClose's normal peer-loss
// tolerance.
func (e *Engine) shutdownNotice() {
	e.registry.ForEach(func(ch *Channel) bool {
		if ch.State() == StateConnected {
			e.handshake.sendConnClose(ch, e.cfg.Mailbox)
		}
		return true
	})
}

// releaseChannel is the RX dispatcher's release callback, dropping the
// reference Registry.Lookup added for the duration of a push.
func (e *Engine) releaseChannel(ch *Channel) {
	ch.release()
}
