// Package chancore implements the channel-oriented message-passing
// service of spec.md: a channel lifecycle and dispatch engine
// multiplexing one mailbox pair per local port into many independent
// bidirectional byte-message channels. Channel, PortCtx, the registries,
// the TX/RX engines, and the handshake/lifecycle logic all live in this
// one package, grounded on how the teacher bundles its reactor, its
// CList-backed mempool, and its ID allocator into a single mempool
// package: the pieces reference each other too tightly (a Channel holds
// its owning *PortCtx, a PortCtx's dispatcher resolves channels through
// the registry) to split without an import cycle.
package chancore

import (
	"time"

	"github.com/riomux/chancore/config"
	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/transport"
	"github.com/riomux/chancore/wire"
)

// Engine is the top-level facade exposed to the adaptor layer (spec.md
// §6 "Core API exposed to the adaptor").
type Engine struct {
	cfg  *config.Config
	tp   transport.Mailbox
	log  crlog.Logger
	mtrc *metrics.Metrics

	registry  *Registry
	ports     *PortRegistry
	control   *controlWorker
	handshake *handshake
}

// NewEngine constructs an Engine. The control worker is started
// immediately; no ports are running until AddPort is called.
func NewEngine(cfg *config.Config, tp transport.Mailbox, log crlog.Logger, mtrc *metrics.Metrics) *Engine {
	if log == nil {
		log = crlog.NewNopLogger()
	}
	if mtrc == nil {
		mtrc = metrics.NopMetrics()
	}

	e := &Engine{
		cfg:      cfg,
		tp:       tp,
		log:      log,
		mtrc:     mtrc,
		registry: NewRegistry(cfg.DynamicIDStart),
		ports:    NewPortRegistry(),
	}
	e.handshake = newHandshake(e.registry, e.ports)
	e.control = newControlWorker(log, mtrc, e.handshake.onControl)
	e.control.start()
	return e
}

// Shutdown sends shutdown_notice, stops every port's dispatcher, and
// disposes the control worker (spec.md §6 "shutdown_notice").
func (e *Engine) Shutdown() {
	e.shutdownNotice()
	for _, port := range e.ports.all() {
		port.running.Store(false)
		port.quiesce()
	}
	e.control.stop()
}

// --- Transport callback adaptors -------------------------------------

// onReady is the ReadyCallback registered with the transport on
// RequestInbound; it forwards to the owning port's dispatcher.
func (e *Engine) onReady(port uint32, mbox byte) {
	p, ok := e.ports.Get(port)
	if !ok || !p.IsRunning() {
		return
	}
	p.dispatcher.onReady(port, mbox)
}

// onCompletion is the CompletionCallback registered with the transport
// on RequestOutbound; it forwards to the owning port's TX engine.
func (e *Engine) onCompletion(port uint32, mbox byte, slot int) {
	p, ok := e.ports.Get(port)
	if !ok {
		return
	}
	p.tx.completion(slot)
}

// --- Lifecycle events (spec.md §4.2, §6) ------------------------------

// AddPort brings up a local port: acquires mailboxes, pre-fills the RX
// pool, and starts its dispatcher.
func (e *Engine) AddPort(portID, localDestID uint32) error {
	return e.addPort(portID, localDestID)
}

// RemovePort tears down a local port and every channel bound to it.
func (e *Engine) RemovePort(portID uint32) error {
	return e.removePort(portID)
}

// AddPeer admits a newly discovered peer on portID, if it advertises
// both data-message source and destination capability.
func (e *Engine) AddPeer(portID uint32, peer transport.Peer) bool {
	return e.addPeer(portID, peer)
}

// RemovePeer withdraws a peer and closes every channel bound to it.
func (e *Engine) RemovePeer(portID uint32, handle transport.PeerHandle) {
	e.removePeer(portID, handle)
}

// ChannelSummary is a read-only snapshot of one registered channel, for
// administrative introspection (SPEC_FULL.md §11.5).
type ChannelSummary struct {
	ID        uint16
	State     State
	PortID    uint32
	RemoteCh  uint16
	RXQueued  int
	RXInUse   int
}

// ChannelSnapshot returns a point-in-time summary of every channel
// currently in the registry.
func (e *Engine) ChannelSnapshot() []ChannelSummary {
	out := make([]ChannelSummary, 0, e.registry.Len())
	e.registry.ForEach(func(ch *Channel) bool {
		ch.mu.Lock()
		summary := ChannelSummary{
			ID:       ch.id,
			State:    ch.state,
			RemoteCh: ch.remoteCh,
			RXQueued: ch.rx.count,
			RXInUse:  ch.rx.inuseCount,
		}
		if ch.port != nil {
			summary.PortID = ch.port.id
		}
		ch.mu.Unlock()
		out = append(out, summary)
		return true
	})
	return out
}

// --- Core API (spec.md §6) --------------------------------------------

// EpListSize reports the number of known peers on portID.
func (e *Engine) EpListSize(portID uint32) (int, error) {
	return e.ports.EpListSize(portID)
}

// EpList returns up to max destids known as peers on portID.
func (e *Engine) EpList(portID uint32, max int) ([]uint32, error) {
	return e.ports.EpList(portID, max)
}

// PortList returns up to max (port_id, host_destid) pairs.
func (e *Engine) PortList(max int) []PortInfo {
	return e.ports.List(max)
}

// ChannelCreate allocates a new channel, reserving requestedID exactly
// if non-zero, else the lowest free dynamic ID.
func (e *Engine) ChannelCreate(requestedID uint16, owner interface{}) (uint16, error) {
	ch := newChannel(requestedID, owner, e.cfg.RXRingSize)
	id, err := e.registry.Allocate(requestedID, ch)
	if err != nil {
		return 0, err
	}
	ch.id = id
	e.mtrc.ChannelsOpen.Set(float64(e.registry.Len()))
	return id, nil
}

// ChannelClose implements spec.md §4.4 "Close (local)". owner, if
// non-nil, must match the channel's recorded owner token or the call
// fails NotFound — this is the administrative owner-release guard; pass
// nil to close unconditionally.
func (e *Engine) ChannelClose(id uint16, owner interface{}) error {
	if owner != nil {
		ch, ok := e.registry.Lookup(id)
		if !ok {
			return cherrors.ErrNotFound
		}
		match := ch.Owner() == owner
		ch.release()
		if !match {
			return cherrors.ErrNotFound
		}
	}
	err := e.handshake.close(id, e.cfg.Mailbox, config.CloseTimeout)
	e.mtrc.ChannelsOpen.Set(float64(e.registry.Len()))
	return err
}

// ChannelBind attaches portID to channel id (Idle -> Bound).
func (e *Engine) ChannelBind(id uint16, portID uint32) error {
	ch, ok := e.registry.Lookup(id)
	if !ok {
		return cherrors.ErrNotFound
	}
	defer ch.release()

	port, ok := e.ports.Get(portID)
	if !ok {
		return cherrors.ErrNotFound
	}
	return ch.bind(port, port.localDestID)
}

// ChannelListen transitions a bound channel to Listen.
func (e *Engine) ChannelListen(id uint16) error {
	ch, ok := e.registry.Lookup(id)
	if !ok {
		return cherrors.ErrNotFound
	}
	defer ch.release()
	return ch.listen()
}

// ChannelAccept dequeues one pending connection request on a listening
// channel and returns the newly connected child channel's ID.
func (e *Engine) ChannelAccept(id uint16, timeout time.Duration) (uint16, error) {
	ch, ok := e.registry.Lookup(id)
	if !ok {
		return 0, cherrors.ErrNotFound
	}
	defer ch.release()

	nonBlocking := timeout <= 0
	child, err := e.handshake.accept(ch, timeout, nonBlocking, e.cfg.RXRingSize, e.cfg.Mailbox)
	if err != nil {
		return 0, err
	}
	e.mtrc.ChannelsOpen.Set(float64(e.registry.Len()))
	return child.ID(), nil
}

// ChannelConnect drives a channel through Idle -> Connect -> Connected,
// or a terminal error, against remoteDestID's listening remoteCh.
func (e *Engine) ChannelConnect(id uint16, portID, remoteDestID uint32, remoteCh uint16) error {
	ch, ok := e.registry.Lookup(id)
	if !ok {
		return cherrors.ErrNotFound
	}
	defer ch.release()
	return e.handshake.connect(ch, portID, remoteDestID, remoteCh, e.cfg.ConnectTimeout, e.cfg.Mailbox)
}

// ChannelSend implements spec.md §4.7 "Data send". buf must have at
// least wire.HeaderLen bytes of room before the payload; Send
// overwrites buf[:HeaderLen] in place with the channel header.
func (e *Engine) ChannelSend(id uint16, buf []byte, length int) error {
	if length <= 0 || length > e.cfg.MaxMsgSize {
		return cherrors.ErrInvalid
	}
	if len(buf) < wire.HeaderLen+length {
		return cherrors.ErrInvalid
	}

	ch, ok := e.registry.Lookup(id)
	if !ok {
		return cherrors.ErrNotFound
	}
	defer ch.release()

	if ch.State() != StateConnected {
		return cherrors.ErrAgain
	}

	port := ch.Port()
	hdr := wire.Header{
		SrcDestID: port.localDestID,
		DstDestID: ch.remoteDestIDSnapshot(),
		SrcMbox:   e.cfg.Mailbox,
		DstMbox:   e.cfg.Mailbox,
		PktType:   wire.PacketTypeChannel,
		ChOp:      wire.ChOpData,
		DstCh:     ch.RemoteChannel(),
		SrcCh:     ch.ID(),
		MsgLen:    uint16(wire.HeaderLen + length),
	}
	if err := hdr.Encode(buf); err != nil {
		return err
	}

	peer := ch.PeerHandle()
	if peer == nil {
		return cherrors.ErrNotFound
	}
	return port.tx.submit(peer, buf[:wire.HeaderLen+length], wire.HeaderLen+length, false)
}

// ChannelReceive implements spec.md §4.5 "pop": it dequeues the oldest
// received payload, returning the buffer with its 20-byte header still
// intact at the front (callers slice past wire.HeaderLen themselves, as
// scenario 1 of spec.md §8 does).
func (e *Engine) ChannelReceive(id uint16, timeout time.Duration) ([]byte, int, error) {
	ch, ok := e.registry.Lookup(id)
	if !ok {
		return nil, 0, cherrors.ErrNotFound
	}
	defer ch.release()

	nonBlocking := timeout <= 0
	return ch.popRX(timeout, nonBlocking)
}

// ChannelReleaseRX returns a buffer previously handed out by
// ChannelReceive back to its port's RX pool.
func (e *Engine) ChannelReleaseRX(id uint16, buf []byte) error {
	ch, ok := e.registry.Lookup(id)
	if !ok {
		return cherrors.ErrNotFound
	}
	defer ch.release()

	port := ch.Port()
	if port == nil {
		return cherrors.ErrInvalid
	}
	return ch.releaseRX(buf, port.rxPool.free)
}
