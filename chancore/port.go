package chancore

import (
	"sync"
	"sync/atomic"

	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/internal/csync"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/transport"
)

// PortCtx is the per-local-port context of spec.md §3/§4.2: a TX ring, an
// RX buffer pool, a peer list, and the two dispatch tasks.
type PortCtx struct {
	id          uint32
	localDestID uint32
	mbox        byte

	tp   transport.Mailbox
	log  crlog.Logger
	mtrc *metrics.Metrics

	rxPool *rxPool
	tx     *txEngine

	dispatcher *rxDispatcher
	control    *controlWorker

	// stop quiesces this port's own dispatch task on remove_port (spec.md
	// §4.2); each port has its own stop channel so one port's teardown
	// never blocks on, or is blocked by, another's. quiesce is
	// idempotent since both remove_port and a whole-Engine Shutdown may
	// try to stop the same port's dispatcher.
	stop     chan struct{}
	stopOnce sync.Once

	running atomic.Bool

	// peers is guarded by the owning PortRegistry's RW lock, not by a
	// lock of its own, matching spec.md §5: "the port list is guarded by
	// a reader-writer lock (readers: connect, accept peer resolution,
	// enumeration; writers: port/peer add/remove)".
	peers []transport.Peer
}

// ID returns the local port identifier.
func (p *PortCtx) ID() uint32 { return p.id }

// LocalDestID returns the host destid configured for this port.
func (p *PortCtx) LocalDestID() uint32 { return p.localDestID }

// IsRunning reports whether the port has not yet been torn down.
func (p *PortCtx) IsRunning() bool { return p.running.Load() }

// quiesce stops this port's dispatch task, idempotently.
func (p *PortCtx) quiesce() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// PortRegistry is the process-wide list of active ports (spec.md §4.2,
// §5). It is a distinct lock from the channel Registry's mutex; the
// documented lock order is port-registry RW -> registry mutex -> channel
// mutex -> TX mutex.
type PortRegistry struct {
	mu    csync.RWMutex
	ports map[uint32]*PortCtx
}

// NewPortRegistry returns an empty port registry.
func NewPortRegistry() *PortRegistry {
	return &PortRegistry{ports: make(map[uint32]*PortCtx)}
}

func (pr *PortRegistry) publish(p *PortCtx) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.ports[p.id] = p
}

func (pr *PortRegistry) unpublish(id uint32) (*PortCtx, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	p, ok := pr.ports[id]
	if ok {
		delete(pr.ports, id)
	}
	return p, ok
}

// Get returns the PortCtx for id, for readers (connect/accept peer
// resolution, enumeration).
func (pr *PortRegistry) Get(id uint32) (*PortCtx, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	p, ok := pr.ports[id]
	return p, ok
}

// resolvePeer finds the Peer record for destID on port id, under the
// registry's read lock (spec.md §4.4 "Connect").
func (pr *PortRegistry) resolvePeer(portID, destID uint32) (*PortCtx, transport.Peer, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	p, ok := pr.ports[portID]
	if !ok {
		return nil, transport.Peer{}, false
	}
	for _, peer := range p.peers {
		if peer.DestID == destID {
			return p, peer, true
		}
	}
	return p, transport.Peer{}, false
}

// addPeer appends peer to port's list under the write lock, admitting
// only peers that advertise both data-message source and destination
// capability (spec.md §4.2 "add_peer").
func (pr *PortRegistry) addPeer(portID uint32, peer transport.Peer) bool {
	if !peer.Caps.HasDataCaps() {
		return false
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	p, ok := pr.ports[portID]
	if !ok {
		return false
	}
	p.peers = append(p.peers, peer)
	return true
}

// removePeer deletes any peer matching handle from port's list, under
// the write lock, returning the removed Peer if any.
func (pr *PortRegistry) removePeer(portID uint32, handle transport.PeerHandle) (transport.Peer, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	p, ok := pr.ports[portID]
	if !ok {
		return transport.Peer{}, false
	}
	for i, peer := range p.peers {
		if peer.Handle == handle {
			p.peers = append(p.peers[:i], p.peers[i+1:]...)
			return peer, true
		}
	}
	return transport.Peer{}, false
}

// all returns a snapshot of every currently published PortCtx, for
// whole-Engine teardown (Shutdown quiescing every port's dispatcher).
func (pr *PortRegistry) all() []*PortCtx {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	out := make([]*PortCtx, 0, len(pr.ports))
	for _, p := range pr.ports {
		out = append(out, p)
	}
	return out
}

// List returns up to max (port_id, host_destid) pairs (spec.md §6
// "port_list").
func (pr *PortRegistry) List(max int) []PortInfo {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	out := make([]PortInfo, 0, len(pr.ports))
	for _, p := range pr.ports {
		if len(out) >= max {
			break
		}
		out = append(out, PortInfo{PortID: p.id, HostDestID: p.localDestID})
	}
	return out
}

// PortInfo is the tuple returned by port_list.
type PortInfo struct {
	PortID     uint32
	HostDestID uint32
}

// EpList returns up to max destids known as peers on the given port
// (spec.md §6 "ep_list").
func (pr *PortRegistry) EpList(portID uint32, max int) ([]uint32, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	p, ok := pr.ports[portID]
	if !ok {
		return nil, cherrors.ErrNotFound
	}
	out := make([]uint32, 0, len(p.peers))
	for _, peer := range p.peers {
		if len(out) >= max {
			break
		}
		out = append(out, peer.DestID)
	}
	return out, nil
}

// EpListSize reports the number of known peers on the given port
// (spec.md §6 "ep_list_size").
func (pr *PortRegistry) EpListSize(portID uint32) (int, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	p, ok := pr.ports[portID]
	if !ok {
		return 0, cherrors.ErrNotFound
	}
	return len(p.peers), nil
}
