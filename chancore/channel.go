package chancore

import (
	"sync"
	"time"

	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/internal/csync"
	"github.com/riomux/chancore/transport"
)

// State is one of the seven channel lifecycle states from spec.md §4.3.
type State int32

const (
	StateIdle State = iota
	StateBound
	StateListen
	StateConnect
	StateConnected
	StateDisconnect
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateBound:
		return "Bound"
	case StateListen:
		return "Listen"
	case StateConnect:
		return "Connect"
	case StateConnected:
		return "Connected"
	case StateDisconnect:
		return "Disconnect"
	case StateDestroying:
		return "Destroying"
	default:
		return "Unknown"
	}
}

// ConnReq is a pending inbound connection request queued on a listening
// channel (spec.md §3).
type ConnReq struct {
	RequesterDestID uint32
	RequesterCh     uint16
	Port            *PortCtx
}

// Channel is the central entity of spec.md §3: a 16-bit local endpoint
// of a bidirectional byte-message stream, its state machine, its
// bounded receive ring, and its waiters.
type Channel struct {
	mu   csync.Mutex
	cond *sync.Cond

	id    uint16
	refs  int32 // guarded by mu
	owner interface{}

	port         *PortCtx
	peerHandle   transport.PeerHandle
	localDestID  uint32
	remoteDestID uint32
	remoteCh     uint16

	state   State
	errCode error

	acceptQ []*ConnReq

	rx rxRing

	// destroyed fires exactly once, when the last reference is released.
	destroyed chan struct{}
	destroyedClosed bool
}

// newChannel constructs a channel in StateIdle with a single reference
// held by the caller (the registry's own mapping).
func newChannel(id uint16, owner interface{}, rxCapacity int) *Channel {
	c := &Channel{
		id:        id,
		refs:      1,
		owner:     owner,
		state:     StateIdle,
		destroyed: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	c.rx.init(rxCapacity)
	return c
}

// ID returns the channel's registry number.
func (c *Channel) ID() uint16 {
	return c.id
}

// Owner returns the opaque owner token supplied at creation.
func (c *Channel) Owner() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// State returns the channel's current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteChannel returns the peer's channel number, valid once Connected.
func (c *Channel) RemoteChannel() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteCh
}

// remoteDestIDSnapshot returns the cached remote destid under the
// channel lock, used when building an outbound CONN_CLOSE header.
func (c *Channel) remoteDestIDSnapshot() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteDestID
}

// PeerHandle returns the cached remote peer device handle.
func (c *Channel) PeerHandle() transport.PeerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerHandle
}

// Port returns the channel's owning PortCtx, or nil if unbound.
func (c *Channel) Port() *PortCtx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// addRef increments the reference count. Called by the registry under
// Lookup; the registry's own mapping is the reference newChannel starts
// with.
func (c *Channel) addRef() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

// release drops one reference. When the count reaches zero the
// destroyed signal fires exactly once and any remaining RX-ring buffers
// are returned to the pool (spec.md §5 "Reference counting").
func (c *Channel) release() {
	c.mu.Lock()
	c.refs--
	fire := c.refs == 0
	var closedNow bool
	if fire && !c.destroyedClosed {
		c.destroyedClosed = true
		closedNow = true
		var free func([]byte)
		if c.port != nil {
			free = c.port.rxPool.free
		}
		c.rx.drain(free)
	}
	c.mu.Unlock()
	if closedNow {
		close(c.destroyed)
	}
}

// waitDestroyed blocks until the channel's last reference is released or
// timeout elapses.
func (c *Channel) waitDestroyed(timeout time.Duration) error {
	select {
	case <-c.destroyed:
		return nil
	case <-time.After(timeout):
		return cherrors.ErrTimeout
	}
}

// bind attaches port and the local destid, transitioning Idle -> Bound
// (spec.md §4.3).
func (c *Channel) bind(port *PortCtx, localDestID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return cherrors.ErrInvalid
	}
	c.port = port
	c.localDestID = localDestID
	c.state = StateBound
	return nil
}

// listen transitions Bound -> Listen (spec.md §4.4 "Listen").
func (c *Channel) listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateBound {
		return cherrors.ErrInvalid
	}
	c.state = StateListen
	c.cond.Broadcast()
	return nil
}

// casConnect attempts Idle -> Connect, attaching the port, peer, and
// local destid used by the CONN_REQ (spec.md §4.4 "Connect").
func (c *Channel) casConnect(port *PortCtx, peer transport.Peer, localDestID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return cherrors.ErrInvalid
	}
	c.port = port
	c.peerHandle = peer.Handle
	c.remoteDestID = peer.DestID
	c.localDestID = localDestID
	c.state = StateConnect
	return nil
}

// casConnectRollback reverts a Connect attempt back to Idle after a
// submit failure (spec.md §4.4 "If submission fails with anything other
// than Busy, CAS back to Idle").
func (c *Channel) casConnectRollback() {
	c.mu.Lock()
	if c.state == StateConnect {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// waitConnect blocks, holding no external lock, until the channel leaves
// Connect (success if Connected, ErrInvalid/refused otherwise), or until
// timeout.
func (c *Channel) waitConnect(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnect {
		// Raced past Connect already (e.g. CONN_ACK arrived before the
		// caller reacquired the lock).
		return c.terminalConnectResult()
	}

	deadline := time.Now().Add(timeout)
	for c.state == StateConnect {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return cherrors.ErrTimeout
		}
		if !c.condWaitTimeout(remaining) {
			return cherrors.ErrTimeout
		}
	}
	return c.terminalConnectResult()
}

// terminalConnectResult must be called with c.mu held, after leaving
// Connect.
func (c *Channel) terminalConnectResult() error {
	if c.state == StateConnected {
		return nil
	}
	return cherrors.ErrInvalid
}

// condWaitTimeout waits on c.cond for up to timeout, returning false on
// expiry. c.mu must be held on entry and is held again on return.
func (c *Channel) condWaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		close(done)
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	for {
		select {
		case <-done:
			return false
		default:
		}
		c.cond.Wait()
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
}

// markConnected finishes the Connect->Connected transition when a
// CONN_ACK arrives for this channel (spec.md §4.3).
func (c *Channel) markConnected(remoteCh uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnect {
		return false
	}
	c.remoteCh = remoteCh
	c.state = StateConnected
	c.cond.Broadcast()
	return true
}

// pushConnReq enqueues an inbound CONN_REQ on a listening channel
// (spec.md §4.3 "Listen | CONN_REQ received | Listen").
func (c *Channel) pushConnReq(req *ConnReq) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateListen {
		return false
	}
	c.acceptQ = append(c.acceptQ, req)
	c.cond.Broadcast()
	return true
}

// waitAccept blocks until the accept queue is non-empty, the channel
// leaves Listen, a signal, or timeout; on success it dequeues and
// returns the head ConnReq (spec.md §4.4 "Accept").
func (c *Channel) waitAccept(timeout time.Duration, nonBlocking bool) (*ConnReq, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.acceptQ) == 0 {
		if nonBlocking {
			return nil, cherrors.ErrAgain
		}
		deadline := time.Now().Add(timeout)
		for len(c.acceptQ) == 0 && c.state == StateListen {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, cherrors.ErrTimeout
			}
			if !c.condWaitTimeout(remaining) {
				return nil, cherrors.ErrTimeout
			}
		}
		if len(c.acceptQ) == 0 {
			return nil, cherrors.ErrCanceled
		}
	}

	req := c.acceptQ[0]
	c.acceptQ = c.acceptQ[1:]
	return req, nil
}

// completeAccept sets a freshly allocated child channel straight to
// Connected with the peer info resolved by accept() (spec.md §4.4).
func (c *Channel) completeAccept(port *PortCtx, localDestID, remoteDestID uint32, peerHandle transport.PeerHandle, remoteCh uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.port = port
	c.localDestID = localDestID
	c.remoteDestID = remoteDestID
	c.peerHandle = peerHandle
	c.remoteCh = remoteCh
	c.state = StateConnected
}

// beginClose atomically swaps the state to Destroying, returning the
// prior state (spec.md §4.4 "Close (local)").
func (c *Channel) beginClose() State {
	c.mu.Lock()
	prior := c.state
	c.state = StateDestroying
	c.cond.Broadcast()
	c.mu.Unlock()
	return prior
}

// beginDisconnectThenDestroying implements the "Connected -> Disconnect
// then close" and peer-loss transitions: it moves the channel to
// Disconnect (if it was Connected) and then to Destroying within one
// hold of the channel lock, so other goroutines only ever observe
// Destroying. It returns the state held before the call.
func (c *Channel) beginDisconnectThenDestroying() State {
	c.mu.Lock()
	prior := c.state
	if prior == StateConnected {
		c.state = StateDisconnect
	}
	c.state = StateDestroying
	c.cond.Broadcast()
	c.mu.Unlock()
	return prior
}

// pushRX enqueues a received data payload on the channel's RX ring
// (spec.md §4.5 "push"). It returns the owned buffer to rxFree on drop.
func (c *Channel) pushRX(buf []byte, length int, rxFree func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		rxFree(buf)
		return cherrors.ErrIO
	}
	if c.rx.count == c.rx.capacity {
		rxFree(buf)
		return cherrors.ErrNoMemory
	}
	c.rx.push(buf, length)
	c.cond.Signal()
	return nil
}

// popRX dequeues the oldest received payload (spec.md §4.5 "pop").
func (c *Channel) popRX(timeout time.Duration, nonBlocking bool) ([]byte, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		if c.state == StateDisconnect || c.state == StateDestroying {
			return nil, 0, cherrors.ErrConnReset
		}
		return nil, 0, cherrors.ErrAgain
	}
	if c.rx.inuseCount == c.rx.capacity {
		return nil, 0, cherrors.ErrNoMemory
	}

	if c.rx.count == 0 {
		if nonBlocking {
			return nil, 0, cherrors.ErrAgain
		}
		deadline := time.Now().Add(timeout)
		for c.rx.count == 0 && c.state == StateConnected {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, 0, cherrors.ErrTimeout
			}
			if !c.condWaitTimeout(remaining) {
				return nil, 0, cherrors.ErrTimeout
			}
		}
		if c.rx.count == 0 {
			// Woken because the channel left Connected rather than
			// because data arrived.
			return nil, 0, cherrors.ErrConnReset
		}
	}

	buf, n := c.rx.pop()
	return buf, n, nil
}

// releaseRX returns a buffer previously handed out by popRX (spec.md
// §4.5 "release").
func (c *Channel) releaseRX(buf []byte, rxFree func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.rx.release(buf) {
		return cherrors.ErrInvalid
	}
	rxFree(buf)
	return nil
}

// wakeAll wakes every waiter, used by close to unblock connect/accept/
// receive callers immediately (spec.md §4.4 "Wake all waiters").
func (c *Channel) wakeAll() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}
