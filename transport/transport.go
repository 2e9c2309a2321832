// Package transport declares the mailbox driver contract that chancore
// consumes (spec.md §6). The real driver — RapidIO mailbox hardware
// access, ring DMA, interrupt wiring — is an external collaborator and
// deliberately out of scope (spec.md §1); this package only fixes the
// boundary chancore is coded against, the same way the teacher's
// monaco.BackendProxy interface fixes the boundary between the mempool
// reactor and the application's ABCI connection without implementing
// either side.
package transport

// PeerHandle is the opaque per-peer device handle carried by add_peer
// events and cached on connected channels. Transports define their own
// concrete type; chancore only needs it to be comparable so peer-loss
// sweeps can match a Channel's cached handle against a removed peer.
type PeerHandle interface{}

// Peer is a remote endpoint known to a local port (spec.md §3).
type Peer struct {
	DestID uint32
	Handle PeerHandle
	// Caps advertises the peer's capability bits. Only peers advertising
	// both CapDataSrc and CapDataDst are admitted by add_peer (spec.md
	// §4.2).
	Caps Capability
}

// Capability is a bitset of peer capability flags.
type Capability uint32

const (
	// CapDataSrc indicates the peer can originate data messages.
	CapDataSrc Capability = 1 << iota
	// CapDataDst indicates the peer can receive data messages.
	CapDataDst
)

// HasDataCaps reports whether the peer advertises both data-message
// source and destination capability, the admission test in add_peer.
func (c Capability) HasDataCaps() bool {
	return c&(CapDataSrc|CapDataDst) == (CapDataSrc | CapDataDst)
}

// ReadyCallback is invoked by the transport when an inbound buffer is
// available on (port, mbox). It must be non-blocking (spec.md §5).
type ReadyCallback func(port uint32, mbox byte)

// CompletionCallback is invoked by the transport when the outbound slot
// at the given ring index has completed. It must be non-blocking
// (spec.md §5).
type CompletionCallback func(port uint32, mbox byte, slot int)

// Mailbox is the hardware mailbox driver contract (spec.md §6).
// SubmitOutbound copies the payload internally; the caller may reuse or
// free buf as soon as SubmitOutbound returns, matching the real driver's
// semantics of handing data to a DMA-staged ring.
type Mailbox interface {
	RequestOutbound(port uint32, mbox byte, ringSize int, cb CompletionCallback) error
	ReleaseOutbound(port uint32, mbox byte) error

	RequestInbound(port uint32, mbox byte, ringSize int, cb ReadyCallback) error
	ReleaseInbound(port uint32, mbox byte) error

	AddInboundBuffer(port uint32, mbox byte, buf []byte) error
	GetInbound(port uint32, mbox byte) (buf []byte, ok bool)

	SubmitOutbound(port uint32, peer PeerHandle, mbox byte, buf []byte, length int) error

	IsPortRunning(port uint32) bool
}
