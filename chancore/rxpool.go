package chancore

import (
	pool "github.com/libp2p/go-buffer-pool"
)

// rxPool is PortCtx's RX buffer pool (spec.md §3, §4.2): a fixed count
// of owned, max-size datagram buffers handed to the transport via
// AddInboundBuffer and replenished one at a time as the RX dispatcher
// consumes filled buffers. Allocation itself is delegated to
// go-buffer-pool's size-classed free lists rather than a hand-rolled
// static array, so the "owned buffers" are reused across the whole
// process instead of being GC churn local to one port.
type rxPool struct {
	maxMsgSize int
	size       int
}

func newRxPool(size, maxMsgSize int) *rxPool {
	return &rxPool{maxMsgSize: maxMsgSize, size: size}
}

// alloc returns a max-size buffer from the shared pool.
func (rp *rxPool) alloc() []byte {
	return pool.Get(rp.maxMsgSize)
}

// free returns buf to the shared pool for reuse.
func (rp *rxPool) free(buf []byte) {
	pool.Put(buf)
}
