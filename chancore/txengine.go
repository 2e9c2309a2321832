package chancore

import (
	"github.com/Workiva/go-datastructures/queue"
	pool "github.com/libp2p/go-buffer-pool"

	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/internal/csync"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/transport"
)

// txReq is a deferred outbound request: it owns a heap copy of its
// payload until the transport finally accepts it (spec.md §3 "TxReq").
type txReq struct {
	peer   transport.PeerHandle
	buf    []byte
	length int
}

// txEngine is the per-port TX engine of spec.md §4.6: a bounded,
// power-of-two ring tracking outstanding submissions, plus a deferred
// queue for control messages that arrive when the ring is momentarily
// full. The deferred queue is a github.com/Workiva/go-datastructures
// queue.Queue rather than a hand-rolled slice, since it is drained by a
// different goroutine (the transport's completion callback) than the
// one that may be appending to it (a caller thread submitting a CONN_*
// message) and needs no index-invariant of its own.
type txEngine struct {
	mu csync.Mutex

	capacity int
	head     int
	ack      int
	count    int
	occupied []bool

	deferred *queue.Queue

	port *PortCtx
	tp   transport.Mailbox
	log  crlog.Logger
	mtrc *metrics.Metrics
}

func newTxEngine(port *PortCtx, tp transport.Mailbox, capacity int, log crlog.Logger, mtrc *metrics.Metrics) *txEngine {
	return &txEngine{
		capacity: capacity,
		occupied: make([]bool, capacity),
		deferred: queue.New(8),
		port:     port,
		tp:       tp,
		log:      log,
		mtrc:     mtrc,
	}
}

// submit is spec.md §4.6 "Submit". control marks messages that must not
// be dropped under transient ring pressure (the handshake protocol has
// no retransmission); only those are appended to the deferred queue
// when the ring is full. Data messages return ErrBusy immediately and
// remain the caller's buffer to retry.
func (tx *txEngine) submit(peer transport.PeerHandle, buf []byte, length int, control bool) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if !tx.port.IsRunning() {
		return cherrors.ErrNoDevice
	}

	if tx.count == tx.capacity {
		if control {
			cp := pool.Get(length)
			copy(cp, buf[:length])
			req := &txReq{peer: peer, buf: cp, length: length}
			if err := tx.deferred.Put(req); err != nil {
				pool.Put(cp)
				return cherrors.Wrap(err, "tx deferred queue put")
			}
			tx.mtrc.TXDeferredDepth.Set(float64(tx.deferred.Len()))
			return cherrors.ErrBusy
		}
		return cherrors.ErrBusy
	}

	if err := tx.tp.SubmitOutbound(tx.port.id, peer, tx.port.mbox, buf, length); err != nil {
		return err
	}

	tx.occupied[tx.head] = true
	tx.head = (tx.head + 1) % tx.capacity
	tx.count++
	tx.mtrc.TXRingCount.Set(float64(tx.count))
	return nil
}

// completion is spec.md §4.6 "Completion". It tolerates coalesced
// completions by draining ack forward past every slot up to and
// including the reported one, then refills freed capacity from the
// deferred queue.
func (tx *txEngine) completion(slot int) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	for tx.count > 0 {
		processed := tx.ack
		tx.occupied[tx.ack] = false
		tx.ack = (tx.ack + 1) % tx.capacity
		tx.count--
		if processed == slot {
			break
		}
	}
	tx.mtrc.TXRingCount.Set(float64(tx.count))

	for tx.deferred.Len() > 0 && tx.count < tx.capacity {
		items, err := tx.deferred.Get(1)
		if err != nil || len(items) == 0 {
			break
		}
		req := items[0].(*txReq)

		if err := tx.tp.SubmitOutbound(tx.port.id, req.peer, tx.port.mbox, req.buf, req.length); err != nil {
			tx.log.Error("dropping deferred control send after transport error", "err", err)
			pool.Put(req.buf)
			continue
		}
		pool.Put(req.buf)

		tx.occupied[tx.head] = true
		tx.head = (tx.head + 1) % tx.capacity
		tx.count++
	}
	tx.mtrc.TXDeferredDepth.Set(float64(tx.deferred.Len()))
	tx.mtrc.TXRingCount.Set(float64(tx.count))
}

// flush disposes the deferred queue, freeing any pending payload
// copies. Called from remove_port teardown.
func (tx *txEngine) flush() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	for tx.deferred.Len() > 0 {
		items, err := tx.deferred.Get(1)
		if err != nil || len(items) == 0 {
			break
		}
		req := items[0].(*txReq)
		pool.Put(req.buf)
	}
	tx.deferred.Dispose()
}

// snapshot returns (count, capacity) for tests asserting spec.md §8's
// ring invariant.
func (tx *txEngine) snapshot() (count, capacity int) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.count, tx.capacity
}
