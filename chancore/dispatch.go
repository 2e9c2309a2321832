package chancore

import (
	"sync/atomic"

	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/wire"
)

// controlWork is one control datagram handed from a port's RX dispatcher
// to the process-wide serialized control worker (spec.md §4.8 step 5).
type controlWork struct {
	port *PortCtx
	buf  []byte
	n    int
}

// rxDispatcher is the per-PortCtx RX drain task of spec.md §4.8. It is
// scheduled by the transport's ready callback and runs single-threaded
// per port: at most one drain burst outstanding at a time. The
// capacity-1 wake channel coalesces redundant ready notifications the same way the teacher's
// mempool reactor coalesces broadcast-routine wakeups with a single
// "recheck" channel rather than one goroutine per notification.
type rxDispatcher struct {
	port    *PortCtx
	burst   int
	log     crlog.Logger
	mtrc    *metrics.Metrics
	submit  func(work controlWork)
	lookup  func(ch uint16) (*Channel, bool)
	release func(ch *Channel)

	scheduled atomic.Bool
	wake      chan struct{}
}

func newRxDispatcher(port *PortCtx, burst int, log crlog.Logger, mtrc *metrics.Metrics,
	submit func(controlWork), lookup func(uint16) (*Channel, bool), release func(*Channel)) *rxDispatcher {
	return &rxDispatcher{
		port:    port,
		burst:   burst,
		log:     log,
		mtrc:    mtrc,
		submit:  submit,
		lookup:  lookup,
		release: release,
		wake:    make(chan struct{}, 1),
	}
}

// start launches the dispatcher's single goroutine. It sleeps until
// woken by onReady (the transport's inbound-ready callback) and exits
// when stop is closed.
func (d *rxDispatcher) start(stop <-chan struct{}) {
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-d.wake:
				d.drainLoop()
			}
		}
	}()
}

// onReady is the transport's ReadyCallback. It must be non-blocking
// (spec.md §5): scheduling is idempotent via the capacity-1 wake
// channel, so a burst of ready notifications collapses into
// at most one pending wakeup beyond the one already running.
func (d *rxDispatcher) onReady(port uint32, mbox byte) {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drainLoop runs one burst of up to d.burst messages, rescheduling
// itself through the wake channel (instead of looping inline) whenever a
// burst ends at the limit, so a very busy port does not starve the stop
// signal or hog this goroutine indefinitely.
func (d *rxDispatcher) drainLoop() {
	if d.drainBurst() {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
}

// drainBurst pulls up to d.burst inbound buffers (spec.md §4.8),
// returning true if the burst limit was reached without the transport
// reporting empty, so the caller reschedules another burst for fairness
// rather than looping here indefinitely.
func (d *rxDispatcher) drainBurst() bool {
	if !d.port.IsRunning() {
		return false
	}
	for i := 0; i < d.burst; i++ {
		buf, ok := d.port.tp.GetInbound(d.port.id, d.port.mbox)
		if !ok {
			return false
		}

		fresh := d.port.rxPool.alloc()
		if err := d.port.tp.AddInboundBuffer(d.port.id, d.port.mbox, fresh); err != nil {
			d.log.Error("failed to refill inbound pool slot", "port", d.port.id, "err", err)
		}

		d.dispatch(buf)
	}
	// The burst limit was reached without the transport reporting empty;
	// rather than pop-and-requeue a buffer just to peek, optimistically
	// reschedule one more burst. If the mailbox really is drained by then,
	// the next drainBurst call returns false on its first GetInbound.
	return true
}

// dispatch handles a single inbound buffer: validate the header, route
// DATA to the target channel's RX ring, and everything else to the
// serialized control worker (spec.md §4.8 steps 3-5).
func (d *rxDispatcher) dispatch(buf []byte) {
	h, err := wire.Decode(buf)
	if err != nil {
		d.log.Debug("dropping undersized inbound datagram", "err", err)
		d.port.rxPool.free(buf)
		return
	}
	if !h.IsChannel() {
		d.port.rxPool.free(buf)
		return
	}

	if h.ChOp == wire.ChOpData {
		ch, ok := d.lookup(h.DstCh)
		if !ok {
			d.log.Debug("dropping data for unknown channel", "ch", h.DstCh)
			d.port.rxPool.free(buf)
			return
		}
		n := int(h.MsgLen)
		if n > len(buf) {
			n = len(buf)
		}
		if err := ch.pushRX(buf, n, d.port.rxPool.free); err != nil {
			d.log.Debug("dropping data for full or unconnected channel", "ch", h.DstCh, "err", err)
			d.mtrc.RXRingDrops.Add(1)
		}
		d.release(ch)
		return
	}

	d.submit(controlWork{port: d.port, buf: buf, n: int(h.MsgLen)})
}
