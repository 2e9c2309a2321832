package chancore

import (
	"github.com/Workiva/go-datastructures/queue"

	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/wire"
)

// controlWorker is the single process-wide serialized worker of spec.md
// §4.8/§5: every RX dispatcher across every port hands control
// datagrams here, and one goroutine processes them strictly one at a
// time, which is how the handshake handlers can take channel and
// registry locks without any two control packets racing each other.
// The work queue is a github.com/Workiva/go-datastructures queue.Queue
// for the same reason the TX engine's deferred list is: producers (many
// per-port dispatcher goroutines) and the single consumer goroutine
// never need to coordinate through anything but the queue itself.
type controlWorker struct {
	q       *queue.Queue
	log     crlog.Logger
	mtrc    *metrics.Metrics
	handler func(work controlWorkDecoded)
}

func newControlWorker(log crlog.Logger, mtrc *metrics.Metrics, handler func(controlWorkDecoded)) *controlWorker {
	return &controlWorker{
		q:       queue.New(16),
		log:     log,
		mtrc:    mtrc,
		handler: handler,
	}
}

// start launches the worker's single goroutine. It exits once the queue
// is disposed (stop).
func (w *controlWorker) start() {
	go func() {
		for {
			items, err := w.q.Get(1)
			if err != nil {
				return // queue disposed
			}
			w.mtrc.ControlQueueDepth.Set(float64(w.q.Len()))
			for _, item := range items {
				work, ok := item.(controlWork)
				if !ok {
					continue
				}
				w.process(work)
			}
		}
	}()
}

// submit enqueues a control datagram. Safe to call from any RX
// dispatcher goroutine.
func (w *controlWorker) submit(work controlWork) {
	if err := w.q.Put(work); err != nil {
		w.log.Error("control queue closed, dropping control packet", "err", err)
		work.port.rxPool.free(work.buf)
		return
	}
	w.mtrc.ControlQueueDepth.Set(float64(w.q.Len()))
}

// stop disposes the queue, waking the worker goroutine so it exits.
func (w *controlWorker) stop() {
	w.q.Dispose()
}

func (w *controlWorker) process(work controlWork) {
	defer work.port.rxPool.free(work.buf)

	h, err := wire.Decode(work.buf)
	if err != nil {
		w.log.Error("control worker: undersized datagram slipped through dispatch", "err", err)
		return
	}
	w.handler(controlWorkDecoded{controlWork: work, header: h})
}

// controlWorkDecoded bundles a control datagram with its already-parsed
// header for the handshake handler, avoiding a second Decode call.
type controlWorkDecoded struct {
	controlWork
	header wire.Header
}
