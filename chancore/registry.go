package chancore

import (
	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/internal/csync"
)

// Registry is the process-wide mapping from a 16-bit local channel
// number to its Channel (spec.md §4.1). ID allocation is grounded on the
// teacher's mempoolIDs type (mempool/reactor.go): an activeIDs set,
// scanned forward from a configured start for the first free slot.
type Registry struct {
	mu           csync.Mutex
	channels     map[uint16]*Channel
	dynamicStart uint16
}

// NewRegistry returns an empty registry. dynamicStart is the lowest ID
// considered when requested == 0 (spec.md §4.1, default 256).
func NewRegistry(dynamicStart uint16) *Registry {
	return &Registry{
		channels:     make(map[uint16]*Channel),
		dynamicStart: dynamicStart,
	}
}

// Allocate reserves a channel ID and installs ch under it. If requested
// is non-zero, exactly that ID is reserved or ErrBusy is returned if it
// is taken. If requested is zero, the scan literally starts at
// dynamicStart and returns the lowest free ID from there — including IDs
// freed by an earlier Unpublish — rather than advancing a one-way
// cursor, so churn in the dynamic range never exhausts it while IDs sit
// free below the high-water mark. ErrBusy is returned if the range
// [dynamicStart, 65535] is entirely taken.
func (r *Registry) Allocate(requested uint16, ch *Channel) (uint16, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requested != 0 {
		if _, taken := r.channels[requested]; taken {
			return 0, cherrors.ErrBusy
		}
		r.channels[requested] = ch
		return requested, nil
	}

	id := r.dynamicStart
	for {
		if _, taken := r.channels[id]; !taken {
			break
		}
		if id == 65535 {
			return 0, cherrors.ErrBusy
		}
		id++
	}
	r.channels[id] = ch
	return id, nil
}

// Lookup returns a strong reference to the channel registered under id,
// incrementing its reference count atomically with the lookup so a
// concurrent Unpublish cannot free it out from under the caller.
func (r *Registry) Lookup(id uint16) (*Channel, bool) {
	r.mu.Lock()
	ch, ok := r.channels[id]
	if ok {
		ch.addRef()
	}
	r.mu.Unlock()
	return ch, ok
}

// Unpublish removes id from the registry without destroying the
// channel; outstanding references (from earlier Lookups, or the
// closer's own acquisition) keep it alive until they are released.
func (r *Registry) Unpublish(id uint16) (*Channel, bool) {
	r.mu.Lock()
	ch, ok := r.channels[id]
	if ok {
		delete(r.channels, id)
	}
	r.mu.Unlock()
	return ch, ok
}

// ForEach iterates a snapshot of the registry for administrative sweeps
// (owner release, port removal, peer removal, shutdown notice). fn
// returning false stops the iteration early.
func (r *Registry) ForEach(fn func(*Channel) bool) {
	r.mu.Lock()
	snapshot := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		snapshot = append(snapshot, ch)
	}
	r.mu.Unlock()

	for _, ch := range snapshot {
		if !fn(ch) {
			return
		}
	}
}

// Len reports the number of channels currently published in the
// registry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}
