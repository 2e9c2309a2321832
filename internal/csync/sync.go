// Package csync re-exports mutex types backed by
// github.com/sasha-s/go-deadlock under the name the teacher repo uses
// for its own sync wrapper (tmsync/cmtsync in the retrieval pack). Every
// lock named in the concurrency model — the port-registry RW lock, the
// channel-registry mutex, each channel's mutex, each port's TX mutex —
// is one of these types so that a real lock-order inversion between
// goroutines panics with an acquisition stack instead of hanging,
// surfacing spec violations of the documented lock order (port-registry
// RW -> registry mutex -> channel mutex -> TX mutex) as test failures.
package csync

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is a deadlock-checked sync.Mutex.
type Mutex = deadlock.Mutex

// RWMutex is a deadlock-checked sync.RWMutex.
type RWMutex = deadlock.RWMutex
