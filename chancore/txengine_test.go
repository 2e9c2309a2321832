package chancore

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/transport"
)

// countingMailbox is a minimal transport.Mailbox stub that only tracks
// how many times SubmitOutbound was called and always succeeds.
type countingMailbox struct {
	submits int32
}

func (c *countingMailbox) RequestOutbound(uint32, byte, int, transport.CompletionCallback) error {
	return nil
}
func (c *countingMailbox) ReleaseOutbound(uint32, byte) error { return nil }
func (c *countingMailbox) RequestInbound(uint32, byte, int, transport.ReadyCallback) error {
	return nil
}
func (c *countingMailbox) ReleaseInbound(uint32, byte) error              { return nil }
func (c *countingMailbox) AddInboundBuffer(uint32, byte, []byte) error    { return nil }
func (c *countingMailbox) GetInbound(uint32, byte) ([]byte, bool)        { return nil, false }
func (c *countingMailbox) IsPortRunning(uint32) bool                     { return true }
func (c *countingMailbox) SubmitOutbound(uint32, transport.PeerHandle, byte, []byte, int) error {
	atomic.AddInt32(&c.submits, 1)
	return nil
}

func newTestPortAndTx(capacity int) (*PortCtx, *countingMailbox) {
	tp := &countingMailbox{}
	port := &PortCtx{id: 1, localDestID: 0x01, mbox: 1}
	port.running.Store(true)
	port.tx = newTxEngine(port, tp, capacity, crlog.NewNopLogger(), metrics.NopMetrics())
	return port, tp
}

func TestTxEngineFillsRingThenBusy(t *testing.T) {
	port, tp := newTestPortAndTx(2)

	require.NoError(t, port.tx.submit("peer", []byte("a"), 1, false))
	require.NoError(t, port.tx.submit("peer", []byte("b"), 1, false))

	err := port.tx.submit("peer", []byte("c"), 1, false)
	assert.ErrorIs(t, err, cherrors.ErrBusy)
	assert.EqualValues(t, 2, atomic.LoadInt32(&tp.submits))

	count, capacity := port.tx.snapshot()
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, capacity)
}

func TestTxEngineControlDefersWhenFull(t *testing.T) {
	port, _ := newTestPortAndTx(1)
	require.NoError(t, port.tx.submit("peer", []byte("a"), 1, false))

	err := port.tx.submit("peer", []byte("ctrl"), 4, true)
	assert.ErrorIs(t, err, cherrors.ErrBusy)
	assert.EqualValues(t, 1, port.tx.deferred.Len())
}

func TestTxEngineCompletionDrainsDeferred(t *testing.T) {
	port, tp := newTestPortAndTx(1)
	require.NoError(t, port.tx.submit("peer", []byte("a"), 1, false))
	_ = port.tx.submit("peer", []byte("ctrl"), 4, true)

	port.tx.completion(0)

	assert.EqualValues(t, 0, port.tx.deferred.Len())
	assert.EqualValues(t, 2, atomic.LoadInt32(&tp.submits))
	count, _ := port.tx.snapshot()
	assert.Equal(t, 1, count)
}

// TestTxEngineCompletionAdvancesSingleEntry guards against a regression
// where completion's drain loop only fired on coalesced completions: with
// capacity > 1 and exactly one in-flight entry, an ordinary (non-coalesced)
// completion must still null the slot and advance ack/count by one.
func TestTxEngineCompletionAdvancesSingleEntry(t *testing.T) {
	port, tp := newTestPortAndTx(128)
	require.NoError(t, port.tx.submit("peer", []byte("req"), 3, true))

	count, _ := port.tx.snapshot()
	require.Equal(t, 1, count)

	port.tx.completion(0)

	count, _ = port.tx.snapshot()
	assert.Equal(t, 0, count)
	assert.False(t, port.tx.occupied[0])
	assert.Equal(t, 1, port.tx.ack)
	assert.EqualValues(t, 1, atomic.LoadInt32(&tp.submits))
}

func TestTxEngineTornDownPortReturnsNoDevice(t *testing.T) {
	port, _ := newTestPortAndTx(2)
	port.running.Store(false)

	err := port.tx.submit("peer", []byte("a"), 1, false)
	assert.ErrorIs(t, err, cherrors.ErrNoDevice)
}
