package chancore

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riomux/chancore/config"
	"github.com/riomux/chancore/internal/crlog"
	"github.com/riomux/chancore/metrics"
	"github.com/riomux/chancore/transport"
	"github.com/riomux/chancore/transport/faketransport"
	"github.com/riomux/chancore/wire"
)

const (
	destA uint32 = 0x01
	destB uint32 = 0x02
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ConnectTimeout = 300 * time.Millisecond
	cfg.RXRingSize = 8
	cfg.TXRingSize = 8
	return cfg
}

func newTestEngine(t *testing.T, tp transport.Mailbox) *Engine {
	t.Helper()
	return NewEngine(testConfig(), tp, crlog.NewNopLogger(), metrics.NopMetrics())
}

// pairedEngines wires two Engines over a faketransport.Network with port
// 0 on both sides bound to the same destid/peer pair, mirroring spec.md
// §8's two-instance scenarios.
func pairedEngines(t *testing.T) (a, b *Engine, mbA, mbB *faketransport.Mailbox) {
	t.Helper()
	net := faketransport.NewNetwork()
	mbA = net.Register(destA)
	mbB = net.Register(destB)

	a = newTestEngine(t, mbA)
	b = newTestEngine(t, mbB)

	require.NoError(t, a.AddPort(0, destA))
	require.NoError(t, b.AddPort(0, destB))

	caps := transport.CapDataSrc | transport.CapDataDst
	require.True(t, a.AddPeer(0, transport.Peer{DestID: destB, Handle: mbB, Caps: caps}))
	require.True(t, b.AddPeer(0, transport.Peer{DestID: destA, Handle: mbA, Caps: caps}))

	return a, b, mbA, mbB
}

func TestScenarioHappyPathConnectEcho(t *testing.T) {
	defer leaktest.Check(t)()

	a, b, _, _ := pairedEngines(t)
	defer a.Shutdown()
	defer b.Shutdown()

	bCh, err := b.ChannelCreate(100, "srv")
	require.NoError(t, err)
	require.NoError(t, b.ChannelBind(bCh, 0))
	require.NoError(t, b.ChannelListen(bCh))

	aCh, err := a.ChannelCreate(200, "cli")
	require.NoError(t, err)

	connectErr := make(chan error, 1)
	go func() {
		connectErr <- a.ChannelConnect(aCh, 0, destB, 100)
	}()

	newID, err := b.ChannelAccept(bCh, time.Second)
	require.NoError(t, err)

	require.NoError(t, <-connectErr)

	buf := make([]byte, wire.HeaderLen+5)
	copy(buf[wire.HeaderLen:], "ping\x00")
	require.NoError(t, a.ChannelSend(aCh, buf, 5))

	rx, n, err := b.ChannelReceive(newID, time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.HeaderLen+5, n)
	assert.Equal(t, "ping\x00", string(rx[wire.HeaderLen:n]))
	require.NoError(t, b.ChannelReleaseRX(newID, rx))
}

// TestRemovePortQuiescesDispatcher guards against a regression where the
// per-port RX dispatcher goroutine ignored RemovePort and only exited on
// the whole Engine's Shutdown, leaking one goroutine per removed port.
func TestRemovePortQuiescesDispatcher(t *testing.T) {
	defer leaktest.Check(t)()

	net := faketransport.NewNetwork()
	mb := net.Register(destA)

	e := newTestEngine(t, mb)
	defer e.Shutdown()

	require.NoError(t, e.AddPort(0, destA))
	require.NoError(t, e.RemovePort(0))
}

func TestScenarioConnectTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	a, b, _, _ := pairedEngines(t)
	defer a.Shutdown()
	defer b.Shutdown()

	aCh, err := a.ChannelCreate(201, "cli")
	require.NoError(t, err)

	err = a.ChannelConnect(aCh, 0, destB, 500)
	assert.Error(t, err)
}

func TestScenarioRemoteClose(t *testing.T) {
	defer leaktest.Check(t)()

	a, b, _, _ := pairedEngines(t)
	defer a.Shutdown()
	defer b.Shutdown()

	bCh, _ := b.ChannelCreate(101, "srv")
	require.NoError(t, b.ChannelBind(bCh, 0))
	require.NoError(t, b.ChannelListen(bCh))

	aCh, _ := a.ChannelCreate(202, "cli")

	connectErr := make(chan error, 1)
	go func() { connectErr <- a.ChannelConnect(aCh, 0, destB, 101) }()
	newID, err := b.ChannelAccept(bCh, time.Second)
	require.NoError(t, err)
	require.NoError(t, <-connectErr)

	recvErr := make(chan error, 1)
	go func() {
		_, _, err := a.ChannelReceive(aCh, 2*time.Second)
		recvErr <- err
	}()

	require.NoError(t, b.ChannelClose(newID, "srv"))

	select {
	case err := <-recvErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("receive did not unblock after remote close")
	}
}
