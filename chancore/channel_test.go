package chancore

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riomux/chancore/internal/cherrors"
	"github.com/riomux/chancore/transport"
)

func TestChannelBindListen(t *testing.T) {
	ch := newChannel(1, nil, 4)
	port := &PortCtx{id: 1, localDestID: 0x01}

	require.NoError(t, ch.bind(port, 0x01))
	assert.Equal(t, StateBound, ch.State())

	require.NoError(t, ch.listen())
	assert.Equal(t, StateListen, ch.State())

	assert.ErrorIs(t, ch.bind(port, 0x01), cherrors.ErrInvalid)
}

func TestChannelConnectTimeout(t *testing.T) {
	defer leaktest.Check(t)()

	ch := newChannel(1, nil, 4)
	port := &PortCtx{id: 1, localDestID: 0x01}
	peer := transport.Peer{DestID: 0x02, Handle: "peer"}

	require.NoError(t, ch.casConnect(port, peer, 0x01))
	err := ch.waitConnect(20 * time.Millisecond)
	assert.ErrorIs(t, err, cherrors.ErrTimeout)
}

func TestChannelConnectThenAck(t *testing.T) {
	defer leaktest.Check(t)()

	ch := newChannel(1, nil, 4)
	port := &PortCtx{id: 1, localDestID: 0x01}
	peer := transport.Peer{DestID: 0x02, Handle: "peer"}
	require.NoError(t, ch.casConnect(port, peer, 0x01))

	done := make(chan error, 1)
	go func() {
		done <- ch.waitConnect(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.True(t, ch.markConnected(42))

	err := <-done
	require.NoError(t, err)
	assert.Equal(t, StateConnected, ch.State())
	assert.EqualValues(t, 42, ch.RemoteChannel())
}

func TestChannelAcceptQueue(t *testing.T) {
	defer leaktest.Check(t)()

	ch := newChannel(1, nil, 4)
	port := &PortCtx{id: 1, localDestID: 0x01}
	require.NoError(t, ch.bind(port, 0x01))
	require.NoError(t, ch.listen())

	req := &ConnReq{RequesterDestID: 0x02, RequesterCh: 7, Port: port}
	assert.True(t, ch.pushConnReq(req))

	got, err := ch.waitAccept(time.Second, false)
	require.NoError(t, err)
	assert.Same(t, req, got)
}

func TestChannelAcceptNonBlockingEmpty(t *testing.T) {
	ch := newChannel(1, nil, 4)
	port := &PortCtx{id: 1}
	require.NoError(t, ch.bind(port, 0x01))
	require.NoError(t, ch.listen())

	_, err := ch.waitAccept(0, true)
	assert.ErrorIs(t, err, cherrors.ErrAgain)
}

func TestChannelPushPopRX(t *testing.T) {
	ch := newChannel(1, nil, 4)
	ch.state = StateConnected

	freed := 0
	free := func([]byte) { freed++ }

	require.NoError(t, ch.pushRX([]byte("hello"), 5, free))
	buf, n, err := ch.popRX(time.Second, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, ch.releaseRX(buf, free))
	assert.Equal(t, 1, freed)
}

func TestChannelPushRXWrongStateDrops(t *testing.T) {
	ch := newChannel(1, nil, 4)
	freed := 0
	err := ch.pushRX([]byte("x"), 1, func([]byte) { freed++ })
	assert.ErrorIs(t, err, cherrors.ErrIO)
	assert.Equal(t, 1, freed)
}

func TestChannelPopRXConnResetOnClose(t *testing.T) {
	defer leaktest.Check(t)()

	ch := newChannel(1, nil, 4)
	ch.state = StateConnected

	done := make(chan error, 1)
	go func() {
		_, _, err := ch.popRX(time.Second, false)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	ch.beginDisconnectThenDestroying()
	ch.wakeAll()

	err := <-done
	assert.ErrorIs(t, err, cherrors.ErrConnReset)
}

func TestChannelReleaseLifecycle(t *testing.T) {
	ch := newChannel(1, nil, 4)
	ch.addRef()
	assert.EqualValues(t, 2, ch.refs)

	ch.release()
	select {
	case <-ch.destroyed:
		t.Fatal("destroyed fired too early")
	default:
	}

	ch.release()
	select {
	case <-ch.destroyed:
	default:
		t.Fatal("destroyed did not fire at zero refs")
	}
}
