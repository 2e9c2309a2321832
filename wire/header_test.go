package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		SrcDestID: 0x01,
		DstDestID: 0x02,
		SrcMbox:   1,
		DstMbox:   1,
		PktType:   PacketTypeChannel,
		ChOp:      ChOpData,
		DstCh:     100,
		SrcCh:     200,
		MsgLen:    25,
		Reserved:  0xBEEF, // must not survive the round trip
	}

	buf := make([]byte, HeaderLen)
	require.NoError(t, h.Encode(buf))

	got, err := Decode(buf)
	require.NoError(t, err)

	want := h
	want.Reserved = 0 // transmitted as zero regardless of what was set
	assert.Equal(t, want, got)
}

func TestEncodeNetworkByteOrder(t *testing.T) {
	h := Header{SrcDestID: 0x01020304}
	buf := make([]byte, HeaderLen)
	require.NoError(t, h.Encode(buf))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf[0:4])
}

func TestEncodeBufferTooSmall(t *testing.T) {
	err := (Header{}).Encode(make([]byte, HeaderLen-1))
	assert.Error(t, err)
}

func TestDecodeBufferTooSmall(t *testing.T) {
	_, err := Decode(make([]byte, HeaderLen-1))
	assert.Error(t, err)
}

func TestIsChannel(t *testing.T) {
	assert.True(t, Header{PktType: PacketTypeChannel}.IsChannel())
	assert.False(t, Header{PktType: PacketTypeSystem}.IsChannel())
}

func TestChOpString(t *testing.T) {
	assert.Equal(t, "CONN_REQ", ChOpConnReq.String())
	assert.Equal(t, "DATA", ChOpData.String())
}
