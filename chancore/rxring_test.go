package chancore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRxRingPushPopRelease(t *testing.T) {
	var r rxRing
	r.init(2)

	r.push([]byte("aa"), 2)
	r.push([]byte("bb"), 2)
	assert.Equal(t, 2, r.count)

	buf, n := r.pop()
	assert.Equal(t, "aa", string(buf[:n]))
	assert.Equal(t, 1, r.inuseCount)

	assert.True(t, r.release(buf))
	assert.Equal(t, 0, r.inuseCount)
	assert.False(t, r.release(buf))
}

func TestRxRingDrainResetsCounters(t *testing.T) {
	var r rxRing
	r.init(4)
	r.push([]byte("x"), 1)
	buf, _ := r.pop()
	_ = buf

	var freed [][]byte
	r.drain(func(b []byte) { freed = append(freed, b) })
	assert.Equal(t, 0, r.count)
	assert.Equal(t, 0, r.inuseCount)
	assert.Equal(t, 0, r.head)
	assert.Equal(t, 0, r.tail)
	assert.Len(t, freed, 1)
}

func TestRxRingDrainToleratesNilFree(t *testing.T) {
	var r rxRing
	r.init(2)
	r.push([]byte("x"), 1)

	assert.NotPanics(t, func() { r.drain(nil) })
}

func TestRxRingCapacityInvariant(t *testing.T) {
	var r rxRing
	r.init(1)
	r.push([]byte("a"), 1)
	assert.Equal(t, r.capacity, r.count)
}
