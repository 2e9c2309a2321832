package chancore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riomux/chancore/internal/cherrors"
)

func TestRegistryAllocateExplicit(t *testing.T) {
	r := NewRegistry(256)
	ch := newChannel(0, nil, 4)
	id, err := r.Allocate(100, ch)
	require.NoError(t, err)
	assert.EqualValues(t, 100, id)

	ch2 := newChannel(0, nil, 4)
	_, err = r.Allocate(100, ch2)
	assert.ErrorIs(t, err, cherrors.ErrBusy)
}

func TestRegistryAllocateDynamic(t *testing.T) {
	r := NewRegistry(256)
	ch := newChannel(0, nil, 4)
	id, err := r.Allocate(256, ch)
	require.NoError(t, err)
	assert.EqualValues(t, 256, id)

	next := newChannel(0, nil, 4)
	id, err = r.Allocate(0, next)
	require.NoError(t, err)
	assert.EqualValues(t, 257, id)

	below := newChannel(0, nil, 4)
	id, err = r.Allocate(100, below)
	require.NoError(t, err)
	assert.EqualValues(t, 100, id)
}

func TestRegistryAllocateDynamicReusesFreedID(t *testing.T) {
	r := NewRegistry(256)
	_, err := r.Allocate(256, newChannel(0, nil, 4))
	require.NoError(t, err)
	second, err := r.Allocate(0, newChannel(0, nil, 4))
	require.NoError(t, err)
	require.EqualValues(t, 257, second)

	_, ok := r.Unpublish(256)
	require.True(t, ok)

	id, err := r.Allocate(0, newChannel(0, nil, 4))
	require.NoError(t, err)
	assert.EqualValues(t, 256, id, "freed dynamic ID below the high-water mark must be reused")
}

func TestRegistryLookupAddsRef(t *testing.T) {
	r := NewRegistry(256)
	ch := newChannel(0, nil, 4)
	id, err := r.Allocate(1, ch)
	require.NoError(t, err)

	got, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Same(t, ch, got)
	assert.EqualValues(t, 2, ch.refs)
	got.release()
	assert.EqualValues(t, 1, ch.refs)
}

func TestRegistryUnpublish(t *testing.T) {
	r := NewRegistry(256)
	ch := newChannel(0, nil, 4)
	id, _ := r.Allocate(1, ch)

	got, ok := r.Unpublish(id)
	require.True(t, ok)
	assert.Same(t, ch, got)

	_, ok = r.Unpublish(id)
	assert.False(t, ok)
}

func TestRegistryForEach(t *testing.T) {
	r := NewRegistry(256)
	for i := uint16(1); i <= 3; i++ {
		r.Allocate(i, newChannel(0, nil, 4))
	}
	seen := 0
	r.ForEach(func(ch *Channel) bool {
		seen++
		return true
	})
	assert.Equal(t, 3, seen)
	assert.Equal(t, 3, r.Len())
}
