package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SequentialFromEmpty(t *testing.T) {
	a := New(Width16)
	for want := uint32(1); want <= 3; want++ {
		id, ok := a.Acquire()
		require.True(t, ok)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 3, a.Len())
}

func TestAcquire_ExhaustedSpace(t *testing.T) {
	a := New(Width16)
	for i := 0; i < int(Width16.Max()); i++ {
		_, ok := a.Acquire()
		require.True(t, ok)
	}
	_, ok := a.Acquire()
	assert.False(t, ok)
}

func TestRegister_ConflictAndOutOfRange(t *testing.T) {
	a := New(Width16)

	assert.True(t, a.Register(5))
	assert.False(t, a.Register(5), "already in use")
	assert.False(t, a.Register(0), "id 0 is reserved")
	assert.False(t, a.Register(Width16.Max()+1), "out of range")
	assert.True(t, a.IsUsed(5))
	assert.False(t, a.IsUsed(6))
}

func TestRegister_SplitsFreeRange(t *testing.T) {
	a := New(Width16)
	require.True(t, a.Register(5))

	id4, ok := a.Acquire()
	require.True(t, ok)
	assert.EqualValues(t, 1, id4)

	assert.True(t, a.IsUsed(5))
	for _, id := range []uint32{2, 3, 4} {
		assert.False(t, a.IsUsed(id))
	}
}

func TestRelease_MergesAdjacentFreeRanges(t *testing.T) {
	a := New(Width16)
	for i := uint32(1); i <= 5; i++ {
		require.True(t, a.Register(i))
	}
	a.Release(3)
	assert.False(t, a.IsUsed(3))
	assert.Equal(t, 4, a.Len())

	// merges with both neighbours once 2 and 4 free too
	a.Release(2)
	a.Release(4)
	assert.False(t, a.IsUsed(2))
	assert.False(t, a.IsUsed(4))

	id, ok := a.Acquire()
	require.True(t, ok)
	assert.EqualValues(t, 2, id)
}

func TestRelease_ThenReacquire(t *testing.T) {
	a := New(Width16)
	id, ok := a.Acquire()
	require.True(t, ok)
	a.Release(id)
	assert.Equal(t, 0, a.Len())

	id2, ok := a.Acquire()
	require.True(t, ok)
	assert.Equal(t, id, id2)
}

func TestWaiterQueue_FIFOOrder(t *testing.T) {
	a := New(Width16)
	for i := 0; i < int(Width16.Max()); i++ {
		_, _ = a.Acquire()
	}

	t1 := a.EnqueueWaiter()
	t2 := a.EnqueueWaiter()
	assert.NotEqual(t, t1, t2)

	_, ok := a.NextWaiter()
	assert.False(t, ok, "no id free yet")

	a.Release(1)
	ticket, ok := a.NextWaiter()
	require.True(t, ok)
	assert.Equal(t, t1, ticket, "oldest ticket served first")

	ticket2, ok := a.NextWaiter()
	require.True(t, ok, "the single freed id still satisfies NextWaiter until re-acquired")
	assert.Equal(t, t2, ticket2)

	_, ok = a.NextWaiter()
	assert.False(t, ok, "queue now empty")
}

func TestWaiterQueue_CancelRemovesTicket(t *testing.T) {
	a := New(Width16)
	t1 := a.EnqueueWaiter()
	t2 := a.EnqueueWaiter()
	a.CancelWaiter(t1)

	a.Release(1) // pretend an id is free, though none were ever acquired here
	ticket, ok := a.NextWaiter()
	require.True(t, ok)
	assert.Equal(t, t2, ticket)
}

func TestDrainWaiters_ReturnsAllInOrderAndClears(t *testing.T) {
	a := New(Width16)
	t1 := a.EnqueueWaiter()
	t2 := a.EnqueueWaiter()

	drained := a.DrainWaiters()
	assert.Equal(t, []uint64{t1, t2}, drained)

	assert.Empty(t, a.DrainWaiters())
}

func TestWidth_Max(t *testing.T) {
	assert.EqualValues(t, 0xFFFF, Width16.Max())
	assert.EqualValues(t, 0xFFFFFFFF, Width32.Max())
}
