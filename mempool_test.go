package rtos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolAllocFreeRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	p := k.NewPool(PoolAttr{Name: "p", BlockSize: 16, BlockCount: 2})
	require.Equal(t, 2, p.Capacity())

	done := make(chan struct{})
	_, err := k.NewThread(ThreadAttr{Name: "t", Priority: PriorityNormal}, func(self *Thread) {
		b1, err := p.Alloc(self, time.Second)
		require.NoError(t, err)
		require.Len(t, b1, 16)
		b1[0] = 0xAB

		b2, err := p.Alloc(self, time.Second)
		require.NoError(t, err)
		require.NotEqual(t, &b1[0], &b2[0])

		require.NoError(t, p.Free(b1))
		require.NoError(t, p.Free(b2))
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestPoolTryAllocExhaustion(t *testing.T) {
	k := newTestKernel(t)
	p := k.NewPool(PoolAttr{Name: "p", BlockSize: 8, BlockCount: 1})

	b, err := p.TryAlloc()
	require.NoError(t, err)
	require.Len(t, b, 8)

	_, err = p.TryAlloc()
	require.Error(t, err)
	require.Equal(t, StatusOutOfMemory, StatusOf(err))
}

func TestPoolAllocBlocksUntilFreedThenDirectHandoff(t *testing.T) {
	k := newTestKernel(t)
	p := k.NewPool(PoolAttr{Name: "p", BlockSize: 4, BlockCount: 1})
	held, err := p.TryAlloc()
	require.NoError(t, err)

	var order []string
	done := make(chan struct{})

	_, err = k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
		order = append(order, "waiting")
		b, err := p.Alloc(self, time.Second)
		require.NoError(t, err)
		require.Len(t, b, 4)
		order = append(order, "allocated")
		close(done)
	})
	require.NoError(t, err)

	_, err = k.NewThread(ThreadAttr{Name: "freer", Priority: PriorityLow}, func(self *Thread) {
		order = append(order, "freeing")
		require.NoError(t, p.Free(held))
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	require.Equal(t, []string{"waiting", "freeing", "allocated"}, order)
}

func TestPoolFreeOfForeignSliceReturnsInvalidArgument(t *testing.T) {
	k := newTestKernel(t)
	_ = k
	p := k.NewPool(PoolAttr{Name: "p", BlockSize: 8, BlockCount: 1})
	foreign := make([]byte, 8)
	err := p.Free(foreign)
	require.Error(t, err)
	require.Equal(t, StatusInvalidArgument, StatusOf(err))
}

func TestPoolAllocTimesOutWhenExhausted(t *testing.T) {
	k := newTestKernel(t)
	p := k.NewPool(PoolAttr{Name: "p", BlockSize: 4, BlockCount: 1})
	_, err := p.TryAlloc()
	require.NoError(t, err)

	done := make(chan struct{})
	_, err = k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
		_, err := p.Alloc(self, 20*time.Millisecond)
		require.ErrorIs(t, err, ErrTimeout)
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
