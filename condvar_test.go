package rtos

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCondWaitSignalRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	m := k.NewMutex(MutexAttr{Name: "m"})
	c := k.NewCond("c")
	ready := false
	var order []string
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
		require.NoError(t, m.Lock(self, time.Second))
		for !ready {
			order = append(order, "waiting")
			require.NoError(t, c.Wait(self, m, time.Second))
		}
		order = append(order, "saw-ready")
		require.NoError(t, m.Unlock(self))
		close(done)
	})
	require.NoError(t, err)

	_, err = k.NewThread(ThreadAttr{Name: "signaler", Priority: PriorityLow}, func(self *Thread) {
		require.NoError(t, m.Lock(self, time.Second))
		ready = true
		order = append(order, "signaling")
		c.Signal()
		require.NoError(t, m.Unlock(self))
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	require.Equal(t, []string{"waiting", "signaling", "saw-ready"}, order)
}

func TestCondBroadcastWakesAllWaiters(t *testing.T) {
	k := newTestKernel(t)
	m := k.NewMutex(MutexAttr{Name: "m"})
	c := k.NewCond("c")
	var woken atomic.Int32
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		_, err := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
			require.NoError(t, m.Lock(self, time.Second))
			require.NoError(t, c.Wait(self, m, time.Second))
			require.NoError(t, m.Unlock(self))
			if woken.Add(1) == 3 {
				close(done)
			}
		})
		require.NoError(t, err)
	}

	_, err := k.NewThread(ThreadAttr{Name: "broadcaster", Priority: PriorityLow}, func(self *Thread) {
		require.NoError(t, m.Lock(self, time.Second))
		c.Broadcast()
		require.NoError(t, m.Unlock(self))
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestCondWaitTimesOutAndReacquiresMutex(t *testing.T) {
	k := newTestKernel(t)
	m := k.NewMutex(MutexAttr{Name: "m"})
	c := k.NewCond("c")
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
		require.NoError(t, m.Lock(self, time.Second))
		err := c.Wait(self, m, 20*time.Millisecond)
		require.ErrorIs(t, err, ErrTimeout)
		// The mutex must be held again after a timed-out Wait.
		require.Error(t, m.TryLock(self)) // already owned, 0 max recursion => deadlock status
		require.NoError(t, m.Unlock(self))
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
