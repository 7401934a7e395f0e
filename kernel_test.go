package rtos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := NewKernel(WithTickPeriod(time.Millisecond))
	require.NoError(t, k.Initialize())
	require.NoError(t, k.Start())
	t.Cleanup(k.Stop)
	return k
}

func TestKernelRunsHighestPriorityThreadFirst(t *testing.T) {
	k := newTestKernel(t)

	var order []string
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "low", Priority: PriorityLow}, func(self *Thread) {
		order = append(order, "low")
		close(done)
	})
	require.NoError(t, err)
	_, err = k.NewThread(ThreadAttr{Name: "high", Priority: PriorityHigh}, func(self *Thread) {
		order = append(order, "high")
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for threads to run")
	}
	require.Equal(t, []string{"high", "low"}, order)
}

func TestKernelYieldRequeuesAtSamePriority(t *testing.T) {
	k := newTestKernel(t)
	var order []string
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "a", Priority: PriorityNormal}, func(self *Thread) {
		order = append(order, "a1")
		k.Yield(self)
		order = append(order, "a2")
	})
	require.NoError(t, err)
	_, err = k.NewThread(ThreadAttr{Name: "b", Priority: PriorityNormal}, func(self *Thread) {
		order = append(order, "b1")
		k.Yield(self)
		order = append(order, "b2")
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	require.Equal(t, []string{"a1", "b1", "a2", "b2"}, order)
}

func TestKernelStateTransitions(t *testing.T) {
	k := NewKernel()
	require.Equal(t, SchedulerUninitialized, k.State())
	require.NoError(t, k.Initialize())
	require.Equal(t, SchedulerReady, k.State())
	require.Error(t, k.Initialize()) // already initialized

	require.NoError(t, k.Start())
	require.Equal(t, SchedulerRunning, k.State())
	require.Error(t, k.Start()) // already running

	k.Stop()
	require.Equal(t, SchedulerStopped, k.State())
}

func TestKernelSchedulerLockFreezesReadyList(t *testing.T) {
	k := newTestKernel(t)
	ran := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "blocked-by-lock", Priority: PriorityHigh}, func(self *Thread) {
		close(ran)
	})
	require.NoError(t, err)

	k.Lock()
	select {
	case <-ran:
		t.Fatal("high priority thread ran while scheduler was locked")
	case <-time.After(20 * time.Millisecond):
	}
	k.Unlock()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("thread never ran after Unlock")
	}
}

func TestKernelInterruptMaskIsReentrant(t *testing.T) {
	k := newTestKernel(t)
	require.False(t, k.InHandlerMode())
	k.EnterISR()
	require.True(t, k.InHandlerMode())
	k.EnterISR() // reentrant
	require.True(t, k.InHandlerMode())
	k.ExitISR()
	require.True(t, k.InHandlerMode())
	k.ExitISR()
	require.False(t, k.InHandlerMode())
}

func TestKernelExitISRWithoutEnterPanics(t *testing.T) {
	k := newTestKernel(t)
	require.Panics(t, func() { k.ExitISR() })
}

func TestThreadSetPriorityReordersReadyList(t *testing.T) {
	k := newTestKernel(t)
	var order []string
	done := make(chan struct{})
	gate := k.NewSemaphore(SemaphoreAttr{Name: "gate"})

	var bumped *Thread
	bumped, _ = k.NewThread(ThreadAttr{Name: "bumped", Priority: PriorityLow}, func(self *Thread) {
		require.NoError(t, gate.Wait(self, time.Second))
		order = append(order, "bumped")
		close(done)
	})

	_, err := k.NewThread(ThreadAttr{Name: "setter", Priority: PriorityNormal}, func(self *Thread) {
		bumped.SetPriority(PriorityRealtime)
		require.NoError(t, gate.Post())
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	require.Equal(t, []string{"bumped"}, order)
}
