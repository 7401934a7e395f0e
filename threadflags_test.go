package rtos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThreadFlagsWaitOrMatchesAnySetBit(t *testing.T) {
	k := newTestKernel(t)
	var target *Thread
	ready := make(chan struct{})
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
		target = self
		close(ready)
		matched, err := self.FlagsWait(0b101, false, false, time.Second)
		require.NoError(t, err)
		require.Equal(t, uint32(0b100), matched)
		close(done)
	})
	require.NoError(t, err)

	_, err = k.NewThread(ThreadAttr{Name: "raiser", Priority: PriorityLow}, func(self *Thread) {
		<-ready
		target.FlagsRaise(0b100)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestThreadFlagsWaitAndRequiresAllBits(t *testing.T) {
	k := newTestKernel(t)
	var order []string
	var target *Thread
	ready := make(chan struct{})
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
		target = self
		close(ready)
		matched, err := self.FlagsWait(0b11, true, false, time.Second)
		require.NoError(t, err)
		order = append(order, "matched")
		require.Equal(t, uint32(0b11), matched)
		close(done)
	})
	require.NoError(t, err)

	_, err = k.NewThread(ThreadAttr{Name: "raiser", Priority: PriorityLow}, func(self *Thread) {
		<-ready
		target.FlagsRaise(0b01)
		order = append(order, "raised-1")
		k.Yield(self)
		target.FlagsRaise(0b10)
		order = append(order, "raised-2")
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	require.Equal(t, []string{"raised-1", "raised-2", "matched"}, order)
}

func TestThreadFlagsClearOnExitConsumesMatchedBits(t *testing.T) {
	k := newTestKernel(t)
	var target *Thread
	ready := make(chan struct{})
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "waiter", Priority: PriorityNormal}, func(self *Thread) {
		target = self
		close(ready)
		matched, err := self.FlagsWait(0b11, false, true, time.Second)
		require.NoError(t, err)
		require.Equal(t, uint32(0b01), matched)
		require.Equal(t, uint32(0), self.FlagsGet())
		close(done)
	})
	require.NoError(t, err)

	_, err = k.NewThread(ThreadAttr{Name: "raiser", Priority: PriorityLow}, func(self *Thread) {
		<-ready
		target.FlagsRaise(0b01)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestThreadFlagsTryWaitNonBlocking(t *testing.T) {
	k := newTestKernel(t)
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "t", Priority: PriorityNormal}, func(self *Thread) {
		self.FlagsRaise(0b1)

		matched, err := self.FlagsTryWait(0b1, false, false)
		require.NoError(t, err)
		require.Equal(t, uint32(0b1), matched)

		_, err = self.FlagsTryWait(0b10, false, false)
		require.Error(t, err)
		require.Equal(t, StatusWouldBlock, StatusOf(err))
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestThreadFlagsWaitTimesOut(t *testing.T) {
	k := newTestKernel(t)
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "t", Priority: PriorityNormal}, func(self *Thread) {
		_, err := self.FlagsWait(0b1, false, false, 20*time.Millisecond)
		require.Error(t, err)
		require.Equal(t, StatusTimeout, StatusOf(err))
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestThreadFlagsClearIsUnconditional(t *testing.T) {
	k := newTestKernel(t)
	done := make(chan struct{})

	_, err := k.NewThread(ThreadAttr{Name: "t", Priority: PriorityNormal}, func(self *Thread) {
		self.FlagsRaise(0b111)
		prev := self.FlagsClear(0b010)
		require.Equal(t, uint32(0b111), prev)
		require.Equal(t, uint32(0b101), self.FlagsGet())
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
