package rtos

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSysClockTickFiresExpiredTimeouts(t *testing.T) {
	c := NewSysClock()
	var fired atomic.Int32
	tn := newTimeoutNode()
	tn.fire = func() { fired.Add(1) }
	c.schedule(tn, c.Now()+3)

	c.Tick() // now=1
	c.Tick() // now=2
	require.Equal(t, int32(0), fired.Load())
	c.Tick() // now=3, deadline reached
	require.Equal(t, int32(1), fired.Load())
}

func TestSysClockCancelPreventsFire(t *testing.T) {
	c := NewSysClock()
	var fired atomic.Int32
	tn := newTimeoutNode()
	tn.fire = func() { fired.Add(1) }
	c.schedule(tn, c.Now()+2)
	c.cancel(tn)

	c.Tick()
	c.Tick()
	c.Tick()
	require.Equal(t, int32(0), fired.Load())
}

func TestSysClockOrdersMultipleDeadlines(t *testing.T) {
	c := NewSysClock()
	var order []int
	mk := func(id int) *timeoutNode {
		tn := newTimeoutNode()
		tn.fire = func() { order = append(order, id) }
		return tn
	}
	c.schedule(mk(3), c.Now()+3)
	c.schedule(mk(1), c.Now()+1)
	c.schedule(mk(2), c.Now()+2)

	for i := 0; i < 3; i++ {
		c.Tick()
	}
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestTimerOneShotFiresOnce(t *testing.T) {
	c := NewSysClock()
	var calls atomic.Int32
	tm := NewTimer(c, "once", func() { calls.Add(1) })
	tm.Start(2, 0, false)

	c.Tick()
	c.Tick()
	require.Equal(t, int32(1), calls.Load())

	for i := 0; i < 5; i++ {
		c.Tick()
	}
	require.Equal(t, int32(1), calls.Load())
}

func TestTimerPeriodicRearms(t *testing.T) {
	c := NewSysClock()
	var calls atomic.Int32
	tm := NewTimer(c, "periodic", func() { calls.Add(1) })
	tm.Start(2, 2, true)

	for i := 0; i < 6; i++ {
		c.Tick()
	}
	require.Equal(t, int32(3), calls.Load())
	tm.Stop()
	for i := 0; i < 4; i++ {
		c.Tick()
	}
	require.Equal(t, int32(3), calls.Load())
}

func TestTimerPeriodicUsesDistinctPeriodFromInitialDelay(t *testing.T) {
	c := NewSysClock()
	var calls atomic.Int32
	tm := NewTimer(c, "periodic", func() { calls.Add(1) })
	tm.Start(5, 2, true) // first fire after 5 ticks, then every 2 ticks

	for i := 0; i < 4; i++ {
		c.Tick()
	}
	require.Equal(t, int32(0), calls.Load())
	c.Tick()
	require.Equal(t, int32(1), calls.Load())

	for i := 0; i < 2; i++ {
		c.Tick()
	}
	require.Equal(t, int32(2), calls.Load())
}

func TestSysClockRegistryScavenge(t *testing.T) {
	c := NewSysClock()
	for i := 0; i < 300; i++ {
		tn := newTimeoutNode()
		tn.fire = func() {}
		c.register(tn)
	}
	// Drop every local reference so the registered nodes become
	// collectible, then force a GC cycle before triggering more
	// registrations: scavengeLocked runs as a side effect of register()
	// once the ring reaches its batch threshold, and should find most
	// of the now-dead weak pointers.
	runtime.GC()
	for i := 0; i < 300; i++ {
		tn := newTimeoutNode()
		tn.fire = func() {}
		c.register(tn)
	}
	require.Less(t, len(c.registry), 600)
}
