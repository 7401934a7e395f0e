package rtos

import "time"

// Cond is a condition variable associated with a Mutex, the Go
// rendering of os-condvar.cpp: Wait atomically unlocks the mutex and
// suspends the caller, re-acquiring the mutex before returning so the
// caller never observes the protected state change without holding
// the lock.
type Cond struct {
	kernel   *Kernel
	name     string
	waitList list
}

// NewCond creates a Cond bound to k.
func (k *Kernel) NewCond(name string) *Cond {
	return &Cond{kernel: k, name: name}
}

// Name returns the condition variable's diagnostic name.
func (c *Cond) Name() string { return c.name }

// Wait atomically unlocks m and blocks caller on the condition,
// re-acquiring m before returning (whether woken, timed out, or
// interrupted). Must not be called from handler mode.
func (c *Cond) Wait(caller *Thread, m *Mutex, timeout time.Duration) error {
	if c.kernel.InHandlerMode() {
		return newErr("Cond.Wait", StatusPermission, nil)
	}
	caller.resetWaitResult()
	c.kernel.mu.Lock()
	caller.node.priority = caller.effectivePriority()
	c.waitList.pushPriority(&caller.node)
	caller.state.Store(uint32(ThreadSuspended))
	c.kernel.mu.Unlock()

	// The unlock happens only after caller is already linked into the
	// condition's wait list, so a Signal racing in from another thread
	// (once that thread acquires m) can never fire before caller is
	// visible to wake - this is the "atomic" half of unlock-and-wait.
	if err := m.Unlock(caller); err != nil {
		c.kernel.mu.Lock()
		caller.node.remove()
		caller.state.Store(uint32(ThreadRunning))
		c.kernel.mu.Unlock()
		return err
	}

	status := c.kernel.waitSuspended(caller, timeout)

	if lockErr := m.Lock(caller, 0); lockErr != nil {
		return lockErr
	}
	if status != StatusOK {
		return newErr("Cond.Wait", status, nil)
	}
	return nil
}

// Signal wakes at most one waiter (the highest priority one), if any
// is blocked. Safe to call from handler mode.
func (c *Cond) Signal() {
	c.kernel.mu.Lock()
	n := c.waitList.popFront()
	c.kernel.mu.Unlock()
	if n == nil {
		return
	}
	n.owner.setWaitResult(StatusOK)
	c.kernel.wake(n.owner)
}

// Broadcast wakes every currently blocked waiter. Safe to call from
// handler mode.
func (c *Cond) Broadcast() {
	c.kernel.mu.Lock()
	var woken []*Thread
	for n := c.waitList.popFront(); n != nil; n = c.waitList.popFront() {
		woken = append(woken, n.owner)
	}
	c.kernel.mu.Unlock()
	for _, t := range woken {
		t.setWaitResult(StatusOK)
		c.kernel.wake(t)
	}
}
