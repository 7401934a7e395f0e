package rtos

import "time"

// MutexProtocol selects how a Mutex affects the priority of whichever
// thread holds it, mirroring os-mutex.cpp's protocol attribute.
type MutexProtocol int

const (
	// MutexProtocolNone applies no priority adjustment; a low-priority
	// owner can block higher-priority waiters indefinitely (priority
	// inversion is possible).
	MutexProtocolNone MutexProtocol = iota
	// MutexProtocolInherit boosts the owner's effective priority to
	// that of the highest-priority thread currently blocked on the
	// mutex, for as long as it holds it (priority inheritance).
	MutexProtocolInherit
	// MutexProtocolProtect boosts the owner's effective priority to
	// the mutex's configured Ceiling as soon as it is acquired,
	// regardless of whether any waiter is actually blocked (priority
	// ceiling / immediate priority ceiling protocol).
	MutexProtocolProtect
)

// MutexRobustness selects what happens to a Mutex whose owner
// terminates while still holding it.
type MutexRobustness int

const (
	// MutexStalled leaves the mutex permanently held by the dead
	// thread: any future Lock call blocks forever (matching
	// PTHREAD_MUTEX_STALLED semantics). Use MutexRobust unless
	// compatibility with that behaviour is required.
	MutexStalled MutexRobustness = iota
	// MutexRobust hands ownership to the next locker (or marks the
	// mutex immediately available if nobody is waiting) and reports
	// StatusOwnerDead until Mutex.Consistent is called.
	MutexRobust
)

// MutexAttr configures a Mutex before creation, mirroring os-mutex.cpp's
// mutex::attributes builder.
type MutexAttr struct {
	Name         string
	Protocol     MutexProtocol
	Robustness   MutexRobustness
	Ceiling      Priority
	MaxRecursion int // 0 disables recursive locking by the owner
}

// Mutex is a priority-aware lock: depending on MutexAttr.Protocol, the
// owning thread's effective priority is boosted while it holds the
// lock, preventing unbounded priority inversion.
type Mutex struct {
	kernel *Kernel
	attr   MutexAttr
	name   string

	owner          *Thread
	recursionCount int
	waitList       list

	ownerDiedPending bool
	consistentCalled bool
	notRecoverable   bool
}

// NewMutex creates a Mutex bound to k with the given attributes.
func (k *Kernel) NewMutex(attr MutexAttr) *Mutex {
	return &Mutex{kernel: k, attr: attr, name: attr.Name}
}

// Name returns the mutex's diagnostic name.
func (m *Mutex) Name() string { return m.name }

// Lock acquires the mutex, blocking caller if it is already held by a
// different thread. A timeout of 0 waits indefinitely. Must not be
// called from handler mode.
func (m *Mutex) Lock(caller *Thread, timeout time.Duration) error {
	if m.kernel.InHandlerMode() {
		return newErr("Mutex.Lock", StatusPermission, nil)
	}
	m.kernel.mu.Lock()
	if m.notRecoverable {
		m.kernel.mu.Unlock()
		return newErr("Mutex.Lock", StatusNotRecoverable, nil)
	}
	if m.owner == nil {
		m.grantLocked(caller)
		dead := m.ownerDiedPending
		m.kernel.mu.Unlock()
		if dead {
			return newErr("Mutex.Lock", StatusOwnerDead, nil)
		}
		return nil
	}
	if m.owner == caller {
		if m.attr.MaxRecursion == 0 {
			m.kernel.mu.Unlock()
			return newErr("Mutex.Lock", StatusDeadlock, nil)
		}
		if m.recursionCount >= m.attr.MaxRecursion {
			m.kernel.mu.Unlock()
			return newErr("Mutex.Lock", StatusWouldOverflow, nil)
		}
		m.recursionCount++
		m.kernel.mu.Unlock()
		return nil
	}
	if m.attr.Protocol == MutexProtocolInherit {
		boost(m.owner, int32(caller.effectivePriority()))
	}
	m.kernel.mu.Unlock()

	status := m.kernel.blockOn(caller, &m.waitList, timeout)
	if status != StatusOK {
		return newErr("Mutex.Lock", status, nil)
	}
	// Unlock already transferred ownership to caller directly.
	m.kernel.mu.Lock()
	dead := m.ownerDiedPending
	m.kernel.mu.Unlock()
	if dead {
		return newErr("Mutex.Lock", StatusOwnerDead, nil)
	}
	return nil
}

// TryLock attempts to acquire the mutex without blocking. Safe to call
// from handler mode, since it never waits.
func (m *Mutex) TryLock(caller *Thread) error {
	m.kernel.mu.Lock()
	defer m.kernel.mu.Unlock()
	if m.notRecoverable {
		return newErr("Mutex.TryLock", StatusNotRecoverable, nil)
	}
	if m.owner == nil {
		m.grantLocked(caller)
		if m.ownerDiedPending {
			return newErr("Mutex.TryLock", StatusOwnerDead, nil)
		}
		return nil
	}
	if m.owner == caller {
		if m.attr.MaxRecursion == 0 {
			return newErr("Mutex.TryLock", StatusDeadlock, nil)
		}
		if m.recursionCount >= m.attr.MaxRecursion {
			return newErr("Mutex.TryLock", StatusWouldOverflow, nil)
		}
		m.recursionCount++
		return nil
	}
	return newErr("Mutex.TryLock", StatusWouldBlock, nil)
}

// grantLocked makes caller the owner, applying the ceiling protocol's
// immediate boost. Caller must hold k.mu.
func (m *Mutex) grantLocked(caller *Thread) {
	m.owner = caller
	m.recursionCount = 1
	caller.ownedMutexes[m] = struct{}{}
	if m.attr.Protocol == MutexProtocolProtect {
		boost(caller, int32(m.attr.Ceiling))
	}
}

// Unlock releases the mutex. If other threads are waiting, ownership
// transfers directly to the highest-priority waiter (avoiding a
// thundering-herd re-acquire race) rather than simply making the
// mutex available again.
func (m *Mutex) Unlock(caller *Thread) error {
	m.kernel.mu.Lock()
	if m.owner != caller {
		m.kernel.mu.Unlock()
		return newErr("Mutex.Unlock", StatusPermission, nil)
	}
	if m.recursionCount > 1 {
		m.recursionCount--
		m.kernel.mu.Unlock()
		return nil
	}
	if m.ownerDiedPending && !m.consistentCalled {
		m.notRecoverable = true
	}
	delete(caller.ownedMutexes, m)
	switch m.attr.Protocol {
	case MutexProtocolInherit:
		unboost(caller, 0) // clear any inheritance boosts this mutex granted
	case MutexProtocolProtect:
		unboost(caller, int32(m.attr.Ceiling))
	}
	m.ownerDiedPending = false
	m.consistentCalled = false

	n := m.waitList.popFront()
	if n == nil {
		m.owner = nil
		m.recursionCount = 0
		m.kernel.mu.Unlock()
		return nil
	}
	next := n.owner
	m.grantLocked(next)
	next.setWaitResult(StatusOK)
	m.kernel.mu.Unlock()
	m.kernel.wake(next)
	return nil
}

// Consistent clears the owner-dead flag on a robust mutex after the
// new owner has repaired whatever invariant the dead thread may have
// left broken. Calling it on a non-robust or not-dead mutex is a no-op.
func (m *Mutex) Consistent(caller *Thread) error {
	m.kernel.mu.Lock()
	defer m.kernel.mu.Unlock()
	if m.owner != caller {
		return newErr("Mutex.Consistent", StatusPermission, nil)
	}
	m.consistentCalled = true
	return nil
}

// onOwnerDied is invoked by the kernel when t terminates while still
// holding m.
func (m *Mutex) onOwnerDied(t *Thread) {
	m.kernel.mu.Lock()
	if m.owner != t {
		m.kernel.mu.Unlock()
		return
	}
	if m.attr.Robustness != MutexRobust {
		// MutexStalled: the mutex stays held by the now-dead owner
		// forever; any future Lock/TryLock sees a non-nil, non-self
		// owner and blocks (or reports StatusWouldBlock) indefinitely,
		// matching PTHREAD_MUTEX_STALLED.
		m.kernel.mu.Unlock()
		return
	}
	n := m.waitList.popFront()
	if n == nil {
		m.owner = nil
		m.recursionCount = 0
		m.ownerDiedPending = true
		m.kernel.mu.Unlock()
		return
	}
	next := n.owner
	m.grantLocked(next)
	m.ownerDiedPending = true
	next.setWaitResult(StatusOwnerDead)
	m.kernel.mu.Unlock()
	m.kernel.wake(next)
}

// boost raises t's inheritance floor to at least p. Caller must hold
// k.mu. A simplified model: it does not track which mutex contributed
// which boost, so unboost(t, 0) clears all inheritance-protocol boosts
// at once. That is correct for a single held mutex; when a thread holds
// several, unlocking any one of them drops the whole boost even if a
// higher-priority thread still waits on another.
func boost(t *Thread, p int32) {
	cur := t.inherited.Load()
	if p > cur {
		t.inherited.Store(p)
	}
}

// unboost lowers t's inheritance floor back to base. See boost's
// simplification note.
func unboost(t *Thread, _ int32) {
	t.inherited.Store(0)
}
