package rtos

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Priority is a thread's scheduling priority: higher values run first.
// The range mirrors a typical RTOS's fixed priority ceiling: 0 is the
// lowest (idle-adjacent) priority, PriorityMax is the highest.
type Priority int

const (
	PriorityIdle Priority = 0
	PriorityLow  Priority = 10
	PriorityNormal Priority = 20
	PriorityHigh Priority = 30
	PriorityRealtime Priority = 40
	PriorityMax  Priority = 255
)

// ThreadStats reports per-thread diagnostics, the Go rendering of
// os-thread.cpp's context-switch counter and stack high-water-mark.
type ThreadStats struct {
	ContextSwitches uint64
	StackUsed       int
	StackSize       int
	StackOverflow   bool
}

// ThreadAttr configures a new thread before creation, mirroring
// os-thread.h's thread::attributes builder: priority, simulated stack
// size, and a diagnostic name, kept separate from the thread function
// itself.
type ThreadAttr struct {
	Name       string
	Priority   Priority
	StackSize  int // simulated; 0 uses a default descriptor size
	Detached   bool
}

// Thread is one schedulable unit of execution, backed by a dedicated
// goroutine gated by the kernel's baton so that only the thread chosen
// by the scheduler executes kernel-visible code at a time.
type Thread struct { // betteralign:ignore
	id   uint64
	name string

	kernel *Kernel

	state *atomicState

	basePriority int32
	// inherited tracks the highest priority borrowed from a thread
	// blocked on a mutex this thread owns (priority inheritance) or
	// from a mutex's configured ceiling; effectivePriority is the max
	// of basePriority and this value.
	inherited atomic.Int32

	node node // ready-list / wait-list linkage; node.owner == this

	resume chan struct{} // the baton: receiving it means "you may run"

	fn func(t *Thread)

	detached bool

	joinMu   sync.Mutex
	joinCh   chan struct{}
	joinErr  error
	joined   bool

	stats ThreadStats

	// ownedMutexes is the set of mutexes currently held by this
	// thread, consulted when the thread terminates while still holding
	// any of them.
	ownedMutexes map[*Mutex]struct{}

	// stackGuard simulates os-thread's stack guard word: the spec's
	// overflow invariant is testable even though goroutine stacks are
	// managed by the Go runtime.
	stackGuard []uint32

	timeout    *timeoutNode // reused across every bounded wait this thread performs
	waitResult atomic.Int32 // Status of the most recently completed wait

	joinWaiters list // other threads blocked in Join(t)

	// Event flag wait parameters, valid only while this thread is
	// linked into an EventFlags wait list; a thread can only be
	// blocked on one thing at a time so these live on Thread itself
	// rather than in a separately allocated waiter record.
	eventMask        uint32
	eventAll         bool
	eventClearOnExit bool
	eventMatched     uint32

	// flags is this thread's own persistent event-flag word, set by
	// FlagsRaise/FlagsClear and consumed by FlagsWait/FlagsTryWait -
	// distinct from the transient eventMask/eventAll pair above, which
	// only ever describe a wait against a separately allocated
	// EventFlags object. flagsWaiting is true exactly while this thread
	// is suspended inside FlagsWait, so FlagsRaise knows whether to
	// evaluate and wake it.
	flags            uint32
	flagsMask        uint32
	flagsAll         bool
	flagsClearOnExit bool
	flagsMatched     uint32
	flagsWaiting     bool

	// transferIndex carries a handed-off pool block index from Free to
	// the woken waiter, avoiding a thundering-herd re-scan of the free
	// list once the block is available.
	transferIndex int32
	// transferMsg carries a handed-off message queue slot index from
	// Send to the woken Receive waiter, for the same reason.
	transferMsg int32
}

// Name returns the thread's diagnostic name.
func (t *Thread) Name() string { return t.name }

// ID returns the thread's kernel-assigned identifier.
func (t *Thread) ID() uint64 { return t.id }

// State returns the thread's current lifecycle state.
func (t *Thread) State() ThreadState {
	return ThreadState(t.state.Load())
}

// Priority returns the thread's base (assigned) priority.
func (t *Thread) Priority() Priority {
	return Priority(atomic.LoadInt32(&t.basePriority))
}

// SetPriority changes the thread's base priority, re-sorting it within
// the ready list if it is currently ready.
func (t *Thread) SetPriority(p Priority) {
	atomic.StoreInt32(&t.basePriority, int32(p))
	t.kernel.mu.Lock()
	if t.node.list == &t.kernel.ready {
		t.node.remove()
		t.node.priority = t.effectivePriority()
		t.kernel.ready.pushPriority(&t.node)
	}
	t.kernel.mu.Unlock()
}

// effectivePriority is max(basePriority, inherited), per the priority
// inheritance/ceiling protocol.
func (t *Thread) effectivePriority() int {
	base := int(atomic.LoadInt32(&t.basePriority))
	inh := int(t.inherited.Load())
	if inh > base {
		return inh
	}
	return base
}

// Stats returns a snapshot of the thread's diagnostic counters.
func (t *Thread) Stats() ThreadStats {
	s := t.stats
	s.StackOverflow = len(t.stackGuard) > 0 && t.stackGuard[0] != defaultStackGuardWord
	return s
}

// newThread allocates and registers a Thread but does not start its
// goroutine; Initialize uses this directly for the idle thread, and
// NewThread wraps it for application threads.
func (k *Kernel) newThread(attr ThreadAttr, fn func()) (*Thread, error) {
	if fn == nil {
		return nil, newErr("NewThread", StatusInvalidArgument, nil)
	}
	stackSize := attr.StackSize
	if stackSize <= 0 {
		stackSize = 256
	}
	k.mu.Lock()
	k.nextID++
	id := k.nextID
	k.mu.Unlock()

	t := &Thread{
		id:           id,
		name:         attr.Name,
		kernel:       k,
		state:        newAtomicState(uint32(ThreadInitializing)),
		basePriority: int32(attr.Priority),
		resume:       make(chan struct{}),
		detached:     attr.Detached,
		joinCh:       make(chan struct{}),
		ownedMutexes: make(map[*Mutex]struct{}),
		stackGuard:   make([]uint32, stackSize/4),
	}
	t.node.owner = t
	t.node.priority = int(attr.Priority)
	t.timeout = newTimeoutNode()
	t.timeout.n.owner = t
	for i := range t.stackGuard {
		t.stackGuard[i] = defaultStackGuardWord
	}
	t.fn = func(self *Thread) { fn() }

	k.mu.Lock()
	k.threads[id] = t
	k.mu.Unlock()
	return t, nil
}

// NewThread creates and starts a new application thread running fn,
// returning once the thread is registered with the scheduler (the
// thread's goroutine itself blocks on the baton until scheduled).
func (k *Kernel) NewThread(attr ThreadAttr, fn func(t *Thread)) (*Thread, error) {
	if k.State() < SchedulerReady {
		return nil, newErr("NewThread", StatusInvalidArgument, nil)
	}
	if fn == nil {
		return nil, newErr("NewThread", StatusInvalidArgument, nil)
	}
	t, err := k.newThread(attr, func() {})
	if err != nil {
		return nil, err
	}
	t.fn = fn
	t.start()
	k.log(LogEntry{Category: "sched", Level: LogDebug, Message: "thread created", Thread: t.name})
	return t, nil
}

// start launches the thread's goroutine and marks it ready.
func (t *Thread) start() {
	k := t.kernel
	go func() {
		<-t.resume
		defer t.finish()
		t.fn(t)
	}()
	k.mu.Lock()
	t.state.Store(uint32(ThreadReady))
	t.node.priority = t.effectivePriority()
	k.ready.pushPriority(&t.node)
	k.mu.Unlock()
	k.port.Notify()
}

// finish recovers a panicking thread function, records the outcome for
// Join, and reschedules away from the terminated thread permanently.
func (t *Thread) finish() {
	var err error
	if r := recover(); r != nil {
		err = &ThreadPanicError{Thread: t.name, Value: r}
	}
	t.joinMu.Lock()
	t.joinErr = err
	close(t.joinCh)
	t.joinMu.Unlock()

	t.state.Store(uint32(ThreadTerminated))
	t.kernel.log(LogEntry{Category: "sched", Level: LogDebug, Message: "thread terminated", Thread: t.name})
	t.kernel.releaseOwnedMutexes(t)

	t.kernel.mu.Lock()
	var waiters []*Thread
	for n := t.joinWaiters.popFront(); n != nil; n = t.joinWaiters.popFront() {
		waiters = append(waiters, n.owner)
	}
	delete(t.kernel.threads, t.id)
	next := t.kernel.pickNextLocked()
	t.kernel.current = next
	if t.kernel.opts.metricsEnabled {
		t.kernel.contextSwitches.Add(1)
	}
	t.kernel.mu.Unlock()
	for _, w := range waiters {
		t.kernel.wake(w)
	}
	if next != t && next != t.kernel.idle {
		next.resume <- struct{}{}
	}
	// This goroutine now exits for good; it never receives its baton
	// again because it has been removed from every list.
}

// Join blocks the calling thread (which must itself be an RTOS thread)
// until t terminates, returning any panic it recovered. It is a
// blocking operation and must not be called from handler mode.
func (t *Thread) Join(caller *Thread) error {
	if t.kernel.InHandlerMode() {
		return newErr("Join", StatusPermission, nil)
	}
	if t.detached {
		return newErr("Join", StatusInvalidArgument, nil)
	}
	already := false
	select {
	case <-t.joinCh:
		already = true
	default:
	}
	if !already {
		caller.resetWaitResult()
		t.kernel.mu.Lock()
		caller.node.priority = int(caller.Priority())
		t.joinWaiters.pushBack(&caller.node)
		caller.state.Store(uint32(ThreadSuspended))
		t.kernel.mu.Unlock()
		t.kernel.reschedule(caller)
	}
	t.joinMu.Lock()
	defer t.joinMu.Unlock()
	return t.joinErr
}

// resetWaitResult clears the outcome of the previous bounded wait,
// called before a thread enters a new wait list.
func (t *Thread) resetWaitResult() {
	t.waitResult.Store(int32(StatusOK))
}

// setWaitResult records the outcome a pending or just-ended wait will
// report to its caller.
func (t *Thread) setWaitResult(s Status) {
	t.waitResult.Store(int32(s))
}

// WaitResult returns the Status of the most recently completed bounded
// wait performed by this thread.
func (t *Thread) WaitResult() Status {
	return Status(t.waitResult.Load())
}

// Detach marks the thread as not joinable; its resources are released
// as soon as it terminates instead of waiting for a Join call.
func (t *Thread) Detach() {
	t.detached = true
}

// Interrupt wakes a thread that is blocked in a bounded wait, causing
// that wait to return StatusInterrupted instead of its normal outcome.
// A no-op if the thread is not currently waiting.
func (t *Thread) Interrupt() {
	t.kernel.clock.cancel(t.timeout)
	t.kernel.abortWait(t, StatusInterrupted)
}

// releaseOwnedMutexes is invoked when a thread terminates while still
// holding one or more mutexes: a robust one is handed to its next
// waiter marked owner-dead, and a non-robust one stays held by the
// terminated owner (stalled), per the spec's robust-mutex handling.
func (k *Kernel) releaseOwnedMutexes(t *Thread) {
	for m := range t.ownedMutexes {
		m.onOwnerDied(t)
	}
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread(%d:%s)", t.id, t.name)
}
