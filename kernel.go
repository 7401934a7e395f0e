package rtos

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// getGoroutineID returns the calling goroutine's runtime ID, parsed out
// of the "goroutine N [...]" header that runtime.Stack prints. Used
// only to recognise reentrant calls into the interrupt mask from the
// same simulated-ISR goroutine; never used as a scheduling key.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Kernel is the scheduler core: it owns the priority-ordered ready
// list, the SysClock, the thread table, and the single-core execution
// gate (only the thread the scheduler names "running" may execute
// kernel-visible code; see doc.go "Architecture").
type Kernel struct { // betteralign:ignore
	_ [0]func() // not copyable

	name  string
	state *atomicState

	mu      sync.Mutex
	ready   list // priority-ordered, FIFO among equals
	threads map[uint64]*Thread
	current *Thread
	idle    *Thread
	nextID  uint64

	clock *SysClock

	// interrupt mask: a simple mutex-backed nesting counter keyed by
	// goroutine id, standing in for "CPU interrupts masked". Only one
	// goroutine may hold the mask at a time; the same goroutine may
	// re-enter it, mirroring a nestable save/restore primitive.
	interruptMu    sync.Mutex
	interruptOwner uint64
	interruptDepth int

	schedulerLockDepth int

	port Port

	opts kernelOptions

	logger atomic.Pointer[Logger]

	contextSwitches atomic.Uint64

	tickerStop chan struct{}
	tickerWG   sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
}

// NewKernel constructs a Kernel in the Uninitialized state. Call
// Initialize before creating application threads, and Start to begin
// dispatching them.
func NewKernel(opts ...KernelOption) *Kernel {
	k := &Kernel{
		state:   newAtomicState(uint32(SchedulerUninitialized)),
		threads: make(map[uint64]*Thread),
		clock:   NewSysClock(),
		opts:    resolveKernelOptions(opts),
		stopped: make(chan struct{}),
	}
	k.port = k.opts.port
	if k.port == nil {
		k.port = NewSimulatedPort()
	}
	return k
}

// SetLogger installs logger as the kernel's diagnostic sink.
func (k *Kernel) SetLogger(logger Logger) {
	if logger == nil {
		logger = NoOpLogger{}
	}
	k.logger.Store(&logger)
}

func (k *Kernel) log(entry LogEntry) {
	var logger Logger
	if l := k.logger.Load(); l != nil {
		logger = *l
	} else {
		logger = getGlobalLogger()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = RealtimeClock{}.Now()
	}
	logger.Log(entry)
}

// Initialize transitions the kernel from Uninitialized to Ready,
// creating the idle thread. It must be called exactly once.
func (k *Kernel) Initialize() error {
	if !k.state.TryTransition(uint32(SchedulerUninitialized), uint32(SchedulerReady)) {
		return newErr("Initialize", StatusInvalidArgument, nil)
	}
	idle, err := k.newThread(ThreadAttr{Name: "idle", Priority: PriorityIdle}, func() {
		for {
			k.idleLoop()
		}
	})
	if err != nil {
		return err
	}
	k.idle = idle
	k.log(LogEntry{Category: "sched", Level: LogInfo, Message: "kernel initialized", Kernel: k.name})
	return nil
}

// idleLoop runs on the idle thread whenever the ready list has no
// application thread to run: it parks on the port's wakeup primitive
// until the next tick or ISR-posted event makes a reschedule worth
// retrying.
func (k *Kernel) idleLoop() {
	k.port.WaitForWakeup(k.opts.tickPeriod)
	k.mu.Lock()
	idleIsCurrent := k.current == k.idle
	k.mu.Unlock()
	if idleIsCurrent {
		k.reschedule(k.idle)
	}
}

// Start transitions Ready -> Running and begins the periodic tick
// source (unless TickPeriod was configured as zero, for tests that
// drive SysClock.Tick manually).
func (k *Kernel) Start() error {
	if !k.state.TryTransition(uint32(SchedulerReady), uint32(SchedulerRunning)) {
		return newErr("Start", StatusInvalidArgument, nil)
	}
	k.startOnce.Do(func() {
		if k.opts.tickPeriod > 0 {
			k.tickerStop = make(chan struct{})
			k.tickerWG.Add(1)
			go k.tickLoop()
		}
		k.idle.start()
		// Hand the very first baton to whichever thread the ready list
		// now names (the idle thread, unless application threads were
		// already created between Initialize and Start). Nothing is
		// "currently running" yet, so this is a one-off kickoff rather
		// than a call to reschedule: the Start() caller is not itself
		// an RTOS thread and must not block waiting for a baton back.
		k.mu.Lock()
		n := k.ready.popFront()
		k.current = n.owner
		k.mu.Unlock()
		n.owner.resume <- struct{}{}
	})
	k.log(LogEntry{Category: "sched", Level: LogInfo, Message: "kernel started", Kernel: k.name})
	return nil
}

func (k *Kernel) tickLoop() {
	defer k.tickerWG.Done()
	ticker := time.NewTicker(k.opts.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-k.tickerStop:
			return
		case <-ticker.C:
			k.EnterISR()
			k.clock.Tick()
			k.port.Notify()
			k.ExitISR()
		}
	}
}

// Stop halts the tick source. It does not forcibly terminate threads;
// callers should coordinate their own shutdown via Thread.Interrupt or
// a shared done channel before calling Stop.
func (k *Kernel) Stop() {
	k.stopOnce.Do(func() {
		k.state.Store(uint32(SchedulerStopped))
		if k.tickerStop != nil {
			close(k.tickerStop)
			k.tickerWG.Wait()
		}
		close(k.stopped)
	})
}

// State returns the kernel's current lifecycle state.
func (k *Kernel) State() SchedulerState {
	return SchedulerState(k.state.Load())
}

// ContextSwitches returns the total number of baton handoffs the
// scheduler has performed, or 0 if WithMetrics was not enabled.
func (k *Kernel) ContextSwitches() uint64 {
	return k.contextSwitches.Load()
}

// InHandlerMode reports whether the calling goroutine currently holds
// simulated handler-mode (ISR) context, entered via EnterISR or the
// internal clock tick handler.
func (k *Kernel) InHandlerMode() bool {
	k.interruptMu.Lock()
	defer k.interruptMu.Unlock()
	return k.interruptDepth > 0 && k.interruptOwner == getGoroutineID()
}

// EnterISR enters simulated handler mode for the calling goroutine,
// masking the interrupt lock. Nestable: a goroutine already holding it
// may call EnterISR again, paired with an equal number of ExitISR
// calls.
func (k *Kernel) EnterISR() {
	gid := getGoroutineID()
	k.interruptMu.Lock()
	for k.interruptDepth > 0 && k.interruptOwner != gid {
		k.interruptMu.Unlock()
		runtime.Gosched()
		k.interruptMu.Lock()
	}
	k.interruptOwner = gid
	k.interruptDepth++
	k.interruptMu.Unlock()
}

// ExitISR releases one level of simulated handler mode entered by
// EnterISR.
func (k *Kernel) ExitISR() {
	k.interruptMu.Lock()
	defer k.interruptMu.Unlock()
	if k.interruptDepth == 0 || k.interruptOwner != getGoroutineID() {
		panic("rtos: ExitISR without matching EnterISR")
	}
	k.interruptDepth--
}

// Lock enters a scheduler critical section: the ready list is frozen
// (no reschedule occurs) but ISRs still run and may post work,
// matching the "scheduler lock" family's semantics (SchedulerLocked).
// Nestable.
func (k *Kernel) Lock() {
	k.mu.Lock()
	k.schedulerLockDepth++
	if k.schedulerLockDepth == 1 {
		k.state.Store(uint32(SchedulerLocked))
	}
	k.mu.Unlock()
}

// Unlock releases one level entered by Lock, restoring SchedulerRunning
// once the nesting count returns to zero. It does not run the scheduler
// itself: a thread that became ready while locked is dispatched at the
// next reschedule point (a Yield, a blocking wait, or the idle loop's
// next pass).
func (k *Kernel) Unlock() {
	k.mu.Lock()
	if k.schedulerLockDepth == 0 {
		k.mu.Unlock()
		panic("rtos: Kernel.Unlock without matching Lock")
	}
	k.schedulerLockDepth--
	if k.schedulerLockDepth == 0 {
		k.state.Store(uint32(SchedulerRunning))
	}
	k.mu.Unlock()
}

// Preemptive reports whether the kernel was configured to preempt a
// running thread when a higher-priority thread becomes ready (option
// WithPreemption). When false, a ready higher-priority thread only
// runs once the current thread yields or blocks.
func (k *Kernel) Preemptive() bool {
	return k.opts.preemptive
}

// checkPreempt hands the CPU from self to the front of the ready list
// when preemption is enabled, the scheduler is not locked, and that
// thread has a strictly higher effective priority. Nothing in the
// package calls it: a wake from thread context that readies a
// higher-priority thread preempts inside wake itself, Yield and
// blocking waits go through reschedule, and ExitISR and the tick
// handler do not reschedule. True instruction-level preemption of an
// arbitrary running goroutine is not something the Go runtime exposes,
// so "preemption" here means "surrendered at one of those points".
func (k *Kernel) checkPreempt(self *Thread) {
	if !k.opts.preemptive {
		return
	}
	k.mu.Lock()
	if k.schedulerLockDepth > 0 {
		k.mu.Unlock()
		return
	}
	front := k.ready.front()
	if front == nil || front.owner.effectivePriority() <= self.effectivePriority() {
		k.mu.Unlock()
		return
	}
	k.mu.Unlock()
	k.reschedule(self)
}

// reschedule is the core scheduling algorithm. self re-enters the
// ready list if it is still runnable (ThreadReady, or ThreadRunning for
// an application thread), the highest-priority ready thread is
// selected as current, and that thread's baton is signalled. The
// caller then blocks on its own baton until it is chosen again. While
// the scheduler is locked, a runnable self keeps the CPU and nothing
// is dispatched. Must be called with no kernel lock held.
func (k *Kernel) reschedule(self *Thread) {
	k.mu.Lock()
	st := self.state.Load()
	runnable := st == uint32(ThreadReady) ||
		(st == uint32(ThreadRunning) && self != k.idle)
	if k.schedulerLockDepth > 0 && (runnable || self == k.idle) {
		k.mu.Unlock()
		return
	}
	if runnable {
		self.state.Store(uint32(ThreadReady))
		self.node.priority = self.effectivePriority()
		k.ready.pushPriority(&self.node)
	}
	next := k.pickNextLocked()
	k.current = next
	if k.opts.metricsEnabled {
		k.contextSwitches.Add(1)
	}
	k.mu.Unlock()

	if next == self {
		return
	}
	if k.opts.metricsEnabled {
		next.stats.ContextSwitches++
	}
	// The idle thread receives its baton exactly once at Start and never
	// again; it is woken solely by port.Notify inside idleLoop, never by
	// a direct send here.
	if next != k.idle {
		next.resume <- struct{}{}
	}
	if self != k.idle {
		<-self.resume
	}
}

// pickNextLocked returns the highest-priority ready thread, or the
// idle thread if none is ready. Caller must hold k.mu.
func (k *Kernel) pickNextLocked() *Thread {
	n := k.ready.popFront()
	if n == nil {
		return k.idle
	}
	t := n.owner
	t.state.Store(uint32(ThreadRunning))
	return t
}

// Yield voluntarily relinquishes the CPU, letting an equal-or-higher
// priority ready thread run; self remains ready and is re-queued
// behind other threads at its own priority.
func (k *Kernel) Yield(self *Thread) {
	k.reschedule(self)
}

// wake moves t from whatever wait state it is in to ThreadReady and
// links it into the ready list, called by every blocking primitive's
// Post/Signal/Raise path and by clock timeout expiry. Safe to call
// from handler mode.
func (k *Kernel) wake(t *Thread) {
	k.mu.Lock()
	if t.state.Load() == uint32(ThreadSuspended) {
		t.state.Store(uint32(ThreadReady))
		t.node.priority = t.effectivePriority()
		k.ready.pushPriority(&t.node)
	}
	shouldPreempt := k.opts.preemptive && k.current != nil &&
		t.effectivePriority() > k.current.effectivePriority() &&
		k.schedulerLockDepth == 0
	k.mu.Unlock()
	k.port.Notify()
	if shouldPreempt && !k.InHandlerMode() {
		// A thread context woke a higher priority thread: give it the
		// CPU immediately rather than waiting for the next checkpoint.
		k.reschedule(k.current)
	}
}

// abortWait forcibly unlinks t from whatever wait list it currently
// occupies, records status as the outcome of its pending wait, and
// wakes it. It does nothing if t is not suspended (for example, a wait
// that was already satisfied and woken). Shared by Timer-driven
// timeout expiry and Thread.Interrupt.
func (k *Kernel) abortWait(t *Thread, status Status) {
	k.mu.Lock()
	if t.state.Load() != uint32(ThreadSuspended) {
		k.mu.Unlock()
		return
	}
	t.node.remove()
	k.mu.Unlock()
	t.setWaitResult(status)
	k.wake(t)
}

// blockOn links self into wl in priority order, suspends it, and - if
// timeout is positive - arms self's timeout node so a pending wait
// that nobody satisfies in time still returns. It returns the Status
// the wait completed with: StatusOK if something else popped self
// from wl and called wake, StatusTimeout, or StatusInterrupted.
//
// Callers are responsible for checking wl for self's node on a
// StatusOK return (it has already been popped by the signalling code)
// and must not call blockOn from handler mode.
func (k *Kernel) blockOn(self *Thread, wl *list, timeout time.Duration) Status {
	self.resetWaitResult()
	k.mu.Lock()
	self.node.priority = self.effectivePriority()
	wl.pushPriority(&self.node)
	self.state.Store(uint32(ThreadSuspended))
	k.mu.Unlock()
	return k.waitSuspended(self, timeout)
}

// waitSuspended performs the timeout-arming, reschedule, and outcome
// reporting shared by every blocking primitive. The caller must have
// already linked self.node into the relevant wait list and set self's
// state to ThreadSuspended under k.mu before calling this.
func (k *Kernel) waitSuspended(self *Thread, timeout time.Duration) Status {
	armed := timeout > 0
	if armed {
		deadlineTicks := Ticks(timeout / k.opts.tickUnit)
		if deadlineTicks == 0 {
			deadlineTicks = 1
		}
		self.timeout.fire = func() { k.abortWait(self, StatusTimeout) }
		k.clock.schedule(self.timeout, k.clock.Now()+deadlineTicks)
	}

	k.reschedule(self)

	if armed {
		k.clock.cancel(self.timeout)
	}
	return self.WaitResult()
}
