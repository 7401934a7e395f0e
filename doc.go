// Package rtos implements the kernel core of a POSIX-flavoured real-time
// operating system for microcontrollers: the scheduler, the thread
// lifecycle and wait state machine, the synchronisation primitives (mutex
// with priority inheritance/ceiling, counting and binary semaphores,
// condition variables, event flags, memory pools, priority message
// queues), and the clock/timer subsystem that binds them all together.
//
// # Architecture
//
// A [Kernel] owns the process-wide scheduler state: the priority-ordered
// ready list, the monotonic [SysClock] and its timeout list, and the idle
// thread. Every blocking primitive ([Mutex], [Semaphore], [Cond],
// [EventFlags], [Pool], [Queue]) links a [Thread]'s intrusive wait node
// into its own wait list and defers to the kernel's scheduler primitives
// to suspend and later resume that thread - no primitive implements its
// own scheduling policy.
//
// Threads are not coroutines: each [Thread] is backed by a dedicated
// goroutine, but the kernel's own state machine - not the Go runtime's
// goroutine scheduler - decides which thread's goroutine is permitted to
// execute kernel-visible code at any instant, modelling the single-core,
// non-parallel execution the specification requires. See the kernel.go
// entry in DESIGN.md for the rationale.
//
// # Handler mode (ISR context)
//
// A narrow set of operations (Semaphore.Post, EventFlags.Raise/Clear,
// Pool.Free, Cond.Signal/Broadcast, Thread.FlagsRaise/FlagsClear, every
// Try* variant) may be called from simulated handler mode, entered via
// [Kernel.EnterISR] /
// [Kernel.ExitISR] or from inside the clock tick handler. Calling a
// blocking operation (Lock, Wait, Alloc, Send, Receive, Join) from
// handler mode returns [StatusPermission] instead of blocking.
//
// # Error handling
//
// Every operation that can fail returns an error, nil on success; a
// kernel error is an [*Error] carrying a [Status], which [StatusOf]
// extracts.
// Nothing in the core path panics except thread functions that
// themselves panic, which are recovered and surfaced as
// [ThreadPanicError] to the joiner. See errors.go.
//
// # Logging
//
// Kernel events (thread creation/termination, priority inheritance,
// timer expiry, queue/pool exhaustion) are reported through the
// package-level [Logger] interface, configured with
// [SetStructuredLogger]. The default is a no-op; [NewDefaultLogger]
// provides a dependency-free text logger, and the rtoslog subpackage
// adapts the same events into a github.com/joeycumines/logiface pipeline
// for structured JSON output.
//
// # Port layer
//
// The kernel consumes its CPU port through the narrow [Port] interface
// (port.go), which covers only parking the idle thread until something
// may have become ready. Interrupt masking is simulated by
// [Kernel.EnterISR]/[Kernel.ExitISR], and the systick source is the
// kernel's own ticker. [NewSimulatedPort] provides a channel based port
// suitable for hosted testing and non-microcontroller use;
// NewDoorbellPort (port_linux.go, port_darwin.go, port_windows.go)
// returns a separate Port that parks on a real OS wakeup primitive
// instead of a bare channel (on Windows it returns the simulated port).
package rtos
