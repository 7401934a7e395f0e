package rtos

import "sync/atomic"

// SchedulerState is the lifecycle state of a [Kernel].
type SchedulerState uint32

const (
	// SchedulerUninitialized is the state before Initialize is called.
	SchedulerUninitialized SchedulerState = iota
	// SchedulerReady indicates Initialize completed but Start has not
	// been called; threads may already be created in this state.
	SchedulerReady
	// SchedulerRunning indicates Start has been called and the
	// scheduler is actively dispatching threads.
	SchedulerRunning
	// SchedulerLocked indicates the scheduler is in a critical section
	// (Kernel.Lock held); the ready list is frozen but ISRs
	// still run and may post work.
	SchedulerLocked
	// SchedulerStopped is the terminal state after Stop completes.
	SchedulerStopped
)

// String implements fmt.Stringer.
func (s SchedulerState) String() string {
	switch s {
	case SchedulerUninitialized:
		return "Uninitialized"
	case SchedulerReady:
		return "Ready"
	case SchedulerRunning:
		return "Running"
	case SchedulerLocked:
		return "Locked"
	case SchedulerStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// ThreadState is the lifecycle state of a [Thread], per the state
// machine: undefined -> initializing -> ready <-> running -> suspended
// (blocked on a wait condition or explicitly suspended) -> terminated
// -> destroyed.
type ThreadState uint32

const (
	ThreadUndefined ThreadState = iota
	ThreadInitializing
	ThreadReady
	ThreadRunning
	ThreadSuspended
	ThreadTerminated
	ThreadDestroyed
)

// String implements fmt.Stringer.
func (s ThreadState) String() string {
	switch s {
	case ThreadUndefined:
		return "Undefined"
	case ThreadInitializing:
		return "Initializing"
	case ThreadReady:
		return "Ready"
	case ThreadRunning:
		return "Running"
	case ThreadSuspended:
		return "Suspended"
	case ThreadTerminated:
		return "Terminated"
	case ThreadDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// atomicState is a lock-free state machine cell with cache-line
// padding to avoid false sharing against neighbouring hot fields (the
// ready-list head, the run queue generation counter, ...).
type atomicState struct { // betteralign:ignore
	_ [sizeOfCacheLine]byte //nolint:unused
	v atomic.Uint32
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte //nolint:unused
}

func newAtomicState(initial uint32) *atomicState {
	s := &atomicState{}
	s.v.Store(initial)
	return s
}

func (s *atomicState) Load() uint32 {
	return s.v.Load()
}

func (s *atomicState) Store(v uint32) {
	s.v.Store(v)
}

func (s *atomicState) TryTransition(from, to uint32) bool {
	return s.v.CompareAndSwap(from, to)
}

func (s *atomicState) TransitionAny(validFrom []uint32, to uint32) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(from, to) {
			return true
		}
	}
	return false
}
