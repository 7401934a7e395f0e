package rtos

import "time"

// SemaphoreAttr configures a Semaphore before creation.
type SemaphoreAttr struct {
	Name         string
	InitialCount int
	MaxCount     int // 0 means unbounded
}

// Semaphore is a counting semaphore: Post increments the count (or
// wakes a waiter directly if one is blocked), Wait decrements it,
// blocking if it is already zero. A MaxCount of 1 yields binary
// semaphore semantics.
type Semaphore struct {
	kernel   *Kernel
	name     string
	maxCount int

	count    int
	waitList list
}

// NewSemaphore creates a Semaphore bound to k.
func (k *Kernel) NewSemaphore(attr SemaphoreAttr) *Semaphore {
	return &Semaphore{kernel: k, name: attr.Name, count: attr.InitialCount, maxCount: attr.MaxCount}
}

// Name returns the semaphore's diagnostic name.
func (s *Semaphore) Name() string { return s.name }

// Post increments the semaphore, waking the highest-priority waiter if
// any thread is blocked in Wait. Safe to call from handler mode.
func (s *Semaphore) Post() error {
	s.kernel.mu.Lock()
	n := s.waitList.popFront()
	if n == nil {
		if s.maxCount > 0 && s.count >= s.maxCount {
			s.kernel.mu.Unlock()
			return newErr("Semaphore.Post", StatusWouldOverflow, nil)
		}
		s.count++
		s.kernel.mu.Unlock()
		return nil
	}
	s.kernel.mu.Unlock()
	n.owner.setWaitResult(StatusOK)
	s.kernel.wake(n.owner)
	return nil
}

// Wait decrements the semaphore, blocking caller if the count is
// already zero. A timeout of 0 waits indefinitely. Must not be called
// from handler mode.
func (s *Semaphore) Wait(caller *Thread, timeout time.Duration) error {
	if s.kernel.InHandlerMode() {
		return newErr("Semaphore.Wait", StatusPermission, nil)
	}
	s.kernel.mu.Lock()
	if s.count > 0 {
		s.count--
		s.kernel.mu.Unlock()
		return nil
	}
	s.kernel.mu.Unlock()
	status := s.kernel.blockOn(caller, &s.waitList, timeout)
	if status != StatusOK {
		return newErr("Semaphore.Wait", status, nil)
	}
	return nil
}

// TryWait attempts to decrement the semaphore without blocking. Safe
// to call from handler mode.
func (s *Semaphore) TryWait() error {
	s.kernel.mu.Lock()
	defer s.kernel.mu.Unlock()
	if s.count > 0 {
		s.count--
		return nil
	}
	return newErr("Semaphore.TryWait", StatusWouldBlock, nil)
}

// Count returns the current semaphore count (threads already counted
// as "woken but not yet resumed" are not included).
func (s *Semaphore) Count() int {
	s.kernel.mu.Lock()
	defer s.kernel.mu.Unlock()
	return s.count
}
