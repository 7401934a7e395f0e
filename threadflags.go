package rtos

import "time"

// FlagsRaise sets the bits in mask on t's own flag word, waking t if it
// is currently blocked in FlagsWait and the updated word
// satisfies its wait condition. Returns the flag word's value before
// mask was applied, mirroring os-thread.cpp's flags_raise(mask, *prev)
// out-parameter. Safe to call from handler mode, and from a thread
// other than t.
func (t *Thread) FlagsRaise(mask uint32) uint32 {
	t.kernel.mu.Lock()
	prev := t.flags
	t.flags |= mask
	var wake bool
	if t.flagsWaiting {
		if satisfied, matched := t.evalFlagsLocked(); satisfied {
			if t.flagsClearOnExit {
				t.flags &^= matched
			}
			t.flagsMatched = matched
			t.flagsWaiting = false
			t.node.remove()
			wake = true
		}
	}
	t.kernel.mu.Unlock()
	if wake {
		t.setWaitResult(StatusOK)
		t.kernel.wake(t)
	}
	return prev
}

// FlagsClear clears the bits in mask on t's own flag word unconditionally
// and returns its value beforehand. Safe to call from handler mode.
func (t *Thread) FlagsClear(mask uint32) uint32 {
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	prev := t.flags
	t.flags &^= mask
	return prev
}

// FlagsGet returns t's current flag word without consuming it.
func (t *Thread) FlagsGet() uint32 {
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	return t.flags
}

// evalFlagsLocked reports whether t's pending FlagsWait condition is
// satisfied against its current flag word, and which bits matched.
// Caller must hold k.mu. A zero mask matches any currently set bit in
// either mode, mirroring EventFlags.evalLocked.
func (t *Thread) evalFlagsLocked() (satisfied bool, matched uint32) {
	if t.flagsMask == 0 {
		return t.flags != 0, t.flags
	}
	if t.flagsAll {
		if t.flags&t.flagsMask == t.flagsMask {
			return true, t.flagsMask
		}
		return false, 0
	}
	matched = t.flags & t.flagsMask
	return matched != 0, matched
}

// FlagsWait blocks t - which must be the calling thread - until mask is
// satisfied in its own flag word according to all (AND vs OR), or until
// timeout elapses. A timeout of 0 waits indefinitely. If clearOnExit is
// true, the matched bits are cleared as part of the wait completing.
// Must not be called from handler mode.
func (t *Thread) FlagsWait(mask uint32, all, clearOnExit bool, timeout time.Duration) (uint32, error) {
	if t.kernel.InHandlerMode() {
		return 0, newErr("Thread.FlagsWait", StatusPermission, nil)
	}
	t.flagsMask = mask
	t.flagsAll = all
	t.flagsClearOnExit = clearOnExit
	t.flagsMatched = 0

	t.kernel.mu.Lock()
	if satisfied, matched := t.evalFlagsLocked(); satisfied {
		if clearOnExit {
			t.flags &^= matched
		}
		t.kernel.mu.Unlock()
		return matched, nil
	}
	t.resetWaitResult()
	t.flagsWaiting = true
	t.state.Store(uint32(ThreadSuspended))
	t.kernel.mu.Unlock()

	status := t.kernel.waitSuspended(t, timeout)

	t.kernel.mu.Lock()
	t.flagsWaiting = false
	t.kernel.mu.Unlock()

	if status != StatusOK {
		return 0, newErr("Thread.FlagsWait", status, nil)
	}
	return t.flagsMatched, nil
}

// FlagsTryWait is the non-blocking form of FlagsWait: it checks the
// condition once and returns StatusWouldBlock if unsatisfied. Safe to
// call from handler mode.
func (t *Thread) FlagsTryWait(mask uint32, all, clearOnExit bool) (uint32, error) {
	t.flagsMask = mask
	t.flagsAll = all
	t.kernel.mu.Lock()
	defer t.kernel.mu.Unlock()
	if satisfied, matched := t.evalFlagsLocked(); satisfied {
		if clearOnExit {
			t.flags &^= matched
		}
		return matched, nil
	}
	return 0, newErr("Thread.FlagsTryWait", StatusWouldBlock, nil)
}
