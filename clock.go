package rtos

import (
	"sync"
	"time"
	"weak"
)

// Ticks is a count of system clock ticks since the kernel started.
type Ticks uint64

// SysClock is the kernel's monotonic, tick-driven clock: a counter
// advanced only by [SysClock.Tick] (called from the systick ISR or a
// simulated port) plus a deadline-sorted timeout list. It never reads
// wall-clock time; for human-readable timestamps use [RealtimeClock].
type SysClock struct {
	mu      sync.Mutex
	now     Ticks
	waiting list // ordered by deadline ascending, via node.priority == -deadline

	// registry tracks live *timeoutNode values by a monotonically
	// increasing token using weak pointers, so a cancelled or expired
	// timer's bookkeeping entry is scavenged instead of retained
	// forever, the same ring-buffer-scavenge strategy the teacher's
	// promise registry uses for settled promises.
	registry   map[uint64]weak.Pointer[timeoutNode]
	ring       []uint64
	ringHead   int
	nextToken  uint64
	scavengeMu sync.Mutex
}

// timeoutNode links a waiter (a blocked Thread, or a periodic Timer)
// into SysClock's sorted wait list.
type timeoutNode struct {
	n        node
	deadline Ticks
	token    uint64
	// fire is invoked by Tick after the clock's lock is released. A
	// Timer sets it to its own expiry handler; a thread's bounded wait
	// sets it to abort that wait with StatusTimeout (see waitSuspended).
	fire func()
}

func newTimeoutNode() *timeoutNode {
	tn := &timeoutNode{}
	tn.n.host = tn
	return tn
}

// NewSysClock constructs a SysClock starting at tick 0.
func NewSysClock() *SysClock {
	return &SysClock{
		registry:  make(map[uint64]weak.Pointer[timeoutNode]),
		ring:      make([]uint64, 0, 64),
		nextToken: 1,
	}
}

// Now returns the current tick count.
func (c *SysClock) Now() Ticks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Tick advances the clock by one tick and returns the set of timeout
// nodes whose deadline has now passed, detached from the wait list.
// Called only from handler mode (the systick ISR).
func (c *SysClock) Tick() []*timeoutNode {
	c.mu.Lock()
	c.now++
	now := c.now
	var expired []*timeoutNode
	for {
		front := c.waiting.front()
		if front == nil {
			break
		}
		// priority encodes -deadline so the earliest deadline sorts
		// first (pushPriority keeps highest priority at the head).
		if Ticks(-front.priority) > now {
			break
		}
		tn := front.host.(*timeoutNode)
		front.remove()
		expired = append(expired, tn)
	}
	c.mu.Unlock()
	for _, tn := range expired {
		if tn.fire != nil {
			tn.fire()
		}
	}
	return expired
}

// schedule links tn into the sorted wait list for expiry once the
// clock reaches the absolute tick deadline, and records tn in the
// weak-pointer registry under a fresh token.
func (c *SysClock) schedule(tn *timeoutNode, deadline Ticks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tn.deadline = deadline
	tn.n.priority = -int(deadline)
	c.waiting.pushPriority(&tn.n)
	c.register(tn)
}

// cancel removes tn from the wait list if still pending. Safe to call
// after tn has already fired (idempotent via node.remove).
func (c *SysClock) cancel(tn *timeoutNode) {
	c.mu.Lock()
	tn.n.remove()
	c.mu.Unlock()
}

func (c *SysClock) register(tn *timeoutNode) {
	c.scavengeMu.Lock()
	defer c.scavengeMu.Unlock()
	tn.token = c.nextToken
	c.nextToken++
	c.registry[tn.token] = weak.Make(tn)
	c.ring = append(c.ring, tn.token)
	if len(c.ring) >= 256 {
		c.scavengeLocked(64)
	}
}

// scavengeLocked drops registry entries for tokens whose timeoutNode
// has been garbage collected, in ring-buffer batches so a single call
// never walks the whole history at once. Must hold scavengeMu.
func (c *SysClock) scavengeLocked(batch int) {
	n := len(c.ring)
	if n == 0 {
		return
	}
	end := min(c.ringHead+batch, n)
	kept := c.ring[:0]
	kept = append(kept, c.ring[:c.ringHead]...)
	for i := c.ringHead; i < end; i++ {
		tok := c.ring[i]
		if wp, ok := c.registry[tok]; ok {
			if wp.Value() == nil {
				delete(c.registry, tok)
				continue
			}
		}
		kept = append(kept, tok)
	}
	kept = append(kept, c.ring[end:]...)
	c.ring = kept
	if end >= n {
		c.ringHead = 0
	} else {
		c.ringHead = end
	}
}

// Timer is a periodic or one-shot callback scheduled against a
// SysClock, the Go rendering of os-timer's timer_node: a callback
// invoked from handler mode when its deadline elapses, optionally
// rearmed for the next period.
type Timer struct {
	clock    *SysClock
	tn       *timeoutNode
	period   Ticks
	periodic bool
	callback func()
	mu       sync.Mutex
	active   bool
	Name     string
}

// NewTimer creates a Timer bound to clock. The callback runs from
// handler mode (the clock's Tick caller); it must not block and must
// only call ISR-safe operations (Post, Raise, Free).
func NewTimer(clock *SysClock, name string, callback func()) *Timer {
	t := &Timer{clock: clock, callback: callback, Name: name, tn: newTimeoutNode()}
	t.tn.fire = t.onFire
	return t
}

func (t *Timer) onFire() {
	t.mu.Lock()
	active := t.active
	periodic := t.periodic
	period := t.period
	t.active = false
	t.mu.Unlock()
	if !active {
		return
	}
	if t.callback != nil {
		t.callback()
	}
	if periodic {
		t.mu.Lock()
		t.active = true
		t.mu.Unlock()
		t.clock.schedule(t.tn, t.clock.Now()+period)
	}
}

// Start arms the timer to fire once after delay ticks. If periodic is
// true, it rearms itself to fire again every period ticks thereafter;
// a period of 0 reuses delay as the recurring period.
func (t *Timer) Start(delay, period Ticks, periodic bool) {
	t.mu.Lock()
	if periodic && period == 0 {
		period = delay
	}
	t.period = period
	t.periodic = periodic
	t.active = true
	t.mu.Unlock()
	t.clock.schedule(t.tn, t.clock.Now()+delay)
}

// Stop disarms the timer; a callback already in flight still runs to
// completion but a periodic timer will not rearm.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
	t.clock.cancel(t.tn)
}

// RealtimeClock wraps time.Now for human-readable log timestamps. It
// is never consulted by the scheduler for wait/timeout decisions; only
// SysClock's tick count drives scheduling.
type RealtimeClock struct{}

func (RealtimeClock) Now() time.Time { return time.Now() }
